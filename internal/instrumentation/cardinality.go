package instrumentation

import "strings"

// ExtractUserDomain extracts the domain part from an email address.
// Use it instead of the full identity whenever a value ends up in a label
// or a general-purpose log line.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Drive operation names used for metrics and spans.
const (
	OperationLocate   = "locate"
	OperationList     = "list"
	OperationDownload = "download"
	OperationDelete   = "delete"
)
