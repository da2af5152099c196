// Package logging provides structured logging utilities for rapture-inbox.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (identity hashing)
//   - Consistent attribute naming across the codebase
//   - Terminal-aware handler selection
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "inbox.poll")
//	logger.Info("file transferred",
//	    logging.File(name),
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("signed in",
//	    logging.UserHash(identity))
//
// # Security Considerations
//
//   - Connected identities are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
