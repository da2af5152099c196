package auth

import (
	"errors"
	"fmt"
	"net/url"
)

// CallbackResult is what the OAuth redirect carried: either an error code
// from the consent screen or an authorization code.
type CallbackResult struct {
	Code  string
	Error string
}

// ErrNoAuthorizationCode is returned for a redirect carrying neither a code nor an error.
var ErrNoAuthorizationCode = errors.New("redirect carried no authorization code")

// ParseCallback extracts the authorization outcome from a redirect URI such
// as obsidian://rapture-inbox?code=... Query parameters on a bare string
// ("code=...") are accepted too.
func ParseCallback(raw string) (CallbackResult, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("parsing redirect: %w", err)
	}

	q := u.Query()
	if u.RawQuery == "" && u.Scheme == "" {
		if q, err = url.ParseQuery(raw); err != nil {
			return CallbackResult{}, fmt.Errorf("parsing redirect: %w", err)
		}
	}

	if e := q.Get("error"); e != "" {
		return CallbackResult{Error: e}, nil
	}
	if code := q.Get("code"); code != "" {
		return CallbackResult{Code: code}, nil
	}
	return CallbackResult{}, ErrNoAuthorizationCode
}
