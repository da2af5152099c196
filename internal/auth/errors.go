package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrRefreshFailed is returned when the gateway rejects a refresh. The
	// credential record has been cleared by the time it is returned.
	ErrRefreshFailed = errors.New("token refresh failed, please sign in again")

	// ErrNoRefreshCredential is returned when a refresh is needed but no
	// refresh token is stored. It also matches ErrRefreshFailed.
	ErrNoRefreshCredential = fmt.Errorf("%w: no refresh token available", ErrRefreshFailed)

	// ErrExchangeFailed is returned when the gateway rejects an authorization code.
	ErrExchangeFailed = errors.New("token exchange failed")
)

// GatewayError describes a non-2xx response from the token gateway.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: gateway returned %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: gateway returned %d", e.Op, e.StatusCode)
}

// Unwrap returns the sentinel this failure maps to.
func (e *GatewayError) Unwrap() error {
	return e.Err
}
