package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is fatal at startup: OAuth endpoints must not be served.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrMissingCode means the provider redirect carried no authorization code.
	ErrMissingCode = errors.New("missing authorization code in redirect URL")

	// ErrExchangeRejected is matched by every *ExchangeRejectedError.
	ErrExchangeRejected = errors.New("token exchange rejected")

	// ErrPersistence means the connection store could not complete a read or write.
	ErrPersistence = errors.New("connection store failure")

	// ErrNotConnected means no usable connection exists for the user.
	ErrNotConnected = errors.New("no access token found, connect the workspace first")

	// ErrDiscoveryDegraded is non-fatal: the connection is saved but resources
	// could not be enumerated.
	ErrDiscoveryDegraded = errors.New("resource discovery degraded")

	// ErrInvalidState means the callback state is unknown, expired or already used.
	ErrInvalidState = errors.New("invalid or expired authorization state")

	ErrUnauthenticated = errors.New("unauthenticated")
)

// ExchangeRejectedError carries the provider's raw response for operator
// diagnostics. StatusCode is zero when the request never got a response.
type ExchangeRejectedError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeRejectedError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	default:
		return fmt.Sprintf("token exchange failed: %s", e.Body)
	}
}

func (e *ExchangeRejectedError) Unwrap() error {
	return e.Err
}

func (e *ExchangeRejectedError) Is(target error) bool {
	return target == ErrExchangeRejected
}
