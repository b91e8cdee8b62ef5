package npm

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated means no valid cached token exists. It is a local
// precondition failure raised before any network I/O; the fix is to run
// the login flow again.
var ErrNotAuthenticated = errors.New("token expired or missing, authenticate first")

// ConnectionError means the NPM endpoint could not be reached at all.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to NPM at %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// APIError means NPM responded with a non-success status. The raw body is
// preserved for inspection.
type APIError struct {
	Message    string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: status %d", e.Message, e.StatusCode)
}

// ValidationError means a response parsed as JSON but did not match the
// expected resource shape. It always indicates the NPM API contract
// changed; Err carries the field-level detail.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
