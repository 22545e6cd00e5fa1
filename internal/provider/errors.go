package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by this package and by the directory wraps
// exactly one of them, so callers can branch with errors.Is.
var (
	// ErrAuthentication means the admin credential could not be obtained or was
	// rejected by the provider after one forced refresh.
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrNotFound is returned when the requested user or role does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the provider rejects a duplicate username or email.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input, local or provider-reported.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable covers network failures, timeouts and 5xx responses.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrUnresolvedRole is returned when a desired role name has no realm role.
	ErrUnresolvedRole = errors.New("unresolved role")
)

// Error carries the failed operation and, for HTTP failures, the status code.
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Validation builds an ErrValidation error for op.
func Validation(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Message: msg}
}

// Unavailable wraps a transport failure for op.
func Unavailable(op string, err error) error {
	return &Error{Kind: ErrUnavailable, Op: op, Err: err}
}

// Kind returns the sentinel kind wrapped by err, or nil if err carries none.
func Kind(err error) error {
	for _, kind := range []error{
		ErrAuthentication,
		ErrNotFound,
		ErrConflict,
		ErrValidation,
		ErrUnavailable,
		ErrUnresolvedRole,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// statusError maps a non-2xx admin API response to an error kind.
func statusError(op string, status int, message string) error {
	var kind error
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = ErrAuthentication
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusConflict:
		kind = ErrConflict
	case status == http.StatusBadRequest:
		kind = ErrValidation
	default:
		kind = ErrUnavailable
	}
	return &Error{Kind: kind, Op: op, StatusCode: status, Message: message}
}
