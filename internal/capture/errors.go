package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed means the camera could not be reached or refused the connection.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrAuthFailed means the camera rejected the supplied credentials.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrTimeout means no complete response arrived within the configured bound.
	ErrTimeout = errors.New("timeout")
	// ErrTruncated means the response did not fit the caller's buffer. The
	// partial text is still returned alongside this error.
	ErrTruncated = errors.New("result truncated")
	// ErrUnexpectedStatus means the camera answered with a non-2xx status other than 401/403.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrDecodeFailed means no decoder is registered for the requested channel type.
	ErrDecodeFailed = errors.New("decode failed")
)

// Error carries the failure kind (one of the sentinels above) and the underlying cause.
// Both match with errors.Is.
type Error struct {
	Kind error
	IP   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture %s: %v", e.IP, e.Kind)
	}
	return fmt.Sprintf("capture %s: %v: %v", e.IP, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Outcome returns a short label for err, used for metrics and API responses.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConnectionFailed):
		return "connection_failed"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTruncated):
		return "truncated"
	case errors.Is(err, ErrUnexpectedStatus):
		return "bad_status"
	case errors.Is(err, ErrDecodeFailed):
		return "decode_failed"
	default:
		return "error"
	}
}
