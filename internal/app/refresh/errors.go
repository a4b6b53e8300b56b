package refresh

import "errors"

// Failure kinds of a refresh cycle. All of them are contained inside the
// cycle: none is ever surfaced to the renderer.
var (
	// ErrUpstreamUnavailable means the legs listing failed; the previous
	// cache record stays authoritative.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMissingConfiguration means the subscriber has no credentials yet.
	ErrMissingConfiguration = errors.New("missing configuration")
	// ErrCorruptCache means a cache record could not be decoded.
	ErrCorruptCache = errors.New("corrupt cache")
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}
