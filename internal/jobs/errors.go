package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrNotReady          = errors.New("job not completed yet")
	ErrDispatch          = errors.New("job could not be dispatched")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// ValidationError rejects a submission before any job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type UpstreamKind string

const (
	UpstreamTimeout   UpstreamKind = "timeout"
	UpstreamAuth      UpstreamKind = "auth"
	UpstreamQuota     UpstreamKind = "quota"
	UpstreamMalformed UpstreamKind = "malformed"
	UpstreamFailed    UpstreamKind = "failed"
)

// UpstreamError describes why the external research call did not produce a
// report. It is only ever recorded on a job, never returned to a caller.
type UpstreamError struct {
	Kind UpstreamKind
	Err  error
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case UpstreamTimeout:
		return e.Err.Error()
	case UpstreamAuth:
		return "upstream rejected the credentials: " + e.Err.Error()
	case UpstreamQuota:
		return "upstream rate limit or quota exceeded: " + e.Err.Error()
	case UpstreamMalformed:
		return "upstream returned unusable content: " + e.Err.Error()
	default:
		return "research failed: " + e.Err.Error()
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }
