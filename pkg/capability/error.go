// Package capability defines the shared error taxonomy for the three
// external capabilities (LLM synthesis, web search, chart rendering).
// Adapters wrap every failure in an Error so callers can switch on Kind
// without knowing which provider sat behind the call.
package capability

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a capability failure.
type Kind string

const (
	// KindTimeout marks a blown per-call deadline.
	KindTimeout Kind = "timeout"
	// KindTransport marks connection-level failures (DNS, TLS, refused).
	KindTransport Kind = "transport"
	// KindUpstream4xx marks a rejected request (auth, quota, bad input).
	KindUpstream4xx Kind = "upstream_4xx"
	// KindUpstream5xx marks an upstream service failure.
	KindUpstream5xx Kind = "upstream_5xx"
	// KindParse marks an unusable upstream response body.
	KindParse Kind = "parse_error"
	// KindInvalidPayload marks a chart payload that failed shape validation.
	KindInvalidPayload Kind = "invalid_payload"
	// KindRender marks a chart service rendering failure.
	KindRender Kind = "render_error"
)

// Error is the typed failure every capability adapter returns.
type Error struct {
	Kind Kind
	Op   string // e.g. "llm.ask", "search.query", "chart.render"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a capability Error of the given kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a capability Error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, or "" when err carries no capability
// classification.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsTimeout reports whether err is a blown capability deadline.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// FromContext maps a context error after a capability call. Deadline expiry
// becomes a timeout Error; explicit cancellation passes through unwrapped so
// errors.Is(err, context.Canceled) keeps working for the executor.
func FromContext(op string, ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, op, err)
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return err
	default:
		return NewError(KindTransport, op, err)
	}
}
