package notification

import (
	"errors"
	"strings"
)

// Kind classifies engine failures by how they propagate.
type Kind string

const (
	// KindMalformedPayload is recovered locally by normalizer defaults.
	KindMalformedPayload Kind = "malformed_payload"
	// KindDisplayFailure is logged and published; the record stays pending.
	KindDisplayFailure Kind = "display_failure"
	// KindWindowRouting is logged and swallowed.
	KindWindowRouting Kind = "window_routing_failure"
	// KindTransportFailure moves the session to degraded.
	KindTransportFailure Kind = "transport_failure"
)

// Error carries a failure kind plus the operation and tag it belongs to.
type Error struct {
	Kind Kind
	Op   string
	Tag  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Tag != "" {
		b.WriteString(" [tag=")
		b.WriteString(e.Tag)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind. A nil err still yields a non-nil *Error.
func NewError(kind Kind, op, tag string, err error) *Error {
	return &Error{Kind: kind, Op: op, Tag: tag, Err: err}
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
