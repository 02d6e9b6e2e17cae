package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures for API status mapping and metrics.
type Kind string

const (
	// KindInvalidInput covers malformed requests: empty prompts, unknown
	// personas, out-of-range parameters.
	KindInvalidInput Kind = "invalid_input"

	// KindUpstreamUnavailable covers failures of backing model servers after
	// all retries and fallbacks are exhausted.
	KindUpstreamUnavailable Kind = "upstream_unavailable"

	// KindInsufficientReferenceData covers reference videos with too few
	// usable face detections to derive a style.
	KindInsufficientReferenceData Kind = "insufficient_reference_data"

	// KindInternal covers everything else: artifact I/O failures, unexpected
	// provider responses.
	KindInternal Kind = "internal"
)

// Error is a classified pipeline failure. It wraps the underlying cause so
// errors.Is/As still work through it.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("pipeline: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error without an underlying cause.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classification from err, walking the wrap chain.
// Unclassified errors report KindInternal; nil reports the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
