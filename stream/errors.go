package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/machinefabric/framepipe-go/frame"
	"github.com/machinefabric/framepipe-go/varint"
)

// Kind classifies a failed stream operation
type Kind int

const (
	// KindOpenFailure: the named resource could not be opened.
	KindOpenFailure Kind = iota + 1
	// KindShortWrite: fewer bytes were written than the frame required.
	KindShortWrite
	// KindTruncatedPayload: the stream ended inside a payload.
	KindTruncatedPayload
	// KindIOFailure: any other error from the underlying resource.
	KindIOFailure
	// KindMessageTooLarge: a message exceeded the registry's limits.
	KindMessageTooLarge
	// KindMalformed: the length prefix does not decode to a 64-bit value.
	KindMalformed
	// KindCanceled: the caller's context ended before the operation did.
	KindCanceled
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindOpenFailure:
		return "OpenFailure"
	case KindShortWrite:
		return "ShortWrite"
	case KindTruncatedPayload:
		return "TruncatedPayload"
	case KindIOFailure:
		return "IOFailure"
	case KindMessageTooLarge:
		return "MessageTooLarge"
	case KindMalformed:
		return "Malformed"
	case KindCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

// Error describes a failed read or write against a named stream
type Error struct {
	Kind   Kind
	Op     string
	Stream string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Stream, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var streamErr *Error
	return errors.As(err, &streamErr) && streamErr.Kind == kind
}

// NewOpenError creates an error for a resource that could not be opened
func NewOpenError(op, name string, err error) *Error {
	return &Error{Kind: KindOpenFailure, Op: op, Stream: name, Err: err}
}

// classify maps an error from the frame layer or the resource to an *Error.
func classify(ctx context.Context, op, name string, err error) *Error {
	kind := KindIOFailure
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		kind = KindCanceled
	case ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded):
		kind = KindCanceled
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	case errors.Is(err, io.ErrShortWrite):
		kind = KindShortWrite
	case errors.Is(err, frame.ErrTruncatedPayload):
		kind = KindTruncatedPayload
	case errors.Is(err, frame.ErrMessageTooLarge):
		kind = KindMessageTooLarge
	case errors.Is(err, varint.ErrOverflow):
		kind = KindMalformed
	}
	return &Error{Kind: kind, Op: op, Stream: name, Err: err}
}
