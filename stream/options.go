package stream

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/machinefabric/framepipe-go/frame"
)

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger that receives diagnostics. The default writes
// JSON lines to standard error.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithStdio replaces the process standard streams behind the "stdin" and
// "stdout" names.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(r *Registry) {
		if in != nil {
			r.stdin = in
		}
		if out != nil {
			r.stdout = out
		}
	}
}

// WithLimits sets the message limits applied to every handle
func WithLimits(limits frame.Limits) Option {
	return func(r *Registry) {
		r.limits = limits
	}
}

// CallOption adjusts a single Read or Write
type CallOption func(*call)

type call struct {
	offset   int64
	blocking bool
	lenient  bool
}

func newCall(opts []CallOption) call {
	c := call{offset: NoOffset, blocking: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// seeks reports whether an offset was requested. Any negative offset means none.
func (c call) seeks() bool {
	return c.offset >= 0
}

// Offset seeks the handle to n bytes from the start of the resource before
// the operation and disables the handle's buffering from then on. It has no
// effect on the standard streams. NoOffset means no seek.
func Offset(n int64) CallOption {
	return func(c *call) {
		c.offset = n
	}
}

// BestEffortOffset is Offset for callers that would rather keep going than
// fail: when the resource cannot seek (a pipe), the offset is logged and
// ignored and the handle keeps its position and buffering.
func BestEffortOffset(n int64) CallOption {
	return func(c *call) {
		c.offset = n
		c.lenient = true
	}
}

// Blocking controls whether a read waits for data on a pipe. Reads block by
// default. A non-blocking read returns StatusEndOfStream at once when nothing
// is available.
func Blocking(blocking bool) CallOption {
	return func(c *call) {
		c.blocking = blocking
	}
}
