// Package stream reads and writes framed messages against named streams.
//
// A Registry owns one open handle per stream name and mode, so repeated
// calls against the same name continue where the previous one stopped
// instead of reopening the resource. Two names are special: "stdin" for
// reads and "stdout" for writes always mean the standard streams.
//
//	registry := stream.NewRegistry()
//	defer registry.Close()
//
//	if err := registry.Write(ctx, []byte("ping"), "/tmp/requests"); err != nil {
//	    return err
//	}
//	result := registry.Read(ctx, "/tmp/responses")
//	switch result.Status {
//	case stream.StatusOK:
//	    handle(result.Message)
//	case stream.StatusEndOfStream:
//	    // nothing yet
//	case stream.StatusError:
//	    return result.Err
//	}
//
// A Registry is not safe for concurrent use. Callers sharing one across
// goroutines must serialize their calls.
package stream

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/machinefabric/framepipe-go/fifo"
	"github.com/machinefabric/framepipe-go/frame"
	"github.com/machinefabric/framepipe-go/varint"
)

const (
	// Stdin is the stream name of the registry's standard input
	Stdin = "stdin"
	// Stdout is the stream name of the registry's standard output
	Stdout = "stdout"
	// NoOffset requests no seek
	NoOffset int64 = -1
)

// Mode selects the read or write table of a Registry
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Registry caches open stream handles by name
type Registry struct {
	id     string
	logger zerolog.Logger
	limits frame.Limits

	stdin  io.Reader
	stdout io.Writer

	stdinHandle  *readHandle
	stdoutHandle *writeHandle

	readers map[string]*readHandle
	writers map[string]*writeHandle
}

// NewRegistry creates a registry with empty handle tables
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		id:      uuid.NewString(),
		logger:  zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger(),
		limits:  frame.DefaultLimits(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		readers: make(map[string]*readHandle),
		writers: make(map[string]*writeHandle),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "stream").Str("registry", r.id).Logger()
	return r
}

// ID identifies the registry in log output
func (r *Registry) ID() string {
	return r.id
}

// Cached reports whether a handle for name is open in the given table
func (r *Registry) Cached(name string, mode Mode) bool {
	switch mode {
	case ModeRead:
		_, ok := r.readers[name]
		return ok
	case ModeWrite:
		_, ok := r.writers[name]
		return ok
	default:
		return false
	}
}

// Buffered reports whether the handle for name still buffers. It returns
// false when no handle is open.
func (r *Registry) Buffered(name string, mode Mode) bool {
	switch mode {
	case ModeRead:
		h, ok := r.readers[name]
		return ok && h.isBuffered()
	case ModeWrite:
		h, ok := r.writers[name]
		return ok && h.isBuffered()
	default:
		return false
	}
}

// Write frames message and writes it to the named stream, then flushes.
//
// The handle is opened on first use for the name ("wb": created, truncated).
// With Offset the handle is first seeked and left unbuffered. Failures are
// logged and returned as *Error.
func (r *Registry) Write(ctx context.Context, message []byte, name string, opts ...CallOption) error {
	c := newCall(opts)
	log := r.logger.With().Str("op", "write").Str("stream", name).Logger()

	if err := ctx.Err(); err != nil {
		return r.report(log, classify(ctx, "write", name, err))
	}

	h, openErr := r.writer(name)
	if openErr != nil {
		return r.report(log, openErr)
	}

	if c.seeks() && name != Stdout {
		if err := h.seek(c.offset); err != nil {
			if !c.lenient {
				return r.report(log, classify(ctx, "write", name, err))
			}
			log.Warn().Err(err).Int64("offset", c.offset).Msg("offset ignored")
		} else {
			log.Debug().Int64("offset", c.offset).Msg("seeked, buffering disabled")
		}
	}

	stop := h.watch(ctx)
	err := h.write(message)
	stop()
	if err != nil {
		return r.report(log, classify(ctx, "write", name, err))
	}

	log.Trace().Int("length", len(message)).Msg("message written")
	return nil
}

// Read reads one framed message from the named stream.
//
// The outcome is StatusOK with the payload, StatusEndOfStream when no
// complete frame is available, or StatusError. Reads block by default,
// which only matters for pipes: a regular file at its end yields
// StatusEndOfStream at once. Canceling ctx interrupts a read blocked on a
// pipe opened by the registry.
func (r *Registry) Read(ctx context.Context, name string, opts ...CallOption) Result {
	c := newCall(opts)
	log := r.logger.With().Str("op", "read").Str("stream", name).Logger()

	if err := ctx.Err(); err != nil {
		return failed(r.report(log, classify(ctx, "read", name, err)))
	}

	h, openErr := r.reader(name, c.blocking)
	if openErr != nil {
		return failed(r.report(log, openErr))
	}

	if c.seeks() && name != Stdin {
		if err := h.seek(c.offset); err != nil {
			if !c.lenient {
				return failed(r.report(log, classify(ctx, "read", name, err)))
			}
			log.Warn().Err(err).Int64("offset", c.offset).Msg("offset ignored")
		} else {
			log.Debug().Int64("offset", c.offset).Msg("seeked, buffering disabled")
		}
	}

	if !c.blocking && !h.ready() {
		log.Trace().Msg("no data available")
		return endOfStream()
	}

	stop := h.watch(ctx)
	message, err := h.frames.ReadMessage()
	stop()

	switch {
	case err == nil:
		log.Trace().Int("length", len(message)).Msg("message read")
		return Result{Status: StatusOK, Message: message}

	case err == io.EOF:
		return endOfStream()

	case errors.Is(err, frame.ErrTruncatedLength):
		// The writer may still be producing this frame; retry from its start.
		consumed := h.frames.Consumed()
		if rerr := h.rewind(consumed); rerr != nil {
			log.Warn().Err(rerr).Msg("could not rewind partial length prefix")
		}
		log.Debug().Int64("consumed", consumed).Msg("partial length prefix at end of stream")
		return endOfStream()

	case errors.Is(err, frame.ErrTruncatedPayload):
		if rerr := h.rewind(h.frames.Consumed()); rerr != nil {
			log.Warn().Err(rerr).Msg("could not rewind truncated frame")
		}
		return failed(r.report(log, classify(ctx, "read", name, err)))

	case errors.Is(err, frame.ErrMessageTooLarge):
		// Skip the refused payload so the next read starts on a frame boundary.
		stop := h.watch(ctx)
		derr := h.frames.Discard()
		stop()
		if derr != nil {
			log.Warn().Err(derr).Msg("could not skip oversized frame")
			if rerr := h.rewind(h.frames.Consumed()); rerr != nil {
				log.Warn().Err(rerr).Msg("could not rewind oversized frame")
			}
		}
		return failed(r.report(log, classify(ctx, "read", name, err)))

	case errors.Is(err, varint.ErrOverflow):
		// No frame boundary follows a malformed prefix. Stay in front of it.
		if rerr := h.rewind(h.frames.Consumed()); rerr != nil {
			log.Warn().Err(rerr).Msg("could not rewind malformed prefix")
		}
		return failed(r.report(log, classify(ctx, "read", name, err)))

	default:
		return failed(r.report(log, classify(ctx, "read", name, err)))
	}
}

// Close closes every named handle and empties both tables. The standard
// streams are left open.
func (r *Registry) Close() error {
	var errs []error
	for name, h := range r.readers {
		if err := h.close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.readers, name)
	}
	for name, h := range r.writers {
		if err := h.close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.writers, name)
	}
	return errors.Join(errs...)
}

func (r *Registry) reader(name string, blocking bool) (*readHandle, *Error) {
	if name == Stdin {
		if r.stdinHandle == nil {
			r.stdinHandle = newReadHandle(name, r.stdin, r.limits)
		}
		return r.stdinHandle, nil
	}
	if h, ok := r.readers[name]; ok {
		return h, nil
	}

	flags := os.O_RDONLY
	if !blocking && fifo.IsFIFO(name) {
		flags |= nonblockFlag
	}
	f, err := os.OpenFile(name, flags, 0)
	if err != nil {
		return nil, NewOpenError("read", name, err)
	}

	h := newReadHandle(name, f, r.limits)
	r.readers[name] = h
	r.logger.Debug().Str("stream", name).Bool("regular", h.regular).Msg("opened for reading")
	return h, nil
}

func (r *Registry) writer(name string) (*writeHandle, *Error) {
	if name == Stdout {
		if r.stdoutHandle == nil {
			r.stdoutHandle = newWriteHandle(name, r.stdout, r.limits)
		}
		return r.stdoutHandle, nil
	}
	if h, ok := r.writers[name]; ok {
		return h, nil
	}

	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, NewOpenError("write", name, err)
	}

	h := newWriteHandle(name, f, r.limits)
	r.writers[name] = h
	r.logger.Debug().Str("stream", name).Msg("opened for writing")
	return h, nil
}

// report sends err to the diagnostic log and returns it.
func (r *Registry) report(log zerolog.Logger, err *Error) *Error {
	event := log.Error()
	if err.Kind == KindCanceled {
		event = log.Warn()
	}
	event.Err(err.Err).Str("kind", err.Kind.String()).Msg("stream operation failed")
	return err
}
