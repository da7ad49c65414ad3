package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/machinefabric/framepipe-go/frame"
)

// Setting a deadline in the past wakes any goroutine blocked on the file.
var expired = time.Unix(1, 0)

var errNotSeekable = errors.New("stream: resource is not seekable")

// readHandle is an open source of frames. Reads go through a bufio.Reader
// until an offset seek switches the handle to unbuffered for good.
type readHandle struct {
	name     string
	src      io.Reader
	file     *os.File
	regular  bool
	buffered *bufio.Reader
	frames   *frame.Reader
	limits   frame.Limits
}

func newReadHandle(name string, src io.Reader, limits frame.Limits) *readHandle {
	h := &readHandle{name: name, src: src, limits: limits}
	if f, ok := src.(*os.File); ok {
		h.file = f
		if info, err := f.Stat(); err == nil {
			h.regular = info.Mode().IsRegular()
		}
	}
	h.buffered = bufio.NewReader(src)
	h.frames = frame.NewReader(h.buffered)
	h.frames.SetLimits(limits)
	return h
}

func (h *readHandle) isBuffered() bool {
	return h.buffered != nil
}

func (h *readHandle) seek(offset int64) error {
	seeker, ok := h.src.(io.Seeker)
	if !ok {
		return errNotSeekable
	}
	if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	h.unbuffer()
	return nil
}

// unbuffer drops any read-ahead. Only called right after an absolute seek,
// so nothing still buffered is wanted.
func (h *readHandle) unbuffer() {
	if h.buffered == nil {
		return
	}
	h.buffered = nil
	h.frames = frame.NewReader(h.src)
	h.frames.SetLimits(h.limits)
}

// rewind moves a regular file back by consumed bytes so that the next read
// starts again at the beginning of an incomplete frame.
func (h *readHandle) rewind(consumed int64) error {
	if !h.regular || consumed == 0 {
		return nil
	}
	back := consumed
	if h.buffered != nil {
		back += int64(h.buffered.Buffered())
	}
	if _, err := h.file.Seek(-back, io.SeekCurrent); err != nil {
		return err
	}
	if h.buffered != nil {
		h.buffered.Reset(h.src)
	}
	return nil
}

// ready reports whether a read can start without waiting. Regular files and
// sources that are not files never wait.
func (h *readHandle) ready() bool {
	if h.buffered != nil && h.buffered.Buffered() > 0 {
		return true
	}
	if h.file == nil || h.regular {
		return true
	}
	return readable(h.file)
}

// watch arranges for ctx to interrupt a blocked read. The returned function
// must be called once the read is done.
func (h *readHandle) watch(ctx context.Context) func() {
	if h.file == nil || h.regular {
		return noop
	}
	// Clear whatever an earlier canceled call left behind.
	_ = h.file.SetReadDeadline(time.Time{})
	if ctx.Done() == nil {
		return noop
	}
	return afterCancel(ctx, func() {
		_ = h.file.SetReadDeadline(expired)
	})
}

func (h *readHandle) close() error {
	if h.file != nil {
		return h.file.Close()
	}
	if c, ok := h.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// writeHandle is an open destination for frames. Each frame is flushed as
// soon as it is written so that readers in other processes see it.
type writeHandle struct {
	name     string
	dst      io.Writer
	file     *os.File
	buffered *bufio.Writer
	frames   *frame.Writer
	limits   frame.Limits
}

func newWriteHandle(name string, dst io.Writer, limits frame.Limits) *writeHandle {
	h := &writeHandle{name: name, dst: dst, limits: limits}
	if f, ok := dst.(*os.File); ok {
		h.file = f
	}
	h.buffered = bufio.NewWriter(dst)
	h.frames = frame.NewWriter(h.buffered)
	h.frames.SetLimits(limits)
	return h
}

func (h *writeHandle) isBuffered() bool {
	return h.buffered != nil
}

func (h *writeHandle) seek(offset int64) error {
	seeker, ok := h.dst.(io.Seeker)
	if !ok {
		return errNotSeekable
	}
	if h.buffered != nil {
		if err := h.buffered.Flush(); err != nil {
			return fmt.Errorf("flush before seek: %w", err)
		}
	}
	if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	h.unbuffer()
	return nil
}

func (h *writeHandle) unbuffer() {
	if h.buffered == nil {
		return
	}
	h.buffered = nil
	h.frames = frame.NewWriter(h.dst)
	h.frames.SetLimits(h.limits)
}

func (h *writeHandle) write(payload []byte) error {
	err := h.frames.WriteMessage(payload)
	if err == nil && h.buffered != nil {
		err = h.buffered.Flush()
	}
	if err != nil && h.buffered != nil {
		// bufio.Writer errors are sticky; start clean for the next frame.
		h.buffered.Reset(h.dst)
	}
	return err
}

func (h *writeHandle) watch(ctx context.Context) func() {
	if h.file == nil {
		return noop
	}
	_ = h.file.SetWriteDeadline(time.Time{})
	if ctx.Done() == nil {
		return noop
	}
	return afterCancel(ctx, func() {
		_ = h.file.SetWriteDeadline(expired)
	})
}

func (h *writeHandle) close() error {
	var flushErr error
	if h.buffered != nil {
		flushErr = h.buffered.Flush()
	}
	var closeErr error
	if h.file != nil {
		closeErr = h.file.Close()
	} else if c, ok := h.dst.(io.Closer); ok {
		closeErr = c.Close()
	}
	return errors.Join(flushErr, closeErr)
}

// afterCancel runs f once ctx is done. The returned stop function
// unregisters f, and if f has already started it waits for f to finish, so
// no deadline set by f can land after the caller moves on.
func afterCancel(ctx context.Context, f func()) func() {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		f()
	})
	return func() {
		if !stop() {
			<-done
		}
	}
}

func noop() {}
