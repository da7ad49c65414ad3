package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/machinefabric/framepipe-go/varint"
)

// Payloads up to this size are read into a buffer allocated up front. Larger
// ones grow as bytes arrive so a corrupt prefix cannot force a huge allocation.
const directReadLimit = 1 << 20

// Reader reads length-prefixed frames from a stream
type Reader struct {
	reader   io.Reader
	bytes    io.ByteReader
	limits   Limits
	consumed int64
	// rejected is the payload length of a frame refused by the limits.
	rejected uint64
}

// NewReader creates a new Reader.
//
// If r implements io.ByteReader (bufio.Reader, bytes.Reader) the prefix is
// decoded through it. Otherwise every prefix byte costs one Read call and
// nothing past the end of the frame is ever consumed, which is what an
// unbuffered handle needs.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		reader: r,
		bytes:  byteReader(r),
		limits: DefaultLimits(),
	}
}

// SetLimits updates the reader's limits
func (fr *Reader) SetLimits(limits Limits) {
	fr.limits = limits
}

// Consumed returns the number of bytes taken from the stream by the last
// ReadMessage call, including when it failed.
func (fr *Reader) Consumed() int64 {
	return fr.consumed
}

// ReadMessage reads a single frame and returns its payload.
//
// It returns io.EOF if the stream ends cleanly before the next frame,
// ErrTruncatedLength if it ends inside the prefix and ErrTruncatedPayload
// if it ends inside the payload.
func (fr *Reader) ReadMessage() ([]byte, error) {
	fr.consumed = 0
	fr.rejected = 0

	length, n, err := varint.Decode(fr.bytes)
	fr.consumed = int64(n)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedLength
		}
		return nil, err
	}

	if err := fr.limits.check(length); err != nil {
		fr.rejected = length
		return nil, err
	}

	payload, read, err := readPayload(fr.reader, length)
	fr.consumed += read
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w (read %d of %d payload bytes)", ErrTruncatedPayload, read, length)
		}
		return nil, err
	}
	return payload, nil
}

// Discard skips the payload of a frame that the last ReadMessage refused
// with ErrMessageTooLarge, leaving the stream at the start of the next
// frame. Skipped bytes count towards Consumed. It returns
// ErrTruncatedPayload if the stream ends before the payload does.
func (fr *Reader) Discard() error {
	length := fr.rejected
	fr.rejected = 0
	if length == 0 {
		return nil
	}
	if length > math.MaxInt64 {
		return fmt.Errorf("%w: %d bytes cannot be skipped", ErrMessageTooLarge, length)
	}

	n, err := io.CopyN(io.Discard, fr.reader, int64(length))
	fr.consumed += n
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w (skipped %d of %d payload bytes)", ErrTruncatedPayload, n, length)
	}
	return err
}

func readPayload(r io.Reader, length uint64) ([]byte, int64, error) {
	if length <= directReadLimit {
		payload := make([]byte, length)
		n, err := io.ReadFull(r, payload)
		return payload, int64(n), err
	}

	var buf bytes.Buffer
	buf.Grow(directReadLimit)
	n, err := io.CopyN(&buf, r, int64(length))
	if err != nil {
		return nil, n, err
	}
	return buf.Bytes(), n, nil
}

// Writer writes length-prefixed frames to a stream
type Writer struct {
	writer io.Writer
	limits Limits
}

// NewWriter creates a new Writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer: w,
		limits: DefaultLimits(),
	}
}

// SetLimits updates the writer's limits
func (fw *Writer) SetLimits(limits Limits) {
	fw.limits = limits
}

// WriteMessage writes payload as a single frame. The prefix and payload are
// assembled into one buffer and handed to the underlying writer in one Write.
func (fw *Writer) WriteMessage(payload []byte) error {
	if err := fw.limits.check(uint64(len(payload))); err != nil {
		return err
	}

	buf := Encode(payload)
	n, err := fw.writer.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("frame: wrote %d of %d bytes: %w", n, len(buf), io.ErrShortWrite)
	}
	return nil
}

func byteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &singleByteReader{reader: r}
}

// singleByteReader adapts an io.Reader without read-ahead
type singleByteReader struct {
	reader io.Reader
	buf    [1]byte
}

func (s *singleByteReader) ReadByte() (byte, error) {
	for {
		n, err := s.reader.Read(s.buf[:])
		if n == 1 {
			return s.buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}
