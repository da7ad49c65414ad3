package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/machinefabric/framepipe-go/varint"
)

// Info locates one frame in a stream
type Info struct {
	// Offset is the absolute position of the first prefix byte.
	Offset int64 `json:"offset" cbor:"offset"`
	// PrefixLen is the size of the varint length prefix.
	PrefixLen int `json:"prefix_len" cbor:"prefix_len"`
	// Length is the payload size.
	Length uint64 `json:"length" cbor:"length"`
}

// End returns the position just past the frame
func (i Info) End() int64 {
	return i.Offset + int64(i.PrefixLen) + int64(i.Length)
}

// Scan indexes the frames in r from its current position to the end of the
// stream without keeping any payload. Offsets are absolute when r is an
// io.Seeker and relative to the starting position otherwise.
//
// A trailing partial frame stops the scan with ErrTruncatedLength or
// ErrTruncatedPayload; the frames indexed before it are still returned.
func Scan(r io.Reader, limits Limits) ([]Info, error) {
	src, err := newScanSource(r)
	if err != nil {
		return nil, err
	}

	var frames []Info
	for {
		length, n, err := varint.Decode(src.bytes)
		if err != nil {
			switch {
			case err == io.EOF:
				return frames, nil
			case errors.Is(err, io.ErrUnexpectedEOF):
				return frames, ErrTruncatedLength
			default:
				return frames, err
			}
		}
		if err := limits.check(length); err != nil {
			return frames, err
		}

		info := Info{Offset: src.pos, PrefixLen: n, Length: length}
		src.pos += int64(n)

		skipped, err := src.skip(length)
		src.pos += skipped
		if err != nil {
			return frames, err
		}
		frames = append(frames, info)
	}
}

type scanSource struct {
	bytes io.ByteReader
	skip  func(n uint64) (int64, error)
	pos   int64
}

func newScanSource(r io.Reader) (*scanSource, error) {
	src := &scanSource{}

	seeker, ok := r.(io.Seeker)
	if !ok {
		buffered := bufio.NewReader(r)
		src.bytes = buffered
		src.skip = func(n uint64) (int64, error) {
			skipped, err := io.CopyN(io.Discard, buffered, int64(n))
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w (have %d of %d payload bytes)", ErrTruncatedPayload, skipped, n)
			}
			return skipped, err
		}
		return src, nil
	}

	start, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	size, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := seeker.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}

	// Reads and seeks must share one position, so no read-ahead here.
	src.pos = start
	src.bytes = byteReader(r)
	src.skip = func(n uint64) (int64, error) {
		remaining := size - src.pos
		if remaining < 0 {
			remaining = 0
		}
		if n > uint64(remaining) {
			if _, err := seeker.Seek(size, io.SeekStart); err != nil {
				return 0, err
			}
			return remaining, fmt.Errorf("%w (have %d of %d payload bytes)", ErrTruncatedPayload, remaining, n)
		}
		if _, err := seeker.Seek(int64(n), io.SeekCurrent); err != nil {
			return 0, err
		}
		return int64(n), nil
	}
	return src, nil
}
