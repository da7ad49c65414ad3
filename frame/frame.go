// Package frame reads and writes length-prefixed messages on byte streams.
//
// A frame is the varint encoding of the payload length followed by exactly
// that many payload bytes:
//
//	frame := varint(len(payload)) || payload
//
// Payloads are opaque and may contain any byte value. A zero-length payload
// is the single byte 0x00.
package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/machinefabric/framepipe-go/varint"
)

var (
	// ErrTruncatedLength is returned when the stream ends inside a length prefix.
	ErrTruncatedLength = fmt.Errorf("frame: truncated length prefix: %w", io.ErrUnexpectedEOF)

	// ErrTruncatedPayload is returned when the stream ends before the number
	// of payload bytes announced by the prefix.
	ErrTruncatedPayload = fmt.Errorf("frame: unexpected end of file: %w", io.ErrUnexpectedEOF)

	// ErrMessageTooLarge is returned when a payload exceeds the configured limits.
	ErrMessageTooLarge = errors.New("frame: message too large")
)

// Size returns the encoded size of a frame carrying n payload bytes
func Size(n int) int {
	return varint.EncodedLength(uint64(n)) + n
}

// Append appends the frame for payload to dst and returns the extended slice
func Append(dst []byte, payload []byte) []byte {
	dst = varint.Append(dst, uint64(len(payload)))
	return append(dst, payload...)
}

// Encode returns the frame for payload in a buffer of exactly Size(len(payload)) bytes
func Encode(payload []byte) []byte {
	return Append(make([]byte, 0, Size(len(payload))), payload)
}

// Decode decodes the first frame in b and returns its payload and the number
// of bytes of b the frame occupies. The payload aliases b.
func Decode(b []byte) ([]byte, int, error) {
	length, n, err := varint.DecodeBytes(b)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, n, ErrTruncatedLength
		}
		return nil, n, err
	}
	if err := DefaultLimits().check(length); err != nil {
		return nil, n, err
	}
	if uint64(len(b)-n) < length {
		return nil, len(b), fmt.Errorf("%w (have %d of %d payload bytes)", ErrTruncatedPayload, len(b)-n, length)
	}
	end := n + int(length)
	return b[n:end:end], end, nil
}
