// Package varint implements the length prefix encoding used by frames:
// unsigned LEB128, seven data bits per byte, least significant group
// first, with the high bit set on every byte except the last.
package varint

import (
	"encoding/binary"
	"errors"
	"io"
	"math/bits"
)

// MaxLen is the longest encoding of a uint64.
const MaxLen = binary.MaxVarintLen64

// ErrOverflow is returned when a decoded value does not fit in 64 bits.
var ErrOverflow = errors.New("varint: value overflows a 64-bit integer")

// EncodedLength returns the number of bytes Encode(n) produces.
func EncodedLength(n uint64) int {
	if n == 0 {
		return 1
	}
	return (bits.Len64(n) + 6) / 7
}

// Append appends the encoding of n to dst and returns the extended slice.
func Append(dst []byte, n uint64) []byte {
	return binary.AppendUvarint(dst, n)
}

// Encode returns the encoding of n. Encode(0) is the single byte 0x00.
func Encode(n uint64) []byte {
	return Append(make([]byte, 0, EncodedLength(n)), n)
}

// Put encodes n into buf and returns the number of bytes written.
// It panics if buf is too small; MaxLen bytes is always enough.
func Put(buf []byte, n uint64) int {
	return binary.PutUvarint(buf, n)
}

// Write writes the encoding of n to w.
func Write(w io.Writer, n uint64) (int, error) {
	var buf [MaxLen]byte
	return w.Write(buf[:Put(buf[:], n)])
}

// Decode reads one varint from r, one byte at a time, and returns the value
// and the number of bytes consumed.
//
// The error is io.EOF only if no byte was read. If the source is exhausted
// after at least one byte, Decode returns io.ErrUnexpectedEOF. Any other read
// error is returned as is.
func Decode(r io.ByteReader) (uint64, int, error) {
	var value uint64
	var shift uint
	for i := 0; i < MaxLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return value, i, err
		}
		if b < 0x80 {
			if i == MaxLen-1 && b > 1 {
				return value, i + 1, ErrOverflow
			}
			return value | uint64(b)<<shift, i + 1, nil
		}
		value |= uint64(b&0x7f) << shift
		shift += 7
	}
	return value, MaxLen, ErrOverflow
}

// DecodeBytes decodes one varint from the start of b, with the same error
// conventions as Decode.
func DecodeBytes(b []byte) (uint64, int, error) {
	value, n := binary.Uvarint(b)
	switch {
	case n > 0:
		return value, n, nil
	case n < 0:
		return 0, -n, ErrOverflow
	case len(b) == 0:
		return 0, 0, io.EOF
	default:
		return 0, len(b), io.ErrUnexpectedEOF
	}
}
