package frame

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(messages ...[]byte) []byte {
	var out []byte
	for _, m := range messages {
		out = Append(out, m)
	}
	return out
}

// TEST023: Test Scan indexes frames in a seekable stream
func Test023_scan_seekable(t *testing.T) {
	data := encodeAll([]byte("A"), bytes.Repeat([]byte{'a'}, 128), nil)

	frames, err := Scan(bytes.NewReader(data), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, []Info{
		{Offset: 0, PrefixLen: 1, Length: 1},
		{Offset: 2, PrefixLen: 2, Length: 128},
		{Offset: 132, PrefixLen: 1, Length: 0},
	}, frames)
	assert.Equal(t, int64(len(data)), frames[2].End())
}

// TEST024: Test Scan over a non-seekable stream produces the same index
func Test024_scan_stream(t *testing.T) {
	data := encodeAll([]byte("one"), []byte("two"), []byte("three"))

	seekable, err := Scan(bytes.NewReader(data), DefaultLimits())
	require.NoError(t, err)

	streamed, err := Scan(io.MultiReader(bytes.NewReader(data)), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, seekable, streamed)
}

// TEST025: Test Scan reports a truncated trailing frame and keeps earlier ones
func Test025_scan_truncated_tail(t *testing.T) {
	data := encodeAll([]byte("complete"))
	data = append(data, Encode([]byte("partial"))[:3]...)

	frames, err := Scan(bytes.NewReader(data), DefaultLimits())
	assert.True(t, errors.Is(err, ErrTruncatedPayload))
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(8), frames[0].Length)

	frames, err = Scan(io.MultiReader(bytes.NewReader(data)), DefaultLimits())
	assert.True(t, errors.Is(err, ErrTruncatedPayload))
	assert.Len(t, frames, 1)

	frames, err = Scan(bytes.NewReader(append(encodeAll([]byte("x")), 0x80)), DefaultLimits())
	assert.True(t, errors.Is(err, ErrTruncatedLength))
	assert.Len(t, frames, 1)
}

// TEST026: Test Scan offsets are absolute when starting mid-file
func Test026_scan_from_current_position(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.bin")
	data := encodeAll([]byte("first"), []byte("second"))
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(6, io.SeekStart)
	require.NoError(t, err)

	frames, err := Scan(f, DefaultLimits())
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, Info{Offset: 6, PrefixLen: 1, Length: 6}, frames[0])

	// The file is left at the end of the last frame.
	pos, err := f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), pos)
}
