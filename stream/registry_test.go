package stream

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/framepipe-go/frame"
)

func testRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.New(zerolog.NewTestWriter(t)))}, opts...)
	registry := NewRegistry(opts...)
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func tempStream(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test-stream.tmp")
}

// TEST050: Test write "A" then read returns "A"
func Test050_single_byte_message(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	name := tempStream(t)

	require.NoError(t, registry.Write(ctx, []byte("A"), name))

	result := registry.Read(ctx, name)
	require.Equal(t, StatusOK, result.Status, "err: %v", result.Err)
	assert.Equal(t, []byte("A"), result.Message)
}

// TEST051: Test 127 and 128 byte messages consume 1 and 2 prefix bytes
func Test051_prefix_boundary_roundtrip(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	name := tempStream(t)

	str127 := strings.Repeat("a", 127)
	str128 := strings.Repeat("a", 128)
	require.NoError(t, registry.Write(ctx, []byte(str127), name))
	require.NoError(t, registry.Write(ctx, []byte(str128), name))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Len(t, data, 1+127+2+128)
	assert.Equal(t, byte(127), data[0])
	assert.Equal(t, []byte{0x80, 0x01}, data[128:130])

	assert.Equal(t, str127, string(registry.Read(ctx, name).Message))
	assert.Equal(t, str128, string(registry.Read(ctx, name).Message))
}

// TEST052: Test messages at each prefix size transition roundtrip
func Test052_prefix_size_transitions(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	name := tempStream(t)

	for base := 1; base < 4; base++ {
		size := int(math.Pow(2, float64(7*base)))
		message := bytes.Repeat([]byte{'a'}, size)
		require.NoError(t, registry.Write(ctx, message, name))

		result := registry.Read(ctx, name)
		require.True(t, result.OK(), "size %d: %v", size, result.Err)
		assert.Len(t, result.Message, size)
	}
}

// TEST053: Test empty messages and embedded NUL bytes roundtrip
func Test053_empty_and_nul_messages(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	name := tempStream(t)

	messages := [][]byte{{}, []byte("a\x00b"), {0x00}, {}}
	for _, m := range messages {
		require.NoError(t, registry.Write(ctx, m, name))
	}

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), data[0], "empty message is the single byte 0x00")

	for _, want := range messages {
		result := registry.Read(ctx, name)
		require.Equal(t, StatusOK, result.Status)
		assert.Equal(t, want, result.Message)
	}
}

// TEST054: Test sequential writes are read back in order
func Test054_sequential_framing(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	name := tempStream(t)

	for _, m := range []string{"m1", "m2", "m3"} {
		require.NoError(t, registry.Write(ctx, []byte(m), name))
	}
	for _, want := range []string{"m1", "m2", "m3"} {
		assert.Equal(t, want, string(registry.Read(ctx, name).Message))
	}
}

// TEST055: Test reading past the last frame returns end of stream, not an error
func Test055_empty_on_exhaustion(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	name := tempStream(t)

	require.NoError(t, registry.Write(ctx, []byte("Hello"), name))
	assert.Equal(t, "Hello", string(registry.Read(ctx, name).Message))

	result := registry.Read(ctx, name)
	assert.Equal(t, StatusEndOfStream, result.Status)
	assert.NoError(t, result.Err)
	assert.Equal(t, []byte{}, result.Bytes())

	// The handle keeps its position, so later frames are still found.
	require.NoError(t, registry.Write(ctx, []byte("World"), name))
	assert.Equal(t, "World", string(registry.Read(ctx, name).Message))
}

// TEST056: Test reading a nonexistent stream returns an open failure and caches nothing
func Test056_missing_stream(t *testing.T) {
	var logs bytes.Buffer
	registry := testRegistry(t, WithLogger(zerolog.New(&logs)))
	name := filepath.Join(t.TempDir(), "does-not-exist")

	result := registry.Read(context.Background(), name)
	assert.Equal(t, StatusError, result.Status)
	assert.True(t, IsKind(result.Err, KindOpenFailure))
	assert.True(t, os.IsNotExist(result.Err.(*Error).Err))
	assert.Empty(t, result.Bytes())
	assert.False(t, registry.Cached(name, ModeRead))
	assert.Contains(t, logs.String(), "OpenFailure")
	assert.Contains(t, logs.String(), registry.ID())
}

// TEST057: Test a write that cannot open its destination reports an open failure
func Test057_write_open_failure(t *testing.T) {
	registry := testRegistry(t)
	name := filepath.Join(t.TempDir(), "missing-dir", "stream")

	err := registry.Write(context.Background(), []byte("x"), name)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindOpenFailure))
	assert.False(t, registry.Cached(name, ModeWrite))
}

// TEST058: Test handles are cached per name and per mode
func Test058_handle_cache(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	name := tempStream(t)

	require.NoError(t, registry.Write(ctx, []byte("one"), name))
	assert.True(t, registry.Cached(name, ModeWrite))
	assert.False(t, registry.Cached(name, ModeRead))

	// A second write reuses the handle instead of truncating the file again.
	require.NoError(t, registry.Write(ctx, []byte("two"), name))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, frame.Append(frame.Encode([]byte("one")), []byte("two")), data)

	registry.Read(ctx, name)
	assert.True(t, registry.Cached(name, ModeRead))

	require.NoError(t, registry.Close())
	assert.False(t, registry.Cached(name, ModeRead))
	assert.False(t, registry.Cached(name, ModeWrite))
}

// TEST059: Test separate registries do not share handles
func Test059_registries_are_isolated(t *testing.T) {
	ctx := context.Background()
	name := tempStream(t)

	first := testRegistry(t)
	second := testRegistry(t)
	assert.NotEqual(t, first.ID(), second.ID())

	require.NoError(t, first.Write(ctx, []byte("frame"), name))
	assert.Equal(t, "frame", string(first.Read(ctx, name).Message))

	// A fresh registry opens its own handle at the start of the file.
	assert.Equal(t, "frame", string(second.Read(ctx, name).Message))
	assert.False(t, second.Cached(name, ModeWrite))
}

// TEST060: Test the stdin and stdout names use the registry's standard streams
func Test060_standard_streams(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	in := bytes.NewReader(frame.Append(frame.Encode([]byte("request")), []byte("second")))
	registry := testRegistry(t, WithStdio(in, &out))

	require.NoError(t, registry.Write(ctx, []byte("response"), Stdout))
	assert.Equal(t, frame.Encode([]byte("response")), out.Bytes())
	assert.False(t, registry.Cached(Stdout, ModeWrite))

	// Offsets do not apply to the standard streams.
	result := registry.Read(ctx, Stdin, Offset(3))
	assert.Equal(t, "request", string(result.Message))
	assert.Equal(t, "second", string(registry.Read(ctx, Stdin).Message))
	assert.Equal(t, StatusEndOfStream, registry.Read(ctx, Stdin).Status)
	assert.False(t, registry.Cached(Stdin, ModeRead))
}

// TEST061: Test an already canceled context fails before touching the stream
func Test061_canceled_context(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	registry := testRegistry(t)
	name := tempStream(t)

	err := registry.Write(ctx, []byte("x"), name)
	assert.True(t, IsKind(err, KindCanceled))
	assert.False(t, registry.Cached(name, ModeWrite))

	result := registry.Read(ctx, name)
	assert.True(t, IsKind(result.Err, KindCanceled))
}

// TEST062: Test registry limits reject oversized messages in both directions
func Test062_limits(t *testing.T) {
	ctx := context.Background()
	name := tempStream(t)

	unlimited := testRegistry(t)
	require.NoError(t, unlimited.Write(ctx, []byte("0123456789"), name))

	limited := testRegistry(t, WithLimits(frame.Limits{MaxMessage: 4}))
	err := limited.Write(ctx, []byte("0123456789"), name+".out")
	assert.True(t, IsKind(err, KindMessageTooLarge))

	result := limited.Read(ctx, name)
	assert.True(t, IsKind(result.Err, KindMessageTooLarge))
}

// TEST074: Test a frame refused by the limits is skipped and the next frame reads intact
func Test074_oversized_frame_keeps_alignment(t *testing.T) {
	ctx := context.Background()
	name := tempStream(t)
	var data []byte
	data = frame.Append(data, []byte("\x01Z\x01YY"))
	data = frame.Append(data, []byte("real"))
	data = frame.Append(data, []byte("0123456789"))
	data = frame.Append(data, []byte("tail"))
	require.NoError(t, os.WriteFile(name, data, 0o600))

	registry := testRegistry(t, WithLimits(frame.Limits{MaxMessage: 4}))

	result := registry.Read(ctx, name)
	assert.True(t, IsKind(result.Err, KindMessageTooLarge))
	assert.Empty(t, result.Bytes())

	result = registry.Read(ctx, name)
	require.True(t, result.OK(), "err: %v", result.Err)
	assert.Equal(t, "real", string(result.Message))

	assert.True(t, IsKind(registry.Read(ctx, name).Err, KindMessageTooLarge))
	assert.Equal(t, "tail", string(registry.Read(ctx, name).Message))
	assert.Equal(t, StatusEndOfStream, registry.Read(ctx, name).Status)
}

// TEST075: Test an oversized frame whose payload is still being written is refused again once complete
func Test075_oversized_frame_incomplete(t *testing.T) {
	ctx := context.Background()
	name := tempStream(t)
	encoded := frame.Encode([]byte("0123456789"))
	require.NoError(t, os.WriteFile(name, encoded[:4], 0o600))

	registry := testRegistry(t, WithLimits(frame.Limits{MaxMessage: 4}))
	assert.True(t, IsKind(registry.Read(ctx, name).Err, KindMessageTooLarge))

	appendBytes(t, name, encoded[4:])
	appendBytes(t, name, frame.Encode([]byte("next")))

	assert.True(t, IsKind(registry.Read(ctx, name).Err, KindMessageTooLarge))
	assert.Equal(t, "next", string(registry.Read(ctx, name).Message))
}

// TEST076: Test a malformed prefix keeps failing instead of decoding the bytes after it
func Test076_malformed_prefix_is_sticky(t *testing.T) {
	ctx := context.Background()
	name := tempStream(t)
	data := append(bytes.Repeat([]byte{0xff}, 11), frame.Encode([]byte("hidden"))...)
	require.NoError(t, os.WriteFile(name, data, 0o600))

	registry := testRegistry(t)
	for i := 0; i < 3; i++ {
		result := registry.Read(ctx, name)
		assert.True(t, IsKind(result.Err, KindMalformed), "read %d: %v", i, result.Err)
	}
}

// TEST077: Test a registry without an injected logger logs at info level
func Test077_default_logger_level(t *testing.T) {
	registry := NewRegistry()
	defer registry.Close()
	assert.Equal(t, zerolog.InfoLevel, registry.logger.GetLevel())

	injected := NewRegistry(WithLogger(zerolog.New(io.Discard).Level(zerolog.WarnLevel)))
	assert.Equal(t, zerolog.WarnLevel, injected.logger.GetLevel())
}

// TEST063: Test a prefix that overflows 64 bits is reported as malformed
func Test063_malformed_prefix(t *testing.T) {
	name := tempStream(t)
	require.NoError(t, os.WriteFile(name, bytes.Repeat([]byte{0xff}, 11), 0o600))

	result := testRegistry(t).Read(context.Background(), name)
	assert.True(t, IsKind(result.Err, KindMalformed))
}

func TestKindAndStatusNames(t *testing.T) {
	assert.Equal(t, "TruncatedPayload", KindTruncatedPayload.String())
	assert.Equal(t, "UNKNOWN(0)", Kind(0).String())
	assert.Equal(t, "EndOfStream", StatusEndOfStream.String())

	err := &Error{Kind: KindIOFailure, Op: "read", Stream: "s", Err: os.ErrClosed}
	assert.Equal(t, "read s: IOFailure: file already closed", err.Error())
	assert.ErrorIs(t, err, os.ErrClosed)
}

// TEST079: Test a message at the 4 to 5 byte prefix transition roundtrips through a registry
func Test079_largest_prefix_transition(t *testing.T) {
	if testing.Short() {
		t.Skip("writes and reads a 256 MiB message")
	}
	ctx := context.Background()
	registry := testRegistry(t)
	name := tempStream(t)

	size := 1 << 28
	require.NoError(t, registry.Write(ctx, bytes.Repeat([]byte{'a'}, size), name))

	info, err := os.Stat(name)
	require.NoError(t, err)
	assert.Equal(t, int64(5+size), info.Size())

	result := registry.Read(ctx, name)
	require.True(t, result.OK(), "err: %v", result.Err)
	assert.Len(t, result.Message, size)
}
