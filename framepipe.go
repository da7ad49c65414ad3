// Package framepipe provides flat re-exports of the framing packages and a
// process-default registry with the boolean/empty calling convention.
//
// New code should create its own stream.Registry and use Write and Read,
// which report why an operation failed. WriteMessage and ReadMessage are
// for callers that only care whether a message went through.
package framepipe

import (
	"context"

	"github.com/machinefabric/framepipe-go/fifo"
	"github.com/machinefabric/framepipe-go/frame"
	"github.com/machinefabric/framepipe-go/stream"
	"github.com/machinefabric/framepipe-go/varint"
)

// Stream types
type Registry = stream.Registry
type Result = stream.Result
type Status = stream.Status
type Error = stream.Error
type Kind = stream.Kind
type Option = stream.Option
type CallOption = stream.CallOption
type Mode = stream.Mode

// Frame types
type Limits = frame.Limits
type Info = frame.Info
type FrameReader = frame.Reader
type FrameWriter = frame.Writer

const (
	Stdin    = stream.Stdin
	Stdout   = stream.Stdout
	NoOffset = stream.NoOffset

	ModeRead  = stream.ModeRead
	ModeWrite = stream.ModeWrite
)

var NewRegistry = stream.NewRegistry
var NewFrameReader = frame.NewReader
var NewFrameWriter = frame.NewWriter
var EncodedLength = varint.EncodedLength
var Scan = frame.Scan

// WriteMessage frames message and writes it to stream through the default
// registry. A negative offset writes at the current position, and an offset
// on a stream that cannot seek is ignored. It reports whether the whole
// frame was written; failures are logged.
func WriteMessage(message []byte, stream string, offset int64) bool {
	return Default().Write(context.Background(), message, stream, offsetOpt(offset)...) == nil
}

// ReadMessage reads one message from stream through the default registry.
//
// The result is empty when the stream is exhausted, when a non-blocking read
// finds no data and on any failure, so an empty result is ambiguous. An
// offset on a stream that cannot seek is ignored. Use
// Registry.Read to tell the cases apart.
func ReadMessage(stream string, offset int64, blocking bool) []byte {
	opts := append(offsetOpt(offset), blockingOpt(blocking))
	return Default().Read(context.Background(), stream, opts...).Bytes()
}

// MakePipe creates a named pipe at name and reports whether it succeeded
func MakePipe(name string) bool {
	if err := fifo.Make(name); err != nil {
		logger := defaultLogger()
		logger.Error().Err(err).Str("stream", name).Msg("could not create named pipe")
		return false
	}
	return true
}

func offsetOpt(offset int64) []CallOption {
	if offset < 0 {
		return nil
	}
	return []CallOption{stream.BestEffortOffset(offset)}
}

func blockingOpt(blocking bool) CallOption {
	return stream.Blocking(blocking)
}
