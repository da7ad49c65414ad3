package stream

// Status is the outcome of a read
type Status int

const (
	// StatusOK: a complete frame was read.
	StatusOK Status = iota
	// StatusEndOfStream: no frame is available yet. Not an error.
	StatusEndOfStream
	// StatusError: the read failed; Result.Err says why.
	StatusError
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusEndOfStream:
		return "EndOfStream"
	case StatusError:
		return "Error"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of Registry.Read. It keeps apart the three cases a
// bare byte slice cannot: a message (possibly empty), no message yet, and a
// failure.
type Result struct {
	Status  Status
	Message []byte
	// Err is an *Error when Status is StatusError, nil otherwise.
	Err error
}

// OK reports whether a message was read
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Bytes returns the message, or an empty slice for any other outcome
func (r Result) Bytes() []byte {
	if r.Status != StatusOK || r.Message == nil {
		return []byte{}
	}
	return r.Message
}

func endOfStream() Result {
	return Result{Status: StatusEndOfStream}
}

func failed(err *Error) Result {
	return Result{Status: StatusError, Err: err}
}
