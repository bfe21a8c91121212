// Package tracesink CBOR-encodes transport trace events for an external
// consumer (a log shipper, a debug capture file), mirroring the teacher's
// use of github.com/fxamacker/cbor/v2 to frame its usock payloads before
// they leave the process.
package tracesink

import (
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Envelope is the CBOR-encoded shape of one transport trace event.
type Envelope struct {
	Direction string    `cbor:"dir"`
	Bytes     []byte    `cbor:"data"`
	TimeoutMs int64     `cbor:"timeout_ms"`
	At        time.Time `cbor:"at"`
}

// Sink writes one CBOR-encoded Envelope per event to w.
type Sink struct {
	w   io.Writer
	enc *cbor.Encoder
}

// New wraps w in a CBOR stream encoder.
func New(w io.Writer) *Sink {
	return &Sink{w: w, enc: cbor.NewEncoder(w)}
}

// Write encodes one event. Errors are the caller's to decide whether to
// treat as fatal; a trace sink is diagnostic, not part of the command path.
func (s *Sink) Write(direction string, data []byte, timeout time.Duration, at time.Time) error {
	return s.enc.Encode(Envelope{
		Direction: direction,
		Bytes:     data,
		TimeoutMs: timeout.Milliseconds(),
		At:        at,
	})
}
