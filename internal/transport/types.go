// Package transport defines the duplex byte-channel contract shared by the
// serial and TCP transport backends and the root reader package, so the
// backends can satisfy it without importing back up into the root package.
package transport

import "time"

// TraceEvent is emitted for every successful write/read once a trace hook
// is installed (spec §4.1).
type TraceEvent struct {
	Direction string // "tx" or "rx"
	Bytes     []byte
	Timeout   time.Duration
	At        time.Time
}

// TraceHook receives transport trace events.
type TraceHook func(TraceEvent)

// Transport is a duplex byte channel with a per-operation timeout. It has no
// retry policy and no framing awareness.
type Transport interface {
	Open() error
	Close() error
	Write(data []byte) (int, error)
	Read(n int, timeout time.Duration) ([]byte, error)
	SetBaudRate(baud int) error
	Flush() error
	SetTraceHook(hook TraceHook)
}
