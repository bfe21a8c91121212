package reader

import (
	"sync"
	"time"

	"github.com/mercuryrf/reader/internal/protocol"
)

// mockTransport is a scriptable, in-process Transport used by every test in
// this package in place of a physical serial device or socket. A handler
// receives each decoded request frame and returns the bytes to enqueue for
// the next Read calls, normally a whole response frame built with
// encodeResponseFrame; continuous-mode tests push unsolicited frames with
// enqueueFrame instead.
type mockTransport struct {
	mu      sync.Mutex
	rx      []byte // queued bytes available to Read
	closed  bool
	trace   TraceHook
	writes  [][]byte

	// handle is called once per decoded request frame written through
	// Write. It returns the bytes to append to rx (normally a fully
	// encoded response frame).
	handle func(opcode byte, payload []byte) []byte
}

func newMockTransport(handle func(opcode byte, payload []byte) []byte) *mockTransport {
	return &mockTransport{handle: handle}
}

func (m *mockTransport) Open() error  { return nil }
func (m *mockTransport) Close() error { m.mu.Lock(); m.closed = true; m.mu.Unlock(); return nil }

func (m *mockTransport) Write(data []byte) (int, error) {
	m.mu.Lock()
	m.writes = append(m.writes, append([]byte(nil), data...))
	hook := m.trace
	m.mu.Unlock()
	if hook != nil {
		hook(TraceEvent{Direction: "tx", Bytes: data, At: time.Now()})
	}

	frame, _, err := protocol.Decode(data)
	if err != nil {
		return 0, err
	}
	if m.handle != nil {
		resp := m.handle(frame.Opcode, frame.Payload)
		m.mu.Lock()
		m.rx = append(m.rx, resp...)
		m.mu.Unlock()
	}
	return len(data), nil
}

func (m *mockTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		if len(m.rx) >= n {
			out := append([]byte(nil), m.rx[:n]...)
			m.rx = m.rx[n:]
			m.mu.Unlock()
			hook := m.trace
			if hook != nil {
				hook(TraceEvent{Direction: "rx", Bytes: out, Timeout: timeout, At: time.Now()})
			}
			return out, nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		if timeout > 0 && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *mockTransport) SetBaudRate(int) error { return nil }
func (m *mockTransport) Flush() error           { m.mu.Lock(); m.rx = nil; m.mu.Unlock(); return nil }

func (m *mockTransport) SetTraceHook(hook TraceHook) {
	m.mu.Lock()
	m.trace = hook
	m.mu.Unlock()
}

// enqueueFrame encodes opcode/payload as a full frame and appends it
// directly to rx, for tests (like continuous-read streaming) that push
// unsolicited frames rather than responding to a specific request.
func (m *mockTransport) enqueueFrame(opcode byte, payload []byte) {
	frame, err := protocol.Encode(protocol.Frame{Opcode: opcode, Payload: payload})
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	m.rx = append(m.rx, frame...)
	m.mu.Unlock()
}

// encodeResponseFrame is the shared helper test handlers use to build the
// bytes a handle func returns.
func encodeResponseFrame(opcode byte, payload []byte) []byte {
	frame, err := protocol.Encode(protocol.Frame{Opcode: opcode, Payload: payload})
	if err != nil {
		panic(err)
	}
	return frame
}
