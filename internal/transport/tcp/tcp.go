// Package tcp implements the reader.Transport interface over a TCP socket,
// for the tmr://host and rql://host URI forms (spec §6).
package tcp

import (
	"fmt"
	"net"
	"sync"
	"time"

	transporttypes "github.com/mercuryrf/reader/internal/transport"
)

// Transport is the TCP backend of the reader.Transport interface.
type Transport struct {
	addr string

	mu   sync.Mutex
	conn net.Conn

	traceMu sync.Mutex
	trace   transporttypes.TraceHook
}

// New constructs a Transport for addr ("host:port").
func New(addr string) *Transport {
	return &Transport{addr: addr}
}

func (t *Transport) Open() error {
	conn, err := net.DialTimeout("tcp", t.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("tcp: dial %s: %w", t.addr, err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *Transport) Write(data []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("tcp: not connected")
	}
	n, err := conn.Write(data)
	if err == nil {
		t.emitTrace("tx", data, 0)
	}
	return n, err
}

func (t *Transport) Read(n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("tcp: not connected")
	}
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("tcp: set read deadline: %w", err)
		}
	} else {
		conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		k, err := conn.Read(buf[read:])
		if err != nil {
			return nil, fmt.Errorf("tcp: read: %w", err)
		}
		read += k
	}
	t.emitTrace("rx", buf, timeout)
	return buf, nil
}

// SetBaudRate is a no-op over TCP; the interface carries it for the serial
// backend's sake.
func (t *Transport) SetBaudRate(baud int) error { return nil }

func (t *Transport) Flush() error { return nil }

func (t *Transport) SetTraceHook(hook transporttypes.TraceHook) {
	t.traceMu.Lock()
	defer t.traceMu.Unlock()
	t.trace = hook
}

func (t *Transport) emitTrace(direction string, data []byte, timeout time.Duration) {
	t.traceMu.Lock()
	hook := t.trace
	t.traceMu.Unlock()
	if hook != nil {
		hook(transporttypes.TraceEvent{Direction: direction, Bytes: data, Timeout: timeout, At: time.Now()})
	}
}
