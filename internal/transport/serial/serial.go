// Package serial implements the reader.Transport duck-typed interface over a
// physical serial device, using go.bug.st/serial for its SetReadTimeout
// support (spec §4.1's per-operation timeout requirement maps directly onto
// it, unlike tarm/serial which the teacher uses but which has no per-read
// deadline).
package serial

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	transporttypes "github.com/mercuryrf/reader/internal/transport"
)

// Transport is the serial-device backend of the reader.Transport interface.
type Transport struct {
	devicePath string
	baud       int

	mu   sync.Mutex
	port serial.Port

	traceMu sync.Mutex
	trace   transporttypes.TraceHook
}

// New constructs a Transport for devicePath at 115200 baud, the common
// default for this reader family; callers adjust via SetBaudRate after Open.
func New(devicePath string) *Transport {
	return &Transport{devicePath: devicePath, baud: 115200}
}

func (t *Transport) Open() error {
	mode := &serial.Mode{
		BaudRate: t.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.devicePath, mode)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", t.devicePath, err)
	}
	t.mu.Lock()
	t.port = port
	t.mu.Unlock()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

func (t *Transport) Write(data []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return 0, fmt.Errorf("serial: port not open")
	}
	n, err := port.Write(data)
	if err == nil {
		t.emitTrace("tx", data, 0, time.Now())
	}
	return n, err
}

func (t *Transport) Read(n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return nil, fmt.Errorf("serial: port not open")
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("serial: set read timeout: %w", err)
	}
	buf := make([]byte, n)
	read := 0
	deadline := time.Now().Add(timeout)
	for read < n {
		k, err := port.Read(buf[read:])
		if err != nil {
			return nil, fmt.Errorf("serial: read: %w", err)
		}
		if k == 0 {
			if timeout > 0 && time.Now().After(deadline) {
				return nil, fmt.Errorf("serial: read timeout after %d/%d bytes", read, n)
			}
			continue
		}
		read += k
	}
	t.emitTrace("rx", buf, timeout, time.Now())
	return buf, nil
}

func (t *Transport) SetBaudRate(baud int) error {
	t.baud = baud
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.SetMode(&serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
}

func (t *Transport) Flush() error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.ResetInputBuffer()
}

// SetTraceHook installs or clears the trace callback.
func (t *Transport) SetTraceHook(hook transporttypes.TraceHook) {
	t.traceMu.Lock()
	defer t.traceMu.Unlock()
	t.trace = hook
}

func (t *Transport) emitTrace(direction string, data []byte, timeout time.Duration, at time.Time) {
	t.traceMu.Lock()
	hook := t.trace
	t.traceMu.Unlock()
	if hook != nil {
		hook(transporttypes.TraceEvent{Direction: direction, Bytes: data, Timeout: timeout, At: at})
	}
}
