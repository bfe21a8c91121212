package reader

import (
	"sync"

	"github.com/mercuryrf/reader/internal/rlog"
)

// ReadListener receives tag read events, one call per singulated tag, in the
// order the device reported them.
type ReadListener func(TagReadData)

// ExceptionListener receives faults raised during background reads.
type ExceptionListener func(error)

// StatusListener receives reader status/lifecycle notices (arming, draining,
// soft resets) that are not themselves faults.
type StatusListener func(string)

// listenerRegistry multiplexes one kind of listener. Notify snapshots the
// slice under a short lock so concurrent add/remove during delivery can
// neither skip nor double-deliver an event, and so a listener is never
// invoked while the lock is held.
type listenerRegistry[T any] struct {
	mu        sync.Mutex
	listeners []T
}

func (r *listenerRegistry[T]) add(l T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// remove drops the most recently added listener matching eq; used instead of
// a direct slice filter because function values aren't comparable.
func (r *listenerRegistry[T]) remove(eq func(T) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.listeners) - 1; i >= 0; i-- {
		if eq(r.listeners[i]) {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *listenerRegistry[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.listeners))
	copy(out, r.listeners)
	return out
}

func (r *listenerRegistry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

func (r *listenerRegistry[T]) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = nil
}

// listenerHub owns the four independent listener registries described in
// spec §4.8: read, exception, status, and transport-trace.
type listenerHub struct {
	read      listenerRegistry[ReadListener]
	exception listenerRegistry[ExceptionListener]
	status    listenerRegistry[StatusListener]
	trace     listenerRegistry[TraceHook]
}

func newListenerHub() *listenerHub {
	return &listenerHub{}
}

func (h *listenerHub) notifyRead(t TagReadData) {
	for _, l := range h.read.snapshot() {
		safeCall(func() { l(t) })
	}
}

func (h *listenerHub) notifyException(err error) {
	for _, l := range h.exception.snapshot() {
		safeCall(func() { l(err) })
	}
}

func (h *listenerHub) notifyStatus(msg string) {
	for _, l := range h.status.snapshot() {
		safeCall(func() { l(msg) })
	}
}

func (h *listenerHub) notifyTrace(ev TraceEvent) {
	for _, l := range h.trace.snapshot() {
		safeCall(func() { l(ev) })
	}
}

// safeCall runs f and swallows a panic so one misbehaving listener never
// prevents the remaining listeners in the same notify pass from running.
func safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			rlog.Printf("reader: listener panicked: %v", r)
		}
	}()
	f()
}

// defaultReadListener prints a one-line summary per tag, matching the
// teacher's style of logging each observed event rather than staying silent.
func defaultReadListener(t TagReadData) {
	rlog.Printf("reader: tag read: epc=%x antenna=%d rssi=%d count=%d",
		t.Tag.EPC, t.Antenna, t.RSSI, t.ReadCount)
}

// defaultExceptionListener logs background-read faults that would otherwise
// go unnoticed by a caller who only registered a read listener.
func defaultExceptionListener(err error) {
	rlog.Printf("reader: background read exception: %v", err)
}
