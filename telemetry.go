package reader

import (
	"encoding/hex"
	"sync"
)

// StatePublisher mirrors live reader operational state to an external
// system. It is optional: a ReaderCore constructed without one behaves
// exactly as spec.md describes, with no persistence of any kind.
type StatePublisher interface {
	PublishConnected(connected bool) error
	PublishRegion(region string) error
	PublishReadSummary(count int, lastEPC string) error
}

// Option configures optional ReaderCore collaborators at construction time.
type Option func(*ReaderCore)

// WithStatePublisher wires an external state mirror (see internal/telemetry
// for the Redis-backed implementation) into the reader. ReaderCore publishes
// connection transitions, region changes, and running read summaries to it;
// it never receives per-tag history.
func WithStatePublisher(p StatePublisher) Option {
	return func(r *ReaderCore) { r.telemetry = p }
}

// telemetryState accumulates the summary counters WithStatePublisher mirrors.
type telemetryState struct {
	mu      sync.Mutex
	count   int
	lastEPC string
}

func (r *ReaderCore) publishConnected(connected bool) {
	if r.telemetry == nil {
		return
	}
	r.telemetry.PublishConnected(connected)
}

func (r *ReaderCore) publishRegion(region string) {
	if r.telemetry == nil {
		return
	}
	r.telemetry.PublishRegion(region)
}

// telemetryReadListener wraps a read listener so every background tag read
// also updates the running summary mirror, without giving the telemetry
// collaborator any per-tag detail beyond EPC + count.
func (r *ReaderCore) telemetryReadListener() ReadListener {
	return func(t TagReadData) {
		if r.telemetry == nil {
			return
		}
		r.tstate.mu.Lock()
		r.tstate.count++
		r.tstate.lastEPC = hexEPC(t.Tag.EPC)
		count := r.tstate.count
		epc := r.tstate.lastEPC
		r.tstate.mu.Unlock()
		r.telemetry.PublishReadSummary(count, epc)
	}
}

func hexEPC(b []byte) string { return hex.EncodeToString(b) }
