// Package reader is a host-side control library for UHF Gen2 (and related)
// RFID readers. It opens a link to a reader device over a serial line or TCP
// socket, issues framed command messages, parses framed responses, manages
// a parameter/configuration registry, executes tag operations, and supports
// synchronous and background-streaming reads.
package reader

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	serialtransport "github.com/mercuryrf/reader/internal/transport/serial"
	tcptransport "github.com/mercuryrf/reader/internal/transport/tcp"
)

const (
	defaultLLRPPort = 5084
	defaultRQLPort  = 8080
	llrpProbeDeadline = 500 * time.Millisecond
)

// ReaderCore is the public façade over a reader connection: identity,
// connection state, and the operation surface dispatched through whichever
// ReaderVariant the URI selected (spec §3 ReaderHandle, §4.5).
type ReaderCore struct {
	uri     string
	variant ReaderVariant

	mu        sync.Mutex
	connected bool

	telemetry StatePublisher
	tstate    telemetryState
}

// Create parses uri and selects a variant, but does not open the
// connection; call Connect to do that. Scheme eapi/tmr (path-only) selects
// the serial variant; rql selects the RQL stub; llrp selects the LLRP stub;
// tmr with an authority probes LLRP first, falling back to RQL on failure
// (spec §4.5, §6 URI grammar).
func Create(uri string, opts ...Option) (*ReaderCore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, newProgrammerFault("InvalidUri", "%s: %v", uri, err)
	}

	var variant ReaderVariant
	switch u.Scheme {
	case "eapi":
		variant = newSerialVariant(uri)
	case "tmr":
		if u.Host == "" {
			variant = newSerialVariant(uri)
		} else {
			variant = probeTmrHost(u, uri)
		}
	case "rql":
		variant = &stubVariant{kind: "rql"}
	case "llrp":
		variant = &stubVariant{kind: "llrp"}
	default:
		return nil, newProgrammerFault("InvalidUri", "unrecognized scheme %q", u.Scheme)
	}

	r := &ReaderCore{uri: uri, variant: variant}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// probeTmrHost resolves the tmr://host ambiguity (spec §4.5, §9): probe
// LLRP's well-known port first; a failed probe closes its socket and falls
// back to RQL. Probe state is scoped to this call, not shared process-wide,
// resolving the open question about cross-instance _isLLRP/_isConnected
// globals in favor of a per-ReaderCore decision.
func probeTmrHost(u *url.URL, uri string) ReaderVariant {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(defaultLLRPPort)
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), llrpProbeDeadline)
	if err != nil {
		return &stubVariant{kind: "rql"}
	}
	conn.Close()
	return &stubVariant{kind: "llrp"}
}

// Connect opens Transport for the selected variant, performs the version
// handshake, installs parameters, and bootstraps region (spec §4.5). On any
// failure the handle remains disconnected.
func (r *ReaderCore) Connect() error {
	t, err := r.openTransport()
	if err != nil {
		return err
	}
	if err := t.Open(); err != nil {
		return newCommFault("connect", "IOError", err)
	}
	if err := r.variant.Connect(t); err != nil {
		t.Close()
		return err
	}
	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()
	r.publishConnected(true)
	if region, err := r.ParamGet("/reader/region/id"); err == nil {
		r.publishRegion(region.Region.String())
	}
	return nil
}

func (r *ReaderCore) openTransport() (Transport, error) {
	u, err := url.Parse(r.uri)
	if err != nil {
		return nil, newProgrammerFault("InvalidUri", "%s: %v", r.uri, err)
	}
	switch u.Scheme {
	case "eapi", "tmr":
		if u.Host != "" {
			return tcptransport.New(u.Host), nil
		}
		return serialtransport.New(u.Path), nil
	default:
		host := u.Host
		return tcptransport.New(host), nil
	}
}

// Destroy releases Transport, interrupts the background engine, and drains
// listener queues without blocking indefinitely. Infallible and idempotent.
func (r *ReaderCore) Destroy() error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return nil
	}
	r.connected = false
	r.mu.Unlock()
	r.publishConnected(false)
	r.variant.Destroy() //nolint:errcheck // Destroy is infallible; a close error is dropped
	return nil
}

func (r *ReaderCore) requireConnected() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return newCommFault("operation", "Closed", nil)
	}
	return nil
}

// Read performs a synchronous inventory for duration, returning every tag
// observed in the order the device reported them (spec §4.6, S1).
func (r *ReaderCore) Read(duration time.Duration, antenna int, proto Protocol) ([]TagReadData, error) {
	if err := r.requireConnected(); err != nil {
		return nil, err
	}
	return r.variant.Read(duration, antenna, proto)
}

// ExecuteTagOp runs op against whatever tag filter singulates (spec §4.6).
func (r *ReaderCore) ExecuteTagOp(op TagOp, filter *TagFilter, antenna int, accessPassword uint32) ([]byte, error) {
	if err := r.requireConnected(); err != nil {
		return nil, err
	}
	return r.variant.ExecuteTagOp(op, filter, antenna, accessPassword)
}

// StartReading begins a background read in the given mode; default
// listeners are injected if none are registered (spec §4.7). With a
// StatePublisher set, the telemetry summary listener added here counts as a
// registered read listener, so no default read listener is injected.
func (r *ReaderCore) StartReading(mode ReadMode, onTime, offTime time.Duration, antenna int, proto Protocol) error {
	if err := r.requireConnected(); err != nil {
		return err
	}
	if r.telemetry != nil {
		r.AddReadListener(r.telemetryReadListener())
	}
	return r.variant.StartReading(mode, onTime, offTime, antenna, proto)
}

// StopReading blocks until both queues are drained and workers have exited.
// Never raises (spec §7).
func (r *ReaderCore) StopReading() { r.variant.StopReading() }

// GpioGet/GpioSet read and set GPIO pin state.
func (r *ReaderCore) GpioGet() ([]GpioPin, error) {
	if err := r.requireConnected(); err != nil {
		return nil, err
	}
	return r.variant.GpioGet()
}

func (r *ReaderCore) GpioSet(pins []GpioPin) error {
	if err := r.requireConnected(); err != nil {
		return err
	}
	return r.variant.GpioSet(pins)
}

// SetBaudRate reconfigures the transport's line speed; a no-op on
// non-serial transports (TCP) and unsupported on the RQL/LLRP stubs.
func (r *ReaderCore) SetBaudRate(baud int) error {
	if err := r.requireConnected(); err != nil {
		return err
	}
	return r.variant.SetBaudRate(baud)
}

// ParamGet/ParamSet/ParamList delegate to the parameter registry. Per spec
// §3's ReaderHandle invariant, paramGet/Set on preconnect parameters is
// allowed before connect; the variant's own registry enforces that only
// `/reader/uri` style static entries exist prior to Connect.
func (r *ReaderCore) ParamGet(name string) (ParamValue, error) { return r.variant.ParamGet(name) }
func (r *ReaderCore) ParamSet(name string, v ParamValue) error {
	if err := r.variant.ParamSet(name, v); err != nil {
		return err
	}
	if strings.EqualFold(name, "/reader/region/id") {
		r.publishRegion(v.Region.String())
	}
	return nil
}
func (r *ReaderCore) ParamList() []string                      { return r.variant.ParamList() }

// AddReadListener/AddExceptionListener/AddStatusListener register listeners
// for background-read events; multiple listeners of a kind may coexist.
func (r *ReaderCore) AddReadListener(l ReadListener) {
	if sv, ok := r.variant.(*serialVariant); ok {
		sv.hub.read.add(l)
	}
}

func (r *ReaderCore) AddExceptionListener(l ExceptionListener) {
	if sv, ok := r.variant.(*serialVariant); ok {
		sv.hub.exception.add(l)
	}
}

func (r *ReaderCore) AddStatusListener(l StatusListener) {
	if sv, ok := r.variant.(*serialVariant); ok {
		sv.hub.status.add(l)
	}
}

// AddTransportListener may be called before Connect (spec §3 invariant).
func (r *ReaderCore) AddTransportListener(hook TraceHook) {
	r.variant.AddTransportListener(hook)
}

// URI returns the connection URI this handle was created from.
func (r *ReaderCore) URI() string { return r.uri }

// Connected reports current connection state.
func (r *ReaderCore) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}
