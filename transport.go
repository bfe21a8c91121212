package reader

import "github.com/mercuryrf/reader/internal/transport"

// TraceEvent is emitted by a Transport for every successful write/read when
// a trace hook has been installed. Aliased from internal/transport so the
// serial and TCP backends can satisfy Transport without importing this
// package back.
type TraceEvent = transport.TraceEvent

// TraceHook receives transport trace events.
type TraceHook = transport.TraceHook

// Transport is a duplex byte channel with a per-operation timeout. It has no
// retry policy and no framing awareness; Framer and CommandCodec build on
// top of it. Implementations: a serial device or a TCP socket.
type Transport = transport.Transport
