package reader

import "time"

// stubVariant recognizes the RQL and LLRP schemes (spec §1's "alternate
// protocols, specified only as peer variants behind the same Reader
// contract") without implementing their wire protocols. Read, ExecuteTagOp,
// GpioGet/GpioSet, SetBaudRate, StartReading, ParamGet and ParamSet fail
// with ErrUnsupportedVariant; Connect, Destroy, StopReading and
// AddTransportListener do nothing, and ParamList returns nil. The
// tmr://host LLRP-probe-then-RQL-fallback decision is made before a stub
// exists, by probeTmrHost in Create (spec §4.5).
type stubVariant struct {
	kind string // "rql" or "llrp"
}

func (s *stubVariant) Connect(t Transport) error {
	// No RQL/LLRP negotiation takes place; the stub accepts any transport.
	return nil
}

func (s *stubVariant) Destroy() error { return nil }

func (s *stubVariant) Read(time.Duration, int, Protocol) ([]TagReadData, error) {
	return nil, ErrUnsupportedVariant
}

func (s *stubVariant) ExecuteTagOp(TagOp, *TagFilter, int, uint32) ([]byte, error) {
	return nil, ErrUnsupportedVariant
}

func (s *stubVariant) GpioGet() ([]GpioPin, error)   { return nil, ErrUnsupportedVariant }
func (s *stubVariant) GpioSet([]GpioPin) error       { return ErrUnsupportedVariant }
func (s *stubVariant) SetBaudRate(int) error         { return ErrUnsupportedVariant }

func (s *stubVariant) StartReading(ReadMode, time.Duration, time.Duration, int, Protocol) error {
	return ErrUnsupportedVariant
}
func (s *stubVariant) StopReading() {}

func (s *stubVariant) ParamGet(name string) (ParamValue, error) { return ParamValue{}, ErrUnsupportedVariant }
func (s *stubVariant) ParamSet(string, ParamValue) error         { return ErrUnsupportedVariant }
func (s *stubVariant) ParamList() []string                       { return nil }

func (s *stubVariant) AddTransportListener(TraceHook) {}
