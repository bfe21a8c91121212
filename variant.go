package reader

import "time"

// ReaderVariant is the capability set a wire-protocol implementation exposes
// to ReaderCore. URI dispatch picks one variant; the façade forwards every
// public operation through it (spec §9 re-architecture guidance, replacing
// an abstract-base-class hierarchy with a capability interface).
type ReaderVariant interface {
	Connect(t Transport) error
	Destroy() error

	Read(duration time.Duration, antenna int, proto Protocol) ([]TagReadData, error)
	ExecuteTagOp(op TagOp, filter *TagFilter, antenna int, accessPassword uint32) ([]byte, error)

	GpioGet() ([]GpioPin, error)
	GpioSet(pins []GpioPin) error

	SetBaudRate(baud int) error

	StartReading(mode ReadMode, onTime, offTime time.Duration, antenna int, proto Protocol) error
	StopReading()

	ParamGet(name string) (ParamValue, error)
	ParamSet(name string, v ParamValue) error
	ParamList() []string

	AddTransportListener(hook TraceHook)
}
