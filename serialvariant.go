package reader

import (
	"strconv"
	"sync"
	"time"
)

// serialVariant is the fully-implemented ReaderVariant driving the primary
// reader family over the framed serial protocol (spec §4.3-4.7). It owns
// the codec, the parameter registry, the listener hub, and the background
// engine, and serializes all reader-protocol command traffic behind a
// single command mutex shared with the background engine (spec §5).
type serialVariant struct {
	uri string

	mu        sync.Mutex // guards connected/region/defaults below
	connected bool
	region    Region

	tagopAntenna  int
	tagopProtocol Protocol
	accessPass    uint32

	cmdLock sync.Mutex
	codec   *commandCodec
	hub     *listenerHub
	engine  *backgroundEngine
	params  *paramRegistry

	transport Transport
}

func newSerialVariant(uri string) *serialVariant {
	v := &serialVariant{
		uri:           uri,
		tagopAntenna:  1,
		tagopProtocol: ProtocolGen2,
		hub:           newListenerHub(),
	}
	v.params = newParamRegistry()
	v.params.addParam("/reader/uri", TypeString, ParamValue{Type: TypeString, Str: uri}, false, nil, nil)
	return v
}

// Connect takes the Transport that ReaderCore has already opened, performs
// the version handshake, installs the post-connect parameter set, reads
// region and falls back to NA on UNSPEC (spec §4.5, invariant #8).
func (v *serialVariant) Connect(t Transport) error {
	v.transport = t
	t.SetTraceHook(v.hub.notifyTrace)
	v.codec = newCommandCodec(t)
	v.engine = newBackgroundEngine(v.codec, v.hub, &v.cmdLock)

	v.cmdLock.Lock()
	ver, err := v.codec.getVersion()
	if err != nil {
		v.cmdLock.Unlock()
		return err
	}
	region, err := v.codec.getRegion()
	v.cmdLock.Unlock()
	if err != nil {
		return err
	}
	if region == RegionUnspec {
		region = RegionNA
		v.cmdLock.Lock()
		setErr := v.codec.setRegion(region)
		v.cmdLock.Unlock()
		if setErr != nil {
			return setErr
		}
	}

	v.mu.Lock()
	v.connected = true
	v.region = region
	v.mu.Unlock()

	v.installParams(ver)
	return nil
}

func (v *serialVariant) Destroy() error {
	if v.engine != nil {
		v.engine.stopReading()
	}
	v.mu.Lock()
	v.connected = false
	v.mu.Unlock()
	if v.transport == nil {
		return nil
	}
	return v.transport.Close()
}

func (v *serialVariant) Read(duration time.Duration, antenna int, proto Protocol) ([]TagReadData, error) {
	v.cmdLock.Lock()
	defer v.cmdLock.Unlock()
	return v.codec.readTagIDMultiple(int(duration/time.Millisecond), antenna, proto)
}

func (v *serialVariant) ExecuteTagOp(op TagOp, filter *TagFilter, antenna int, accessPassword uint32) ([]byte, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	v.cmdLock.Lock()
	defer v.cmdLock.Unlock()
	return v.codec.executeTagOp(op, filter, antenna, accessPassword)
}

func (v *serialVariant) GpioGet() ([]GpioPin, error) {
	v.cmdLock.Lock()
	defer v.cmdLock.Unlock()
	return v.codec.gpioGet()
}

func (v *serialVariant) GpioSet(pins []GpioPin) error {
	v.cmdLock.Lock()
	defer v.cmdLock.Unlock()
	return v.codec.gpioSet(pins)
}

// SetBaudRate reconfigures the underlying Transport's line speed; it takes
// the command mutex since changing baud mid-command would desync the
// framer on either end.
func (v *serialVariant) SetBaudRate(baud int) error {
	v.cmdLock.Lock()
	defer v.cmdLock.Unlock()
	if v.transport == nil {
		return newCommFault("operation", "Closed", nil)
	}
	return v.transport.SetBaudRate(baud)
}

func (v *serialVariant) StartReading(mode ReadMode, onTime, offTime time.Duration, antenna int, proto Protocol) error {
	return v.engine.start(mode, onTime, offTime, antenna, proto)
}

func (v *serialVariant) StopReading() {
	v.engine.stopReading()
}

func (v *serialVariant) ParamGet(name string) (ParamValue, error) { return v.params.Get(name) }
func (v *serialVariant) ParamSet(name string, val ParamValue) error { return v.params.Set(name, val) }
func (v *serialVariant) ParamList() []string                        { return v.params.List() }

// AddTransportListener may be called before Connect, since it only ever
// touches the listener hub: Connect installs a single dispatcher on the
// Transport that forwards every event to hub.trace, so listeners added
// before or after Connect are treated identically.
func (v *serialVariant) AddTransportListener(hook TraceHook) {
	v.hub.trace.add(hook)
}

// installParams registers the required parameter namespace from spec §6.
// Version and URI are static post-connect facts; region, timeouts, read
// plan, and gen2 defaults have live get/set hooks; antenna port list and
// GPIO pins are lazy/unconfirmed, exercising the capability-probe path.
func (v *serialVariant) installParams(ver versionInfo) {
	p := v.params

	p.addParam("/reader/uri", TypeString, ParamValue{Type: TypeString, Str: v.uri}, false, nil, nil)
	p.addParam("/reader/version/software", TypeString,
		ParamValue{Type: TypeString, Str: formatVersion(ver)}, false, nil, nil)
	p.addParam("/reader/version/serial", TypeString,
		ParamValue{Type: TypeString, Str: ver.Serial}, false, nil, nil)

	p.addParam("/reader/region/id", TypeRegion,
		ParamValue{Type: TypeRegion, Region: v.currentRegion()},
		true,
		func() (ParamValue, error) {
			v.cmdLock.Lock()
			r, err := v.codec.getRegion()
			v.cmdLock.Unlock()
			if err != nil {
				return ParamValue{}, err
			}
			return ParamValue{Type: TypeRegion, Region: r}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			v.cmdLock.Lock()
			err := v.codec.setRegion(val.Region)
			v.cmdLock.Unlock()
			if err != nil {
				return ParamValue{}, err
			}
			v.mu.Lock()
			v.region = val.Region
			v.mu.Unlock()
			return val, nil
		})

	var readPlan ReadPlan
	readPlan.Simple = &SimpleReadPlan{Antennas: []int{1}, Protocol: ProtocolGen2}
	var planMu sync.Mutex
	p.addParam("/reader/read/plan", TypeReadPlan, ParamValue{Type: TypeReadPlan, Plan: readPlan}, true,
		func() (ParamValue, error) {
			planMu.Lock()
			defer planMu.Unlock()
			return ParamValue{Type: TypeReadPlan, Plan: readPlan}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			if err := val.Plan.Validate(); err != nil {
				return ParamValue{}, err
			}
			planMu.Lock()
			readPlan = val.Plan
			planMu.Unlock()
			return val, nil
		})

	onTime := int64(1000)
	var onMu sync.Mutex
	p.addParam("/reader/read/asyncOnTime", TypeInt, ParamValue{Type: TypeInt, Int: int(onTime)}, true,
		func() (ParamValue, error) {
			onMu.Lock()
			defer onMu.Unlock()
			return ParamValue{Type: TypeInt, Int: int(onTime)}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			if val.Int < 0 || val.Int > 65535 {
				return ParamValue{}, newProgrammerFault("InvalidArgument", "asyncOnTime %d out of range", val.Int)
			}
			onMu.Lock()
			onTime = int64(val.Int)
			onMu.Unlock()
			return val, nil
		})

	offTime := int64(0)
	var offMu sync.Mutex
	p.addParam("/reader/read/asyncOffTime", TypeInt, ParamValue{Type: TypeInt, Int: int(offTime)}, true,
		func() (ParamValue, error) {
			offMu.Lock()
			defer offMu.Unlock()
			return ParamValue{Type: TypeInt, Int: int(offTime)}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			if val.Int < 0 || val.Int > 65535 {
				return ParamValue{}, newProgrammerFault("InvalidArgument", "asyncOffTime %d out of range", val.Int)
			}
			offMu.Lock()
			offTime = int64(val.Int)
			offMu.Unlock()
			return val, nil
		})

	// The access-password set-hook stores whatever value it is given and
	// never rejects zero, which stands for "no password" (spec §9 open
	// question: resolved in DESIGN.md in favor of the lenient behavior).
	p.addParam("/reader/gen2/accessPassword", TypeInt, ParamValue{Type: TypeInt, Int: 0}, true,
		func() (ParamValue, error) {
			v.mu.Lock()
			defer v.mu.Unlock()
			return ParamValue{Type: TypeInt, Int: int(v.accessPass)}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			v.mu.Lock()
			v.accessPass = uint32(val.Int)
			v.mu.Unlock()
			return val, nil
		})

	commandTimeout := int64(5000)
	var ctMu sync.Mutex
	p.addParam("/reader/commandTimeout", TypeInt, ParamValue{Type: TypeInt, Int: int(commandTimeout)}, true,
		func() (ParamValue, error) {
			ctMu.Lock()
			defer ctMu.Unlock()
			return ParamValue{Type: TypeInt, Int: int(commandTimeout)}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			if val.Int < 0 || val.Int > 65535 {
				return ParamValue{}, newProgrammerFault("InvalidArgument", "commandTimeout %d out of range", val.Int)
			}
			ctMu.Lock()
			commandTimeout = int64(val.Int)
			v.codec.commandTimeout = time.Duration(val.Int) * time.Millisecond
			ctMu.Unlock()
			return val, nil
		})

	transportTimeout := int64(1000)
	var ttMu sync.Mutex
	p.addParam("/reader/transportTimeout", TypeInt, ParamValue{Type: TypeInt, Int: int(transportTimeout)}, true,
		func() (ParamValue, error) {
			ttMu.Lock()
			defer ttMu.Unlock()
			return ParamValue{Type: TypeInt, Int: int(transportTimeout)}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			if val.Int < 0 || val.Int > 65535 {
				return ParamValue{}, newProgrammerFault("InvalidArgument", "transportTimeout %d out of range", val.Int)
			}
			ttMu.Lock()
			transportTimeout = int64(val.Int)
			v.codec.transportTimeout = time.Duration(val.Int) * time.Millisecond
			ttMu.Unlock()
			return val, nil
		})

	p.addParam("/reader/tagop/antenna", TypeInt, ParamValue{Type: TypeInt, Int: v.tagopAntenna}, true,
		func() (ParamValue, error) {
			v.mu.Lock()
			defer v.mu.Unlock()
			return ParamValue{Type: TypeInt, Int: v.tagopAntenna}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			v.mu.Lock()
			v.tagopAntenna = val.Int
			v.mu.Unlock()
			return val, nil
		})

	p.addParam("/reader/tagop/protocol", TypeInt, ParamValue{Type: TypeInt, Int: int(v.tagopProtocol)}, true,
		func() (ParamValue, error) {
			v.mu.Lock()
			defer v.mu.Unlock()
			return ParamValue{Type: TypeInt, Int: int(v.tagopProtocol)}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			v.mu.Lock()
			v.tagopProtocol = Protocol(val.Int)
			v.mu.Unlock()
			return val, nil
		})

	// Lazy/unconfirmed, probed on first use (spec §4.4 capability-probe
	// semantics). The GPIO pin probe issues GPIO_GET to the device. The
	// antenna port list probe does not query the device: it always succeeds
	// and reports ports 1-4.
	p.addUnconfirmedParam("/reader/antenna/portList", TypeBytes, false,
		func() (ParamValue, error) {
			v.cmdLock.Lock()
			defer v.cmdLock.Unlock()
			return ParamValue{Type: TypeBytes, Bytes: []byte{1, 2, 3, 4}}, nil
		}, nil)

	p.addUnconfirmedParam("/reader/gpio/pins", TypeGpioPins, true,
		func() (ParamValue, error) {
			pins, err := v.GpioGet()
			if err != nil {
				return ParamValue{}, err
			}
			return ParamValue{Type: TypeGpioPins, Pins: pins}, nil
		},
		func(val ParamValue) (ParamValue, error) {
			if err := v.GpioSet(val.Pins); err != nil {
				return ParamValue{}, err
			}
			return val, nil
		})
}

func (v *serialVariant) currentRegion() Region {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.region
}

func formatVersion(ver versionInfo) string {
	return strconv.Itoa(int(ver.Major)) + "." + strconv.Itoa(int(ver.Minor)) + "." + strconv.Itoa(int(ver.Build))
}
