package reader

import (
	"sort"
	"strings"
	"sync"
)

// ParamType names the finite set of value shapes a Parameter can hold. A
// tagged-value union with explicit variants replaces the reflective type
// check a dynamically-typed registry would otherwise need (spec §9).
type ParamType int

const (
	TypeInt ParamType = iota
	TypeBool
	TypeString
	TypeEnum
	TypeBytes
	TypeReadPlan
	TypeGpioPins
	TypeRegion
)

// ParamValue is a tagged union over every value shape the registry stores.
// Exactly one field is meaningful for a given Type.
type ParamValue struct {
	Type     ParamType
	Int      int
	Bool     bool
	Str      string
	Bytes    []byte
	Plan     ReadPlan
	Pins     []GpioPin
	Region   Region
}

func (v ParamValue) sameType(o ParamValue) bool { return v.Type == o.Type }

// getHook recomputes or fetches a parameter's current value from the device
// (or from local state, for parameters with no device-side presence).
type getHook func() (ParamValue, error)

// setHook validates, transforms, or rejects a candidate value. It returns
// the value actually stored (allowing coercion) or an error.
type setHook func(ParamValue) (ParamValue, error)

// paramDef is one entry in the registry.
type paramDef struct {
	name      string // canonical case, as supplied to addParam
	lower     string
	typ       ParamType
	value     ParamValue
	writable  bool
	confirmed bool
	get       getHook
	set       setHook
}

// paramRegistry is the named parameter store described in spec §4.4. All
// operations are guarded by a single mutex; hooks run with the lock released
// so a hook that reenters the registry (e.g. to read a sibling parameter)
// cannot deadlock.
type paramRegistry struct {
	mu     sync.Mutex
	byName map[string]*paramDef
	order  []string // insertion order, for stable unconfirmed-probe ordering
}

func newParamRegistry() *paramRegistry {
	return &paramRegistry{byName: make(map[string]*paramDef)}
}

// addParam registers an always-visible parameter, already confirmed.
func (r *paramRegistry) addParam(name string, typ ParamType, initial ParamValue, writable bool, get getHook, set setHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lower := strings.ToLower(name)
	if _, exists := r.byName[lower]; !exists {
		r.order = append(r.order, lower)
	}
	r.byName[lower] = &paramDef{
		name: name, lower: lower, typ: typ, value: initial,
		writable: writable, confirmed: true, get: get, set: set,
	}
}

// addUnconfirmedParam registers a lazy parameter whose existence depends on
// a capability probe. It stays unlisted until a probe succeeds (Get, Set and
// List each run the probe on an unconfirmed parameter); a failed probe
// removes it permanently (spec invariant #5).
func (r *paramRegistry) addUnconfirmedParam(name string, typ ParamType, writable bool, get getHook, set setHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lower := strings.ToLower(name)
	if _, exists := r.byName[lower]; !exists {
		r.order = append(r.order, lower)
	}
	r.byName[lower] = &paramDef{
		name: name, lower: lower, typ: typ,
		writable: writable, confirmed: false, get: get, set: set,
	}
}

func (r *paramRegistry) lookup(name string) (*paramDef, error) {
	lower := strings.ToLower(name)
	r.mu.Lock()
	def, ok := r.byName[lower]
	r.mu.Unlock()
	if !ok {
		return nil, newProgrammerFault("UnknownParameter", "%s", name)
	}
	return def, nil
}

func (r *paramRegistry) remove(lower string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, lower)
	for i, n := range r.order {
		if n == lower {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// probe runs def's get-hook to confirm a lazy parameter. On success the
// value is cached and confirmed is set; on any error the parameter is
// removed permanently and UnknownParameter is returned to the caller.
func (r *paramRegistry) probe(def *paramDef) error {
	v, err := def.get()
	if err != nil {
		r.remove(def.lower)
		return newProgrammerFault("UnknownParameter", "%s (capability probe failed: %v)", def.name, err)
	}
	r.mu.Lock()
	def.value = v
	def.confirmed = true
	r.mu.Unlock()
	return nil
}

// Get implements the algorithm of spec §4.4: lookup, probe-if-unconfirmed,
// otherwise refresh via the get-hook.
func (r *paramRegistry) Get(name string) (ParamValue, error) {
	def, err := r.lookup(name)
	if err != nil {
		return ParamValue{}, err
	}
	r.mu.Lock()
	confirmed := def.confirmed
	r.mu.Unlock()
	if !confirmed {
		if err := r.probe(def); err != nil {
			return ParamValue{}, err
		}
		r.mu.Lock()
		v := def.value
		r.mu.Unlock()
		return v, nil
	}
	if def.get == nil {
		r.mu.Lock()
		v := def.value
		r.mu.Unlock()
		return v, nil
	}
	v, err := def.get()
	if err != nil {
		return ParamValue{}, err
	}
	r.mu.Lock()
	def.value = v
	r.mu.Unlock()
	return v, nil
}

// Set implements the algorithm of spec §4.4.
func (r *paramRegistry) Set(name string, v ParamValue) error {
	def, err := r.lookup(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	confirmed := def.confirmed
	writable := def.writable
	declared := def.typ
	r.mu.Unlock()
	if !confirmed {
		if err := r.probe(def); err != nil {
			return err
		}
	}
	if !writable {
		return newProgrammerFault("ReadOnly", "%s", name)
	}
	if !v.sameType(ParamValue{Type: declared}) {
		return newProgrammerFault("TypeMismatch", "%s: want %v, got %v", name, declared, v.Type)
	}
	stored, err := def.set(v)
	if err != nil {
		return err
	}
	r.mu.Lock()
	def.value = stored
	r.mu.Unlock()
	return nil
}

// List returns the canonical names of confirmed parameters, probing any
// unconfirmed ones in stable (insertion) order first; a failed probe
// removes that parameter from this and all future results.
func (r *paramRegistry) List() []string {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	r.mu.Unlock()

	for _, lower := range order {
		r.mu.Lock()
		def, ok := r.byName[lower]
		confirmed := ok && def.confirmed
		r.mu.Unlock()
		if ok && !confirmed {
			r.probe(def) //nolint:errcheck // a failed probe just removes the entry
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byName))
	for _, def := range r.byName {
		if def.confirmed {
			names = append(names, def.name)
		}
	}
	sort.Strings(names)
	return names
}
