package reader

import "testing"

func newTestRegistry() *paramRegistry {
	r := newParamRegistry()
	r.addParam("/reader/readonly", TypeInt, ParamValue{Type: TypeInt, Int: 42}, false, nil, nil)

	var stored int
	r.addParam("/reader/writable", TypeInt, ParamValue{Type: TypeInt, Int: 0}, true,
		func() (ParamValue, error) { return ParamValue{Type: TypeInt, Int: stored}, nil },
		func(v ParamValue) (ParamValue, error) {
			// coerce: clamp to [0, 100], idempotently.
			n := v.Int
			if n < 0 {
				n = 0
			}
			if n > 100 {
				n = 100
			}
			stored = n
			return ParamValue{Type: TypeInt, Int: n}, nil
		})
	return r
}

func TestReadOnlyParameterRejectsSet(t *testing.T) {
	r := newTestRegistry()
	err := r.Set("/reader/readonly", ParamValue{Type: TypeInt, Int: 1})
	pf, ok := err.(*ProgrammerFault)
	if !ok || pf.Kind != "ReadOnly" {
		t.Fatalf("want ReadOnly, got %v", err)
	}
}

func TestTypeMismatchRejected(t *testing.T) {
	r := newTestRegistry()
	err := r.Set("/reader/writable", ParamValue{Type: TypeString, Str: "nope"})
	pf, ok := err.(*ProgrammerFault)
	if !ok || pf.Kind != "TypeMismatch" {
		t.Fatalf("want TypeMismatch, got %v", err)
	}
}

// Set-hook coercion must itself be idempotent: coerce(coerce(v)) = coerce(v).
func TestSetHookCoercionIdempotent(t *testing.T) {
	r := newTestRegistry()
	if err := r.Set("/reader/writable", ParamValue{Type: TypeInt, Int: 500}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := r.Get("/reader/writable")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Int != 100 {
		t.Fatalf("want clamped 100, got %d", got.Int)
	}
	if err := r.Set("/reader/writable", got); err != nil {
		t.Fatalf("Set (second pass): %v", err)
	}
	got2, _ := r.Get("/reader/writable")
	if got2.Int != got.Int {
		t.Fatalf("coercion not idempotent: %d vs %d", got.Int, got2.Int)
	}
}

func TestListOnlyReturnsConfirmedParameters(t *testing.T) {
	r := newTestRegistry()
	probed := false
	r.addUnconfirmedParam("/reader/lazy", TypeBool, false,
		func() (ParamValue, error) { probed = true; return ParamValue{Type: TypeBool, Bool: true}, nil }, nil)

	names := r.List()
	if !probed {
		t.Fatalf("List should have probed the unconfirmed parameter")
	}
	found := false
	for _, n := range names {
		if n == "/reader/lazy" {
			found = true
		}
	}
	if !found {
		t.Fatalf("successfully-probed lazy parameter should now be listed")
	}
}
