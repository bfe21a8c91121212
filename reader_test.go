package reader

import (
	"testing"
	"time"

	"github.com/mercuryrf/reader/internal/protocol"
)

// newConnectedVariant builds a serialVariant wired to a mockTransport whose
// handler answers the version/region handshake plus whatever extra opcode
// handling the test needs, and runs Connect.
func newConnectedVariant(t *testing.T, extra func(opcode byte, payload []byte) []byte, region byte) (*serialVariant, *mockTransport) {
	t.Helper()
	mt := newMockTransport(func(opcode byte, payload []byte) []byte {
		switch protocol.Opcode(opcode) {
		case protocol.OpGetVersion:
			return encodeResponseFrame(opcode, append([]byte{0x00, 1, 2, 3}, []byte("SN123")...))
		case protocol.OpGetRegion:
			return encodeResponseFrame(opcode, []byte{0x00, region})
		case protocol.OpSetRegion:
			// The mock device keeps the region it was set to, as a real one does.
			if len(payload) > 0 {
				region = payload[0]
			}
			return encodeResponseFrame(opcode, []byte{0x00})
		default:
			if extra != nil {
				return extra(opcode, payload)
			}
			return encodeResponseFrame(opcode, []byte{0x00})
		}
	})
	v := newSerialVariant("eapi:///dev/mock")
	if err := v.Connect(mt); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return v, mt
}

// S1 — synchronous read returns exactly the scripted tags, in order.
func TestSyncReadReturnsTagsInOrder(t *testing.T) {
	v, _ := newConnectedVariant(t, func(opcode byte, payload []byte) []byte {
		if protocol.Opcode(opcode) != protocol.OpReadTagIDMultiple {
			return encodeResponseFrame(opcode, []byte{0x00})
		}
		body := []byte{0x00, 0x02} // status ok, 2 tags
		body = append(body, tagRecordBytes([]byte{0xE2, 0x00, 0xAA}, 1, -45, 1, nil)...)
		body = append(body, tagRecordBytes([]byte{0xE2, 0x00, 0xBB}, 1, -50, 1, nil)...)
		return encodeResponseFrame(opcode, body)
	}, 1)

	tags, err := v.Read(500*time.Millisecond, 1, ProtocolGen2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("want 2 tags, got %d", len(tags))
	}
	if string(tags[0].Tag.EPC) != string([]byte{0xE2, 0x00, 0xAA}) || tags[0].RSSI != -45 {
		t.Fatalf("first tag mismatch: %+v", tags[0])
	}
	if string(tags[1].Tag.EPC) != string([]byte{0xE2, 0x00, 0xBB}) || tags[1].RSSI != -50 {
		t.Fatalf("second tag mismatch: %+v", tags[1])
	}
}

func tagRecordBytes(epc []byte, antenna int, rssi int, readCount int, opResult []byte) []byte {
	rec := []byte{byte(len(epc))}
	rec = append(rec, epc...)
	rec = append(rec, byte(antenna), byte(int8(rssi)), byte(readCount), byte(len(opResult)))
	rec = append(rec, opResult...)
	return rec
}

// S2 — executeTagOp(BlockPermaLock) returns the raw result bytes unmodified.
func TestExecuteTagOpBlockPermaLockReturnsRawBytes(t *testing.T) {
	v, _ := newConnectedVariant(t, func(opcode byte, payload []byte) []byte {
		if protocol.Opcode(opcode) != protocol.OpBlockPermaLock {
			return encodeResponseFrame(opcode, []byte{0x00})
		}
		return encodeResponseFrame(opcode, []byte{0x00, 0x01, 0x02, 0x03})
	}, 1)

	op := TagOp{Kind: OpGen2BlockPermaLock, Gen2BlockPermaLock: &Gen2BlockPermaLock{
		Bank: MemUser, BlockPointer: 0, BlockRange: 1, ReadLock: true,
	}}
	result, err := v.ExecuteTagOp(op, nil, 1, 0)
	if err != nil {
		t.Fatalf("ExecuteTagOp: %v", err)
	}
	want := []byte{0x00, 0x01, 0x02, 0x03}
	if string(result) != string(want) {
		t.Fatalf("want %v, got %v", want, result)
	}
}

// S4 — CRC corruption on a response raises CrcMismatch; a subsequent
// command on the same connection still succeeds.
func TestCrcCorruptionThenRecovery(t *testing.T) {
	calls := 0
	v, _ := newConnectedVariant(t, nil, 1)
	// Swap in a transport whose first GET_POWER response is corrupted.
	mt2 := newMockTransport(func(opcode byte, payload []byte) []byte {
		calls++
		frame := encodeResponseFrame(opcode, []byte{0x00, 0x00, 0x64})
		if protocol.Opcode(opcode) == protocol.OpGetPower && calls == 1 {
			corrupt := append([]byte(nil), frame...)
			corrupt[len(corrupt)-1] ^= 0xFF // flip a CRC byte
			return corrupt
		}
		return frame
	})
	v.codec = newCommandCodec(mt2)
	v.transport = mt2

	_, err := v.codec.getPower()
	if err == nil {
		t.Fatalf("expected CrcMismatch on corrupted response")
	}
	if cf, ok := err.(*CommFault); !ok || cf.Kind != "CrcMismatch" {
		t.Fatalf("want CrcMismatch CommFault, got %v (%T)", err, err)
	}

	power, err := v.codec.getPower()
	if err != nil {
		t.Fatalf("second GET_POWER should succeed: %v", err)
	}
	if power != 0x64 {
		t.Fatalf("want power 100, got %d", power)
	}
}

// S5 / invariant #8 — a device reporting UNSPEC at connect falls back to NA.
func TestRegionFallbackToNA(t *testing.T) {
	v, _ := newConnectedVariant(t, nil, 0) // 0 = UNSPEC
	val, err := v.ParamGet("/reader/region/id")
	if err != nil {
		t.Fatalf("ParamGet region: %v", err)
	}
	if val.Region != RegionNA {
		t.Fatalf("want NA fallback, got %v", val.Region)
	}
}

// Invariant #4 — unknown parameter get/set both fail, registry unchanged.
func TestUnknownParameter(t *testing.T) {
	v, _ := newConnectedVariant(t, nil, 1)
	before := v.params.List()

	if _, err := v.ParamGet("/reader/does/not/exist"); !isUnknownParam(err) {
		t.Fatalf("want UnknownParameter, got %v", err)
	}
	if err := v.ParamSet("/reader/does/not/exist", ParamValue{Type: TypeInt, Int: 1}); !isUnknownParam(err) {
		t.Fatalf("want UnknownParameter, got %v", err)
	}

	after := v.params.List()
	if len(before) != len(after) {
		t.Fatalf("registry changed: before=%v after=%v", before, after)
	}
}

func isUnknownParam(err error) bool {
	pf, ok := err.(*ProgrammerFault)
	return ok && pf.Kind == "UnknownParameter"
}

// Invariant #3 — parameter idempotence: set(P,v); get(P) == v.
func TestParameterIdempotence(t *testing.T) {
	v, _ := newConnectedVariant(t, nil, 1)
	if err := v.ParamSet("/reader/read/asyncOnTime", ParamValue{Type: TypeInt, Int: 750}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := v.ParamGet("/reader/read/asyncOnTime")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Int != 750 {
		t.Fatalf("want 750, got %d", got.Int)
	}
}

// Invariant #5 — a failed capability probe permanently removes the
// parameter from list() and get().
func TestCapabilityProbeFinality(t *testing.T) {
	v, _ := newConnectedVariant(t, func(opcode byte, payload []byte) []byte {
		if protocol.Opcode(opcode) == protocol.OpGPIOGet {
			code := protocol.FaultCodeUnsupported
			return encodeResponseFrame(opcode, []byte{0x01, byte(code >> 8), byte(code)})
		}
		return encodeResponseFrame(opcode, []byte{0x00})
	}, 1)

	if _, err := v.ParamGet("/reader/gpio/pins"); err == nil {
		t.Fatalf("expected probe failure")
	}
	names := v.params.List()
	for _, n := range names {
		if n == "/reader/gpio/pins" {
			t.Fatalf("gpio/pins should have been removed after a failed probe")
		}
	}
	if _, err := v.ParamGet("/reader/gpio/pins"); !isUnknownParam(err) {
		t.Fatalf("want UnknownParameter on retry, got %v", err)
	}
}
