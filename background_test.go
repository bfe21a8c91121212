package reader

import (
	"sync"
	"testing"
	"time"

	"github.com/mercuryrf/reader/internal/protocol"
)

// S3 — polled background read: three cycles of one tag each, stop after
// ~250ms. Exactly three tag events delivered, no exceptions, both queues
// drained by the time stopReading returns.
func TestBackgroundPolledDeliversEachCycle(t *testing.T) {
	var mu sync.Mutex
	cycle := 0

	mt := newMockTransport(func(opcode byte, payload []byte) []byte {
		if protocol.Opcode(opcode) != protocol.OpReadTagIDMultiple {
			return encodeResponseFrame(opcode, []byte{0x00})
		}
		mu.Lock()
		cycle++
		n := cycle
		mu.Unlock()
		if n > 3 {
			// Only the first three cycles carry a tag; later ones report none.
			return encodeResponseFrame(opcode, []byte{0x00, 0x00})
		}
		body := []byte{0x00, 0x01}
		body = append(body, tagRecordBytes([]byte{byte(n)}, 1, -40, 1, nil)...)
		return encodeResponseFrame(opcode, body)
	})

	codec := newCommandCodec(mt)
	hub := newListenerHub()
	var cmdLock sync.Mutex
	engine := newBackgroundEngine(codec, hub, &cmdLock)

	var tagsMu sync.Mutex
	var tags []TagReadData
	var excMu sync.Mutex
	var excCount int
	hub.read.add(func(tr TagReadData) {
		tagsMu.Lock()
		tags = append(tags, tr)
		tagsMu.Unlock()
	})
	hub.exception.add(func(error) {
		excMu.Lock()
		excCount++
		excMu.Unlock()
	})

	if err := engine.start(ModePolled, 10*time.Millisecond, 60*time.Millisecond, 1, ProtocolGen2); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	engine.stopReading()

	tagsMu.Lock()
	got := len(tags)
	tagsMu.Unlock()
	if got != 3 {
		t.Fatalf("want exactly 3 delivered tag events (one per tag-bearing cycle), got %d", got)
	}
	excMu.Lock()
	if excCount != 0 {
		t.Fatalf("want no exceptions, got %d", excCount)
	}
	excMu.Unlock()

	// Invariant #7: once stopReading has returned, the queues are empty and
	// no further callback can fire from this engine's own goroutines.
	select {
	case <-engine.tagQueue:
		t.Fatalf("tag queue not drained after stopReading returned")
	default:
	}
	select {
	case <-engine.excQueue:
		t.Fatalf("exception queue not drained after stopReading returned")
	default:
	}
	if engine.isRunning() {
		t.Fatalf("engine should be idle after stopReading returns")
	}
}

// S6 — continuous-mode buffer-full recovery: the device reports
// TAG_ID_BUFFER_FULL (0x0400) mid-stream. The engine must re-arm without
// exiting, and a tag report queued after the fault must still reach
// listeners.
func TestBackgroundContinuousRecoversFromBufferFull(t *testing.T) {
	mt := newMockTransport(func(opcode byte, payload []byte) []byte {
		// START_CONTINUOUS_READ is write-only; STOP_CONTINUOUS_READ waits
		// for a reply, but the engine ignores its outcome, so leaving it
		// unanswered only delays shutdown until the command timeout.
		return nil
	})

	// Pre-queue the stream: a buffer-full fault frame, then one tag report.
	// Both are consumed in order by readStreamedReport regardless of which
	// opcode arms the stream, so the exact tag opcode used here doesn't
	// matter.
	faultCode := uint16(0x0400)
	mt.enqueueFrame(byte(protocol.OpGetTagBuffer), []byte{0x01, byte(faultCode >> 8), byte(faultCode)})
	tagBody := []byte{0x00, 0x01}
	tagBody = append(tagBody, tagRecordBytes([]byte{0xAB}, 1, -30, 1, nil)...)
	mt.enqueueFrame(byte(protocol.OpGetTagBuffer), tagBody)

	codec := newCommandCodec(mt)
	hub := newListenerHub()
	var cmdLock sync.Mutex
	engine := newBackgroundEngine(codec, hub, &cmdLock)

	var tagsMu sync.Mutex
	var tags []TagReadData
	var excMu sync.Mutex
	var excs []error
	hub.read.add(func(tr TagReadData) {
		tagsMu.Lock()
		tags = append(tags, tr)
		tagsMu.Unlock()
	})
	hub.exception.add(func(err error) {
		excMu.Lock()
		excs = append(excs, err)
		excMu.Unlock()
	})

	if err := engine.start(ModeContinuous, 100*time.Millisecond, 0, 1, ProtocolGen2); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Give the reader goroutine time to consume both queued frames: the
	// fault (which triggers a re-arm) and the tag report that follows it.
	time.Sleep(150 * time.Millisecond)
	engine.stopReading()

	tagsMu.Lock()
	if len(tags) != 1 || string(tags[0].Tag.EPC) != string([]byte{0xAB}) {
		t.Fatalf("want the post-recovery tag delivered, got %+v", tags)
	}
	tagsMu.Unlock()

	excMu.Lock()
	defer excMu.Unlock()
	found := false
	for _, e := range excs {
		if rce, ok := e.(*ReaderCodeException); ok && rce.Code == 0x0400 {
			found = true
		}
	}
	if !found {
		t.Fatalf("want the buffer-full fault surfaced to the exception listener, got %v", excs)
	}
}

// Invariant #7 (direct): stopReading never hangs when the reader goroutine
// has already exited on its own (a fatal comm fault), and no further
// listener callback fires afterward.
func TestBackgroundStopAfterFatalFaultDoesNotHang(t *testing.T) {
	mt := newMockTransport(func(opcode byte, payload []byte) []byte {
		return nil
	})
	mt.Close() // every subsequent Read returns ErrClosed -> isFatalCommFault

	codec := newCommandCodec(mt)
	hub := newListenerHub()
	var cmdLock sync.Mutex
	engine := newBackgroundEngine(codec, hub, &cmdLock)

	if err := engine.start(ModePolled, 10*time.Millisecond, 10*time.Millisecond, 1, ProtocolGen2); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		engine.stopReading()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stopReading hung after the reader goroutine exited on its own")
	}
	if engine.isRunning() {
		t.Fatalf("engine should report idle after a fatal exit")
	}
}
