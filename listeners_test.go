package reader

import (
	"sync"
	"testing"
)

// Invariant #6 — listeners observe tags in the order they were reported,
// with no duplicates, even with multiple listeners registered.
func TestListenerOrderingNoDuplicates(t *testing.T) {
	hub := newListenerHub()
	var mu sync.Mutex
	var gotA, gotB []string

	hub.read.add(func(tr TagReadData) {
		mu.Lock()
		gotA = append(gotA, string(tr.Tag.EPC))
		mu.Unlock()
	})
	hub.read.add(func(tr TagReadData) {
		mu.Lock()
		gotB = append(gotB, string(tr.Tag.EPC))
		mu.Unlock()
	})

	for _, epc := range []string{"t1", "t2", "t3"} {
		hub.notifyRead(TagReadData{Tag: TagData{EPC: []byte(epc)}})
	}

	want := []string{"t1", "t2", "t3"}
	mu.Lock()
	defer mu.Unlock()
	if !equalStrings(gotA, want) || !equalStrings(gotB, want) {
		t.Fatalf("got A=%v B=%v, want %v", gotA, gotB, want)
	}
}

// A listener that panics must not prevent later listeners from being
// notified in the same pass.
func TestListenerPanicDoesNotBlockOthers(t *testing.T) {
	hub := newListenerHub()
	var calledSecond bool

	hub.read.add(func(TagReadData) { panic("boom") })
	hub.read.add(func(TagReadData) { calledSecond = true })

	hub.notifyRead(TagReadData{})
	if !calledSecond {
		t.Fatalf("second listener should still have been called")
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
