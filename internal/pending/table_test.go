package pending

import (
	"errors"
	"testing"
)

func TestCompleteResolvesExactlyOnce(t *testing.T) {
	tab := New()
	ch := tab.Insert(1)

	tab.Complete(1, []byte("hi"))

	res := <-ch
	if string(res.Payload) != "hi" {
		t.Errorf("payload = %q", res.Payload)
	}
	if tab.Len() != 0 {
		t.Errorf("entry not removed after Complete")
	}

	// Late duplicate Complete for an id that no longer exists is a silent
	// drop, not a second resolution (§4.2).
	tab.Complete(1, []byte("late"))
}

func TestAbortResolvesAndRemoves(t *testing.T) {
	tab := New()
	ch := tab.Insert(5)

	reason := errors.New("TimeOut!")
	if !tab.Abort(5, reason) {
		t.Fatal("Abort returned false for present id")
	}

	res := <-ch
	if !errors.Is(res.Err, reason) {
		t.Errorf("err = %v, want %v", res.Err, reason)
	}
	if tab.Abort(5, reason) {
		t.Error("second Abort on removed id should return false")
	}
}

func TestDrainAbortsAllOutstanding(t *testing.T) {
	tab := New()
	chs := make([]<-chan Result, 3)
	for i := range chs {
		chs[i] = tab.Insert(uint32(i + 1))
	}

	closeErr := errors.New("ConnectionClosed")
	tab.Drain(closeErr)

	for _, ch := range chs {
		res := <-ch
		if !errors.Is(res.Err, closeErr) {
			t.Errorf("err = %v, want %v", res.Err, closeErr)
		}
	}
	if tab.Len() != 0 {
		t.Error("table not empty after Drain")
	}
}

func TestCompleteUnknownIDIsNoop(t *testing.T) {
	tab := New()
	tab.Complete(999, []byte("nope")) // must not panic or block
}

func TestIDsSnapshot(t *testing.T) {
	tab := New()
	tab.Insert(1)
	tab.Insert(2)

	ids := tab.IDs()
	if len(ids) != 2 {
		t.Fatalf("IDs() = %v, want 2 entries", ids)
	}
}
