package driftsync

import (
	"testing"
)

func TestSubscriberHub_NotifyInOrder(t *testing.T) {
	h := newSubscriberHub()

	var order []int
	h.Subscribe(func(SyncResult) { order = append(order, 1) })
	h.Subscribe(func(SyncResult) { order = append(order, 2) })

	h.Notify(SyncResult{})
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected listeners in registration order, got %v", order)
	}
}

func TestSubscriberHub_Unsubscribe(t *testing.T) {
	h := newSubscriberHub()

	var calls int
	id := h.Subscribe(func(SyncResult) { calls++ })
	h.Subscribe(func(SyncResult) {})

	h.Unsubscribe(id)
	h.Notify(SyncResult{})

	if calls != 0 {
		t.Errorf("expected unsubscribed listener to stay silent, got %d calls", calls)
	}
	if h.Count() != 1 {
		t.Errorf("expected 1 remaining listener, got %d", h.Count())
	}
}

func TestSubscriberHub_PanickingListenerIsIsolated(t *testing.T) {
	h := newSubscriberHub()

	var called bool
	h.Subscribe(func(SyncResult) { panic("listener bug") })
	h.Subscribe(func(SyncResult) { called = true })

	h.Notify(SyncResult{Uploaded: 1})
	if !called {
		t.Error("expected the second listener to run despite the panic")
	}
}

func TestSubscriberHub_ResultPassedThrough(t *testing.T) {
	h := newSubscriberHub()

	var got SyncResult
	h.Subscribe(func(r SyncResult) { got = r })

	h.Notify(SyncResult{Uploaded: 3, Downloaded: 2, ConflictsResolved: 1})
	if got.Uploaded != 3 || got.Downloaded != 2 || got.ConflictsResolved != 1 {
		t.Errorf("unexpected result delivered: %+v", got)
	}
}

func TestSubscriberHub_Clear(t *testing.T) {
	h := newSubscriberHub()
	h.Subscribe(func(SyncResult) {})
	h.Subscribe(func(SyncResult) {})

	h.Clear()
	if h.Count() != 0 {
		t.Errorf("expected no listeners after clear, got %d", h.Count())
	}
}
