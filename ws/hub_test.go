package ws

import (
	"errors"
	"testing"

	"github.com/BigOnwer/Gusen-App/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSender struct {
	events []Event
	fail   bool
}

func (f *fakeSender) Send(ev Event) error {
	if f.fail {
		return errors.New("send fail")
	}
	f.events = append(f.events, ev)
	return nil
}

func TestHubRegisterAndBroadcast(t *testing.T) {
	hub := NewHub(nil)

	a1 := &fakeSender{}
	a2 := &fakeSender{}
	b := &fakeSender{}

	idA1 := hub.Register(1, a1)
	_ = hub.Register(1, a2) // second tab for the same user
	_ = hub.Register(2, b)

	hub.BroadcastToUsers([]uint{1}, Event{Type: EventMessageNew, Data: "m1"})

	if len(a1.events) != 1 || len(a2.events) != 1 {
		t.Fatalf("both of user 1's connections should receive the event, got %d and %d", len(a1.events), len(a2.events))
	}
	if len(b.events) != 0 {
		t.Fatal("user 2 should not receive a broadcast addressed to user 1")
	}

	hub.Unregister(1, idA1)
	hub.BroadcastToUsers([]uint{1}, Event{Type: EventMessageNew, Data: "m2"})

	if len(a1.events) != 1 {
		t.Fatal("unregistered connection should not receive further events")
	}
	if len(a2.events) != 2 {
		t.Fatalf("remaining connection should have 2 events, got %d", len(a2.events))
	}
}

func TestHubBroadcastToMultipleUsers(t *testing.T) {
	hub := NewHub(nil)

	a := &fakeSender{}
	b := &fakeSender{}
	hub.Register(1, a)
	hub.Register(2, b)

	hub.BroadcastToUsers([]uint{1, 2}, Event{Type: EventBadge, Data: int64(3)})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("both users should receive the event, got %d and %d", len(a.events), len(b.events))
	}
}

func TestHubDropsFailingConnection(t *testing.T) {
	hub := NewHub(nil)

	ok := &fakeSender{}
	bad := &fakeSender{fail: true}
	hub.Register(3, ok)
	hub.Register(3, bad)

	hub.BroadcastToUsers([]uint{3}, Event{Type: EventMessageNew, Data: "x"})
	hub.BroadcastToUsers([]uint{3}, Event{Type: EventMessageNew, Data: "y"})

	if len(ok.events) != 2 {
		t.Fatalf("healthy connection should receive both events, got %d", len(ok.events))
	}

	bad.fail = false
	hub.BroadcastToUsers([]uint{3}, Event{Type: EventMessageNew, Data: "z"})
	if len(bad.events) != 0 {
		t.Fatal("failed connection should have been dropped after the first broadcast")
	}
}

func TestHubBroadcastCountsDeliveries(t *testing.T) {
	hub := NewHub(nil)

	ok1 := &fakeSender{}
	ok2 := &fakeSender{}
	bad := &fakeSender{fail: true}
	hub.Register(1, ok1)
	hub.Register(1, ok2) // two connections for one user
	hub.Register(2, bad)

	const eventType = "hub.delivery.count"
	counter := metrics.WSEvents.WithLabelValues(eventType)
	before := testutil.ToFloat64(counter)

	// Three targeted users; two connections take the event, one fails,
	// user 3 is offline.
	hub.BroadcastToUsers([]uint{1, 2, 3}, Event{Type: eventType, Data: "x"})

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("expected 2 delivered events counted, got %v", got)
	}
}

func TestHubBroadcastToOfflineUserIsNoop(t *testing.T) {
	hub := NewHub(nil)
	// no panic, no delivery
	hub.BroadcastToUsers([]uint{99}, Event{Type: EventMessageNew, Data: "x"})
}
