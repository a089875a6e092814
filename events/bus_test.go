package events

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var a, b Collector
	bus.Subscribe("a", &a)
	bus.Subscribe("b", &b)

	bus.Publish(New(ToolVerified, "pipeline", nil))
	bus.Publish(New(SignatureFailed, "signature_verifier", nil))

	if !a.Wait(2, time.Second) || !b.Wait(2, time.Second) {
		t.Fatal("observers did not receive both events")
	}
	if a.Count(ToolVerified) != 1 || b.Count(SignatureFailed) != 1 {
		t.Fatal("events not fanned out to all observers")
	}
}

func TestBusPreservesOrderPerObserver(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var c Collector
	bus.Subscribe("c", &c)

	const n = 200
	for i := 0; i < n; i++ {
		bus.Publish(New(ToolInvoked, "stack", map[string]any{"seq": i}))
	}
	if !c.Wait(n, 2*time.Second) {
		t.Fatalf("expected %d events, got %d", n, len(c.Events()))
	}
	for i, e := range c.Events() {
		if e.Detail["seq"] != i {
			t.Fatalf("event %d out of order: got seq %v", i, e.Detail["seq"])
		}
	}
}

type blockingObserver struct {
	entered  chan struct{}
	release  chan struct{}
	received []Event
}

func (o *blockingObserver) OnEvent(_ context.Context, e Event) {
	o.received = append(o.received, e)
	o.entered <- struct{}{}
	<-o.release
}

func TestBusDropsWhenObserverBufferFull(t *testing.T) {
	bus := NewBus(zap.NewNop(), WithObserverBuffer(1))

	blocker := &blockingObserver{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	bus.Subscribe("blocker", blocker)

	bus.Publish(New(ToolDiscovered, "server", nil))
	<-blocker.entered // first event is in OnEvent, buffer empty again

	bus.Publish(New(ToolDiscovered, "server", nil)) // fills the buffer
	bus.Publish(New(ToolDiscovered, "server", nil)) // dropped

	if _, dropped := bus.Stats(); dropped != 1 {
		t.Fatalf("expected 1 dropped delivery, got %d", dropped)
	}

	close(blocker.release)
	bus.Close()

	if len(blocker.received) != 2 {
		t.Fatalf("expected 2 delivered events, got %d", len(blocker.received))
	}
}

type panickyObserver struct{}

func (panickyObserver) OnEvent(context.Context, Event) {
	panic("observer bug")
}

func TestBusIsolatesObserverPanics(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var c Collector
	bus.Subscribe("panicky", panickyObserver{})
	bus.Subscribe("healthy", &c)

	bus.Publish(New(SecurityViolation, "pipeline", nil))
	bus.Publish(New(SecurityViolation, "pipeline", nil))

	if !c.Wait(2, time.Second) {
		t.Fatal("healthy observer starved by panicking peer")
	}
}

func TestBusCloseDrains(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var c Collector
	bus.Subscribe("c", &c)

	const n = 64
	for i := 0; i < n; i++ {
		bus.Publish(New(TokenValidated, "oauth", nil))
	}
	bus.Close()

	if got := len(c.Events()); got != n {
		t.Fatalf("close dropped buffered events: got %d of %d", got, n)
	}

	// Publishing after close is discarded, not a panic.
	bus.Publish(New(TokenValidated, "oauth", nil))
	if got := len(c.Events()); got != n {
		t.Fatal("publish after close reached observer")
	}
}

func TestBusSubscribeCancel(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var c Collector
	cancel := bus.Subscribe("c", &c)

	bus.Publish(New(ToolApproved, "approvals", nil))
	if !c.Wait(1, time.Second) {
		t.Fatal("event not delivered before cancel")
	}

	cancel()
	cancel() // second cancel is a no-op

	bus.Publish(New(ToolApproved, "approvals", nil))
	time.Sleep(10 * time.Millisecond)
	if got := len(c.Events()); got != 1 {
		t.Fatalf("cancelled observer still receiving: got %d events", got)
	}
}
