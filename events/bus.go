package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultObserverBuffer = 1024

// Observer receives published events. Implementations must not assume any
// particular goroutine: delivery happens on a dispatch goroutine owned by
// the bus, one per subscription, so a slow observer only delays itself.
type Observer interface {
	OnEvent(ctx context.Context, e Event)
}

// Bus fans events out to subscribed observers. Publish never blocks: each
// subscription owns a buffered channel and a dispatch goroutine, and events
// that arrive while a subscriber's buffer is full are dropped and counted.
// Delivery order is FIFO per subscriber, so events published by one
// verification pass are observed in emission order.
type Bus struct {
	logger *zap.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithObserverBuffer sets the per-subscription channel capacity.
func WithObserverBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBus creates a bus. A bus with no subscriptions is a cheap no-op;
// goroutines are spawned per subscription, not per bus.
func NewBus(logger *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger: logger,
		buffer: defaultObserverBuffer,
		subs:   make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers an observer under a name used in logs and returns a
// cancel function. Cancel drains events already buffered for the observer,
// then stops its dispatch goroutine; it is safe to call more than once.
func (b *Bus) Subscribe(name string, o Observer) (cancel func()) {
	s := &subscription{
		name:    name,
		obs:     o,
		ch:      make(chan Event, b.buffer),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  b.logger,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.flushed)
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	b.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.stop()
		})
	}
}

// Publish delivers e to every current subscriber without blocking. Events a
// full subscriber cannot accept are dropped for that subscriber only.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event bus subscriber buffer full, dropping event",
				zap.String("observer", s.name),
				zap.String("event_type", e.Type.String()),
			)
		}
	}
}

// Close drains every subscriber's buffered events and stops their dispatch
// goroutines. Publish calls after Close are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uint64]*subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

// Stats returns the number of events accepted by Publish and the number of
// per-subscriber deliveries dropped due to full buffers.
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

type subscription struct {
	name    string
	obs     Observer
	ch      chan Event
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

func (s *subscription) run() {
	defer close(s.flushed)
	for {
		select {
		case e := <-s.ch:
			s.deliver(e)
		case <-s.done:
			for {
				select {
				case e := <-s.ch:
					s.deliver(e)
				default:
					return
				}
			}
		}
	}
}

// deliver isolates observer panics so one bad observer cannot take down the
// publisher or its peers.
func (s *subscription) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event observer panicked",
				zap.String("observer", s.name),
				zap.String("event_type", e.Type.String()),
				zap.Any("panic", r),
			)
		}
	}()
	s.obs.OnEvent(context.Background(), e)
}

func (s *subscription) stop() {
	close(s.done)
	<-s.flushed
}
