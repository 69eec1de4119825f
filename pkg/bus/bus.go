package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codeready-toolchain/jobhub/pkg/metrics"
)

// DefaultQueueCapacity is the per-subscriber queue size.
const DefaultQueueCapacity = 100

// Bus fans events out to any number of subscribers. Publish never blocks:
// when a subscriber's queue is full its oldest event is dropped to make
// room. Each subscriber that keeps up sees events in publication order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	queueCap int
	metrics  *metrics.Metrics
}

// Subscription is one receiver's view of the bus. Events() yields events
// until Close, which detaches the subscription and closes the channel
// (buffered events remain readable).
type Subscription struct {
	id      uint64
	ch      chan Event
	bus     *Bus
	once    sync.Once
	dropped atomic.Uint64
}

// New creates a bus with the given per-subscriber queue capacity.
func New(queueCap int, m *metrics.Metrics) *Bus {
	if queueCap <= 0 {
		queueCap = DefaultQueueCapacity
	}
	return &Bus{
		subs:     make(map[uint64]*Subscription),
		queueCap: queueCap,
		metrics:  m,
	}
}

// Subscribe registers a new subscriber with its own queue.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{
		id:  b.nextID,
		ch:  make(chan Event, b.queueCap),
		bus: b,
	}
	b.subs[s.id] = s
	return s
}

// Publish delivers the event to every current subscriber. A full queue
// drops that subscriber's oldest event; the publisher is never blocked.
//
// Sends happen under the read lock on purpose: they are non-blocking, and
// holding the lock is what makes Close's channel close safe against
// concurrent sends.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		select {
		case s.ch <- event:
			continue
		default:
		}

		// Queue full: drop this subscriber's oldest event to make room,
		// then retry once. The retry can still lose to a concurrent
		// publisher, in which case the new event is the one lost.
		lost := false
		select {
		case <-s.ch:
			lost = true
		default:
		}
		select {
		case s.ch <- event:
		default:
			lost = true
		}
		if !lost {
			continue
		}

		if s.dropped.Add(1) == 1 {
			slog.Warn("Bus subscriber lagging, dropping oldest events", "subscription_id", s.id)
		}
		if b.metrics != nil {
			b.metrics.EventDropped()
		}
	}
}

// SubscriberCount returns the number of attached subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Events returns the receive channel. It is closed after Close; events
// buffered before the close are still delivered.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were dropped for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from the bus. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

// ChunkWriter adapts a job's output stream to the bus: every Write
// publishes one TaskIoChunk event carrying the bytes as a string. Writes
// never fail and never block, so a slow subscriber cannot stall the
// producing child process.
type ChunkWriter struct {
	bus     *Bus
	id      string
	ioType  IoType
	metrics *metrics.Metrics
}

// NewChunkWriter creates a writer publishing chunks for the given job id.
func (b *Bus) NewChunkWriter(id string, ioType IoType) *ChunkWriter {
	return &ChunkWriter{
		bus:     b,
		id:      id,
		ioType:  ioType,
		metrics: b.metrics,
	}
}

// Write publishes p as a single chunk event.
func (w *ChunkWriter) Write(p []byte) (int, error) {
	w.bus.Publish(NewChunkEvent(w.id, string(p), w.ioType))
	if w.metrics != nil {
		w.metrics.ChunkPublished(string(w.ioType))
	}
	return len(p), nil
}
