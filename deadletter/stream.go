package deadletter

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/envelope"
	"github.com/luweizheng/xoscar/log"
)

// DefaultCapacity bounds how many unread dead letters a single slow
// subscriber may accumulate before new ones are dropped for it.
const DefaultCapacity = 1_000

// DeadLetter wraps an envelope the router or kernel could not deliver,
// together with why and when, per the data model's dead-letter record.
type DeadLetter struct {
	Envelope   *envelope.Envelope
	Reason     string
	ObservedAt time.Time
}

// Stream is the process-wide dead-letter publication point: the router and
// actor kernel call Publish instead of dropping an undeliverable envelope
// silently, and any interested component calls Subscribe to observe them.
type Stream struct {
	queue    *queue
	logger   log.Logger
	started  atomic.Bool
	capacity int
	sem      sync.Mutex
}

// NewStream constructs a Stream. Call Start before publishing or
// subscribing.
func NewStream(opts ...Option) *Stream {
	s := &Stream{
		logger:   log.DiscardLogger,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt.Apply(s)
	}
	s.started.Store(false)
	return s
}

// Start allocates the underlying queue. Idempotent.
func (s *Stream) Start() {
	s.sem.Lock()
	defer s.sem.Unlock()
	if s.started.Load() {
		return
	}
	s.queue = newQueue(s.capacity)
	s.started.Store(true)
	s.logger.Info("dead-letter stream started")
}

// Stop closes every outstanding subscription.
func (s *Stream) Stop() {
	s.sem.Lock()
	defer s.sem.Unlock()
	if !s.started.Load() {
		return
	}
	s.queue.Shutdown()
	s.started.Store(false)
}

// Publish records an envelope that could not be delivered for reason. A
// no-op before Start or after Stop, so callers never need a nil check.
func (s *Stream) Publish(e *envelope.Envelope, reason string) {
	if !s.started.Load() {
		return
	}
	s.logger.Warnf("dead letter: %s -> %s: %s", e.From, e.To, reason)
	s.queue.Publish(&DeadLetter{Envelope: e, Reason: reason, ObservedAt: time.Now()})
}

// Subscribe returns a channel of dead letters published from now on. The
// caller must Unsubscribe when done to release the channel.
func (s *Stream) Subscribe() chan *DeadLetter {
	return s.queue.Subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (s *Stream) Unsubscribe(ch chan *DeadLetter) {
	s.queue.Unsubscribe(ch)
}
