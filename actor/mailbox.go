package actor

import (
	gods "github.com/Workiva/go-datastructures/queue"
)

// Mailbox is an actor's message queue. The kernel's per-actor goroutine is
// the sole consumer (MPSC); any number of sender goroutines may Enqueue
// concurrently. Ordering is FIFO, matching invariant I1's "never overlap,
// always in arrival order" per-actor contract.
type Mailbox interface {
	// Enqueue pushes a message. A bounded implementation blocks the caller
	// while full and returns an error only once the mailbox is disposed.
	Enqueue(msg *ReceiveContext) error
	// Dequeue pops the next message, or returns nil if the mailbox is
	// currently empty.
	Dequeue() (msg *ReceiveContext)
	// IsEmpty is a best-effort, concurrency-safe snapshot check.
	IsEmpty() bool
	// Len is a best-effort snapshot of the current queue depth.
	Len() int64
	// Dispose releases resources and unblocks any internal waiters. The
	// mailbox must not be used after Dispose returns.
	Dispose()
}

// boundedMailbox is a bounded MPSC mailbox backed by a ring buffer.
// Enqueue blocks the producer while the buffer is full until space frees
// up or the mailbox is disposed, at which point it returns an error. This
// mirrors the wire path's own high-water backpressure: a slow actor's
// mailbox applies back-pressure to its senders instead of growing without
// bound.
type boundedMailbox struct {
	underlying *gods.RingBuffer
}

var _ Mailbox = (*boundedMailbox)(nil)

// NewMailbox creates a bounded mailbox with the given capacity. Capacity
// must be a positive integer; the kernel's default is the high-water
// envelope count used by the channel package, so mailbox and wire
// backpressure trip around the same depth.
func NewMailbox(capacity int) Mailbox {
	return &boundedMailbox{underlying: gods.NewRingBuffer(uint64(capacity))}
}

func (m *boundedMailbox) Enqueue(msg *ReceiveContext) error {
	return m.underlying.Put(msg)
}

func (m *boundedMailbox) Dequeue() *ReceiveContext {
	if m.underlying.Len() == 0 {
		return nil
	}
	item, err := m.underlying.Get()
	if err != nil {
		return nil
	}
	if v, ok := item.(*ReceiveContext); ok {
		return v
	}
	return nil
}

func (m *boundedMailbox) IsEmpty() bool {
	return m.underlying.Len() == 0
}

func (m *boundedMailbox) Len() int64 {
	return int64(m.underlying.Len())
}

func (m *boundedMailbox) Dispose() {
	m.underlying.Dispose()
}
