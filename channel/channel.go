// Package channel models a bidirectional, ordered byte stream between two
// peer routers: connection state machine, heartbeat, and the pending-reply
// table a Send waits on. Concrete byte transports live in package
// transport; this package is transport-agnostic.
package channel

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/envelope"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
	"github.com/luweizheng/xoscar/future"
	"github.com/luweizheng/xoscar/internal/syncmap"
)

// State is one of the channel lifecycle states.
type State uint8

const (
	// Connecting is the initial state before a handshake completes.
	Connecting State = iota
	// Open is the steady state: envelopes may be sent and received.
	Open
	// Draining means a graceful close was requested; no new outbound
	// envelopes are accepted, but pending replies are awaited.
	Draining
	// Closed is terminal; all pending replies have been failed with PeerGone.
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Draining:
		return "Draining"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// DefaultHeartbeatInterval is H from the heartbeat protocol: each side
// emits a Control:Ping this often while idle.
const DefaultHeartbeatInterval = 10 * time.Second

// DefaultHeartbeatMisses is the number of consecutive missed heartbeats
// that promotes a channel to Closed.
const DefaultHeartbeatMisses = 2

// DefaultHighWaterEnvelopes and DefaultHighWaterBytes bound a channel's
// outbound queue before Send suspends the caller or fails with
// Backpressure (whichever limit is hit first).
const (
	DefaultHighWaterEnvelopes = 1024
	DefaultHighWaterBytes     = 64 * 1024 * 1024
)

// Waiter is handed to Send callers; ResolveReply/FailReply complete it
// exactly once through its Success/Failure methods.
type Waiter = future.Completable[*envelope.Envelope]

// Sink is the byte-stream abstraction a transport driver provides to a
// Channel: a framed, ordered, bidirectional pipe to one peer.
type Sink interface {
	// WriteFrame writes one already-framed envelope. Safe for a single
	// writer goroutine; Channel serializes calls internally.
	WriteFrame(frame []byte) error
	// ReadFrame blocks for the next frame. Returns io.EOF-wrapping errors
	// on clean close.
	ReadFrame() ([]byte, error)
	// Close tears down the underlying connection.
	Close() error
}

// Channel is the ordered, heartbeated connection to one peer pool.
type Channel struct {
	PeerAddress string

	mu    sync.RWMutex
	state State
	sink  Sink

	outbound chan []byte
	pending  *syncmap.SyncMap[uint64, Waiter]

	heartbeatInterval time.Duration
	heartbeatMisses   int
	missed            atomic.Int32

	highWaterEnvelopes int
	highWaterBytes     int
	outstandingBytes   atomic.Int64

	closeOnce sync.Once
	stopCh    chan struct{}
}

// New constructs a Channel in the Connecting state, wired to sink.
func New(peerAddress string, sink Sink) *Channel {
	return &Channel{
		PeerAddress:        peerAddress,
		state:              Connecting,
		sink:               sink,
		outbound:           make(chan []byte, DefaultHighWaterEnvelopes),
		pending:            syncmap.New[uint64, Waiter](),
		heartbeatInterval:  DefaultHeartbeatInterval,
		heartbeatMisses:    DefaultHeartbeatMisses,
		highWaterEnvelopes: DefaultHighWaterEnvelopes,
		highWaterBytes:     DefaultHighWaterBytes,
		stopCh:             make(chan struct{}),
	}
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// MarkOpen transitions Connecting -> Open after a successful handshake.
func (c *Channel) MarkOpen() {
	c.setState(Open)
}

// RegisterWaiter installs w under correlationID, to be resolved when a
// matching Reply/Error arrives, or failed on timeout, cancel, or
// PeerGone. Implements invariant I2: set before the envelope leaves the
// process, cleared exactly once.
func (c *Channel) RegisterWaiter(correlationID uint64, w Waiter) {
	c.pending.Set(correlationID, w)
}

// ResolveReply completes the waiter for correlationID with e, if one is
// registered. It is a no-op if the waiter was already cleared (by
// timeout, cancel, or a duplicate reply).
func (c *Channel) ResolveReply(correlationID uint64, e *envelope.Envelope) {
	if w, ok := c.pending.Get(correlationID); ok {
		c.pending.Delete(correlationID)
		w.Success(e)
	}
}

// FailReply completes the waiter for correlationID with err.
func (c *Channel) FailReply(correlationID uint64, err error) {
	if w, ok := c.pending.Get(correlationID); ok {
		c.pending.Delete(correlationID)
		w.Failure(err)
	}
}

// TakeWaiter removes and returns the waiter for correlationID without
// completing it, used when the caller wants to complete it itself (e.g.
// the router resolving a batch sub-call).
func (c *Channel) TakeWaiter(correlationID uint64) (Waiter, bool) {
	w, ok := c.pending.Get(correlationID)
	if ok {
		c.pending.Delete(correlationID)
	}
	return w, ok
}

// Enqueue submits a pre-framed envelope for delivery. While the outbound
// high-water mark is exceeded it blocks: with a zero deadline until space
// frees up or the channel closes, otherwise until deadline, after which it
// returns KindBackpressure.
func (c *Channel) Enqueue(frame []byte, deadline time.Time) error {
	if c.State() != Open {
		return xoscarerrors.NewPeerGone(c.PeerAddress)
	}

	if c.outstandingBytes.Load()+int64(len(frame)) > int64(c.highWaterBytes) {
		return c.enqueueBlocking(frame, deadline)
	}

	select {
	case c.outbound <- frame:
		c.outstandingBytes.Add(int64(len(frame)))
		return nil
	default:
		return c.enqueueBlocking(frame, deadline)
	}
}

// enqueueBlocking is reached once the high-water mark is exceeded. With
// no deadline it suspends the caller until space opens up or the channel
// closes; a deadline opts into failing fast with Backpressure instead.
func (c *Channel) enqueueBlocking(frame []byte, deadline time.Time) error {
	if deadline.IsZero() {
		select {
		case c.outbound <- frame:
			c.outstandingBytes.Add(int64(len(frame)))
			return nil
		case <-c.stopCh:
			return xoscarerrors.NewPeerGone(c.PeerAddress)
		}
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case c.outbound <- frame:
		c.outstandingBytes.Add(int64(len(frame)))
		return nil
	case <-timer.C:
		return xoscarerrors.NewBackpressure(c.PeerAddress)
	case <-c.stopCh:
		return xoscarerrors.NewPeerGone(c.PeerAddress)
	}
}

// Outbound exposes the outbound frame queue for the writer loop.
func (c *Channel) Outbound() <-chan []byte { return c.outbound }

// ReleaseBytes returns len(frame) worth of credit after a frame has been
// written to the sink, so Enqueue's backpressure accounting stays accurate.
func (c *Channel) ReleaseBytes(n int) {
	c.outstandingBytes.Add(-int64(n))
}

// Drain transitions Open -> Draining: no new outbound envelopes, but
// existing pending replies are still awaited until Close.
func (c *Channel) Drain() {
	c.setState(Draining)
}

// Close transitions the channel to Closed, failing every pending reply
// with PeerGone (I2: cleared exactly once) and releasing the sink.
func (c *Channel) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.setState(Closed)
		close(c.stopCh)

		c.pending.Range(func(_ uint64, w Waiter) {
			w.Failure(xoscarerrors.NewPeerGone(c.PeerAddress))
		})

		if c.sink != nil {
			closeErr = c.sink.Close()
		}
	})
	return closeErr
}

// RecordHeartbeat resets the missed-heartbeat counter on receipt of any
// inbound traffic, including a Control:Ping.
func (c *Channel) RecordHeartbeat() {
	c.missed.Store(0)
}

// MissHeartbeat increments the missed-heartbeat counter and reports
// whether the channel should now be Closed (heartbeatMisses reached).
func (c *Channel) MissHeartbeat() bool {
	return c.missed.Add(1) >= int32(c.heartbeatMisses)
}

// HeartbeatInterval returns H, the interval between Control:Ping emissions.
func (c *Channel) HeartbeatInterval() time.Duration {
	return c.heartbeatInterval
}

// SetHeartbeatInterval overrides H before the channel's heartbeat loop
// starts reading it. Must be called before the channel is returned to
// callers that start background loops against it (router.channelFor/
// onAccept do this immediately after New).
func (c *Channel) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		c.heartbeatInterval = d
	}
}

// SetHeartbeatMisses overrides the number of consecutive missed
// heartbeats that promotes the channel to Closed.
func (c *Channel) SetHeartbeatMisses(n int) {
	if n > 0 {
		c.heartbeatMisses = n
	}
}

// Done returns a channel closed once Close has run, so a caller running
// a per-channel background loop (e.g. the router's heartbeat ticker) can
// select on it instead of polling State.
func (c *Channel) Done() <-chan struct{} {
	return c.stopCh
}
