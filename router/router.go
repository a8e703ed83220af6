// Package router implements the per-process dispatch singleton:
// it owns the table of outbound channels, accepts envelopes from local
// senders, dispatches inbound envelopes to the actor kernel or to the
// reply-waiter registry, and owns reconnection.
package router

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/flowchartsman/retry"

	"github.com/luweizheng/xoscar/channel"
	"github.com/luweizheng/xoscar/envelope"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
	"github.com/luweizheng/xoscar/internal/syncmap"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/transport"
)

// Deliverer is the actor kernel's inbound entry point. The router hands
// every envelope to Deliver except Control frames and Reply/Error
// envelopes with a nonzero correlation_id, which complete the channel's
// pending waiter instead.
type Deliverer interface {
	Deliver(e *envelope.Envelope)
}

// ReconnectPolicy configures the router's reconnection backoff: base
// 100ms, cap 10s, full jitter, as specified.
type ReconnectPolicy struct {
	Base     time.Duration
	Cap      time.Duration
	Deadline time.Duration // 0 means no deadline
}

// DefaultReconnectPolicy matches the specified defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Base: 100 * time.Millisecond, Cap: 10 * time.Second, Deadline: 0}
}

// Router is the process-wide dispatch singleton. It is created once at
// pool startup and torn down at shutdown; actor handlers reach it only
// through Send/Tell, never through ambient statics.
type Router struct {
	SelfAddress string

	channels  *syncmap.SyncMap[string, *channel.Channel]
	drivers   *transport.Registry
	deliverer Deliverer
	logger    log.Logger

	maxEnvelopeBytes  int
	reconnect         ReconnectPolicy
	heartbeatInterval time.Duration
	heartbeatMisses   int

	nextEnvelopeID uint64
	idMu           sync.Mutex

	staleRoutes *syncmap.SyncMap[string, struct{}]
}

// New constructs a Router bound to selfAddress, using drivers for
// outbound connects and deliverer for inbound non-reply envelopes.
func New(selfAddress string, drivers *transport.Registry, deliverer Deliverer, logger log.Logger) *Router {
	return &Router{
		SelfAddress:      selfAddress,
		channels:         syncmap.New[string, *channel.Channel](),
		drivers:          drivers,
		deliverer:        deliverer,
		logger:           logger,
		maxEnvelopeBytes: envelope.MaxEnvelopeBytes,
		reconnect:        DefaultReconnectPolicy(),
		staleRoutes:      syncmap.New[string, struct{}](),
	}
}

// SetHeartbeatConfig overrides H and the missed-heartbeat threshold every
// channel this router creates afterward uses, matching the pool process's
// own --heartbeat-interval/--heartbeat-misses flags (spec.md §6) so one
// pair of knobs governs both the wire-level Control:Ping cadence and the
// pool supervisor's own sub-pool probe.
func (r *Router) SetHeartbeatConfig(interval time.Duration, misses int) {
	r.heartbeatInterval = interval
	r.heartbeatMisses = misses
}

// SetDeliverer installs the inbound handler after construction, for the
// common case where the actor kernel is built after its router (the kernel
// needs a router to send through; the router needs a deliverer to hand
// inbound envelopes to). Safe to call exactly once, before Send or Listen
// are used.
func (r *Router) SetDeliverer(d Deliverer) {
	r.deliverer = d
}

// Listen starts accepting inbound connections on SelfAddress so that
// peer routers dialing it (directly, or at any of its /subpool/<index>
// suffixed addresses, since the driver normalizes those to the same base
// before matching) get a Channel back. It must be called at most once,
// and only once a Deliverer is installed.
func (r *Router) Listen() error {
	driver, err := r.drivers.Lookup(r.SelfAddress)
	if err != nil {
		return xoscarerrors.NewProtocolError(err)
	}
	return driver.Listen(r.SelfAddress, r.onAccept)
}

// onAccept wires an inbound connection into the same channel machinery
// Send uses for outbound ones, so reads and heartbeats are symmetric
// regardless of which side dialed. The driver-supplied peerAddress is
// ignored in favor of the address the peer announces in its handshake
// frame (see sendHello); a connection that never sends one is dropped.
func (r *Router) onAccept(_ string, sink channel.Sink) {
	frame, err := sink.ReadFrame()
	if err != nil {
		r.logger.Warnf("router: accept: no handshake frame: %v", err)
		_ = sink.Close()
		return
	}
	hello, _, err := envelope.Decode(frame)
	if err != nil || hello.Kind != envelope.KindControl || hello.From.Endpoint == "" {
		r.logger.Warnf("router: accept: malformed handshake: %v", err)
		_ = sink.Close()
		return
	}

	peerAddress := hello.From.Endpoint
	ch := channel.New(peerAddress, sink)
	r.applyHeartbeatConfig(ch)
	ch.MarkOpen()
	r.channels.Set(peerAddress, ch)
	r.staleRoutes.Delete(peerAddress)

	go r.readLoop(ch, sink)
	go r.writeLoop(ch, sink)
	go r.heartbeatLoop(ch)
}

// SelfLogger returns the logger the router was constructed with, reused
// by components (e.g. the pool supervisor) that build further
// router-adjacent objects and want consistent log output without
// threading a second logger through their own constructors.
func (r *Router) SelfLogger() log.Logger {
	return r.logger
}

// NextEnvelopeID allocates a process-unique, monotonically increasing
// envelope id (invariant I3: correlation uniqueness is built on this).
func (r *Router) NextEnvelopeID() uint64 {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	r.nextEnvelopeID++
	return r.nextEnvelopeID
}

// channelFor returns the existing channel to address, or dials a new one
// and registers it. Dialing blocks the caller only for the first send to
// a given destination; subsequent sends reuse the cached channel.
func (r *Router) channelFor(address string) (*channel.Channel, error) {
	if ch, ok := r.channels.Get(address); ok {
		if ch.State() == channel.Open {
			return ch, nil
		}
		if ch.State() == channel.Connecting {
			return ch, nil
		}
	}

	driver, err := r.drivers.Lookup(address)
	if err != nil {
		return nil, xoscarerrors.NewProtocolError(err)
	}

	sink, err := driver.Connect(address)
	if err != nil {
		r.staleRoutes.Set(address, struct{}{})
		return nil, xoscarerrors.NewPeerGone(address)
	}

	if err := r.sendHello(sink); err != nil {
		_ = sink.Close()
		r.staleRoutes.Set(address, struct{}{})
		return nil, xoscarerrors.NewPeerGone(address)
	}

	ch := channel.New(address, sink)
	r.applyHeartbeatConfig(ch)
	ch.MarkOpen()
	r.channels.Set(address, ch)
	r.staleRoutes.Delete(address)

	go r.readLoop(ch, sink)
	go r.writeLoop(ch, sink)
	go r.heartbeatLoop(ch)

	return ch, nil
}

// applyHeartbeatConfig pushes this router's configured H/miss-threshold
// onto ch, if SetHeartbeatConfig was ever called; otherwise ch keeps
// channel's own defaults.
func (r *Router) applyHeartbeatConfig(ch *channel.Channel) {
	ch.SetHeartbeatInterval(r.heartbeatInterval)
	ch.SetHeartbeatMisses(r.heartbeatMisses)
}

// sendHello writes a KindControl envelope carrying SelfAddress as the
// very first frame on a newly dialed sink, so the accepting router can
// learn the dialer's real address instead of whatever placeholder its
// driver's Accept/Connect handed back (a TCP accept sees an ephemeral
// client port, not the peer's listen address; inproc's Connect only ever
// knows the address it was asked to dial). Listen's accept handler reads
// this frame before registering the inbound Channel, so a reply sent back
// to that learned address reuses this same connection instead of opening
// a second one the original Send's waiter was never registered on.
func (r *Router) sendHello(sink channel.Sink) error {
	hello := &envelope.Envelope{
		EnvelopeID: r.NextEnvelopeID(),
		Kind:       envelope.KindControl,
		From:       envelope.Address{Endpoint: r.SelfAddress},
	}
	frame, err := envelope.Encode(hello, r.maxEnvelopeBytes)
	if err != nil {
		return err
	}
	return sink.WriteFrame(frame)
}

// Send frames e, routes it to e.To's endpoint, and returns once the
// envelope has been handed to the outbound queue. The caller is
// responsible for registering a reply waiter beforehand when e.Kind ==
// KindSend (the actor kernel does this via RegisterWaiter before calling
// Send, satisfying invariant I2).
func (r *Router) Send(e *envelope.Envelope, deadline time.Time) error {
	if len(e.Payload) > r.maxEnvelopeBytes {
		return xoscarerrors.NewPayloadTooLarge(len(e.Payload), r.maxEnvelopeBytes)
	}

	frame, err := envelope.Encode(e, r.maxEnvelopeBytes)
	if err != nil {
		return xoscarerrors.NewProtocolError(err)
	}

	ch, err := r.channelFor(e.To.Endpoint)
	if err != nil {
		return err
	}

	if err := ch.Enqueue(frame, deadline); err != nil {
		return err
	}
	return nil
}

// RegisterWaiter installs w on the channel to address under
// correlationID, used by Send-style callers before handing the envelope
// to Send.
func (r *Router) RegisterWaiter(address string, correlationID uint64, w channel.Waiter) error {
	ch, err := r.channelFor(address)
	if err != nil {
		return err
	}
	ch.RegisterWaiter(correlationID, w)
	return nil
}

func (r *Router) writeLoop(ch *channel.Channel, sink channel.Sink) {
	for frame := range ch.Outbound() {
		if err := sink.WriteFrame(frame); err != nil {
			r.failChannel(ch, err)
			return
		}
		ch.ReleaseBytes(len(frame))
	}
}

func (r *Router) readLoop(ch *channel.Channel, sink channel.Sink) {
	for {
		frame, err := sink.ReadFrame()
		if err != nil {
			r.failChannel(ch, err)
			return
		}

		e, _, err := envelope.Decode(frame)
		if err != nil {
			r.logger.Warnf("router: dropping malformed frame from %s: %v", ch.PeerAddress, err)
			continue
		}

		ch.RecordHeartbeat()
		r.dispatchInbound(ch, e)
	}
}

// dispatchInbound implements the inbound half of dispatch: Reply/Error with a
// known correlation_id go to the waiter; a Control frame is always a Ping
// (the only other wire use of KindControl, the handshake, is consumed
// directly off the sink in onAccept/channelFor before a channel ever
// reaches readLoop) and is fully handled by the RecordHeartbeat call
// readLoop already made; everything else goes to the actor kernel's
// Deliver.
func (r *Router) dispatchInbound(ch *channel.Channel, e *envelope.Envelope) {
	if (e.Kind == envelope.KindReply || e.Kind == envelope.KindError) && e.CorrelationID != 0 {
		if e.Kind == envelope.KindError {
			ch.FailReply(e.CorrelationID, xoscarerrors.DecodeWire(e.Payload))
			return
		}
		ch.ResolveReply(e.CorrelationID, e)
		return
	}
	if e.Kind == envelope.KindControl {
		return
	}
	r.deliverer.Deliver(e)
}

// heartbeatLoop emits a Control:Ping on ch every HeartbeatInterval while
// idle, and closes ch once heartbeatMisses consecutive ticks pass with no
// inbound traffic at all (readLoop's RecordHeartbeat call resets the
// counter on receipt of anything, including the peer's own Ping).
func (r *Router) heartbeatLoop(ch *channel.Channel) {
	interval := ch.HeartbeatInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ch.Done():
			return
		case <-ticker.C:
			if ch.State() != channel.Open {
				return
			}
			if err := r.sendPing(ch); err != nil {
				r.failChannel(ch, err)
				return
			}
			if ch.MissHeartbeat() {
				r.failChannel(ch, xoscarerrors.NewPeerGone(ch.PeerAddress))
				return
			}
		}
	}
}

// sendPing frames and enqueues one Control:Ping envelope on ch, returning
// only a hard failure (the channel itself is gone). A backpressured
// outbound queue just drops this tick's ping instead of killing the
// channel — a queue busy enough to be backpressured is, by definition,
// not idle, and the next tick tries again.
func (r *Router) sendPing(ch *channel.Channel) error {
	ping := &envelope.Envelope{
		EnvelopeID: r.NextEnvelopeID(),
		Kind:       envelope.KindControl,
		From:       envelope.Address{Endpoint: r.SelfAddress},
		To:         envelope.Address{Endpoint: ch.PeerAddress},
	}
	frame, err := envelope.Encode(ping, r.maxEnvelopeBytes)
	if err != nil {
		return xoscarerrors.NewProtocolError(err)
	}
	if err := ch.Enqueue(frame, time.Time{}); err != nil {
		if xoscarerrors.KindOf(err) == xoscarerrors.KindPeerGone {
			return err
		}
		return nil
	}
	return nil
}

// failChannel transitions ch to Closed, failing its pending replies with
// PeerGone, drops it from the channel table and records the peer in
// staleRoutes. The next Send to that peer dials a new channel once through
// channelFor, without backoff; only Reconnect retries with backoff, and
// nothing in the router calls it.
func (r *Router) failChannel(ch *channel.Channel, cause error) {
	r.logger.Warnf("router: channel to %s failed: %v", ch.PeerAddress, cause)
	_ = ch.Close()
	r.channels.Delete(ch.PeerAddress)
	r.staleRoutes.Set(ch.PeerAddress, struct{}{})
}

// Reconnect retries connecting to address using the configured
// exponential-backoff-with-full-jitter policy, stopping when ctx is
// canceled or the policy's deadline elapses.
func (r *Router) Reconnect(ctx context.Context, address string) (*channel.Channel, error) {
	var deadlineCtx context.Context
	var cancel context.CancelFunc
	if r.reconnect.Deadline > 0 {
		deadlineCtx, cancel = context.WithTimeout(ctx, r.reconnect.Deadline)
	} else {
		deadlineCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var ch *channel.Channel
	retrier := retry.NewRetrier(0, r.reconnect.Base, r.reconnect.Cap)
	err := retrier.RunContext(deadlineCtx, func(ctx context.Context) error {
		c, err := r.channelFor(address)
		if err != nil {
			return err
		}
		ch = c
		return nil
	})
	if err != nil {
		return nil, xoscarerrors.NewPeerGone(address)
	}
	return ch, nil
}

// jitteredDelay implements full jitter: a uniform random value in [0, backoff].
// Exposed for tests that exercise the backoff math directly, since
// flowchartsman/retry's own jitter is opaque from outside the package.
func jitteredDelay(attempt int, base, cap time.Duration) time.Duration {
	backoff := base << attempt
	if backoff <= 0 || backoff > cap {
		backoff = cap
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}
