package actor

import (
	"context"
	"sync"

	"github.com/luweizheng/xoscar/envelope"
)

// ReceiveContext is the argument to Actor.OnReceive: one message, its
// routing metadata, and the means to honor the caller's deadline via ctx.
// The kernel constructs one per dequeued mailbox entry and discards it once
// OnReceive returns.
type ReceiveContext struct {
	ctx context.Context

	// From is the sender's ref, or the zero Ref for a message with no
	// sender address (e.g. injected by a timer or the lookup service).
	From Ref
	// To is this actor's own ref, repeated here so a handler can refer to
	// itself without a closure over the kernel's internal instance type.
	To Ref

	// Kind distinguishes Send (reply expected) from Tell (fire-and-forget)
	// from Control (lifecycle messages the kernel itself intercepts before
	// a handler ever sees them).
	Kind envelope.Kind
	// CorrelationID threads a Send's reply back to the right waiter; zero
	// for Tell.
	CorrelationID uint64
	// Payload is the codec-encoded message body; OnReceive is responsible
	// for decoding it with whatever codec the caller and callee agreed on.
	Payload []byte

	// chainID identifies the synchronous call chain this message belongs
	// to, for reentrancy detection. Zero when the message did not originate
	// from within another actor's handler.
	chainID uint64

	// respond delivers OnReceive's outcome back to whoever is waiting: a
	// local Completable for a same-process Send, a reply envelope for a
	// remote Send, or nil for Tell. Set once by the kernel; called at most
	// once, guarded by respondOnce.
	respond     func(reply []byte, err error)
	respondOnce sync.Once
}

// Context returns the per-message context. For a same-process Send it is
// the caller's ctx, carrying the Send deadline; for an envelope delivered
// from a remote peer it is context.Background() and is never canceled.
// Kernel shutdown does not cancel it.
func (rc *ReceiveContext) Context() context.Context {
	return rc.ctx
}

// WithContext installs ctx as this message's context and returns rc, for
// callers (outside the kernel's own dispatch path) that build a
// ReceiveContext by hand, e.g. in tests of a handler that reads
// Context().
func (rc *ReceiveContext) WithContext(ctx context.Context) *ReceiveContext {
	rc.ctx = ctx
	return rc
}

// ChainID returns the synchronous call chain this message is part of, used
// by the kernel's reentrancy guard; zero means "no active chain".
func (rc *ReceiveContext) ChainID() uint64 {
	return rc.chainID
}
