// Package batch implements client-side coalescing of several calls to
// the same actor into a single envelope: a caller composes K logical
// calls, the dispatcher packs them into one Send, and the destination
// actor (via Dispatch) processes them in order and returns K per-item
// results in one reply.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/luweizheng/xoscar/actor"
	"github.com/luweizheng/xoscar/envelope"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
)

// codec is fixed for the same reason lookup's index protocol is: batch
// framing is internal to the runtime, not an application-visible
// payload format callers get to negotiate.
var codec = envelope.MsgpackCodec{}

// request is the wire form of a batch Send: an ordered list of opaque
// sub-payloads, each exactly what a non-batched Send would have carried.
type request struct {
	Payloads [][]byte
}

// Result is one sub-call's outcome: either Value is set and Err is nil,
// or Err carries the wire-encoded failure and Value is nil.
type Result struct {
	Value []byte
	Err   []byte
}

// Failed reports whether this Result represents a sub-call error.
func (r Result) Failed() bool { return r.Err != nil }

// Error decodes Err into a *errors.WireError, or nil if this Result did
// not fail.
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}
	return xoscarerrors.DecodeWire(r.Err)
}

type reply struct {
	Results []Result
}

// Dispatcher sends batched calls to a single destination actor. It is a
// thin client-side convenience over Kernel.Send; it holds no state of
// its own and can be reused across destinations.
type Dispatcher struct {
	kernel sender
}

// sender is the subset of *actor.Kernel a Dispatcher needs, narrowed for
// testability the same way lookup.Resolver narrows it.
type sender interface {
	Send(ctx context.Context, ref actor.Ref, payload []byte, deadline time.Time) ([]byte, error)
}

// NewDispatcher returns a Dispatcher that issues batches through kernel.
func NewDispatcher(kernel sender) *Dispatcher {
	return &Dispatcher{kernel: kernel}
}

// Call sends payloads to ref as a single batch envelope and returns one
// Result per payload, in the same order. A transport-level failure (the
// Send itself failing, as opposed to a per-item failure reported inside
// the reply) is returned as err with no results.
func (d *Dispatcher) Call(ctx context.Context, ref actor.Ref, payloads [][]byte, deadline time.Time) ([]Result, error) {
	body, err := codec.Encode(&request{Payloads: payloads})
	if err != nil {
		return nil, fmt.Errorf("batch: encode request: %w", err)
	}

	replyPayload, err := d.kernel.Send(ctx, ref, body, deadline)
	if err != nil {
		return nil, err
	}

	var out reply
	if err := codec.Decode(replyPayload, &out); err != nil {
		return nil, fmt.Errorf("batch: decode reply: %w", err)
	}
	return out.Results, nil
}
