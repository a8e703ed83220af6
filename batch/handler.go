package batch

import (
	"context"
	"fmt"

	"github.com/luweizheng/xoscar/actor"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
)

// Handler processes one sub-call's payload and returns its reply
// payload or an error, the same contract as Actor.OnReceive but for a
// single batch item.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Dispatch decodes rc's payload as a batch request, runs handle over
// each sub-payload in order, and encodes the per-item results into a
// reply payload ready to return from Actor.OnReceive. An actor class
// that wants to accept batched Sends calls Dispatch as its entire
// OnReceive body; one that doesn't never needs to know batch exists.
//
// Guarantees match the batch dispatcher contract: (a) sub-calls run
// strictly in order, consecutively — OnReceive already serializes this
// actor's execution, so no other message interleaves; (b) one sub-call's
// error is recorded in its Result and does not stop the remaining
// sub-calls; (c) once rc's context is canceled, that sub-call and every
// later one are recorded as Cancelled instead of running handle.
func Dispatch(rc *actor.ReceiveContext, handle Handler) ([]byte, error) {
	var req request
	if err := codec.Decode(rc.Payload, &req); err != nil {
		return nil, fmt.Errorf("batch: decode request: %w", err)
	}

	ctx := rc.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]Result, len(req.Payloads))
	for i, payload := range req.Payloads {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Err: xoscarerrors.EncodeWire(xoscarerrors.New(xoscarerrors.KindCancelled, err))}
			continue
		}
		value, err := handle(ctx, payload)
		if err != nil {
			results[i] = Result{Err: xoscarerrors.EncodeWire(err)}
			continue
		}
		results[i] = Result{Value: value}
	}

	return codec.Encode(&reply{Results: results})
}
