package actor

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ControlActorUID is the fixed UID every Kernel auto-creates a controlActor
// under. A supervisor running sub-pools in separate OS processes
// (pool.Config.ProcessIsolation) cannot call a remote sub-pool's
// Kernel.CreateActor directly, so it addresses a Send envelope to this UID
// instead and lets the Kernel that owns the target sub-pool run the
// request locally on its behalf.
const ControlActorUID = "$control"

const controlOpCreateActor = "create_actor"

// ControlRequest is the wire payload a remote caller sends to
// ControlActorUID, msgpack-encoded as any other Send payload is.
type ControlRequest struct {
	Op       string `msgpack:"op"`
	ClassID  string `msgpack:"class_id,omitempty"`
	InitArgs []byte `msgpack:"init_args,omitempty"`
	UID      string `msgpack:"uid,omitempty"`
}

// ControlResponse answers a ControlRequest. Error is populated instead of
// the reply being a wire Error envelope because a failed create_actor is
// business outcome, not a transport fault.
type ControlResponse struct {
	UID   string `msgpack:"uid,omitempty"`
	Error string `msgpack:"error,omitempty"`
}

// EncodeControlRequest and DecodeControlResponse let a caller outside
// package actor (pool.Supervisor) build and read control traffic without
// reaching into this package's msgpack tag layout directly.
func EncodeControlRequest(req ControlRequest) ([]byte, error) {
	return msgpack.Marshal(req)
}

func DecodeControlResponse(data []byte) (ControlResponse, error) {
	var resp ControlResponse
	err := msgpack.Unmarshal(data, &resp)
	return resp, err
}

// NewCreateActorRequest builds the request controlActor.OnReceive expects
// for a remote create_actor call.
func NewCreateActorRequest(classID string, initArgs []byte, uid string) ControlRequest {
	return ControlRequest{Op: controlOpCreateActor, ClassID: classID, InitArgs: initArgs, UID: uid}
}

// controlActor is installed under ControlActorUID by every Kernel at
// construction time, outside the user-visible extensions.Registry, so it
// is always present regardless of what an application registers.
type controlActor struct {
	kernel *Kernel
}

var _ Actor = (*controlActor)(nil)

func (c *controlActor) OnCreate(context.Context) error { return nil }

func (c *controlActor) OnReceive(rc *ReceiveContext) ([]byte, error) {
	var req ControlRequest
	if err := msgpack.Unmarshal(rc.Payload, &req); err != nil {
		return nil, fmt.Errorf("actor: control: %w", err)
	}

	switch req.Op {
	case controlOpCreateActor:
		ref, err := c.kernel.CreateActor(rc.Context(), req.ClassID, req.InitArgs, req.UID)
		resp := ControlResponse{UID: ref.UID}
		if err != nil {
			resp.Error = err.Error()
		}
		return msgpack.Marshal(resp)
	default:
		return nil, fmt.Errorf("actor: control: unknown op %q", req.Op)
	}
}

func (c *controlActor) OnDestroy(context.Context) error { return nil }

// installControlActor registers and creates the controlActor directly,
// bypassing the extensions.Registry's class lookup: it is infrastructure
// every Kernel carries, not something an embedding application opts into.
func (k *Kernel) installControlActor() {
	ref := NewRef(ControlActorUID, k.SelfEndpoint)
	in := newInstance(ref, "$control", &controlActor{kernel: k}, k.mailboxCapacity, k.strategyFor("$control"))
	k.instances.Set(ControlActorUID, in)
	in.setState(Running)
}
