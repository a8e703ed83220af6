package lookup

import (
	"context"
	"fmt"

	"github.com/luweizheng/xoscar/actor"
	"github.com/luweizheng/xoscar/envelope"
)

// IndexServerClassID is the actor class id a pool registers its
// IndexServer instances under, so a remote pool's Resolver can be told
// this uid once and reuse it for every subsequent lookup.
const IndexServerClassID = "xoscar.lookup.index_server"

type lookupRequest struct {
	UID string
}

type lookupReply struct {
	Endpoint string
	Found    bool
}

// indexCodec is fixed rather than negotiated: the lookup protocol is
// internal to the runtime, never an application-visible payload, so
// there is no need to let callers pick a codec for it.
var indexCodec = envelope.MsgpackCodec{}

// IndexServer answers "where is uid" queries against a Registry. One
// instance runs per sub-pool so a lookup lands on whichever sub-pool the
// caller happened to address; all instances share the same Registry.
type IndexServer struct {
	registry *Registry
}

var _ actor.Actor = (*IndexServer)(nil)

// NewIndexServer returns an IndexServer actor backed by registry.
func NewIndexServer(registry *Registry) *IndexServer {
	return &IndexServer{registry: registry}
}

func (s *IndexServer) OnCreate(ctx context.Context) error { return nil }

func (s *IndexServer) OnReceive(rc *actor.ReceiveContext) ([]byte, error) {
	var req lookupRequest
	if err := indexCodec.Decode(rc.Payload, &req); err != nil {
		return nil, fmt.Errorf("lookup: decode request: %w", err)
	}

	s.registry.Refresh()
	ref, ok := s.registry.Lookup(req.UID)

	reply := lookupReply{Found: ok}
	if ok {
		reply.Endpoint = ref.Endpoint
	}
	return indexCodec.Encode(&reply)
}

func (s *IndexServer) OnDestroy(ctx context.Context) error { return nil }

// RegisterIndexServerClass returns an IndexServer constructor bound to
// registry, for registering under IndexServerClassID, so a pool supervisor can create one instance
// per sub-pool at startup with the usual CreateActor path.
func RegisterIndexServerClass(registry *Registry) func(initArgs []byte) (any, error) {
	return func(initArgs []byte) (any, error) {
		return NewIndexServer(registry), nil
	}
}
