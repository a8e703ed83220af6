package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luweizheng/xoscar/actor"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
)

// fakeSender stands in for a kernel's Send, answering lookups against an
// in-memory registry without any actual actor scheduling.
type fakeSender struct {
	registry *Registry
	calls    int
}

func (f *fakeSender) Send(ctx context.Context, ref actor.Ref, payload []byte, deadline time.Time) ([]byte, error) {
	f.calls++
	var req lookupRequest
	if err := indexCodec.Decode(payload, &req); err != nil {
		return nil, err
	}
	f.registry.Refresh()
	resolvedRef, ok := f.registry.Lookup(req.UID)
	reply := lookupReply{Found: ok}
	if ok {
		reply.Endpoint = resolvedRef.Endpoint
	}
	return indexCodec.Encode(&reply)
}

func TestResolverResolvesAndCaches(t *testing.T) {
	reg := NewRegistry(&fakeSource{refs: []actor.Ref{actor.NewRef("worker-1", "inproc://sub-0")}})
	snd := &fakeSender{registry: reg}
	r := NewResolver(snd)
	r.RegisterIndexServer("inproc://main", actor.NewRef(IndexServerClassID, "inproc://main"))

	ref, err := r.Resolve(context.Background(), "inproc://main", "worker-1")
	require.NoError(t, err)
	require.Equal(t, "inproc://sub-0", ref.Endpoint)
	require.Equal(t, 1, snd.calls)

	// Second call hits the cache, no further Send.
	ref, err = r.Resolve(context.Background(), "inproc://main", "worker-1")
	require.NoError(t, err)
	require.Equal(t, "inproc://sub-0", ref.Endpoint)
	require.Equal(t, 1, snd.calls)
}

func TestResolverWithoutRegisteredIndexServerFailsFast(t *testing.T) {
	reg := NewRegistry()
	r := NewResolver(&fakeSender{registry: reg})

	_, err := r.Resolve(context.Background(), "inproc://unknown", "worker-1")
	require.True(t, xoscarerrors.KindOf(err) == xoscarerrors.KindActorNotFound)
}

func TestResolverUnknownUIDReturnsActorNotFound(t *testing.T) {
	reg := NewRegistry(&fakeSource{})
	snd := &fakeSender{registry: reg}
	r := NewResolver(snd, WithRetryBudget(1, time.Millisecond, time.Millisecond))
	r.RegisterIndexServer("inproc://main", actor.NewRef(IndexServerClassID, "inproc://main"))

	_, err := r.Resolve(context.Background(), "inproc://main", "ghost")
	require.True(t, xoscarerrors.KindOf(err) == xoscarerrors.KindActorNotFound)
}

func TestResolverInvalidateForcesFreshLookup(t *testing.T) {
	reg := NewRegistry(&fakeSource{refs: []actor.Ref{actor.NewRef("worker-1", "inproc://sub-0")}})
	snd := &fakeSender{registry: reg}
	r := NewResolver(snd)
	r.RegisterIndexServer("inproc://main", actor.NewRef(IndexServerClassID, "inproc://main"))

	_, err := r.Resolve(context.Background(), "inproc://main", "worker-1")
	require.NoError(t, err)
	require.Equal(t, 1, snd.calls)

	r.Invalidate("inproc://main", "worker-1")
	_, err = r.Resolve(context.Background(), "inproc://main", "worker-1")
	require.NoError(t, err)
	require.Equal(t, 2, snd.calls)
}

func TestResolverInvalidatePeerDropsAllOfThatPoolsEntries(t *testing.T) {
	reg := NewRegistry(&fakeSource{refs: []actor.Ref{
		actor.NewRef("worker-1", "inproc://sub-0"),
		actor.NewRef("worker-2", "inproc://sub-0"),
	}})
	snd := &fakeSender{registry: reg}
	r := NewResolver(snd)
	r.RegisterIndexServer("inproc://main", actor.NewRef(IndexServerClassID, "inproc://main"))

	_, err := r.Resolve(context.Background(), "inproc://main", "worker-1")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "inproc://main", "worker-2")
	require.NoError(t, err)
	require.Equal(t, 2, snd.calls)

	r.InvalidatePeer("inproc://main")

	_, err = r.Resolve(context.Background(), "inproc://main", "worker-1")
	require.True(t, xoscarerrors.KindOf(err) == xoscarerrors.KindActorNotFound,
		"index server ref was dropped along with the cache entries")
}
