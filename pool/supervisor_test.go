package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luweizheng/xoscar/actor"
	"github.com/luweizheng/xoscar/deadletter"
	"github.com/luweizheng/xoscar/envelope"
	"github.com/luweizheng/xoscar/extension"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/router"
	"github.com/luweizheng/xoscar/transport"
)

// noopActor satisfies actor.Actor for placement and failure tests that
// never actually need to exchange a message.
type noopActor struct{}

func (n *noopActor) OnCreate(ctx context.Context) error { return nil }
func (n *noopActor) OnReceive(rc *actor.ReceiveContext) ([]byte, error) {
	return nil, nil
}
func (n *noopActor) OnDestroy(ctx context.Context) error { return nil }

func newTestSupervisor(t *testing.T, mainAddress string, cfg Config) (*Supervisor, *extension.Registry) {
	t.Helper()
	ext := extension.New()
	dl := deadletter.NewStream()
	dl.Start()
	t.Cleanup(dl.Stop)

	rtr := router.New(mainAddress, transport.NewRegistry(), nil, log.DiscardLogger)
	sup, err := New(mainAddress, cfg, ext, rtr, dl, log.DiscardLogger)
	require.NoError(t, err)
	sup.Start()
	t.Cleanup(func() { sup.Shutdown(context.Background()) })
	return sup, ext
}

func TestSubAddressFormatsSubpoolSuffix(t *testing.T) {
	require.Equal(t, "tcp://host:4000/subpool/3", subAddress("tcp://host:4000", 3))
}

func TestCreateActorRoundRobinsAcrossSubPools(t *testing.T) {
	sup, ext := newTestSupervisor(t, "inproc://main-a", Config{NSubPools: 3, Placement: NewRoundRobin()})
	ext.RegisterClass("noop", func(initArgs []byte) (any, error) { return &noopActor{}, nil })

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		ref, err := sup.CreateActor(context.Background(), "noop", nil, "", "")
		require.NoError(t, err)
		seen[ref.Endpoint] = true
	}
	require.Len(t, seen, 3, "round robin across 3 sub-pools should touch all 3 endpoints")
}

func TestCreateActorAffinityIsStableForSameKey(t *testing.T) {
	sup, ext := newTestSupervisor(t, "inproc://main-b", Config{NSubPools: 4, Placement: NewAffinity()})
	ext.RegisterClass("noop", func(initArgs []byte) (any, error) { return &noopActor{}, nil })

	first, err := sup.CreateActor(context.Background(), "noop", nil, "", "tenant-7")
	require.NoError(t, err)
	second, err := sup.CreateActor(context.Background(), "noop", nil, "", "tenant-7")
	require.NoError(t, err)
	require.Equal(t, first.Endpoint, second.Endpoint)
}

func TestOnSubPoolDownFailsHostedActorsAndRestarts(t *testing.T) {
	sup, ext := newTestSupervisor(t, "inproc://main-c", Config{NSubPools: 2, RestartPolicy: RestartOnFailure})
	ext.RegisterClass("noop", func(initArgs []byte) (any, error) { return &noopActor{}, nil })

	ref, err := sup.CreateActor(context.Background(), "noop", nil, "", "")
	require.NoError(t, err)

	sp := sup.subPools[0]
	if ref.Endpoint != sp.address {
		sp = sup.subPools[1]
	}
	require.True(t, sp.Kernel().HasActor(ref))

	sp.Kernel().Shutdown()
	sup.onSubPoolDown(sp)

	require.False(t, sp.Kernel().HasActor(ref), "actor must be deregistered once its sub-pool is down")
	require.True(t, sp.Kernel().Alive(), "restart policy must bring up a fresh kernel")
}

func TestOnSubPoolDownWithoutRestartStaysDown(t *testing.T) {
	sup, _ := newTestSupervisor(t, "inproc://main-f", Config{NSubPools: 1, RestartPolicy: RestartNever})
	sp := sup.subPools[0]
	sp.Kernel().Shutdown()
	sup.onSubPoolDown(sp)
	require.False(t, sp.Kernel().Alive())
}

func TestShutdownDrainsAllSubPools(t *testing.T) {
	sup, _ := newTestSupervisor(t, "inproc://main-d", Config{NSubPools: 2, GracefulDeadline: 50 * time.Millisecond})
	sup.Shutdown(context.Background())
	select {
	case <-sup.Stopped():
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not close Stopped()")
	}
}

func TestDeliverToUnknownAddressPublishesDeadLetter(t *testing.T) {
	sup, _ := newTestSupervisor(t, "inproc://main-e", Config{NSubPools: 1})

	ch := sup.dl.Subscribe()
	defer sup.dl.Unsubscribe(ch)

	sup.Deliver(&envelope.Envelope{
		Kind: envelope.KindTell,
		To:   envelope.Address{Endpoint: "inproc://main-e/subpool/99", UID: "ghost"},
	})

	select {
	case dl := <-ch:
		require.Equal(t, "ghost", dl.Envelope.To.UID)
	case <-time.After(time.Second):
		t.Fatal("expected a dead letter for an unknown sub-pool address")
	}
}
