package actor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luweizheng/xoscar/deadletter"
	"github.com/luweizheng/xoscar/extension"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/router"
	"github.com/luweizheng/xoscar/transport"
)

// echoActor replies with its payload upper-cased and counts messages.
type echoActor struct {
	created   bool
	destroyed bool
	received  int
}

func (e *echoActor) OnCreate(ctx context.Context) error {
	e.created = true
	return nil
}

func (e *echoActor) OnReceive(rc *ReceiveContext) ([]byte, error) {
	e.received++
	return []byte(strings.ToUpper(string(rc.Payload))), nil
}

func (e *echoActor) OnDestroy(ctx context.Context) error {
	e.destroyed = true
	return nil
}

func newTestKernel(t *testing.T, endpoint string) (*Kernel, *extension.Registry) {
	t.Helper()
	ext := extension.New()
	dl := deadletter.NewStream()
	dl.Start()
	t.Cleanup(dl.Stop)

	rtr := router.New(endpoint, transport.NewRegistry(), nil, log.DiscardLogger)
	k := NewKernel(endpoint, ext, rtr, dl, log.DiscardLogger, 2)
	rtr.SetDeliverer(k)
	t.Cleanup(k.Shutdown)
	return k, ext
}

func TestCreateActorSendAndDestroy(t *testing.T) {
	k, ext := newTestKernel(t, "inproc://pool-a")

	impl := &echoActor{}
	ext.RegisterClass("echo", func(initArgs []byte) (any, error) { return impl, nil })

	ref, err := k.CreateActor(context.Background(), "echo", nil, "")
	require.NoError(t, err)
	require.True(t, impl.created)
	require.True(t, k.HasActor(ref))

	reply, err := k.Send(context.Background(), ref, []byte("hi"), time.Time{})
	require.NoError(t, err)
	require.Equal(t, "HI", string(reply))
	require.Equal(t, 1, impl.received)

	require.NoError(t, k.DestroyActor(context.Background(), ref))
	require.Eventually(t, func() bool { return impl.destroyed }, time.Second, time.Millisecond)
	require.False(t, k.HasActor(ref))

	require.NoError(t, k.DestroyActor(context.Background(), ref), "destroying an unknown ref is a no-op")
}

func TestCreateActorDuplicateUID(t *testing.T) {
	k, ext := newTestKernel(t, "inproc://pool-b")
	ext.RegisterClass("echo", func(initArgs []byte) (any, error) { return &echoActor{}, nil })

	_, err := k.CreateActor(context.Background(), "echo", nil, "fixed")
	require.NoError(t, err)

	_, err = k.CreateActor(context.Background(), "echo", nil, "fixed")
	require.Error(t, err)
}

func TestSendToUnknownActorFails(t *testing.T) {
	k, _ := newTestKernel(t, "inproc://pool-c")
	ref := NewRef("nope", "inproc://pool-c")
	_, err := k.Send(context.Background(), ref, []byte("x"), time.Time{})
	require.Error(t, err)
}

func TestTellDoesNotWaitForReply(t *testing.T) {
	k, ext := newTestKernel(t, "inproc://pool-d")
	impl := &echoActor{}
	ext.RegisterClass("echo", func(initArgs []byte) (any, error) { return impl, nil })

	ref, err := k.CreateActor(context.Background(), "echo", nil, "")
	require.NoError(t, err)

	require.NoError(t, k.Tell(context.Background(), ref, []byte("fire")))
	require.Eventually(t, func() bool { return impl.received == 1 }, time.Second, time.Millisecond)
}

func TestSelfCallIsRejectedAsReentrancy(t *testing.T) {
	k, ext := newTestKernel(t, "inproc://pool-e")

	var selfRef Ref
	selfCaller := &selfCallActor{kernel: k, ref: &selfRef}
	ext.RegisterClass("self-caller", func(initArgs []byte) (any, error) { return selfCaller, nil })

	ref, err := k.CreateActor(context.Background(), "self-caller", nil, "")
	require.NoError(t, err)
	selfRef = ref

	_, err = k.Send(context.Background(), ref, []byte("go"), time.Time{})
	require.Error(t, err)
}

// selfCallActor issues a synchronous Send to itself from within OnReceive,
// which the kernel must reject rather than deadlock on.
type selfCallActor struct {
	kernel *Kernel
	ref    *Ref
}

func (s *selfCallActor) OnCreate(ctx context.Context) error  { return nil }
func (s *selfCallActor) OnDestroy(ctx context.Context) error { return nil }
func (s *selfCallActor) OnReceive(rc *ReceiveContext) ([]byte, error) {
	return s.kernel.Send(rc.Context(), *s.ref, []byte("again"), time.Time{})
}
