package testkit

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luweizheng/xoscar/actor"
)

const defaultProbeTimeout = 3 * time.Second
const probeQueueCapacity = 64

// received pairs a probe actor's decoded payload with the sender ref it
// arrived from, mirroring the teacher's probeActor message struct.
type received struct {
	from    actor.Ref
	payload []byte
}

// probeActor is the Actor implementation spawned behind every Probe: it
// never replies on its own, it just pushes every OnReceive call onto a
// channel for the test to drain.
type probeActor struct {
	inbox chan received
}

func (p *probeActor) OnCreate(context.Context) error { return nil }

func (p *probeActor) OnReceive(rc *actor.ReceiveContext) ([]byte, error) {
	p.inbox <- received{from: rc.From, payload: rc.Payload}
	return nil, nil
}

func (p *probeActor) OnDestroy(context.Context) error { return nil }

// Probe is a spawned actor a test can both send to and assert against,
// grounded on the teacher's testkit.Probe: ExpectMessage decodes the next
// queued payload with the Kit's codec and compares it to want.
type Probe struct {
	t      *testing.T
	kit    *Kit
	Ref    actor.Ref
	inbox  chan received
	last   received
	timeout time.Duration
}

// NewProbe spawns a probe actor on kit's kernel under classID "testkit.probe".
func NewProbe(t *testing.T, kit *Kit) *Probe {
	t.Helper()
	inbox := make(chan received, probeQueueCapacity)
	impl := &probeActor{inbox: inbox}

	classID := "testkit.probe"
	kit.Extensions.RegisterClass(classID, func([]byte) (any, error) { return impl, nil })

	ref, err := kit.Kernel.CreateActor(context.Background(), classID, nil, "")
	require.NoError(t, err)

	return &Probe{t: t, kit: kit, Ref: ref, inbox: inbox, timeout: defaultProbeTimeout}
}

// Tell sends a fire-and-forget message to target, encoded with the Kit's
// codec. The message carries no sender ref.
func (p *Probe) Tell(target actor.Ref, msg any) {
	p.t.Helper()
	require.NoError(p.t, p.kit.Kernel.Tell(context.Background(), target, p.kit.Encode(msg)))
}

// Send issues a synchronous Send to target and decodes the reply into out.
func (p *Probe) Send(target actor.Ref, msg any, out any) {
	p.t.Helper()
	reply, err := p.kit.Kernel.Send(context.Background(), target, p.kit.Encode(msg), time.Now().Add(p.timeout))
	require.NoError(p.t, err)
	if out != nil {
		p.kit.Decode(reply, out)
	}
}

// ExpectMessage waits up to the Probe's default timeout for the next
// message and decodes it into want's type, then asserts it equals want.
func (p *Probe) ExpectMessage(want any) {
	p.t.Helper()
	p.ExpectMessageWithin(p.timeout, want)
}

// ExpectMessageWithin is ExpectMessage with an explicit timeout.
func (p *Probe) ExpectMessageWithin(timeout time.Duration, want any) {
	p.t.Helper()
	r := p.receiveOne(timeout)
	require.NotNil(p.t, r, "timeout (%v) waiting for message %#v", timeout, want)

	got := reflect.New(reflect.TypeOf(want))
	p.kit.Decode(r.payload, got.Interface())
	require.Equal(p.t, want, got.Elem().Interface())
}

// ExpectNoMessage asserts that no message arrives within the Probe's
// default timeout.
func (p *Probe) ExpectNoMessage() {
	p.t.Helper()
	r := p.receiveOne(p.timeout)
	require.Nil(p.t, r, "received unexpected message %#v", r)
}

// Sender returns the sender ref of the last message handed back by an
// Expect* call.
func (p *Probe) Sender() actor.Ref { return p.last.from }

func (p *Probe) receiveOne(timeout time.Duration) *received {
	select {
	case m, ok := <-p.inbox:
		if !ok {
			return nil
		}
		p.last = m
		return &m
	case <-time.After(timeout):
		return nil
	}
}
