package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luweizheng/xoscar/channel"
	"github.com/luweizheng/xoscar/envelope"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/transport"
)

type captureDeliverer struct {
	received []*envelope.Envelope
}

func (c *captureDeliverer) Deliver(e *envelope.Envelope) {
	c.received = append(c.received, e)
}

func TestNextEnvelopeIDMonotonic(t *testing.T) {
	r := New("inproc://p0", transport.NewRegistry(), &captureDeliverer{}, log.DiscardLogger)

	a := r.NextEnvelopeID()
	b := r.NextEnvelopeID()
	require.Less(t, a, b)
}

func TestSendToUnknownInprocPeerFails(t *testing.T) {
	r := New("inproc://p0", transport.NewRegistry(), &captureDeliverer{}, log.DiscardLogger)

	e := &envelope.Envelope{
		EnvelopeID: 1,
		Kind:       envelope.KindTell,
		To:         envelope.Address{Endpoint: "inproc://nowhere", UID: "x"},
		Payload:    []byte("hi"),
	}
	err := r.Send(e, time.Time{})
	require.Error(t, err)
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	r := New("inproc://p0", transport.NewRegistry(), &captureDeliverer{}, log.DiscardLogger)
	r.maxEnvelopeBytes = 4

	e := &envelope.Envelope{
		EnvelopeID: 1,
		Kind:       envelope.KindTell,
		To:         envelope.Address{Endpoint: "inproc://p1", UID: "x"},
		Payload:    []byte("too big for the limit"),
	}
	err := r.Send(e, time.Time{})
	require.Error(t, err)
}

func TestListenAcceptsAndDeliversAcrossTwoRouters(t *testing.T) {
	drivers := transport.NewRegistry()

	serverDeliverer := &captureDeliverer{}
	server := New("inproc://p-server", drivers, serverDeliverer, log.DiscardLogger)
	require.NoError(t, server.Listen())

	client := New("inproc://p-client", drivers, &captureDeliverer{}, log.DiscardLogger)

	e := &envelope.Envelope{
		EnvelopeID: 1,
		Kind:       envelope.KindTell,
		From:       envelope.Address{Endpoint: "inproc://p-client"},
		To:         envelope.Address{Endpoint: "inproc://p-server/subpool/2", UID: "x"},
		Payload:    []byte("hi"),
	}
	require.NoError(t, client.Send(e, time.Time{}))

	require.Eventually(t, func() bool {
		return len(serverDeliverer.received) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "x", serverDeliverer.received[0].To.UID)
}

func TestListenTwiceFails(t *testing.T) {
	drivers := transport.NewRegistry()
	r := New("inproc://p-twice", drivers, &captureDeliverer{}, log.DiscardLogger)
	require.NoError(t, r.Listen())
	require.Error(t, r.Listen())
}

func TestHeartbeatKeepsAnIdleChannelOpen(t *testing.T) {
	drivers := transport.NewRegistry()

	server := New("inproc://p-hb-server", drivers, &captureDeliverer{}, log.DiscardLogger)
	server.SetHeartbeatConfig(20*time.Millisecond, 2)
	require.NoError(t, server.Listen())

	client := New("inproc://p-hb-client", drivers, &captureDeliverer{}, log.DiscardLogger)
	client.SetHeartbeatConfig(20*time.Millisecond, 2)

	e := &envelope.Envelope{
		EnvelopeID: 1,
		Kind:       envelope.KindTell,
		From:       envelope.Address{Endpoint: "inproc://p-hb-client"},
		To:         envelope.Address{Endpoint: "inproc://p-hb-server", UID: "x"},
		Payload:    []byte("hi"),
	}
	require.NoError(t, client.Send(e, time.Time{}))

	// Outlive several heartbeat intervals with no further application
	// traffic; the Control:Ping exchange each side's heartbeatLoop emits
	// must keep both views of the channel at Open.
	time.Sleep(150 * time.Millisecond)

	ch, ok := client.channels.Get("inproc://p-hb-server")
	require.True(t, ok)
	require.Equal(t, channel.Open, ch.State())
}

func TestJitteredDelayWithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	cap := 10 * time.Second

	for attempt := 0; attempt < 10; attempt++ {
		d := jitteredDelay(attempt, base, cap)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, cap)
	}
}
