// Package testkit provides helpers for writing tests against the actor
// kernel without hand-rolling a Kernel, Registry, and Router every time.
// It mirrors the teacher's own testkit package: a Kit wraps one kernel,
// Probe captures messages sent to it for assertion, and Cluster wires
// several Kits together through a shared transport registry so routing and remote
// delivery can be exercised end to end.
package testkit

import (
	"testing"

	"github.com/luweizheng/xoscar/actor"
	"github.com/luweizheng/xoscar/deadletter"
	"github.com/luweizheng/xoscar/envelope"
	"github.com/luweizheng/xoscar/extension"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/router"
	"github.com/luweizheng/xoscar/transport"
)

// Kit bundles one actor kernel with the extension registry and deadletter
// stream it needs, all torn down via t.Cleanup.
type Kit struct {
	t           *testing.T
	Kernel      *actor.Kernel
	Extensions  *extension.Registry
	Router      *router.Router
	DeadLetters *deadletter.Stream
	Codec       envelope.Codec
	drivers     *transport.Registry
}

// New builds a Kit whose kernel answers at endpoint (e.g.
// "inproc://test-pool"). Encode/Decode use MsgpackCodec unless a
// WithCodec option supplies another codec.
func New(t *testing.T, endpoint string, opts ...Option) *Kit {
	t.Helper()

	k := &Kit{
		t:           t,
		Extensions:  extension.New(),
		DeadLetters: deadletter.NewStream(),
		Codec:       envelope.MsgpackCodec{},
		drivers:     transport.NewRegistry(),
	}
	for _, opt := range opts {
		opt.apply(k)
	}

	k.DeadLetters.Start()
	t.Cleanup(k.DeadLetters.Stop)

	k.Router = router.New(endpoint, k.drivers, nil, log.DiscardLogger)
	k.Kernel = actor.NewKernel(endpoint, k.Extensions, k.Router, k.DeadLetters, log.DiscardLogger, 2)
	k.Router.SetDeliverer(k.Kernel)
	t.Cleanup(k.Kernel.Shutdown)

	if err := k.Router.Listen(); err != nil {
		t.Fatalf("testkit: listen on %s: %v", endpoint, err)
	}

	return k
}

// RegisterClass associates classID with an Actor constructor, the Kit
// equivalent of extension.Registry.RegisterClass with the cast to `any`
// already done.
func (k *Kit) RegisterClass(classID string, ctor func(initArgs []byte) (actor.Actor, error)) {
	k.Extensions.RegisterClass(classID, func(initArgs []byte) (any, error) {
		return ctor(initArgs)
	})
}

// Encode encodes v with the Kit's codec, failing the test on error.
func (k *Kit) Encode(v any) []byte {
	k.t.Helper()
	data, err := k.Codec.Encode(v)
	if err != nil {
		k.t.Fatalf("testkit: encode: %v", err)
	}
	return data
}

// Decode decodes data into v with the Kit's codec, failing the test on
// error.
func (k *Kit) Decode(data []byte, v any) {
	k.t.Helper()
	if err := k.Codec.Decode(data, v); err != nil {
		k.t.Fatalf("testkit: decode: %v", err)
	}
}

// Option customizes a Kit built by New.
type Option interface {
	apply(*Kit)
}

type optionFunc func(*Kit)

func (f optionFunc) apply(k *Kit) { f(k) }

// WithCodec overrides the default MsgpackCodec used by Encode/Decode.
func WithCodec(codec envelope.Codec) Option {
	return optionFunc(func(k *Kit) { k.Codec = codec })
}

// WithTransportRegistry overrides the Kit's private transport.Registry
// with a shared one, the mechanism Cluster uses so every Kit's router
// dials into the same InprocDriver and its shared listener table instead
// of each Kit getting its own, mutually unreachable driver instance.
func WithTransportRegistry(reg *transport.Registry) Option {
	return optionFunc(func(k *Kit) { k.drivers = reg })
}
