package actor

import "context"

// Actor is the only behavior a class registered with the kernel must
// implement: on_create, on_receive, on_destroy. All three hooks run on the
// actor's own goroutine under the kernel's per-actor serial execution lock,
// so a handler never needs its own synchronization against other messages
// of the same actor.
type Actor interface {
	// OnCreate runs once, before the instance is registered and before it
	// can receive any message. A non-nil error aborts creation; the
	// partially-initialized instance is discarded and never registered.
	OnCreate(ctx context.Context) error

	// OnReceive handles one message and returns the reply payload for a
	// Send, or nil for a Tell (the return value is ignored for Tell).
	// A non-nil error becomes an Error envelope back to a Send caller, or
	// is logged and swallowed for a Tell; either way the actor continues.
	OnReceive(ctx *ReceiveContext) ([]byte, error)

	// OnDestroy runs once, after the inbox has drained and before
	// deregistration. Its error is logged; destruction proceeds regardless.
	OnDestroy(ctx context.Context) error
}

// ClassConstructor builds a fresh Actor instance from the opaque init_args
// passed to create_actor. Registered once per class_id in the extension
// registry's actor-class table.
type ClassConstructor func(initArgs []byte) (Actor, error)
