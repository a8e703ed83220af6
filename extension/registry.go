package extension

import (
	"fmt"
	"sync"

	"github.com/luweizheng/xoscar/envelope"
)

// ClassConstructor builds a fresh actor instance from class-specific
// init_args. The concrete return type is `any` here to avoid extension
// depending on package actor (actor depends on extension, not the other
// way around); the kernel type-asserts it back to actor.Actor.
type ClassConstructor func(initArgs []byte) (any, error)

// Collective is the optional collective-communication collaborator: it may
// be registered by an embedding application but is never called by
// the core runtime. It carries an Extension identity so it can be logged
// and introspected the same way any other registered component is.
type Collective interface {
	Extension
	Init() error
	AllReduce(data []byte) ([]byte, error)
	Barrier() error
	Shutdown() error
}

// Registry is the process-wide, populate-once-at-startup home for the
// codec table, the actor-class constructor table, and an optional
// collective handle. It is built during pool startup and never mutated
// from inside a handler.
type Registry struct {
	mu         sync.RWMutex
	codecs     *envelope.Registry
	classes    map[string]ClassConstructor
	collective Collective
}

// New returns a Registry preloaded with the built-in codecs.
func New() *Registry {
	return &Registry{
		codecs:  envelope.NewRegistry(),
		classes: make(map[string]ClassConstructor),
	}
}

// Codecs returns the codec registry, shared with package envelope.
func (r *Registry) Codecs() *envelope.Registry {
	return r.codecs
}

// RegisterClass associates classID with a constructor. Registering the same
// classID twice overwrites the previous constructor; callers are expected
// to do this once at startup, not per-request.
func (r *Registry) RegisterClass(classID string, ctor ClassConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[classID] = ctor
}

// LookupClass returns the constructor registered for classID.
func (r *Registry) LookupClass(classID string) (ClassConstructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.classes[classID]
	if !ok {
		return nil, fmt.Errorf("extension: no actor class registered for %q", classID)
	}
	return ctor, nil
}

// SetCollective installs the optional collective-communication handle.
func (r *Registry) SetCollective(c Collective) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collective = c
}

// Collective returns the installed handle, or nil if none was set.
func (r *Registry) Collective() Collective {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collective
}
