// Package lookup implements the naming registry and cross-pool uid
// resolution: a process-local aggregation of every sub-pool's live
// actors, an IndexServer actor that answers lookups from remote pools,
// and a client-side Resolver with a TTL cache and a bounded retry
// budget before giving up with ActorNotFound.
package lookup

import (
	"sync"

	"github.com/luweizheng/xoscar/actor"
)

// kernelSource is the subset of *actor.Kernel the registry needs, kept
// narrow so tests can fake it without standing up a full kernel.
type kernelSource interface {
	Refs() []actor.Ref
}

// Registry is the main pool's local view of every actor hosted across
// its sub-pools: uid -> actor_instance, refreshed by re-scanning each
// sub-pool's kernel. There is no push channel between sub-pool and
// registry in a single-process pool, so Refresh is called lazily by the
// IndexServer on each lookup rather than piggybacked onto a heartbeat.
type Registry struct {
	mu      sync.RWMutex
	byUID   map[string]actor.Ref
	sources []kernelSource
}

// NewRegistry builds a Registry that aggregates refs from sources, one
// per sub-pool kernel.
func NewRegistry(sources ...kernelSource) *Registry {
	return &Registry{
		byUID:   make(map[string]actor.Ref),
		sources: sources,
	}
}

// AddSource registers another kernel to aggregate, used when a sub-pool
// is restarted and gets a fresh kernel the registry must track instead
// of the one it replaced.
func (r *Registry) AddSource(src kernelSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
}

// Refresh rebuilds the uid -> ref map from every source's current live
// actors. Concurrent Lookups during a Refresh see either the old or the
// new snapshot, never a partial one.
func (r *Registry) Refresh() {
	fresh := make(map[string]actor.Ref)

	r.mu.RLock()
	sources := make([]kernelSource, len(r.sources))
	copy(sources, r.sources)
	r.mu.RUnlock()

	for _, src := range sources {
		for _, ref := range src.Refs() {
			fresh[ref.UID] = ref
		}
	}

	r.mu.Lock()
	r.byUID = fresh
	r.mu.Unlock()
}

// Lookup returns the ref registered for uid, and whether it was found.
func (r *Registry) Lookup(uid string) (actor.Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.byUID[uid]
	return ref, ok
}

// Snapshot returns a copy of the current uid -> ref map, used by tests
// and by diagnostics that want a consistent view without holding the
// registry's lock.
func (r *Registry) Snapshot() map[string]actor.Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]actor.Ref, len(r.byUID))
	for k, v := range r.byUID {
		out[k] = v
	}
	return out
}
