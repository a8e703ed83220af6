// Package pool implements the host-level supervisor: one main
// process coordinating N sub-pools, each hosting an independent actor
// kernel, with placement policies, heartbeat-based failure detection, and
// graceful shutdown.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/luweizheng/xoscar/hash"
)

// Policy selects which sub-pool index a newly created actor should land
// on. Implementations must be safe for concurrent use, since CreateActor
// may be called from many goroutines at once.
type Policy interface {
	// Select returns a sub-pool index in [0, n). key is the placement hint
	// passed to create_actor; policies that ignore it (RoundRobin,
	// LeastLoaded) are free to do so.
	Select(n int, key string, load func(index int) int) int
}

// RoundRobinPolicy hands out sub-pool indices in a monotonically
// increasing cycle, shared across all callers.
type RoundRobinPolicy struct {
	next atomic.Uint64
}

// NewRoundRobin returns a fresh RoundRobinPolicy starting at index 0.
func NewRoundRobin() *RoundRobinPolicy { return &RoundRobinPolicy{} }

func (p *RoundRobinPolicy) Select(n int, _ string, _ func(int) int) int {
	if n <= 0 {
		return 0
	}
	i := p.next.Add(1) - 1
	return int(i % uint64(n))
}

// LeastLoadedPolicy picks the sub-pool with the fewest live actors,
// breaking ties by round-robin so a tied field doesn't always favor the
// lowest index.
type LeastLoadedPolicy struct {
	mu   sync.Mutex
	next int
}

// NewLeastLoaded returns a fresh LeastLoadedPolicy.
func NewLeastLoaded() *LeastLoadedPolicy { return &LeastLoadedPolicy{} }

func (p *LeastLoadedPolicy) Select(n int, _ string, load func(int) int) int {
	if n <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	best := -1
	bestLoad := 0
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		l := load(idx)
		if best == -1 || l < bestLoad {
			best = idx
			bestLoad = l
		}
	}
	p.next = (p.next + 1) % n
	return best
}

// AffinityPolicy routes by a deterministic hash of the placement key, so
// the same key always lands on the same sub-pool as long as n is stable.
type AffinityPolicy struct {
	hasher hash.Hasher
}

// NewAffinity returns an AffinityPolicy hashing with hash.DefaultHasher.
func NewAffinity() *AffinityPolicy { return &AffinityPolicy{hasher: hash.DefaultHasher()} }

// NewAffinityWithHasher returns an AffinityPolicy hashing with hasher,
// for callers that want a different distribution than the default.
func NewAffinityWithHasher(hasher hash.Hasher) *AffinityPolicy {
	return &AffinityPolicy{hasher: hasher}
}

func (p *AffinityPolicy) Select(n int, key string, _ func(int) int) int {
	if n <= 0 {
		return 0
	}
	if key == "" {
		return 0
	}
	return int(p.hasher.HashCode([]byte(key)) % uint64(n))
}
