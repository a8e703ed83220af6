// Package hash provides the one hash function used wherever this runtime
// needs to turn an actor UID or placement key into a stable shard/node
// index: worker-pool shard affinity and the pool supervisor's affinity
// placement policy both go through the same Hasher.
package hash

import (
	"github.com/cespare/xxhash/v2"
)

// Hasher generates an unsigned 64-bit hash of a key.
type Hasher interface {
	HashCode(key []byte) uint64
}

type xxHasher struct{}

var _ Hasher = xxHasher{}

func (x xxHasher) HashCode(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// DefaultHasher returns the xxhash-backed Hasher every consumer in this
// module shares, so an actor UID and a placement key always land in the
// same shard/node regardless of which package computed the hash.
func DefaultHasher() Hasher {
	return xxHasher{}
}
