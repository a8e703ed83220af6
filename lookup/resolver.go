package lookup

import (
	"context"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/luweizheng/xoscar/actor"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
)

// DefaultLookupTTL is how long a resolved ref is trusted before the
// Resolver asks the owning pool's IndexServer again.
const DefaultLookupTTL = 30 * time.Second

const (
	defaultCacheSize  = 4096
	defaultMaxRetries = 3
	defaultRetryBase  = 20 * time.Millisecond
	defaultRetryCap   = 200 * time.Millisecond
)

// sender is the subset of *actor.Kernel a Resolver needs to reach a
// remote IndexServer, narrowed for testability.
type sender interface {
	Send(ctx context.Context, ref actor.Ref, payload []byte, deadline time.Time) ([]byte, error)
}

// Resolver is the client side of cross-pool lookup: given a pool address
// and a uid, it returns a usable Ref, consulting a TTL cache before
// spending a network round trip on the target pool's IndexServer.
type Resolver struct {
	kernel sender
	cache  *lru.LRU[string, actor.Ref]

	mu        sync.RWMutex
	indexRefs map[string]actor.Ref

	maxRetries int
	retryBase  time.Duration
	retryCap   time.Duration
}

// resolverConfig collects every ResolverOption field. Cache construction
// needs ttl and size together, so all options are gathered into one
// struct before NewResolver builds anything, instead of mutating the
// Resolver (and its cache) field by field.
type resolverConfig struct {
	ttl        time.Duration
	size       int
	maxRetries int
	retryBase  time.Duration
	retryCap   time.Duration
}

// ResolverOption configures NewResolver.
type ResolverOption func(*resolverConfig)

// WithTTL overrides DefaultLookupTTL.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(c *resolverConfig) { c.ttl = ttl }
}

// WithCacheSize overrides the cache's maximum entry count.
func WithCacheSize(size int) ResolverOption {
	return func(c *resolverConfig) { c.size = size }
}

// WithRetryBudget overrides the number of lookup attempts and the
// exponential backoff bounds between them.
func WithRetryBudget(maxRetries int, base, cap time.Duration) ResolverOption {
	return func(c *resolverConfig) {
		c.maxRetries = maxRetries
		c.retryBase = base
		c.retryCap = cap
	}
}

// NewResolver returns a Resolver that issues lookups through kernel.
func NewResolver(kernel sender, opts ...ResolverOption) *Resolver {
	cfg := resolverConfig{
		ttl:        DefaultLookupTTL,
		size:       defaultCacheSize,
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		retryCap:   defaultRetryCap,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Resolver{
		kernel:     kernel,
		cache:      lru.NewLRU[string, actor.Ref](cfg.size, nil, cfg.ttl),
		indexRefs:  make(map[string]actor.Ref),
		maxRetries: cfg.maxRetries,
		retryBase:  cfg.retryBase,
		retryCap:   cfg.retryCap,
	}
}

// RegisterIndexServer tells the Resolver which ref answers lookups for
// poolAddress, learned once via discovery rather than re-resolved per
// call.
func (r *Resolver) RegisterIndexServer(poolAddress string, ref actor.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexRefs[poolAddress] = ref
}

func (r *Resolver) indexServerFor(poolAddress string) (actor.Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.indexRefs[poolAddress]
	return ref, ok
}

func cacheKey(poolAddress, uid string) string {
	return poolAddress + "\x00" + uid
}

// Resolve returns uid's current ref within poolAddress, using the cache
// when possible and falling back to a Send against that pool's
// IndexServer, retried with backoff up to the configured budget before
// giving up with ActorNotFound.
func (r *Resolver) Resolve(ctx context.Context, poolAddress, uid string) (actor.Ref, error) {
	key := cacheKey(poolAddress, uid)
	if ref, ok := r.cache.Get(key); ok {
		return ref, nil
	}

	indexRef, ok := r.indexServerFor(poolAddress)
	if !ok {
		return actor.Ref{}, xoscarerrors.NewActorNotFound(uid)
	}

	var resolved actor.Ref
	var notFound bool
	retrier := retry.NewRetrier(r.maxRetries, r.retryBase, r.retryCap)
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		req := lookupRequest{UID: uid}
		payload, err := indexCodec.Encode(&req)
		if err != nil {
			return err
		}

		replyPayload, err := r.kernel.Send(ctx, indexRef, payload, time.Time{})
		if err != nil {
			return err
		}

		var reply lookupReply
		if err := indexCodec.Decode(replyPayload, &reply); err != nil {
			return err
		}
		if !reply.Found {
			notFound = true
			return xoscarerrors.NewActorNotFound(uid)
		}
		resolved = actor.NewRef(uid, reply.Endpoint)
		return nil
	})
	if err != nil || notFound {
		return actor.Ref{}, xoscarerrors.NewActorNotFound(uid)
	}

	r.cache.Add(key, resolved)
	return resolved, nil
}

// Invalidate drops the cached ref for (poolAddress, uid), used when a
// caller learns by other means (e.g. a failed Send) that the cached
// endpoint is stale.
func (r *Resolver) Invalidate(poolAddress, uid string) {
	r.cache.Remove(cacheKey(poolAddress, uid))
}

// InvalidatePeer drops every cache entry resolved through poolAddress,
// called on PeerGone since none of that pool's previously resolved refs
// can be trusted once its channel is gone.
func (r *Resolver) InvalidatePeer(poolAddress string) {
	prefix := poolAddress + "\x00"
	for _, key := range r.cache.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			r.cache.Remove(key)
		}
	}
	r.mu.Lock()
	delete(r.indexRefs, poolAddress)
	r.mu.Unlock()
}
