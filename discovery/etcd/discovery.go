// Package etcd implements a discovery.Provider backed by an etcd cluster,
// using a leased key per pool so dead pools expire automatically.
package etcd

import (
	"context"
	"fmt"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/discovery"
)

// Discovery is a discovery.Provider backed by etcd.
type Discovery struct {
	mu          sync.RWMutex
	initialized *atomic.Bool
	registered  *atomic.Bool

	endpoints []string
	namespace string
	key       string
	ttl       int64

	client          *clientv3.Client
	namespaceKV     clientv3.KV
	namespaceLE     clientv3.Lease
	leaseID         clientv3.LeaseID
	cancelKeepAlive context.CancelFunc
}

var _ discovery.Provider = (*Discovery)(nil)

// NewDiscovery returns an uninitialized etcd Discovery provider.
func NewDiscovery() *Discovery {
	return &Discovery{
		initialized: atomic.NewBool(false),
		registered:  atomic.NewBool(false),
		ttl:         30,
	}
}

// ID implements discovery.Provider.
func (d *Discovery) ID() string { return "etcd" }

// SetConfig implements discovery.Provider. Recognized keys: "endpoints"
// ([]string), "namespace" (string), "key" (string, this pool's own
// address), "ttl_seconds" (int, optional, default 30).
func (d *Discovery) SetConfig(config discovery.Config) error {
	endpoints, err := config.GetStringSlice("endpoints")
	if err != nil {
		return err
	}
	namespaceKey, err := config.GetString("namespace")
	if err != nil {
		return err
	}
	key, err := config.GetString("key")
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = endpoints
	d.namespace = namespaceKey
	d.key = key
	if ttl, terr := config.GetInt("ttl_seconds"); terr == nil {
		d.ttl = int64(ttl)
	}
	return nil
}

// Initialize implements discovery.Provider.
func (d *Discovery) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized.Load() {
		return discovery.ErrAlreadyInitialized
	}
	if len(d.endpoints) == 0 || d.key == "" {
		return discovery.ErrInvalidConfig
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   d.endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("etcd: failed to build client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, d.endpoints[0]); err != nil {
		_ = client.Close()
		return fmt.Errorf("etcd: failed to connect: %w", err)
	}

	prefix := d.namespace + "/"
	d.client = client
	d.namespaceKV = namespace.NewKV(client.KV, prefix)
	d.namespaceLE = namespace.NewLease(client.Lease, prefix)
	d.initialized.Store(true)
	return nil
}

// Register implements discovery.Provider.
func (d *Discovery) Register() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized.Load() {
		return discovery.ErrNotInitialized
	}
	if d.registered.Load() {
		return discovery.ErrAlreadyRegistered
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lease, err := d.namespaceLE.Grant(ctx, d.ttl)
	if err != nil {
		return fmt.Errorf("etcd: failed to create lease: %w", err)
	}
	d.leaseID = lease.ID

	if _, err := d.namespaceKV.Put(ctx, d.key, d.key, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("etcd: failed to register key: %w", err)
	}

	keepAliveCtx, cancelKeepAlive := context.WithCancel(context.Background())
	d.cancelKeepAlive = cancelKeepAlive
	ch, err := d.client.KeepAlive(keepAliveCtx, d.leaseID)
	if err != nil {
		cancelKeepAlive()
		return fmt.Errorf("etcd: failed to start keep-alive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()

	d.registered.Store(true)
	return nil
}

// DiscoverPeers implements discovery.Provider.
func (d *Discovery) DiscoverPeers() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized.Load() {
		return nil, discovery.ErrNotInitialized
	}
	if !d.registered.Load() {
		return nil, discovery.ErrNotRegistered
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := d.namespaceKV.Get(ctx, "", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd: failed to list peers: %w", err)
	}

	peers := goset.NewSet[string]()
	for _, kv := range resp.Kvs {
		if string(kv.Key) == d.key {
			continue
		}
		peers.Add(string(kv.Value))
	}
	return peers.ToSlice(), nil
}

// Deregister implements discovery.Provider.
func (d *Discovery) Deregister() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered.Load() {
		return discovery.ErrNotRegistered
	}

	if d.cancelKeepAlive != nil {
		d.cancelKeepAlive()
		d.cancelKeepAlive = nil
	}
	if d.leaseID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = d.namespaceLE.Revoke(ctx, d.leaseID)
		cancel()
		d.leaseID = 0
	}
	d.registered.Store(false)
	return nil
}

// Close implements discovery.Provider.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		if err := d.client.Close(); err != nil {
			return fmt.Errorf("etcd: failed to close client: %w", err)
		}
		d.client = nil
	}
	d.initialized.Store(false)
	d.registered.Store(false)
	return nil
}
