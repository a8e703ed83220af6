// Package static implements a discovery.Provider backed by a fixed,
// operator-supplied address list. It is the default provider for
// single-host deployments and for tests.
package static

import (
	"sync"

	goset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/discovery"
)

// Discovery is a discovery.Provider that never talks to the network: its
// peer set is fixed at construction time via Config.
type Discovery struct {
	mu          sync.RWMutex
	initialized *atomic.Bool
	registered  *atomic.Bool
	self        string
	peers       goset.Set[string]
}

var _ discovery.Provider = (*Discovery)(nil)

// NewDiscovery returns an uninitialized static Discovery provider.
func NewDiscovery() *Discovery {
	return &Discovery{
		initialized: atomic.NewBool(false),
		registered:  atomic.NewBool(false),
		peers:       goset.NewSet[string](),
	}
}

// ID implements discovery.Provider.
func (d *Discovery) ID() string { return "static" }

// SetConfig implements discovery.Provider. Recognized keys: "self"
// (string, this pool's address) and "peers" ([]string, the full cluster
// address list, self included or not — it is filtered out either way).
func (d *Discovery) SetConfig(config discovery.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	self, err := config.GetString("self")
	if err != nil {
		return err
	}
	peers, err := config.GetStringSlice("peers")
	if err != nil {
		return err
	}

	d.self = self
	d.peers = goset.NewSet[string]()
	for _, p := range peers {
		if p != d.self {
			d.peers.Add(p)
		}
	}
	return nil
}

// Initialize implements discovery.Provider.
func (d *Discovery) Initialize() error {
	if d.initialized.Load() {
		return discovery.ErrAlreadyInitialized
	}
	d.initialized.Store(true)
	return nil
}

// Register implements discovery.Provider. Static peers require no
// registration step; this only records intent for Deregister symmetry.
func (d *Discovery) Register() error {
	if !d.initialized.Load() {
		return discovery.ErrNotInitialized
	}
	if d.registered.Load() {
		return discovery.ErrAlreadyRegistered
	}
	d.registered.Store(true)
	return nil
}

// Deregister implements discovery.Provider.
func (d *Discovery) Deregister() error {
	if !d.registered.Load() {
		return discovery.ErrNotRegistered
	}
	d.registered.Store(false)
	return nil
}

// DiscoverPeers implements discovery.Provider.
func (d *Discovery) DiscoverPeers() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized.Load() {
		return nil, discovery.ErrNotInitialized
	}
	return d.peers.ToSlice(), nil
}

// Close implements discovery.Provider.
func (d *Discovery) Close() error {
	d.initialized.Store(false)
	d.registered.Store(false)
	return nil
}
