// Package gossip implements a discovery.Provider backed by Hashicorp
// memberlist's SWIM-style gossip protocol, for clusters that would
// rather not run a separate registry (Consul/etcd/NATS) just to find
// peer pools.
package gossip

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/hashicorp/memberlist"
	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/discovery"
)

// Discovery is a discovery.Provider backed by memberlist. DiscoverPeers
// returns the gossip-known member list rather than querying an external
// store, so Register/Deregister are no-ops beyond join/leave: membership
// itself is the registry.
type Discovery struct {
	mu          sync.Mutex
	initialized *atomic.Bool
	registered  *atomic.Bool

	bindHost string
	bindPort int
	nodeName string
	seeds    []string

	list *memberlist.Memberlist
}

var _ discovery.Provider = (*Discovery)(nil)

// NewDiscovery returns an uninitialized memberlist-backed Discovery
// provider.
func NewDiscovery() *Discovery {
	return &Discovery{
		initialized: atomic.NewBool(false),
		registered:  atomic.NewBool(false),
	}
}

// ID implements discovery.Provider.
func (d *Discovery) ID() string { return "gossip" }

// SetConfig implements discovery.Provider. Recognized keys: "host",
// "port" (int), "node_name", "seeds" ([]string, existing cluster members
// to join on Register; empty on the first node of a cluster).
func (d *Discovery) SetConfig(config discovery.Config) error {
	host, err := config.GetString("host")
	if err != nil {
		return err
	}
	port, err := config.GetInt("port")
	if err != nil {
		return err
	}
	nodeName, err := config.GetString("node_name")
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindHost = host
	d.bindPort = port
	d.nodeName = nodeName
	if seeds, serr := config.GetStringSlice("seeds"); serr == nil {
		d.seeds = seeds
	}
	return nil
}

// Initialize implements discovery.Provider: starts the local memberlist
// agent; configured seeds are joined by Register.
func (d *Discovery) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized.Load() {
		return discovery.ErrAlreadyInitialized
	}
	if d.nodeName == "" || d.bindHost == "" {
		return discovery.ErrInvalidConfig
	}

	conf := memberlist.DefaultLocalConfig()
	conf.Name = d.nodeName
	conf.BindAddr = d.bindHost
	conf.BindPort = d.bindPort
	conf.AdvertisePort = d.bindPort

	list, err := memberlist.Create(conf)
	if err != nil {
		return fmt.Errorf("gossip: failed to start memberlist: %w", err)
	}
	d.list = list
	d.initialized.Store(true)
	return nil
}

// Register implements discovery.Provider: joins the configured seeds, if
// any. A seedless Register just marks this node registered — it is
// already a member of its own one-node cluster once Initialize returns.
func (d *Discovery) Register() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized.Load() {
		return discovery.ErrNotInitialized
	}
	if d.registered.Load() {
		return discovery.ErrAlreadyRegistered
	}
	if len(d.seeds) > 0 {
		if _, err := d.list.Join(d.seeds); err != nil {
			return fmt.Errorf("gossip: failed to join seeds: %w", err)
		}
	}
	d.registered.Store(true)
	return nil
}

// DiscoverPeers implements discovery.Provider: returns every other
// member's advertised host:port, as carried by memberlist's own gossip.
func (d *Discovery) DiscoverPeers() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized.Load() {
		return nil, discovery.ErrNotInitialized
	}

	var peers []string
	for _, m := range d.list.Members() {
		if m.Name == d.nodeName {
			continue
		}
		peers = append(peers, m.Addr.String()+":"+strconv.Itoa(int(m.Port)))
	}
	return peers, nil
}

// Deregister implements discovery.Provider: leaves the cluster gracefully
// so other members stop waiting on this node's heartbeat.
func (d *Discovery) Deregister() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered.Load() {
		return discovery.ErrNotRegistered
	}
	if d.list != nil {
		_ = d.list.Leave(0)
	}
	d.registered.Store(false)
	return nil
}

// Close implements discovery.Provider.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.list != nil {
		_ = d.list.Shutdown()
		d.list = nil
	}
	d.initialized.Store(false)
	d.registered.Store(false)
	return nil
}
