// Package consul implements a discovery.Provider backed by HashiCorp Consul.
package consul

import (
	"fmt"
	"sync"

	"github.com/hashicorp/consul/api"
	goset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/discovery"
)

// Discovery is a discovery.Provider backed by a Consul agent.
type Discovery struct {
	mu          sync.RWMutex
	initialized *atomic.Bool
	registered  *atomic.Bool

	client      *api.Client
	serviceName string
	serviceID   string
	address     string
	port        int
	checkTTL    string

	cfg discovery.Config
}

var _ discovery.Provider = (*Discovery)(nil)

// NewDiscovery returns an uninitialized Consul Discovery provider.
func NewDiscovery() *Discovery {
	return &Discovery{
		initialized: atomic.NewBool(false),
		registered:  atomic.NewBool(false),
	}
}

// ID implements discovery.Provider.
func (d *Discovery) ID() string { return "consul" }

// SetConfig implements discovery.Provider. Recognized keys: "service_name",
// "service_id", "address", "port" (int), "check_ttl" (optional, e.g. "10s").
func (d *Discovery) SetConfig(config discovery.Config) error {
	serviceName, err := config.GetString("service_name")
	if err != nil {
		return err
	}
	serviceID, err := config.GetString("service_id")
	if err != nil {
		return err
	}
	address, err := config.GetString("address")
	if err != nil {
		return err
	}
	port, err := config.GetInt("port")
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = config
	d.serviceName = serviceName
	d.serviceID = serviceID
	d.address = address
	d.port = port
	if ttl, terr := config.GetString("check_ttl"); terr == nil {
		d.checkTTL = ttl
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
	if d.serviceName == "" {
		return discovery.ErrInvalidConfig
	}

	apiCfg := api.DefaultConfig()
	if addr, err := d.cfg.GetString("consul_address"); err == nil {
		apiCfg.Address = addr
	}
	if token, err := d.cfg.GetString("token"); err == nil {
		apiCfg.Token = token
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return fmt.Errorf("consul: failed to build client: %w", err)
	}
	if _, err := client.Agent().Self(); err != nil {
		return fmt.Errorf("consul: failed to reach agent: %w", err)
	}

	d.client = client
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

	reg := &api.AgentServiceRegistration{
		ID:      d.serviceID,
		Name:    d.serviceName,
		Address: d.address,
		Port:    d.port,
		Tags:    []string{"xoscar"},
	}
	if d.checkTTL != "" {
		reg.Check = &api.AgentServiceCheck{
			TTL:                            d.checkTTL,
			DeregisterCriticalServiceAfter: "1m",
		}
	}

	if err := d.client.Agent().ServiceRegister(reg); err != nil {
		return fmt.Errorf("consul: failed to register service: %w", err)
	}
	d.registered.Store(true)
	return nil
}

// Deregister implements discovery.Provider.
func (d *Discovery) Deregister() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered.Load() {
		return discovery.ErrNotRegistered
	}
	if err := d.client.Agent().ServiceDeregister(d.serviceID); err != nil {
		return fmt.Errorf("consul: failed to deregister service: %w", err)
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

	entries, _, err := d.client.Health().Service(d.serviceName, "", true, nil)
	if err != nil {
		return nil, fmt.Errorf("consul: failed to query service health: %w", err)
	}

	peers := goset.NewSet[string]()
	for _, entry := range entries {
		if entry.Service.ID == d.serviceID {
			continue
		}
		peers.Add(fmt.Sprintf("%s:%d", entry.Service.Address, entry.Service.Port))
	}
	return peers.ToSlice(), nil
}

// Close implements discovery.Provider.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized.Store(false)
	d.registered.Store(false)
	return nil
}
