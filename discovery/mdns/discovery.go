// Package mdns implements a discovery.Provider backed by multicast DNS
// service discovery, for zero-configuration clusters on one LAN segment.
package mdns

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/discovery"
)

// Discovery is a discovery.Provider backed by mDNS/DNS-SD.
type Discovery struct {
	mu          sync.Mutex
	initialized *atomic.Bool
	registered  *atomic.Bool

	service  string
	domain   string
	instance string
	host     string
	port     int
	timeout  time.Duration

	server   *zeroconf.Server
	resolver *zeroconf.Resolver
}

var _ discovery.Provider = (*Discovery)(nil)

// NewDiscovery returns an uninitialized mDNS Discovery provider.
func NewDiscovery() *Discovery {
	return &Discovery{
		initialized: atomic.NewBool(false),
		registered:  atomic.NewBool(false),
		domain:      "local.",
		timeout:     2 * time.Second,
	}
}

// ID implements discovery.Provider.
func (d *Discovery) ID() string { return "mdns" }

// SetConfig implements discovery.Provider. Recognized keys: "service"
// (e.g. "_xoscar._tcp"), "domain" (optional, default "local."), "instance"
// (this pool's service instance name), "host", "port" (int),
// "timeout_ms" (optional, browse timeout).
func (d *Discovery) SetConfig(config discovery.Config) error {
	service, err := config.GetString("service")
	if err != nil {
		return err
	}
	instance, err := config.GetString("instance")
	if err != nil {
		return err
	}
	host, err := config.GetString("host")
	if err != nil {
		return err
	}
	port, err := config.GetInt("port")
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.service = service
	d.instance = instance
	d.host = host
	d.port = port
	if domain, derr := config.GetString("domain"); derr == nil {
		d.domain = domain
	}
	if ms, terr := config.GetInt("timeout_ms"); terr == nil {
		d.timeout = time.Duration(ms) * time.Millisecond
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
	if d.service == "" || d.instance == "" {
		return discovery.ErrInvalidConfig
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mdns: failed to build resolver: %w", err)
	}
	d.resolver = resolver
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

	server, err := zeroconf.Register(d.instance, d.service, d.domain, d.port, nil, nil)
	if err != nil {
		return fmt.Errorf("mdns: failed to register service: %w", err)
	}
	d.server = server
	d.registered.Store(true)
	return nil
}

// DiscoverPeers implements discovery.Provider.
func (d *Discovery) DiscoverPeers() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized.Load() {
		return nil, discovery.ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	seen := make(map[string]struct{})
	var peers []string

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			if entry.Instance == d.instance {
				continue
			}
			for _, addr := range entry.AddrIPv4 {
				peer := fmt.Sprintf("%s:%d", addr.String(), entry.Port)
				if _, dup := seen[peer]; !dup {
					seen[peer] = struct{}{}
					peers = append(peers, peer)
				}
			}
		}
	}()

	if err := d.resolver.Browse(ctx, d.service, d.domain, entries); err != nil {
		return nil, fmt.Errorf("mdns: failed to browse: %w", err)
	}
	<-ctx.Done()
	<-done
	return peers, nil
}

// Deregister implements discovery.Provider.
func (d *Discovery) Deregister() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered.Load() {
		return discovery.ErrNotRegistered
	}
	if d.server != nil {
		d.server.Shutdown()
		d.server = nil
	}
	d.registered.Store(false)
	return nil
}

// Close implements discovery.Provider.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized.Store(false)
	d.registered.Store(false)
	return nil
}
