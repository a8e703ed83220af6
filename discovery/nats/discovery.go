// Package nats implements a discovery.Provider backed by NATS request/reply:
// peers answer a broadcast "who's there" subject with their own address.
package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/discovery"
)

// Discovery is a discovery.Provider backed by a NATS server.
type Discovery struct {
	mu          sync.Mutex
	initialized *atomic.Bool
	registered  *atomic.Bool

	serverURL string
	subject   string
	self      string
	timeout   time.Duration

	conn *nats.Conn
	sub  *nats.Subscription
}

var _ discovery.Provider = (*Discovery)(nil)

// NewDiscovery returns an uninitialized NATS Discovery provider.
func NewDiscovery() *Discovery {
	return &Discovery{
		initialized: atomic.NewBool(false),
		registered:  atomic.NewBool(false),
		timeout:     time.Second,
	}
}

// ID implements discovery.Provider.
func (d *Discovery) ID() string { return "nats" }

// SetConfig implements discovery.Provider. Recognized keys: "server_url",
// "subject" (the discovery broadcast subject), "self" (this pool's
// address, as returned to peers), "timeout_ms" (optional).
func (d *Discovery) SetConfig(config discovery.Config) error {
	serverURL, err := config.GetString("server_url")
	if err != nil {
		return err
	}
	subject, err := config.GetString("subject")
	if err != nil {
		return err
	}
	self, err := config.GetString("self")
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.serverURL = serverURL
	d.subject = subject
	d.self = self
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
	if d.serverURL == "" || d.subject == "" || d.self == "" {
		return discovery.ErrInvalidConfig
	}

	var conn *nats.Conn
	retrier := retry.NewRetrier(5, 100*time.Millisecond, 2*time.Second)
	err := retrier.Run(func() error {
		var connErr error
		conn, connErr = nats.Connect(d.serverURL)
		return connErr
	})
	if err != nil {
		return fmt.Errorf("nats: failed to connect: %w", err)
	}

	d.conn = conn
	d.initialized.Store(true)
	return nil
}

// Register implements discovery.Provider. It subscribes to the discovery
// subject and answers "who's there" requests with this pool's address.
func (d *Discovery) Register() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized.Load() {
		return discovery.ErrNotInitialized
	}
	if d.registered.Load() {
		return discovery.ErrAlreadyRegistered
	}

	sub, err := d.conn.Subscribe(d.subject, func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		_ = d.conn.Publish(msg.Reply, []byte(d.self))
	})
	if err != nil {
		return fmt.Errorf("nats: failed to subscribe: %w", err)
	}

	d.sub = sub
	d.registered.Store(true)
	return nil
}

// DiscoverPeers implements discovery.Provider. It broadcasts a request on
// the discovery subject and collects replies until timeout.
func (d *Discovery) DiscoverPeers() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized.Load() {
		return nil, discovery.ErrNotInitialized
	}
	if !d.registered.Load() {
		return nil, discovery.ErrNotRegistered
	}

	inbox := nats.NewInbox()
	recv := make(chan *nats.Msg, 64)
	sub, err := d.conn.ChanSubscribe(inbox, recv)
	if err != nil {
		return nil, fmt.Errorf("nats: failed to bind reply subscription: %w", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	if err := d.conn.PublishRequest(d.subject, inbox, []byte(d.self)); err != nil {
		return nil, fmt.Errorf("nats: failed to broadcast: %w", err)
	}

	seen := make(map[string]struct{})
	deadline := time.After(d.timeout)
	for {
		select {
		case msg := <-recv:
			addr := string(msg.Data)
			if addr == "" || addr == d.self {
				continue
			}
			seen[addr] = struct{}{}
		case <-deadline:
			peers := make([]string, 0, len(seen))
			for addr := range seen {
				peers = append(peers, addr)
			}
			return peers, nil
		}
	}
}

// Deregister implements discovery.Provider.
func (d *Discovery) Deregister() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered.Load() {
		return discovery.ErrNotRegistered
	}
	if d.sub != nil {
		if err := d.sub.Unsubscribe(); err != nil {
			return fmt.Errorf("nats: failed to unsubscribe: %w", err)
		}
		d.sub = nil
	}
	d.registered.Store(false)
	return nil
}

// Close implements discovery.Provider.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.initialized.Store(false)
	d.registered.Store(false)
	return nil
}
