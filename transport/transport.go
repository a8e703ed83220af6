// Package transport provides the concrete channel.Sink implementations
// selected by the router from a peer's address scheme: inproc (same
// process), unix (same host, different process), and tcp (cross-host,
// optional TLS). All three satisfy channel.Sink so the router and
// channel packages never know which driver backs a given peer.
package transport

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/luweizheng/xoscar/channel"
)

// Scheme identifies a transport driver by its address prefix.
type Scheme string

const (
	SchemeInproc Scheme = "inproc"
	SchemeUnix   Scheme = "unix"
	SchemeTCP    Scheme = "tcp"
	SchemeUCX    Scheme = "ucx"
)

// ParsedAddress is an address of the form scheme://host[:port][/subpool/<index>].
type ParsedAddress struct {
	Scheme     Scheme
	Host       string
	Port       string
	SubpoolIdx int  // -1 if absent
	HasSubpool bool
}

// ParseAddress parses the address syntax shared by every driver.
func ParseAddress(address string) (ParsedAddress, error) {
	u, err := url.Parse(address)
	if err != nil {
		return ParsedAddress{}, fmt.Errorf("transport: invalid address %q: %w", address, err)
	}

	scheme := Scheme(u.Scheme)
	switch scheme {
	case SchemeInproc, SchemeUnix, SchemeTCP, SchemeUCX:
	default:
		return ParsedAddress{}, fmt.Errorf("transport: unknown scheme %q", u.Scheme)
	}

	pa := ParsedAddress{Scheme: scheme, Host: u.Hostname(), Port: u.Port(), SubpoolIdx: -1}

	path := strings.Trim(u.Path, "/")
	if idx := strings.Index(path, "/subpool/"); idx >= 0 {
		var n int
		if _, serr := fmt.Sscanf(path[idx+len("/subpool/"):], "%d", &n); serr == nil {
			pa.SubpoolIdx = n
			pa.HasSubpool = true
		}
		path = path[:idx]
	} else if strings.HasPrefix(path, "subpool/") {
		var n int
		if _, serr := fmt.Sscanf(strings.TrimPrefix(path, "subpool/"), "%d", &n); serr == nil {
			pa.SubpoolIdx = n
			pa.HasSubpool = true
		}
		path = ""
	}

	if scheme == SchemeUnix && pa.Host == "" {
		// unix:///tmp/a.sock style: url.Parse puts the socket path in Path.
		pa.Host = "/" + path
	}

	return pa, nil
}

// baseAddress strips a /subpool/<index> suffix from address, leaving
// just scheme://host[:port]. TCPDriver and UnixDriver already collapse
// onto this form because Connect/Listen only ever look at pa.Host/pa.Port
// (net.Dial and net.Listen know nothing about the suffix); InprocDriver
// keys its listener map on the same normalized form so a dial to a
// subpool-suffixed address finds the one listener registered for its
// process, leaving the full address available to Deliver for demuxing.
func baseAddress(address string) (string, error) {
	pa, err := ParseAddress(address)
	if err != nil {
		return "", err
	}
	if !pa.HasSubpool {
		return address, nil
	}
	switch pa.Scheme {
	case SchemeUnix:
		return fmt.Sprintf("%s://%s", pa.Scheme, pa.Host), nil
	default:
		if pa.Port == "" {
			return fmt.Sprintf("%s://%s", pa.Scheme, pa.Host), nil
		}
		return fmt.Sprintf("%s://%s:%s", pa.Scheme, pa.Host, pa.Port), nil
	}
}

// Driver is a connection factory for one scheme: it accepts inbound
// connections and dials outbound ones, both producing channel.Sink values.
type Driver interface {
	// Scheme returns the address scheme this driver handles.
	Scheme() Scheme
	// Listen starts accepting inbound connections on address. onAccept is
	// invoked once per accepted peer with a ready Sink.
	Listen(address string, onAccept func(peerAddress string, sink channel.Sink)) error
	// Connect dials address and returns a ready Sink.
	Connect(address string) (channel.Sink, error)
	// Close releases listener resources.
	Close() error
}

// Registry selects a Driver by scheme, exactly as the router does when an
// outbound channel must be created for a new destination address.
type Registry struct {
	drivers map[Scheme]Driver
}

// NewRegistry returns a Registry preloaded with the inproc, unix, and tcp
// drivers. ucx is deliberately left unregistered: the address grammar
// accepts it (§ address syntax), but connecting to a ucx:// address fails
// with a ProtocolError since no RDMA/UCX datapath is implemented.
func NewRegistry() *Registry {
	r := &Registry{drivers: make(map[Scheme]Driver)}
	r.Register(NewInprocDriver())
	r.Register(NewUnixDriver())
	r.Register(NewTCPDriver(nil))
	return r
}

// Register installs d under d.Scheme(), replacing any previous driver for
// that scheme.
func (r *Registry) Register(d Driver) {
	r.drivers[d.Scheme()] = d
}

// Lookup returns the driver for address's scheme.
func (r *Registry) Lookup(address string) (Driver, error) {
	pa, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	d, ok := r.drivers[pa.Scheme]
	if !ok {
		return nil, fmt.Errorf("transport: no driver registered for scheme %q", pa.Scheme)
	}
	return d, nil
}
