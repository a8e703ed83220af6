package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/luweizheng/xoscar/channel"
	xoscartls "github.com/luweizheng/xoscar/tls"
)

// TCPDriver implements Driver for the tcp scheme: cross-host peers,
// TCP_NODELAY set on every connection, optionally wrapped in mTLS when a
// *tls.Info is supplied. Listen uses Info.ServerConfig and Connect uses
// Info.ClientConfig, since a mutual-TLS server and the clients dialing it
// legitimately need different tls.Config values (ClientAuth vs none) even
// though they share one root CA — see secureconn.SecureConn, which builds
// exactly this pair from a CA/cert/key. The RDMA/UCX datapath negotiated
// in the Python original's handshake for large payloads is out of scope;
// a ucx address is rejected before a TCPDriver is ever consulted (see
// Registry.Lookup).
type TCPDriver struct {
	mu        sync.Mutex
	listeners map[string]net.Listener
	tlsInfo   *xoscartls.Info
}

var _ Driver = (*TCPDriver)(nil)

// NewTCPDriver returns a TCPDriver. tlsInfo may be nil for plaintext.
func NewTCPDriver(tlsInfo *xoscartls.Info) *TCPDriver {
	return &TCPDriver{listeners: make(map[string]net.Listener), tlsInfo: tlsInfo}
}

func (d *TCPDriver) Scheme() Scheme { return SchemeTCP }

func (d *TCPDriver) Listen(address string, onAccept func(peerAddress string, sink channel.Sink)) error {
	pa, err := ParseAddress(address)
	if err != nil {
		return err
	}
	hostPort := net.JoinHostPort(pa.Host, pa.Port)

	var ln net.Listener
	if d.tlsInfo != nil {
		ln, err = tls.Listen("tcp", hostPort, d.tlsInfo.ServerConfig)
	} else {
		ln, err = net.Listen("tcp", hostPort)
	}
	if err != nil {
		return fmt.Errorf("transport/tcp: listen %s: %w", hostPort, err)
	}

	d.mu.Lock()
	d.listeners[address] = ln
	d.mu.Unlock()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			setNoDelay(conn)
			go onAccept(conn.RemoteAddr().String(), newFramedConn(conn))
		}
	}()
	return nil
}

func (d *TCPDriver) Connect(address string) (channel.Sink, error) {
	pa, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	hostPort := net.JoinHostPort(pa.Host, pa.Port)

	var conn net.Conn
	if d.tlsInfo != nil {
		conn, err = tls.Dial("tcp", hostPort, d.tlsInfo.ClientConfig)
	} else {
		conn, err = net.Dial("tcp", hostPort)
	}
	if err != nil {
		return nil, fmt.Errorf("transport/tcp: dial %s: %w", hostPort, err)
	}
	setNoDelay(conn)
	return newFramedConn(conn), nil
}

func (d *TCPDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for addr, ln := range d.listeners {
		if err := ln.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.listeners, addr)
	}
	return firstErr
}

func setNoDelay(conn net.Conn) {
	type noDelaySetter interface {
		SetNoDelay(bool) error
	}
	if tc, ok := conn.(noDelaySetter); ok {
		_ = tc.SetNoDelay(true)
	} else if tlsConn, ok := conn.(*tls.Conn); ok {
		if tc, ok := tlsConn.NetConn().(noDelaySetter); ok {
			_ = tc.SetNoDelay(true)
		}
	}
}
