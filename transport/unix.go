package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/luweizheng/xoscar/channel"
)

// UnixDriver implements Driver for the unix scheme: same-host,
// different-process peers connected over a Unix domain socket, framed as
// in package envelope. On platforms without AF_UNIX this driver's Listen
// and Connect return the underlying net error unchanged; there is no
// named-pipe fallback in this build.
type UnixDriver struct {
	mu        sync.Mutex
	listeners map[string]net.Listener
}

var _ Driver = (*UnixDriver)(nil)

// NewUnixDriver returns an empty UnixDriver.
func NewUnixDriver() *UnixDriver {
	return &UnixDriver{listeners: make(map[string]net.Listener)}
}

func (d *UnixDriver) Scheme() Scheme { return SchemeUnix }

func (d *UnixDriver) Listen(address string, onAccept func(peerAddress string, sink channel.Sink)) error {
	pa, err := ParseAddress(address)
	if err != nil {
		return err
	}

	ln, err := net.Listen("unix", pa.Host)
	if err != nil {
		return fmt.Errorf("transport/unix: listen %s: %w", pa.Host, err)
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
			go onAccept(conn.RemoteAddr().String(), newFramedConn(conn))
		}
	}()
	return nil
}

func (d *UnixDriver) Connect(address string) (channel.Sink, error) {
	pa, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("unix", pa.Host)
	if err != nil {
		return nil, fmt.Errorf("transport/unix: dial %s: %w", pa.Host, err)
	}
	return newFramedConn(conn), nil
}

func (d *UnixDriver) Close() error {
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
