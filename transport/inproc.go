package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luweizheng/xoscar/channel"
)

// inprocSink is a pair of in-memory queues buffered to 4096 frames per
// direction (WriteFrame blocks while the queue is full): the intra-process
// driver for same-process delivery. No serialization occurs on this path; envelopes are
// still framed by callers for a uniform Sink contract, but the codec
// bypass flag lets the actor kernel skip decode/encode entirely when
// both ends are in the same process.
type inprocSink struct {
	out    chan []byte
	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newInprocPair() (*inprocSink, *inprocSink) {
	a := make(chan []byte, 4096)
	b := make(chan []byte, 4096)
	closedA := make(chan struct{})
	closedB := make(chan struct{})
	left := &inprocSink{out: a, in: b, closed: closedA}
	right := &inprocSink{out: b, in: a, closed: closedB}
	return left, right
}

func (s *inprocSink) WriteFrame(frame []byte) error {
	select {
	case s.out <- frame:
		return nil
	case <-s.closed:
		return errors.New("inproc: sink closed")
	}
}

func (s *inprocSink) ReadFrame() ([]byte, error) {
	select {
	case f := <-s.in:
		return f, nil
	case <-s.closed:
		return nil, errors.New("inproc: sink closed")
	}
}

func (s *inprocSink) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// InprocDriver implements Driver for the inproc scheme: it keeps a
// process-local registry of listening addresses so Connect can find the
// matching Listen call without any real I/O.
type InprocDriver struct {
	mu        sync.Mutex
	listeners map[string]func(peerAddress string, sink channel.Sink)
}

var _ Driver = (*InprocDriver)(nil)

// NewInprocDriver returns an empty InprocDriver.
func NewInprocDriver() *InprocDriver {
	return &InprocDriver{listeners: make(map[string]func(string, channel.Sink))}
}

func (d *InprocDriver) Scheme() Scheme { return SchemeInproc }

func (d *InprocDriver) Listen(address string, onAccept func(peerAddress string, sink channel.Sink)) error {
	base, err := baseAddress(address)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.listeners[base]; exists {
		return fmt.Errorf("transport/inproc: %s already listening", base)
	}
	d.listeners[base] = onAccept
	return nil
}

func (d *InprocDriver) Connect(address string) (channel.Sink, error) {
	base, err := baseAddress(address)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	onAccept, ok := d.listeners[base]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transport/inproc: no listener at %s", base)
	}

	clientSide, serverSide := newInprocPair()
	go onAccept(address, serverSide)
	return clientSide, nil
}

func (d *InprocDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = make(map[string]func(string, channel.Sink))
	return nil
}
