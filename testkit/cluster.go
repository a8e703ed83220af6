package testkit

import (
	"fmt"
	"testing"

	"github.com/luweizheng/xoscar/transport"
)

// Cluster wires N Kits together so a message created on one kernel can be
// routed to an actor hosted by another, exercising Router/transport code
// paths a single-Kit test cannot reach. It is the adapted equivalent of the
// teacher's multi-node TestNode helper, scoped down to this runtime's
// flat, address-routed actor model: no discovery provider is needed for an
// in-process cluster, but every Kit must share one transport.Registry (and
// so one InprocDriver, with its one process-wide listener table) for a
// dial from one Kit's router to reach another's Listen call — two Kits
// each built with their own transport.NewRegistry() would never see each
// other's listeners. NewCluster builds that shared registry once and
// passes it to every Kit via WithTransportRegistry.
type Cluster struct {
	Kits []*Kit
}

// NewCluster builds a Cluster of n Kits, each with its own endpoint of the
// form "inproc://node-<i>", sharing one transport.Registry so they can
// dial each other.
func NewCluster(t *testing.T, n int, opts ...Option) *Cluster {
	t.Helper()
	shared := transport.NewRegistry()
	kits := make([]*Kit, n)
	for i := 0; i < n; i++ {
		kitOpts := append([]Option{WithTransportRegistry(shared)}, opts...)
		kits[i] = New(t, fmt.Sprintf("inproc://node-%d", i), kitOpts...)
	}
	return &Cluster{Kits: kits}
}

// Node returns the i'th Kit in the cluster.
func (c *Cluster) Node(i int) *Kit { return c.Kits[i] }
