package static

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luweizheng/xoscar/discovery"
)

func TestStaticDiscovery(t *testing.T) {
	d := NewDiscovery()
	cfg := discovery.NewConfig()
	cfg["self"] = "tcp://10.0.0.1:4000"
	cfg["peers"] = []string{"tcp://10.0.0.1:4000", "tcp://10.0.0.2:4000", "tcp://10.0.0.3:4000"}

	require.NoError(t, d.SetConfig(cfg))
	require.NoError(t, d.Initialize())
	require.ErrorIs(t, d.Initialize(), discovery.ErrAlreadyInitialized)

	require.NoError(t, d.Register())
	require.ErrorIs(t, d.Register(), discovery.ErrAlreadyRegistered)

	peers, err := d.DiscoverPeers()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"tcp://10.0.0.2:4000", "tcp://10.0.0.3:4000"}, peers)

	require.NoError(t, d.Deregister())
	require.ErrorIs(t, d.Deregister(), discovery.ErrNotRegistered)
	require.NoError(t, d.Close())
}
