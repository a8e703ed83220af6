package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luweizheng/xoscar/log"
)

func TestWatcherHotSwapsSafeField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: inproc://main\nlog_level: info\n"), 0o644))

	initial, err := Load(path, nil)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, log.DefaultLogger)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	var mu sync.Mutex
	var gotSafe []string
	w.OnChange(func(_, _ *Pool, safe []string) {
		mu.Lock()
		gotSafe = safe
		mu.Unlock()
	})

	require.NoError(t, os.WriteFile(path, []byte("address: inproc://main\nlog_level: debug\n"), 0o644))

	require.Eventually(t, func() bool {
		return w.Current().LogLevel == "debug"
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, gotSafe, "log_level")
}

func TestWatcherIgnoresUnsafeFieldChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: inproc://main\nn_subpools: 1\n"), 0o644))

	initial, err := Load(path, nil)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, log.DefaultLogger)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("address: inproc://main\nn_subpools: 9\n"), 0o644))

	// Give the watcher time to pick up and process the event; n_subpools
	// is unsafe, so it must never take effect.
	time.Sleep(500 * time.Millisecond)
	require.Equal(t, 1, w.Current().NSubPools)
}
