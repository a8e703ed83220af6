package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/luweizheng/xoscar/log"
)

// ChangeCallback is notified after a hot-swap has taken effect. safe
// lists the field names that actually changed; old and new are distinct
// *Pool values, never the same pointer.
type ChangeCallback func(old, new *Pool, safe []string)

// debounce absorbs the burst of Write events most editors and atomic
// file-replace strategies produce for a single logical save.
const debounce = 300 * time.Millisecond

// Watcher watches a pool's config file for changes and hot-swaps the
// subset of settings safe to change without a restart: log level,
// heartbeat interval, and the lookup cache TTL. A change to anything
// else (address, codec, sub-pool count, discovery settings, ...) is
// logged and otherwise ignored until the pool is restarted.
type Watcher struct {
	path string
	log  log.Logger

	mu      sync.RWMutex
	current *Pool

	callbacksMu sync.RWMutex
	callbacks   []ChangeCallback

	fsWatcher *fsnotify.Watcher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher returns a Watcher serving initial until the file at path
// changes. initial is typically the result of Load(path, args) so the
// watcher's starting point already reflects the env/flag layers; only
// file-level changes are ever hot-swapped, since env and flags are
// fixed for the process's lifetime.
func NewWatcher(path string, initial *Pool, logger log.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	if logger == nil {
		logger = log.DefaultLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:      path,
		log:       logger,
		current:   initial.Clone(),
		fsWatcher: fsWatcher,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Current returns the live config. The returned value is never mutated
// in place; a hot-swap replaces the pointer a future Current() call
// returns, so a caller that stashes one snapshot sees a consistent view.
func (w *Watcher) Current() *Pool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after every hot-swap, including
// ones where safe is empty (the file changed but nothing hot-swappable
// did).
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching the config file. Safe to call at most once.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.path); err != nil {
		return fmt.Errorf("config: watch %s: %w", w.path, err)
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops watching and waits for the watch goroutine to exit.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Errorf("config: watch error: %v", err)
		}
	}
}

// reload re-reads the config file, applies only the safe-to-change
// fields onto the live config, and logs-and-ignores any other field
// that differs from what is currently running.
func (w *Watcher) reload() {
	fresh := Default()
	if err := loadFile(w.path, fresh); err != nil {
		w.log.Errorf("config: reload %s: %v", w.path, err)
		return
	}
	if err := fresh.Validate(); err != nil {
		w.log.Errorf("config: reloaded %s failed validation, ignoring: %v", w.path, err)
		return
	}

	w.mu.Lock()
	old := w.current
	next := old.Clone()

	var safe []string
	if fresh.LogLevel != old.LogLevel {
		next.LogLevel = fresh.LogLevel
		safe = append(safe, "log_level")
	}
	if fresh.HeartbeatInterval != old.HeartbeatInterval {
		next.HeartbeatInterval = fresh.HeartbeatInterval
		safe = append(safe, "heartbeat_interval")
	}
	if fresh.LookupTTL != old.LookupTTL {
		next.LookupTTL = fresh.LookupTTL
		safe = append(safe, "lookup_ttl")
	}

	for name, changed := range map[string]bool{
		"address":             fresh.Address != old.Address,
		"n_subpools":          fresh.NSubPools != old.NSubPools,
		"worker_threads":      fresh.WorkerThreads != old.WorkerThreads,
		"codec":               fresh.Codec != old.Codec,
		"max_envelope_bytes":  fresh.MaxEnvelopeBytes != old.MaxEnvelopeBytes,
		"graceful_deadline":   fresh.GracefulDeadline != old.GracefulDeadline,
		"restart_policy":      fresh.RestartPolicy != old.RestartPolicy,
		"discovery.provider":  fresh.Discovery.Provider != old.Discovery.Provider,
		"heartbeat_misses":    fresh.HeartbeatMisses != old.HeartbeatMisses,
	} {
		if changed {
			w.log.Warnf("config: %s changed in %s but requires a restart to take effect, ignoring", name, w.path)
		}
	}

	w.current = next
	w.mu.Unlock()

	if len(safe) > 0 {
		w.log.Infof("config: hot-swapped %v from %s", safe, w.path)
	}

	w.callbacksMu.RLock()
	callbacks := make([]ChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		go cb(old, next, safe)
	}
}
