// Command xoscpool runs one pool process: it loads configuration,
// builds the router, extension registry, discovery provider, and pool
// supervisor, then blocks until an OS signal or a forced termination
// asks it to shut down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luweizheng/xoscar/config"
	"github.com/luweizheng/xoscar/deadletter"
	"github.com/luweizheng/xoscar/discovery"
	"github.com/luweizheng/xoscar/discovery/consul"
	"github.com/luweizheng/xoscar/discovery/etcd"
	"github.com/luweizheng/xoscar/discovery/gossip"
	"github.com/luweizheng/xoscar/discovery/mdns"
	"github.com/luweizheng/xoscar/discovery/nats"
	"github.com/luweizheng/xoscar/discovery/static"
	"github.com/luweizheng/xoscar/extension"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/pool"
	"github.com/luweizheng/xoscar/router"
	"github.com/luweizheng/xoscar/transport"
)

// Exit codes, as specified: 0 clean, 1 unrecoverable, 2 config error, 137
// forced termination (SIGKILL-equivalent: the graceful deadline elapsed).
const (
	exitClean         = 0
	exitUnrecoverable = 1
	exitConfigError   = 2
	exitForced        = 137
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	configPath := extractConfigFlag(args)
	remaining := stripConfigFlag(args)

	cfg, err := config.Load(configPath, remaining)
	if err != nil {
		fmt.Fprintln(os.Stderr, "xoscpool:", err)
		return exitConfigError
	}
	resolved, err := cfg.Resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, "xoscpool:", err)
		return exitConfigError
	}

	logger := log.NewZap(log.ParseLevel(resolved.LogLevel), os.Stdout)
	defer logger.Flush()

	provider, err := buildDiscoveryProvider(resolved.Discovery)
	if err != nil {
		logger.Errorf("xoscpool: discovery: %v", err)
		return exitConfigError
	}

	ext := extension.New()
	if pool.MaybeRunSubPoolWorker(ext) {
		// Re-exec'd as a sub-pool worker under Config.ProcessIsolation;
		// it runs until SIGTERM and exits directly, never reaching here.
		return exitClean
	}

	dl := deadletter.NewStream(deadletter.WithLogger(logger))
	dl.Start()
	defer dl.Stop()

	rtr := router.New(resolved.Address, transport.NewRegistry(), nil, logger)
	rtr.SetHeartbeatConfig(resolved.HeartbeatInterval, resolved.HeartbeatMisses)
	if err := rtr.Listen(); err != nil {
		logger.Errorf("xoscpool: listen on %s: %v", resolved.Address, err)
		return exitUnrecoverable
	}

	restart := pool.RestartOnFailure
	if !resolved.RestartOnFailure {
		restart = pool.RestartNever
	}
	sup, err := pool.New(resolved.Address, pool.Config{
		NSubPools:         resolved.NSubPools,
		WorkerThreads:     resolved.WorkerThreads,
		HeartbeatInterval: resolved.HeartbeatInterval,
		HeartbeatMisses:   resolved.HeartbeatMisses,
		GracefulDeadline:  resolved.GracefulDeadline,
		RestartPolicy:     restart,
		ProcessIsolation:  resolved.ProcessIsolation,
		LogLevel:          resolved.LogLevel,
	}, ext, rtr, dl, logger)
	if err != nil {
		logger.Errorf("xoscpool: %v", err)
		return exitUnrecoverable
	}
	sup.Start()

	if provider != nil {
		if err := startDiscovery(provider, resolved); err != nil {
			logger.Errorf("xoscpool: discovery: %v", err)
			return exitUnrecoverable
		}
		defer func() {
			_ = provider.Deregister()
			_ = provider.Close()
		}()
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, cfg, logger)
		if err != nil {
			logger.Warnf("xoscpool: config watch disabled: %v", err)
		} else {
			watcher.OnChange(func(_, _ *config.Pool, safe []string) {
				if len(safe) == 0 {
					return
				}
				logger.Infof("xoscpool: applied hot-swappable config changes: %v", safe)
			})
			if err := watcher.Start(); err != nil {
				logger.Warnf("xoscpool: config watch disabled: %v", err)
			} else {
				defer watcher.Stop()
			}
		}
	}

	logger.Infof("xoscpool: listening at %s with %d sub-pool(s)", resolved.Address, resolved.NSubPools)

	return waitForShutdown(sup, resolved.GracefulDeadline, logger)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then drains the
// supervisor's sub-pools within the graceful deadline. A signal received
// a second time, or a drain that overruns the deadline, forces exit 137
// rather than hanging the process indefinitely.
func waitForShutdown(sup *pool.Supervisor, gracefulDeadline time.Duration, logger log.Logger) int {
	notifier := make(chan os.Signal, 1)
	signal.Notify(notifier, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(notifier)

	sig := <-notifier
	logger.Infof("xoscpool: received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), gracefulDeadline)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sup.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("xoscpool: shutdown complete")
		return exitClean
	case <-ctx.Done():
		logger.Errorf("xoscpool: graceful deadline exceeded, forcing exit")
		return exitForced
	case <-notifier:
		logger.Errorf("xoscpool: second signal received, forcing exit")
		return exitForced
	}
}

// buildDiscoveryProvider resolves cfg.Discovery.Provider to a concrete
// discovery.Provider, or nil when no provider name is configured (the
// common single-host case, where peers are reached by address alone).
func buildDiscoveryProvider(cfg config.Discovery) (discovery.Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "static":
		return static.NewDiscovery(), nil
	case "consul":
		return consul.NewDiscovery(), nil
	case "etcd":
		return etcd.NewDiscovery(), nil
	case "nats":
		return nats.NewDiscovery(), nil
	case "mdns":
		return mdns.NewDiscovery(), nil
	case "gossip":
		return gossip.NewDiscovery(), nil
	default:
		return nil, fmt.Errorf("xoscpool: unknown discovery provider %q", cfg.Provider)
	}
}

func startDiscovery(provider discovery.Provider, resolved *config.Resolved) error {
	cfg := discovery.NewConfig()
	for k, v := range resolved.Discovery.Config {
		cfg[k] = v
	}
	if err := provider.SetConfig(cfg); err != nil {
		return err
	}
	if err := provider.Initialize(); err != nil {
		return err
	}
	return provider.Register()
}

// extractConfigFlag pulls --config out of args without disturbing the
// rest, since config.Load's own flag set (applyFlags) does not define
// it: the config file path has to be known before Load can read it.
func extractConfigFlag(args []string) string {
	for i, a := range args {
		if a == "--config" || a == "-config" {
			if i+1 < len(args) {
				return args[i+1]
			}
		}
		const prefix1, prefix2 = "--config=", "-config="
		if len(a) > len(prefix1) && a[:len(prefix1)] == prefix1 {
			return a[len(prefix1):]
		}
		if len(a) > len(prefix2) && a[:len(prefix2)] == prefix2 {
			return a[len(prefix2):]
		}
	}
	return ""
}

// stripConfigFlag returns args with any --config/-config entry (and its
// value) removed, since config.Load's own flag set does not define it
// and would otherwise reject the whole command line.
func stripConfigFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--config" || a == "-config" {
			i++
			continue
		}
		const prefix1, prefix2 = "--config=", "-config="
		if len(a) > len(prefix1) && a[:len(prefix1)] == prefix1 {
			continue
		}
		if len(a) > len(prefix2) && a[:len(prefix2)] == prefix2 {
			continue
		}
		out = append(out, a)
	}
	return out
}
