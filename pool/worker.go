package pool

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/luweizheng/xoscar/actor"
	"github.com/luweizheng/xoscar/deadletter"
	"github.com/luweizheng/xoscar/extension"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/router"
	"github.com/luweizheng/xoscar/transport"
)

// Environment variables a Supervisor running with Config.ProcessIsolation
// sets on a sub-pool's child process, read back by MaybeRunSubPoolWorker.
const (
	envWorker        = "XOSCAR_SUBPOOL_WORKER"
	envWorkerAddress = "XOSCAR_SUBPOOL_ADDRESS"
	envWorkerIndex   = "XOSCAR_SUBPOOL_INDEX"
	envWorkerThreads = "XOSCAR_SUBPOOL_WORKER_THREADS"
	envWorkerLogLvl  = "XOSCAR_SUBPOOL_LOG_LEVEL"
)

// MaybeRunSubPoolWorker checks whether this process was re-exec'd by a
// Supervisor configured with ProcessIsolation, and if so runs as that
// sub-pool's worker — a Router and a Kernel, nothing else — until SIGTERM,
// then exits the process directly rather than returning. A process not
// re-exec'd this way returns false immediately.
//
// Call this early in main(), right after registering actor
// classes on ext: the worker carries no arguments describing which
// classes it hosts, so it depends on the embedding main() having already
// run the exact same registration code the parent process did before the
// env var this function checks was ever set.
func MaybeRunSubPoolWorker(ext *extension.Registry) bool {
	if os.Getenv(envWorker) != "1" {
		return false
	}

	address := os.Getenv(envWorkerAddress)
	index, _ := strconv.Atoi(os.Getenv(envWorkerIndex))
	workerThreads, _ := strconv.Atoi(os.Getenv(envWorkerThreads))

	logger := log.NewZap(log.ParseLevel(os.Getenv(envWorkerLogLvl)), os.Stderr)
	defer logger.Flush()

	rtr := router.New(address, transport.NewRegistry(), nil, logger)
	dl := deadletter.NewStream(deadletter.WithLogger(logger))
	dl.Start()

	k := actor.NewKernel(address, ext, rtr, dl, logger, workerThreads)
	rtr.SetDeliverer(k)

	if err := rtr.Listen(); err != nil {
		logger.Errorf("pool: sub-pool %d worker: listen on %s: %v", index, address, err)
		os.Exit(1)
	}
	logger.Infof("pool: sub-pool %d worker listening at %s (pid %d)", index, address, os.Getpid())

	notifier := make(chan os.Signal, 1)
	signal.Notify(notifier, syscall.SIGTERM, syscall.SIGINT)
	<-notifier

	k.Shutdown()
	dl.Stop()
	os.Exit(0)
	return true // unreachable; satisfies every code path returning a bool
}
