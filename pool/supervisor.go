package pool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/luweizheng/xoscar/actor"
	"github.com/luweizheng/xoscar/deadletter"
	"github.com/luweizheng/xoscar/envelope"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
	"github.com/luweizheng/xoscar/extension"
	"github.com/luweizheng/xoscar/internal/ticker"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/router"
)

// RestartPolicy controls what the supervisor does to a sub-pool it has
// just marked Down.
type RestartPolicy uint8

const (
	// RestartOnFailure rebuilds the sub-pool's kernel in place.
	RestartOnFailure RestartPolicy = iota
	// RestartNever leaves the sub-pool Down until ShutdownPool.
	RestartNever
)

// DefaultHeartbeatInterval and DefaultHeartbeatMisses match the default failure policy:
// two missed heartbeats mark a sub-pool Down.
const (
	DefaultHeartbeatInterval = 2 * time.Second
	DefaultHeartbeatMisses   = 2
	DefaultGracefulDeadline  = 10 * time.Second
)

// Config bundles the supervisor's tunables; zero-value fields fall back
// to the defaults above.
type Config struct {
	NSubPools         int
	WorkerThreads     int
	HeartbeatInterval time.Duration
	HeartbeatMisses   int
	GracefulDeadline  time.Duration
	RestartPolicy     RestartPolicy
	Placement         Policy

	// ProcessIsolation runs each sub-pool as its own re-exec'd OS process
	// instead of an in-process actor.Kernel. Requires mainAddress to use
	// the tcp or unix scheme — a child process cannot reach an inproc
	// listener, which lives only in this process's memory. The embedding
	// main() must call pool.MaybeRunSubPoolWorker before it reaches the
	// code that constructs a Supervisor, or every spawned child will loop
	// back into its own Supervisor instead of running as a worker.
	ProcessIsolation bool
	// LogLevel is passed through to an isolated sub-pool's own logger;
	// ignored when !ProcessIsolation.
	LogLevel string
}

func (c Config) withDefaults() Config {
	if c.NSubPools <= 0 {
		c.NSubPools = 1
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HeartbeatMisses <= 0 {
		c.HeartbeatMisses = DefaultHeartbeatMisses
	}
	if c.GracefulDeadline <= 0 {
		c.GracefulDeadline = DefaultGracefulDeadline
	}
	if c.Placement == nil {
		c.Placement = NewRoundRobin()
	}
	return c
}

// Supervisor is the pool supervisor: it owns N sub-pools, decides
// where a new actor lands, probes sub-pool health on a heartbeat, and
// drives graceful or forced shutdown.
type Supervisor struct {
	mainAddress string
	cfg         Config

	ext *extension.Registry
	rtr *router.Router
	dl  *deadletter.Stream
	log log.Logger

	subPools []*subPool
	byAddr   map[string]*subPool

	hb      *ticker.Ticker
	stopHB  chan struct{}
	hbOnce  sync.Once
	stopped chan struct{}
}

// New constructs a Supervisor and its N sub-pools, each with its own
// kernel, and installs the Supervisor itself as rtr's Deliverer —
// callers run one Router per process and one Supervisor per Router, so
// the router's single Deliverer must be something that can demux to the
// right sub-pool's kernel; see (*Supervisor).Deliver.
func New(mainAddress string, cfg Config, ext *extension.Registry, rtr *router.Router, dl *deadletter.Stream, logger log.Logger) (*Supervisor, error) {
	cfg = cfg.withDefaults()
	s := &Supervisor{
		mainAddress: mainAddress,
		cfg:         cfg,
		ext:         ext,
		rtr:         rtr,
		dl:          dl,
		log:         logger,
		subPools:    make([]*subPool, cfg.NSubPools),
		byAddr:      make(map[string]*subPool, cfg.NSubPools),
		hb:          ticker.New(cfg.HeartbeatInterval),
		stopHB:      make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	if cfg.ProcessIsolation {
		binary, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("pool: process isolation: %w", err)
		}
		for i := 0; i < cfg.NSubPools; i++ {
			address, err := isolatedSubAddress(mainAddress, i)
			if err != nil {
				return nil, err
			}
			sp, err := newIsolatedSubPool(i, binary, address, rtr, cfg.WorkerThreads, cfg.LogLevel)
			if err != nil {
				return nil, err
			}
			s.subPools[i] = sp
			s.byAddr[sp.address] = sp
		}
	} else {
		for i := 0; i < cfg.NSubPools; i++ {
			sp := newSubPool(i, subAddress(mainAddress, i), ext, rtr, dl, cfg.WorkerThreads)
			s.subPools[i] = sp
			s.byAddr[sp.address] = sp
		}
	}

	rtr.SetDeliverer(s)
	return s, nil
}

var _ router.Deliverer = (*Supervisor)(nil)

// Deliver implements router.Deliverer: it routes an inbound envelope to
// the sub-pool named by the envelope's destination address, per the
// `/subpool/<index>` addressing suffix. An envelope addressed to the
// main pool address itself (no subpool suffix) or to an unknown sub-pool
// is reported as a dead letter instead of silently dropped.
func (s *Supervisor) Deliver(e *envelope.Envelope) {
	sp, ok := s.byAddr[e.To.Endpoint]
	if !ok {
		s.dl.Publish(e, "no sub-pool hosts address "+e.To.Endpoint)
		return
	}
	sp.Kernel().Deliver(e)
}

// Start begins heartbeat probing. It must be called once, after New.
func (s *Supervisor) Start() {
	s.hb.Start()
	go s.heartbeatLoop()
}

func (s *Supervisor) heartbeatLoop() {
	for {
		select {
		case <-s.hb.Ticks:
			s.probeAll()
		case <-s.stopHB:
			return
		}
	}
}

// probeAll is a liveness check. A non-isolated sub-pool is probed
// in-process via Kernel.Alive, since it cannot hang independently of the
// goroutine calling it. An isolated sub-pool is probed via its child's
// exit status instead (subPool.alive, backed by the goroutine awaiting
// cmd.Wait in spawn) — that goroutine sees a crash immediately, while
// the heartbeat tick here is what eventually promotes a lingering but
// unresponsive child to Down.
func (s *Supervisor) probeAll() {
	for _, sp := range s.subPools {
		if sp.alive() {
			sp.recordHeartbeat()
			continue
		}
		if sp.bumpMissed(s.cfg.HeartbeatMisses) {
			s.onSubPoolDown(sp)
		}
	}
}

// onSubPoolDown implements the failure-detection fallout:
// fail every actor hosted there with SubPoolLost, deregister them, and
// restart if the policy says to.
func (s *Supervisor) onSubPoolDown(sp *subPool) {
	s.log.Warnf("pool: sub-pool %d (%s) marked Down", sp.index, sp.address)
	if !sp.isolated {
		sp.Kernel().FailAll(xoscarerrors.NewSubPoolLost(sp.index))
	}

	if s.cfg.RestartPolicy == RestartOnFailure {
		sp.reset(s.ext, s.rtr, s.dl, s.cfg.WorkerThreads)
		s.log.Infof("pool: sub-pool %d restarted", sp.index)
	}
}

// CreateActor resolves a target sub-pool via the configured placement
// policy and creates the actor there — locally, for an in-process
// sub-pool, or over the wire via the sub-pool's $control actor for an
// isolated one.
func (s *Supervisor) CreateActor(ctx context.Context, classID string, initArgs []byte, uid, placementKey string) (actor.Ref, error) {
	idx := s.cfg.Placement.Select(len(s.subPools), placementKey, func(i int) int { return s.subPools[i].load() })
	sp := s.subPools[idx]

	if !sp.isolated {
		return sp.Kernel().CreateActor(ctx, classID, initArgs, uid)
	}

	resp, err := sp.controlRequest(ctx, actor.NewCreateActorRequest(classID, initArgs, uid))
	if err != nil {
		return actor.Ref{}, err
	}
	if resp.Error != "" {
		return actor.Ref{}, fmt.Errorf("pool: sub-pool %d: %s", sp.index, resp.Error)
	}
	sp.approxLoad.Add(1)
	return actor.NewRef(resp.UID, sp.address), nil
}

// SubPoolAt exposes sub-pool i's kernel, e.g. so an IndexServer actor can
// be created on every sub-pool at startup. Returns nil for an isolated
// sub-pool, whose actors live in a separate process with no local Kernel
// value to hand back; use CreateActor instead, which works either way.
func (s *Supervisor) SubPoolAt(i int) *actor.Kernel {
	return s.subPools[i].Kernel()
}

// NSubPools returns the number of configured sub-pools.
func (s *Supervisor) NSubPools() int { return len(s.subPools) }

// Shutdown implements the graceful-then-forced shutdown:
// every sub-pool is given up to gracefulDeadline to drain, in parallel,
// before its kernel's worker pool is stopped outright.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.hbOnce.Do(func() { close(s.stopHB) })

	deadline := s.cfg.GracefulDeadline
	var wg sync.WaitGroup
	wg.Add(len(s.subPools))
	for _, sp := range s.subPools {
		sp := sp
		go func() {
			defer wg.Done()
			sp.shutdown(ctx, deadline)
		}()
	}
	wg.Wait()
	close(s.stopped)
}

// Stopped is closed once Shutdown has finished draining every sub-pool.
func (s *Supervisor) Stopped() <-chan struct{} { return s.stopped }
