package pool

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/actor"
	"github.com/luweizheng/xoscar/deadletter"
	"github.com/luweizheng/xoscar/envelope"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
	"github.com/luweizheng/xoscar/extension"
	"github.com/luweizheng/xoscar/future"
	"github.com/luweizheng/xoscar/router"
	"github.com/luweizheng/xoscar/transport"
)

// Status is a sub-pool's health as seen by the supervisor's heartbeat probe.
type Status uint8

const (
	Up Status = iota
	Down
)

func (s Status) String() string {
	if s == Down {
		return "Down"
	}
	return "Up"
}

// subPool is one worker unit of the pool. Its isolation from the other
// sub-pools is either in-process (an unshared Kernel and worker pool,
// sharing this OS process and its fate) or a real OS process boundary
// (Config.ProcessIsolation: a re-exec'd child reachable only over the
// wire, whose crash cannot corrupt or stall any other sub-pool's
// goroutines) — see isolated.
type subPool struct {
	index   int
	address string

	isolated bool

	// kernel is non-nil only when !isolated: the sub-pool's actors live
	// in this process and this Kernel hosts them directly.
	kernel *actor.Kernel

	// rtr/workerThreads/logLevel are retained for isolated sub-pools so
	// reset can re-spawn a replacement child without the supervisor
	// passing them through again.
	rtr           *router.Router
	workerThreads int
	logLevel      string

	// cmd/crashed/approxLoad back isolated==true. crashed is flipped by
	// the goroutine awaiting cmd.Wait, independent of the heartbeat
	// probe's own liveness judgment (a network partition and a dead
	// process look the same to the heartbeat probe; watching cmd.Wait is
	// how a real exit gets noticed immediately instead of after
	// HeartbeatMisses ticks).
	cmd        *exec.Cmd
	crashed    atomic.Bool
	approxLoad atomic.Int64

	mu              sync.Mutex
	status          Status
	missedHeartbeat int
	lastHeartbeat   time.Time

	restarting atomic.Bool
}

func newSubPool(index int, address string, ext *extension.Registry, rtr *router.Router, dl *deadletter.Stream, workerThreads int) *subPool {
	k := actor.NewKernel(address, ext, rtr, dl, rtr.SelfLogger(), workerThreads)
	return &subPool{
		index:         index,
		address:       address,
		kernel:        k,
		status:        Up,
		lastHeartbeat: time.Now(),
	}
}

// newIsolatedSubPool spawns index's child process and waits for it to
// start listening at address. binary is the executable to re-exec
// (os.Executable(), normally). ext's registered actor classes are not
// sent to the child over any channel — the child is expected to arrive
// at the same registration state on its own, by running the same main()
// the parent did up to its call to MaybeRunSubPoolWorker.
func newIsolatedSubPool(index int, binary, address string, rtr *router.Router, workerThreads int, logLevel string) (*subPool, error) {
	sp := &subPool{
		index:         index,
		address:       address,
		isolated:      true,
		rtr:           rtr,
		workerThreads: workerThreads,
		logLevel:      logLevel,
		status:        Up,
		lastHeartbeat: time.Now(),
	}
	if err := sp.spawn(binary); err != nil {
		return nil, err
	}
	return sp, nil
}

func (sp *subPool) spawn(binary string) error {
	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(),
		envWorker+"=1",
		envWorkerAddress+"="+sp.address,
		envWorkerIndex+"="+strconv.Itoa(sp.index),
		envWorkerThreads+"="+strconv.Itoa(sp.workerThreads),
		envWorkerLogLvl+"="+sp.logLevel,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pool: spawn sub-pool %d: %w", sp.index, err)
	}

	sp.mu.Lock()
	sp.cmd = cmd
	sp.mu.Unlock()
	sp.crashed.Store(false)

	go func() {
		_ = cmd.Wait()
		sp.crashed.Store(true)
	}()

	return waitForListener(sp.address, 5*time.Second)
}

// waitForListener polls address until something accepts a dial, or
// timeout elapses. A freshly exec'd child's Listen call races this
// function's first dial attempt; polling is simpler and just as correct
// as a readiness pipe for a one-shot startup check like this one.
func waitForListener(address string, timeout time.Duration) error {
	pa, err := transport.ParseAddress(address)
	if err != nil {
		return err
	}
	network, dialAddr, err := dialTarget(pa)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout(network, dialAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("pool: sub-pool worker at %s did not start listening within %s", address, timeout)
}

func dialTarget(pa transport.ParsedAddress) (network, address string, err error) {
	switch pa.Scheme {
	case transport.SchemeTCP:
		return "tcp", net.JoinHostPort(pa.Host, pa.Port), nil
	case transport.SchemeUnix:
		return "unix", pa.Host, nil
	default:
		return "", "", fmt.Errorf("pool: process isolation does not support the %q scheme", pa.Scheme)
	}
}

// subAddress derives sub-pool i's address from the main pool's address.
// Non-isolated sub-pools share the main listener via the
// scheme://host[:port]/subpool/<index> suffix (baseAddress in package
// transport collapses it back for Listen/Connect); see
// isolatedSubAddress for the address an isolated sub-pool uses instead.
func subAddress(mainAddress string, index int) string {
	return fmt.Sprintf("%s/subpool/%d", mainAddress, index)
}

// isolatedSubAddress derives a real, independently dialable address for
// an isolated sub-pool's child process, since nothing about the main
// process's own listener is reachable from inside a separate process:
// TCP increments the port by 1+index; unix appends a .subN suffix to the
// socket path ahead of its extension, if any.
func isolatedSubAddress(mainAddress string, index int) (string, error) {
	pa, err := transport.ParseAddress(mainAddress)
	if err != nil {
		return "", err
	}
	switch pa.Scheme {
	case transport.SchemeTCP:
		port, err := strconv.Atoi(pa.Port)
		if err != nil {
			return "", fmt.Errorf("pool: process isolation needs a numeric port in %q: %w", mainAddress, err)
		}
		return fmt.Sprintf("tcp://%s:%d", pa.Host, port+1+index), nil
	case transport.SchemeUnix:
		path := pa.Host
		if dot := strings.LastIndex(path, "."); dot > strings.LastIndex(path, "/") {
			return fmt.Sprintf("unix://%s.sub%d%s", path[:dot], index, path[dot:]), nil
		}
		return fmt.Sprintf("unix://%s.sub%d", path, index), nil
	default:
		return "", fmt.Errorf("pool: process isolation does not support the %q scheme; use tcp or unix", pa.Scheme)
	}
}

func (sp *subPool) recordHeartbeat() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.lastHeartbeat = time.Now()
	sp.missedHeartbeat = 0
	sp.status = Up
}

// bumpMissed records one missed heartbeat and reports whether the
// sub-pool should now be considered Down (two consecutive misses, per
// health probing).
func (sp *subPool) bumpMissed(threshold int) bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.missedHeartbeat++
	if sp.missedHeartbeat >= threshold {
		sp.status = Down
		return true
	}
	return false
}

func (sp *subPool) Status() Status {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.status
}

// alive is the liveness signal probeAll checks: the local Kernel's own
// shutdown flag for an in-process sub-pool, or whether the child process
// has exited for an isolated one.
func (sp *subPool) alive() bool {
	if !sp.isolated {
		return sp.kernel.Alive()
	}
	return !sp.crashed.Load()
}

// Kernel returns the sub-pool's current kernel, or nil for an isolated
// sub-pool: the actors live in a different process, so there is no local
// Kernel value to return. Use controlRequest for the one thing an
// isolated sub-pool's Kernel is otherwise called on, create_actor.
func (sp *subPool) Kernel() *actor.Kernel {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.kernel
}

// load is the placement-policy signal: how many actors this sub-pool
// currently hosts. Exact for an in-process sub-pool; an approximation
// tracked from this Supervisor's own successful create_actor calls for
// an isolated one, since querying a child's live instance count would
// need a second control round trip per placement decision.
func (sp *subPool) load() int {
	if !sp.isolated {
		return sp.Kernel().InstanceCount()
	}
	return int(sp.approxLoad.Load())
}

// reset discards the sub-pool's kernel (or kills and re-spawns its
// child) and rebuilds it at the same address, used by the supervisor's
// on_failure restart path. Actors hosted by the old kernel/child are not
// reconstituted; callers are expected to re-create them.
func (sp *subPool) reset(ext *extension.Registry, rtr *router.Router, dl *deadletter.Stream, workerThreads int) {
	if !sp.restarting.CompareAndSwap(false, true) {
		return
	}
	defer sp.restarting.Store(false)

	if sp.isolated {
		binary, err := os.Executable()
		if err != nil {
			return
		}
		killChild(sp.cmd)
		if err := sp.spawn(binary); err != nil {
			return
		}
		sp.approxLoad.Store(0)
		sp.mu.Lock()
		sp.status = Up
		sp.missedHeartbeat = 0
		sp.lastHeartbeat = time.Now()
		sp.mu.Unlock()
		return
	}

	sp.Kernel().Shutdown()
	sp.mu.Lock()
	sp.kernel = actor.NewKernel(sp.address, ext, rtr, dl, rtr.SelfLogger(), workerThreads)
	sp.status = Up
	sp.missedHeartbeat = 0
	sp.lastHeartbeat = time.Now()
	sp.mu.Unlock()
}

func (sp *subPool) shutdown(ctx context.Context, grace time.Duration) {
	if sp.isolated {
		sp.shutdownChild(ctx, grace)
		return
	}

	done := make(chan struct{})
	go func() {
		sp.Kernel().Shutdown()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// shutdownChild sends SIGTERM and waits up to grace for the child to
// exit on its own, then escalates to SIGKILL — the same
// graceful-then-forced sequence Shutdown applies to the whole pool,
// applied here to one child process.
func (sp *subPool) shutdownChild(ctx context.Context, grace time.Duration) {
	sp.mu.Lock()
	cmd := sp.cmd
	sp.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for !sp.crashed.Load() {
			time.Sleep(20 * time.Millisecond)
		}
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		killChild(cmd)
	case <-ctx.Done():
		killChild(cmd)
	}
}

func killChild(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

// controlRequest sends req to the sub-pool's $control actor and decodes
// its reply. Used by Supervisor.CreateActor when the target sub-pool is
// isolated: the only call a Supervisor otherwise makes directly against
// a local *actor.Kernel value that has no local-process equivalent once
// the sub-pool is a separate OS process.
func (sp *subPool) controlRequest(ctx context.Context, req actor.ControlRequest) (actor.ControlResponse, error) {
	payload, err := actor.EncodeControlRequest(req)
	if err != nil {
		return actor.ControlResponse{}, err
	}

	correlationID := sp.rtr.NextEnvelopeID()
	waiter := future.NewCompletable[*envelope.Envelope]()
	if err := sp.rtr.RegisterWaiter(sp.address, correlationID, waiter); err != nil {
		return actor.ControlResponse{}, err
	}

	e := &envelope.Envelope{
		EnvelopeID:    sp.rtr.NextEnvelopeID(),
		Kind:          envelope.KindSend,
		To:            envelope.Address{Endpoint: sp.address, UID: actor.ControlActorUID},
		CorrelationID: correlationID,
		Payload:       payload,
	}
	if err := sp.rtr.Send(e, time.Time{}); err != nil {
		return actor.ControlResponse{}, err
	}

	reply, err := waiter.Future().Await(ctx)
	if err != nil {
		return actor.ControlResponse{}, xoscarerrors.New(xoscarerrors.KindTimeout, err)
	}
	if reply.Kind == envelope.KindError {
		return actor.ControlResponse{}, xoscarerrors.DecodeWire(reply.Payload)
	}
	return actor.DecodeControlResponse(reply.Payload)
}
