package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/channel"
	"github.com/luweizheng/xoscar/deadletter"
	"github.com/luweizheng/xoscar/envelope"
	xoscarerrors "github.com/luweizheng/xoscar/errors"
	"github.com/luweizheng/xoscar/extension"
	"github.com/luweizheng/xoscar/future"
	"github.com/luweizheng/xoscar/hash"
	"github.com/luweizheng/xoscar/internal/syncmap"
	"github.com/luweizheng/xoscar/internal/ticker"
	"github.com/luweizheng/xoscar/internal/workerpool"
	"github.com/luweizheng/xoscar/log"
	"github.com/luweizheng/xoscar/passivation"
	"github.com/luweizheng/xoscar/reentrancy"
	"github.com/luweizheng/xoscar/router"
	"github.com/luweizheng/xoscar/telemetry"
)

type chainKey struct{}

func withChain(ctx context.Context, chainID uint64) context.Context {
	return context.WithValue(ctx, chainKey{}, chainID)
}

func chainFrom(ctx context.Context) uint64 {
	if v, ok := ctx.Value(chainKey{}).(uint64); ok {
		return v
	}
	return 0
}

// Kernel is the per-pool-process actor runtime: it owns every locally
// hosted instance's mailbox and lifecycle, multiplexes their handlers onto
// a worker pool, and is the router's Deliverer for inbound envelopes
// addressed to this endpoint. A Kernel never crosses a process boundary on
// its own — the pool supervisor decides which sub-pool's Kernel a given
// create_actor call lands on.
type Kernel struct {
	SelfEndpoint string

	instances *syncmap.SyncMap[string, *instance]
	extensions *extension.Registry
	pool      *workerpool.WorkerPool
	hasher    hash.Hasher
	guard     *reentrancy.Guard
	router    *router.Router
	deadletters *deadletter.Stream
	logger    log.Logger
	telemetry *telemetry.Telemetry

	watchdog            time.Duration
	quarantineThreshold int
	mailboxCapacity     int

	nextChainID uint64
	chainMu     sync.Mutex
	nextUID     uint64

	shutdown atomic.Bool

	classPassivation   map[string]passivation.Strategy
	classPassivationMu sync.RWMutex
	passivationTicker  *ticker.Ticker
	stopPassivation    chan struct{}
	passivationOnce    sync.Once
}

var _ router.Deliverer = (*Kernel)(nil)

// NewKernel constructs a Kernel bound to selfEndpoint. workerThreads <= 0
// uses the worker pool's own GOMAXPROCS default.
func NewKernel(selfEndpoint string, extensions *extension.Registry, rtr *router.Router, deadletters *deadletter.Stream, logger log.Logger, workerThreads int) *Kernel {
	pool := workerpool.NewWorkerPool()
	if workerThreads > 0 {
		pool.SetNumShards(workerThreads)
	}
	pool.Start()

	k := &Kernel{
		SelfEndpoint:        selfEndpoint,
		instances:           syncmap.New[string, *instance](),
		extensions:          extensions,
		pool:                pool,
		hasher:              hash.DefaultHasher(),
		guard:               reentrancy.New(),
		router:              rtr,
		deadletters:         deadletters,
		logger:              logger,
		telemetry:           telemetry.New(),
		watchdog:            DefaultWatchdog,
		quarantineThreshold: DefaultQuarantineThreshold,
		mailboxCapacity:     channel.DefaultHighWaterEnvelopes,
		classPassivation:    make(map[string]passivation.Strategy),
		stopPassivation:     make(chan struct{}),
	}
	k.installControlActor()
	return k
}

// SetClassPassivation configures the idle-eviction policy actors created
// from classID use. Disabled (passivation.NewLongLivedStrategy's
// behavior) unless this is called, matching spec.md's default of never
// evicting an actor on its own.
func (k *Kernel) SetClassPassivation(classID string, strategy passivation.Strategy) {
	k.classPassivationMu.Lock()
	defer k.classPassivationMu.Unlock()
	k.classPassivation[classID] = strategy
}

func (k *Kernel) strategyFor(classID string) passivation.Strategy {
	k.classPassivationMu.RLock()
	defer k.classPassivationMu.RUnlock()
	return k.classPassivation[classID]
}

// StartPassivationSweep begins periodically checking every live instance
// against its class's passivation strategy, destroying any actor that has
// gone idle past a TimeBasedStrategy's timeout or processed past a
// MessagesCountBasedStrategy's limit. A kernel with no class passivation
// configured need not call this; the sweep is a no-op for classes without
// a strategy (or with LongLivedStrategy).
func (k *Kernel) StartPassivationSweep(interval time.Duration) {
	k.passivationTicker = ticker.New(interval)
	k.passivationTicker.Start()
	go k.passivationSweepLoop()
}

// StopPassivationSweep stops the sweep started by StartPassivationSweep.
// Idempotent; a no-op if the sweep was never started.
func (k *Kernel) StopPassivationSweep() {
	if k.passivationTicker == nil {
		return
	}
	k.passivationOnce.Do(func() { close(k.stopPassivation) })
	k.passivationTicker.Stop()
}

func (k *Kernel) passivationSweepLoop() {
	for {
		select {
		case <-k.passivationTicker.Ticks:
			k.sweepPassivation()
		case <-k.stopPassivation:
			return
		}
	}
}

func (k *Kernel) sweepPassivation() {
	var candidates []*instance
	k.instances.Range(func(_ string, in *instance) {
		if in.State() != Running {
			return
		}
		switch strat := in.passivationStrategy.(type) {
		case *passivation.TimeBasedStrategy:
			if in.idleFor() >= strat.Timeout() {
				candidates = append(candidates, in)
			}
		case *passivation.MessagesCountBasedStrategy:
			if in.messageCount.Load() >= int64(strat.MaxMessages()) {
				candidates = append(candidates, in)
			}
		}
	})

	for _, in := range candidates {
		k.logger.Infof("actor: %s passivated (%s)", in.ref, in.passivationStrategy)
		if err := k.DestroyActor(context.Background(), in.ref); err != nil {
			k.logger.Warnf("actor: %s passivation destroy failed: %v", in.ref, err)
		}
	}
}

// SetWatchdog overrides the per-message watchdog (0 disables it).
func (k *Kernel) SetWatchdog(d time.Duration) { k.watchdog = d }

// Shutdown stops the worker pool; already-queued tasks finish first.
func (k *Kernel) Shutdown() {
	k.shutdown.Store(true)
	k.pool.Stop()
}

// Alive reports whether the kernel is still accepting work, used by the
// pool supervisor's heartbeat probe as the in-process stand-in for "the
// sub-pool responded".
func (k *Kernel) Alive() bool { return !k.shutdown.Load() }

// InstanceCount reports how many actors are currently registered on this
// kernel, used by the pool supervisor's LeastLoaded placement policy.
func (k *Kernel) InstanceCount() int { return k.instances.Len() }

// Refs returns the set of actors currently registered on this kernel,
// used by the naming registry to aggregate a sub-pool's live actors
// without reaching into the kernel's instance table directly.
func (k *Kernel) Refs() []Ref {
	var refs []Ref
	k.instances.Range(func(uid string, in *instance) {
		if uid == ControlActorUID {
			return
		}
		refs = append(refs, in.ref)
	})
	return refs
}

// FailAll fails every actor hosted by this kernel with cause, draining
// each one's mailbox and resolving any pending Send waiters instead of
// leaving them to time out. Used by the pool supervisor when a sub-pool
// is declared Down.
func (k *Kernel) FailAll(cause error) {
	var uids []string
	k.instances.Range(func(uid string, _ *instance) { uids = append(uids, uid) })

	for _, uid := range uids {
		in, ok := k.instances.Get(uid)
		if !ok {
			continue
		}
		in.setState(Failed)
		for {
			rc := in.mailbox.Dequeue()
			if rc == nil {
				break
			}
			k.respondOnce(rc, nil, cause)
		}
		in.mailbox.Dispose()
		k.instances.Delete(uid)
	}
}

func (k *Kernel) allocateChainID() uint64 {
	k.chainMu.Lock()
	defer k.chainMu.Unlock()
	k.nextChainID++
	return k.nextChainID
}

func (k *Kernel) allocateUID(classID string) string {
	k.chainMu.Lock()
	defer k.chainMu.Unlock()
	k.nextUID++
	return fmt.Sprintf("%s-%d", classID, k.nextUID)
}

// CreateActor allocates a uid if one is not supplied, constructs the actor
// via the class registered under classID, runs OnCreate, and registers the
// instance. It fails with Duplicate if uid already names a live instance.
func (k *Kernel) CreateActor(ctx context.Context, classID string, initArgs []byte, uid string) (Ref, error) {
	if uid == "" {
		uid = k.allocateUID(classID)
	}
	if _, exists := k.instances.Get(uid); exists {
		return Ref{}, xoscarerrors.NewDuplicate(uid)
	}

	ctor, err := k.extensions.LookupClass(classID)
	if err != nil {
		return Ref{}, xoscarerrors.NewInternal(err)
	}
	built, err := ctor(initArgs)
	if err != nil {
		return Ref{}, xoscarerrors.NewInternal(fmt.Errorf("on_create: %w", err))
	}
	impl, ok := built.(Actor)
	if !ok {
		return Ref{}, xoscarerrors.NewInternal(fmt.Errorf("class %q did not build an actor.Actor", classID))
	}

	ref := NewRef(uid, k.SelfEndpoint)
	in := newInstance(ref, classID, impl, k.mailboxCapacity, k.strategyFor(classID))

	if err := impl.OnCreate(ctx); err != nil {
		return Ref{}, xoscarerrors.NewInternal(fmt.Errorf("on_create: %w", err))
	}

	if _, exists := k.instances.Get(uid); exists {
		return Ref{}, xoscarerrors.NewDuplicate(uid)
	}
	k.instances.Set(uid, in)
	in.setState(Running)
	k.logger.Infof("actor: created %s (class=%s)", ref, classID)
	k.telemetry.ActorCreated(ctx, classID)
	return ref, nil
}

// DestroyActor schedules a Control:Stop for ref. Idempotent: destroying an
// unknown or already-stopped ref is a no-op success.
func (k *Kernel) DestroyActor(ctx context.Context, ref Ref) error {
	in, ok := k.instances.Get(ref.UID)
	if !ok {
		return nil
	}

	in.mu.Lock()
	if in.draining {
		in.mu.Unlock()
		return nil
	}
	in.draining = true
	in.mu.Unlock()
	in.setState(Stopping)

	rc := &ReceiveContext{
		ctx:  ctx,
		From: ref,
		To:   ref,
		Kind: envelope.KindControl,
	}
	k.enqueueAndSchedule(in, rc)
	return nil
}

// HasActor reports whether uid names a locally live, non-stopped instance.
func (k *Kernel) HasActor(ref Ref) bool {
	in, ok := k.instances.Get(ref.UID)
	if !ok {
		return false
	}
	switch in.State() {
	case Stopped, Failed:
		return false
	default:
		return true
	}
}

// Send delivers payload to ref and waits for its reply or deadline. When
// ref is remote it is framed as a KindSend envelope and routed over the
// wire; when ref is local it is handed directly to the instance's mailbox,
// bypassing the codec and the wire entirely.
func (k *Kernel) Send(ctx context.Context, ref Ref, payload []byte, deadline time.Time) ([]byte, error) {
	if chainID := chainFrom(ctx); chainID != 0 {
		if reentrant := k.guard.Enter(chainID, ref.UID); reentrant {
			return nil, xoscarerrors.NewReentrancy(ref.UID)
		}
		defer k.guard.Leave(chainID, ref.UID)
	}

	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	if ref.Endpoint != "" && ref.Endpoint != k.SelfEndpoint {
		return k.sendRemote(ctx, ref, payload, deadline)
	}
	reply, err := k.sendLocal(ctx, ref, payload)
	if err != nil && ctx.Err() != nil {
		return nil, xoscarerrors.New(xoscarerrors.KindTimeout, err)
	}
	return reply, err
}

// Tell enqueues payload for ref without waiting for a reply.
func (k *Kernel) Tell(ctx context.Context, ref Ref, payload []byte) error {
	if chainID := chainFrom(ctx); chainID != 0 {
		if reentrant := k.guard.Enter(chainID, ref.UID); reentrant {
			return xoscarerrors.NewReentrancy(ref.UID)
		}
		defer k.guard.Leave(chainID, ref.UID)
	}

	if ref.Endpoint != "" && ref.Endpoint != k.SelfEndpoint {
		return k.tellRemote(ref, payload)
	}
	_, err := k.deliverLocal(ctx, ref, Ref{}, envelope.KindTell, 0, payload, nil)
	return err
}

func (k *Kernel) sendLocal(ctx context.Context, ref Ref, payload []byte) ([]byte, error) {
	completable := future.NewCompletable[[]byte]()
	respond := func(reply []byte, err error) {
		if err != nil {
			completable.Failure(err)
			return
		}
		completable.Success(reply)
	}
	if _, err := k.deliverLocal(ctx, ref, Ref{}, envelope.KindSend, 0, payload, respond); err != nil {
		return nil, err
	}
	return completable.Future().Await(ctx)
}

func (k *Kernel) sendRemote(ctx context.Context, ref Ref, payload []byte, deadline time.Time) ([]byte, error) {
	correlationID := k.router.NextEnvelopeID()
	waiter := future.NewCompletable[*envelope.Envelope]()
	if err := k.router.RegisterWaiter(ref.Endpoint, correlationID, waiter); err != nil {
		return nil, err
	}

	e := &envelope.Envelope{
		EnvelopeID:    k.router.NextEnvelopeID(),
		Kind:          envelope.KindSend,
		From:          envelope.Address{Endpoint: k.SelfEndpoint},
		To:            envelope.Address{Endpoint: ref.Endpoint, UID: ref.UID},
		CorrelationID: correlationID,
		Payload:       payload,
	}
	if !deadline.IsZero() {
		e.HasDeadline = true
		e.DeadlineUnixNano = deadline.UnixNano()
	}

	if err := k.router.Send(e, deadline); err != nil {
		return nil, err
	}

	reply, err := waiter.Future().Await(ctx)
	if err != nil {
		return nil, xoscarerrors.New(xoscarerrors.KindTimeout, err)
	}
	if reply.Kind == envelope.KindError {
		return nil, xoscarerrors.DecodeWire(reply.Payload)
	}
	return reply.Payload, nil
}

func (k *Kernel) tellRemote(ref Ref, payload []byte) error {
	e := &envelope.Envelope{
		EnvelopeID: k.router.NextEnvelopeID(),
		Kind:       envelope.KindTell,
		From:       envelope.Address{Endpoint: k.SelfEndpoint},
		To:         envelope.Address{Endpoint: ref.Endpoint, UID: ref.UID},
		Payload:    payload,
	}
	return k.router.Send(e, time.Time{})
}

// Deliver is the router's inbound entry point for envelopes addressed to
// this endpoint that are not a known reply (Send/Tell/Control/Cancel).
func (k *Kernel) Deliver(e *envelope.Envelope) {
	ref := Ref{UID: e.To.UID, Endpoint: e.To.Endpoint}
	from := Ref{UID: e.From.UID, Endpoint: e.From.Endpoint}

	var respond func([]byte, error)
	if e.Kind == envelope.KindSend {
		respond = func(reply []byte, err error) {
			k.replyRemote(e, reply, err)
		}
	}

	if _, err := k.deliverLocal(context.Background(), ref, from, e.Kind, e.CorrelationID, e.Payload, respond); err != nil {
		k.deadletters.Publish(e, err.Error())
		if respond != nil {
			respond(nil, err)
		}
	}
}

func (k *Kernel) replyRemote(e *envelope.Envelope, reply []byte, err error) {
	var out *envelope.Envelope
	if err != nil {
		out = &envelope.Envelope{
			EnvelopeID:    k.router.NextEnvelopeID(),
			Kind:          envelope.KindError,
			From:          e.To,
			To:            e.From,
			CorrelationID: e.CorrelationID,
			Payload:       xoscarerrors.EncodeWire(err),
		}
	} else {
		out = &envelope.Envelope{
			EnvelopeID:    k.router.NextEnvelopeID(),
			Kind:          envelope.KindReply,
			From:          e.To,
			To:            e.From,
			CorrelationID: e.CorrelationID,
			Payload:       reply,
		}
	}
	if sendErr := k.router.Send(out, time.Time{}); sendErr != nil {
		k.logger.Warnf("actor: failed to deliver reply for correlation_id=%d: %v", e.CorrelationID, sendErr)
	}
}

// deliverLocal enqueues one message into uid's mailbox, scheduling the
// instance for processing if it is not already running. respond may be nil
// for Tell.
func (k *Kernel) deliverLocal(ctx context.Context, to, from Ref, kind envelope.Kind, correlationID uint64, payload []byte, respond func([]byte, error)) (*instance, error) {
	in, ok := k.instances.Get(to.UID)
	if !ok {
		return nil, xoscarerrors.NewActorNotFound(to.UID)
	}

	switch in.State() {
	case Stopped, Failed:
		return nil, xoscarerrors.NewActorNotFound(to.UID)
	case Stopping:
		if kind != envelope.KindControl {
			return nil, xoscarerrors.NewActorFailed(to.UID, xoscarerrors.ErrActorNotFound)
		}
	}

	rc := &ReceiveContext{
		ctx:           ctx,
		From:          from,
		To:            to,
		Kind:          kind,
		CorrelationID: correlationID,
		Payload:       payload,
		respond:       respond,
	}
	k.enqueueAndSchedule(in, rc)
	return in, nil
}

func (k *Kernel) enqueueAndSchedule(in *instance, rc *ReceiveContext) {
	if err := in.mailbox.Enqueue(rc); err != nil {
		if rc.respond != nil {
			rc.respond(nil, xoscarerrors.NewBackpressure(in.ref.String()))
		}
		return
	}
	k.schedule(in)
}

// schedule submits in's run loop to the worker pool exactly once per idle
// period, so at most one goroutine ever processes a given instance's
// mailbox at a time (invariant I1). Every submission for a given actor
// hashes to the same shard, so repeated scheduling of one busy actor
// reuses a warm worker instead of bouncing across shards.
func (k *Kernel) schedule(in *instance) {
	if !in.scheduled().CompareAndSwap(false, true) {
		return
	}
	shard := int(k.hasher.HashCode([]byte(in.ref.UID)))
	_ = k.pool.AddTaskForShard(func() { k.runLoop(in) }, shard)
}

func (k *Kernel) runLoop(in *instance) {
	for {
		rc := in.mailbox.Dequeue()
		if rc == nil {
			in.scheduled().Store(false)
			if !in.mailbox.IsEmpty() && in.scheduled().CompareAndSwap(false, true) {
				continue
			}
			return
		}
		k.processOne(in, rc)
	}
}

func (k *Kernel) processOne(in *instance, rc *ReceiveContext) {
	if rc.Kind == envelope.KindControl {
		k.runDestroy(in, rc)
		return
	}
	in.touch()

	chainID := k.allocateChainID()
	k.guard.Enter(chainID, in.ref.UID)
	rc.chainID = chainID
	rc.ctx = withChain(rc.ctx, chainID)

	type outcome struct {
		reply []byte
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		reply, err := in.impl.OnReceive(rc)
		done <- outcome{reply: reply, err: err}
	}()

	if k.watchdog > 0 {
		select {
		case o := <-done:
			in.resetWatchdogStrikes()
			k.respondOnce(rc, o.reply, o.err)
		case <-time.After(k.watchdog):
			k.respondOnce(rc, nil, xoscarerrors.NewTimeout(rc.CorrelationID))
			o := <-done // the actor's own step is allowed to complete
			if o.err != nil {
				k.logger.Warnf("actor: %s handler exceeded watchdog: %v", in.ref, o.err)
			}
			if in.bumpWatchdogStrikes() >= k.quarantineThreshold {
				k.quarantine(in)
			}
		}
	} else {
		o := <-done
		k.respondOnce(rc, o.reply, o.err)
	}

	k.guard.Leave(chainID, in.ref.UID)
	k.telemetry.MessageHandled(rc.ctx, in.classID)
}

func (k *Kernel) respondOnce(rc *ReceiveContext, reply []byte, err error) {
	rc.respondOnce.Do(func() {
		if rc.respond == nil {
			if err != nil && rc.Kind == envelope.KindTell {
				k.logger.Warnf("actor: tell to %s failed: %v", rc.To, err)
			}
			return
		}
		rc.respond(reply, err)
	})
}

func (k *Kernel) quarantine(in *instance) {
	in.setState(Failed)
	k.logger.Errorf("actor: %s quarantined after repeated watchdog trips", in.ref)
	k.telemetry.ActorQuarantined(context.Background(), in.classID)
	for {
		rc := in.mailbox.Dequeue()
		if rc == nil {
			return
		}
		k.respondOnce(rc, nil, xoscarerrors.NewActorFailed(in.ref.UID, xoscarerrors.ErrActorFailed))
	}
}

func (k *Kernel) runDestroy(in *instance, rc *ReceiveContext) {
	for {
		next := in.mailbox.Dequeue()
		if next == nil {
			break
		}
		if next.Kind == envelope.KindControl {
			continue
		}
		k.processOne(in, next)
	}

	if err := in.impl.OnDestroy(rc.ctx); err != nil {
		k.logger.Warnf("actor: %s on_destroy: %v", in.ref, err)
	}
	in.setState(Stopped)
	in.mailbox.Dispose()
	k.instances.Delete(in.ref.UID)
	k.logger.Infof("actor: destroyed %s", in.ref)
	k.telemetry.ActorDestroyed(rc.ctx, in.classID)
}
