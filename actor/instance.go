package actor

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/luweizheng/xoscar/passivation"
)

// DefaultWatchdog is how long a single OnReceive call may run before the
// kernel reports Timeout to the caller and flags the instance as a
// watchdog offender. Zero disables the watchdog.
const DefaultWatchdog = 5 * time.Second

// DefaultQuarantineThreshold is how many consecutive watchdog trips
// quarantine an instance (state Failed).
const DefaultQuarantineThreshold = 3

// instance is the kernel's private bookkeeping for one live actor: its
// behavior, its mailbox, and its lifecycle state. Every field access goes
// through the kernel, which owns the actor's serial execution lock by
// construction (only the kernel's per-actor worker goroutine ever touches
// impl, and at most one such goroutine runs at a time).
type instance struct {
	ref     Ref
	classID string
	impl    Actor

	mailbox Mailbox

	state atomic.Uint32 // State, stored as uint32 for atomic access

	mu              sync.Mutex // guards draining/watchdogStrikes, not impl
	draining        bool
	watchdogStrikes int

	isScheduled atomic.Bool

	createdAt time.Time

	// passivationStrategy is nil when the class has none configured
	// (Kernel.SetClassPassivation was never called for classID), the
	// same as passivation.NewLongLivedStrategy(): never evict.
	passivationStrategy passivation.Strategy
	lastActivity        atomic.Time
	messageCount        atomic.Int64
}

func newInstance(ref Ref, classID string, impl Actor, mailboxCapacity int, strategy passivation.Strategy) *instance {
	in := &instance{
		ref:                 ref,
		classID:             classID,
		impl:                impl,
		mailbox:             NewMailbox(mailboxCapacity),
		createdAt:           time.Now(),
		passivationStrategy: strategy,
	}
	in.lastActivity.Store(in.createdAt)
	in.state.Store(uint32(Creating))
	return in
}

// touch records mailbox activity, consulted by the kernel's passivation
// sweep to decide whether a TimeBasedStrategy instance has gone idle.
func (in *instance) touch() {
	in.lastActivity.Store(time.Now())
	in.messageCount.Inc()
}

// idleFor reports how long it has been since the instance last processed
// a non-control message.
func (in *instance) idleFor() time.Duration {
	return time.Since(in.lastActivity.Load())
}

func (in *instance) State() State {
	return State(in.state.Load())
}

func (in *instance) setState(s State) {
	in.state.Store(uint32(s))
}

// scheduled returns the flag the kernel uses to ensure at most one worker
// goroutine is ever running this instance's mailbox loop at a time.
func (in *instance) scheduled() *atomic.Bool {
	return &in.isScheduled
}

// bumpWatchdogStrikes increments and returns the consecutive watchdog-trip
// count, used by the kernel to decide when to quarantine the instance.
func (in *instance) bumpWatchdogStrikes() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.watchdogStrikes++
	return in.watchdogStrikes
}

// resetWatchdogStrikes clears the strike counter after a handler that
// completes within the watchdog.
func (in *instance) resetWatchdogStrikes() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.watchdogStrikes = 0
}
