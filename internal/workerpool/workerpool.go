// Package workerpool is the sharded goroutine pool a Kernel schedules an
// actor's mailbox drain loop onto: AddTaskForShard pins a submission to a
// caller-chosen shard so a busy actor keeps reusing the same warm worker
// instead of bouncing across shards on every schedule. AddTask picks a
// shard at random for callers that don't care which one they land on.
package workerpool

import (
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const maxShards = 128

// WorkerPool is numShards independent shards, each a small cache of
// goroutines parked waiting for their next task. A worker idle longer
// than idleWorkerLifetime is torn down by the background sweep instead
// of sitting on a goroutine stack forever.
type WorkerPool struct {
	mu                 sync.Mutex
	idleWorkerLifetime time.Duration
	numShards          int
	shards             []*poolShard
	started            bool
	stopped            bool
	stopCh             chan struct{}
	spawnedWorkers     int64
}

type workerInstance struct {
	tasks    chan func()
	lastIdle time.Time
}

type poolShard struct {
	mu      sync.Mutex
	idle    []*workerInstance
	stopped bool
}

func NewWorkerPool() *WorkerPool {
	wp := &WorkerPool{
		idleWorkerLifetime: time.Second,
		numShards:          1,
	}
	wp.SetNumShards(runtime.GOMAXPROCS(0))
	return wp
}

// SetNumShards sets the shard count (default GOMAXPROCS), clamped to
// [1, maxShards]. No effect once Start has run.
func (wp *WorkerPool) SetNumShards(numShards int) {
	if wp.started {
		return
	}
	if numShards <= 1 {
		numShards = 1
	}
	if numShards > maxShards {
		numShards = maxShards
	}
	wp.numShards = numShards
}

// SetIdleWorkerLifetime overrides how long an idle worker survives
// before the cleanup sweep closes it (default 1s).
func (wp *WorkerPool) SetIdleWorkerLifetime(d time.Duration) {
	wp.idleWorkerLifetime = d
}

// GetSpawnedWorkers returns the number of worker goroutines currently alive.
func (wp *WorkerPool) GetSpawnedWorkers() int {
	return int(atomic.LoadInt64(&wp.spawnedWorkers))
}

// Start brings up the shards and the idle-worker cleanup sweep.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	if !wp.started {
		wp.shards = make([]*poolShard, wp.numShards)
		for i := range wp.shards {
			wp.shards[i] = &poolShard{}
		}
		wp.stopCh = make(chan struct{})
		wp.started = true
	}
	wp.mu.Unlock()

	go wp.cleanupLoop()
}

// Stop closes every idle worker's task channel and marks every shard
// stopped, so each busy worker exits after finishing its current task
// instead of returning to the idle list. A task submitted after Stop
// still runs, on a freshly spawned worker that then exits. Safe to call
// more than once.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.started || wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.stopCh)
	wp.mu.Unlock()

	for _, shard := range wp.shards {
		shard.mu.Lock()
		shard.stopped = true
		for _, w := range shard.idle {
			close(w.tasks)
		}
		shard.idle = nil
		shard.mu.Unlock()
	}
}

// AddTask runs task on a randomly chosen shard.
func (wp *WorkerPool) AddTask(task func()) error {
	if !wp.started {
		return errors.New("worker pool must be started first")
	}
	return wp.AddTaskForShard(task, rand.Int())
}

// AddTaskForShard runs task on shard shardIdx%numShards, reusing that
// shard's most recently idled worker or spawning a new one if none is
// free.
func (wp *WorkerPool) AddTaskForShard(task func(), shardIdx int) error {
	if !wp.started {
		return errors.New("worker pool must be started first")
	}

	shard := wp.shards[shardIdx%wp.numShards]
	w := shard.takeIdle()
	if w == nil {
		w = &workerInstance{tasks: make(chan func())}
		atomic.AddInt64(&wp.spawnedWorkers, 1)
		go wp.run(shard, w)
	}
	w.tasks <- task
	return nil
}

func (shard *poolShard) takeIdle() *workerInstance {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	n := len(shard.idle)
	if n == 0 {
		return nil
	}
	w := shard.idle[n-1]
	shard.idle[n-1] = nil
	shard.idle = shard.idle[:n-1]
	return w
}

// run drains tasks sent to w until the pool sweeps it away for having
// idled past idleWorkerLifetime (closing w.tasks) or the shard stops.
func (wp *WorkerPool) run(shard *poolShard, w *workerInstance) {
	for task := range w.tasks {
		task()
		w.lastIdle = time.Now()

		shard.mu.Lock()
		if shard.stopped {
			shard.mu.Unlock()
			break
		}
		shard.idle = append(shard.idle, w)
		shard.mu.Unlock()
	}
	atomic.AddInt64(&wp.spawnedWorkers, -1)
}

func (wp *WorkerPool) cleanupLoop() {
	ticker := time.NewTicker(wp.idleWorkerLifetime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			wp.sweep()
		case <-wp.stopCh:
			return
		}
	}
}

// sweep closes every worker on every shard that has sat idle for at
// least idleWorkerLifetime, shrinking each shard's cache back down
// after a load spike.
func (wp *WorkerPool) sweep() {
	now := time.Now()
	for _, shard := range wp.shards {
		shard.mu.Lock()
		kept := shard.idle[:0]
		var expired []*workerInstance
		for _, w := range shard.idle {
			if now.Sub(w.lastIdle) >= wp.idleWorkerLifetime {
				expired = append(expired, w)
			} else {
				kept = append(kept, w)
			}
		}
		shard.idle = kept
		shard.mu.Unlock()

		for _, w := range expired {
			close(w.tasks)
		}
	}
}
