// Package tasks runs background work such as shader loading, either on
// dedicated goroutines or on a small bounded pool, and tracks progress for
// reporting.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
	"go.uber.org/zap"
)

// ErrStopped is returned by Spawn while the manager is draining or closed.
var ErrStopped = errors.New("tasks: manager is stopped")

// Hooks receive scheduler instrumentation callbacks.
type Hooks interface {
	OnThreadStart(index int)
	OnWaitStart()
	OnWaitStop()
}

type nopHooks struct{}

func (nopHooks) OnThreadStart(int) {}
func (nopHooks) OnWaitStart()      {}
func (nopHooks) OnWaitStop()       {}

// Config controls a Manager.
type Config struct {
	// PoolSize bounds concurrently running pooled tasks. Zero sizes the pool
	// from the detected core counts.
	PoolSize int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PoolSize < 0 {
		return fmt.Errorf("tasks: negative pool size %d", c.PoolSize)
	}
	return nil
}

// DefaultPoolSize returns (physical + logical - 1) / 2, at least 2.
func DefaultPoolSize() int {
	logical := cpuid.CPU.LogicalCores
	if logical <= 0 {
		logical = runtime.NumCPU()
	}
	physical := cpuid.CPU.PhysicalCores
	if physical <= 0 {
		physical = logical
	}
	return max((physical+logical-1)/2, 2)
}

// Manager tracks background tasks.
type Manager struct {
	log      *zap.Logger
	hooks    Hooks
	poolSize int
	workers  atomic.Int32

	// spawnMu guards the stopped/closed transition against Spawn.
	spawnMu sync.Mutex
	stopped bool
	closed  bool
	drains  int // ClearAndRestart calls in progress

	// mu guards the tracked tasks, the pool queue and the pool usage count.
	mu        sync.Mutex
	tasks     []*Task
	queue     []*Task
	poolInUse int
}

// New creates a manager. hooks may be nil.
func New(cfg Config, hooks Hooks, log *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if hooks == nil {
		hooks = nopHooks{}
	}
	size := cfg.PoolSize
	if size == 0 {
		size = DefaultPoolSize()
	}
	m := &Manager{
		log:      log.Named("tasks"),
		hooks:    hooks,
		poolSize: size,
	}
	m.log.Info("task manager ready", zap.Int("pool_size", size))
	return m, nil
}

// PoolSize returns the pool capacity.
func (m *Manager) PoolSize() int { return m.poolSize }

// Spawn registers a task and starts it, or queues it when it asks for the
// pool and the pool is full. The returned handle is valid immediately.
func (m *Manager) Spawn(name string, flags Flags, fn WorkFunc) (*Task, error) {
	m.spawnMu.Lock()
	defer m.spawnMu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}

	t := newTask(name, flags, fn)
	m.mu.Lock()
	m.tasks = append(m.tasks, t)
	if flags&UseThreadPool != 0 {
		if m.poolInUse >= m.poolSize {
			t.pooledWaiting.Store(true)
			m.queue = append(m.queue, t)
			queued := len(m.queue)
			m.mu.Unlock()
			m.log.Debug("task queued", zap.String("task", name), zap.Int("queued", queued))
			return t, nil
		}
		m.poolInUse++
	}
	m.mu.Unlock()

	m.log.Debug("task spawned", zap.String("task", name), zap.Bool("pooled", flags&UseThreadPool != 0))
	go m.run(t)
	return t, nil
}

// run executes t and, for pooled tasks, keeps draining the pool queue on the
// same goroutine until it is empty.
func (m *Manager) run(t *Task) {
	m.hooks.OnThreadStart(int(m.workers.Add(1) - 1))
	for t != nil {
		t.finish(m.call(t))
		m.log.Debug("task finished", zap.String("task", t.name), zap.Bool("result", t.Result()))
		if t.flags&UseThreadPool == 0 {
			return
		}

		m.mu.Lock()
		if len(m.queue) > 0 {
			t = m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			t.pooledWaiting.Store(false)
		} else {
			m.poolInUse--
			t = nil
		}
		m.mu.Unlock()
	}
}

// call runs the work function, turning a panic into a failed result.
func (m *Manager) call(t *Task) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("task panicked", zap.String("task", t.name), zap.Any("panic", r))
			result = false
		}
	}()
	return t.fn(t.ctx)
}

// WaitUntilFinished blocks until t finishes. A nil task returns immediately.
func (m *Manager) WaitUntilFinished(t *Task) {
	if t == nil {
		return
	}
	m.hooks.OnWaitStart()
	<-t.done
	m.hooks.OnWaitStop()
}

// WaitContext is WaitUntilFinished bounded by ctx.
func (m *Manager) WaitContext(ctx context.Context, t *Task) error {
	if t == nil {
		return nil
	}
	m.hooks.OnWaitStart()
	defer m.hooks.OnWaitStop()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress returns t's progress in [0,1]; exactly 1 once finished.
func (m *Manager) Progress(t *Task) float32 {
	if t == nil {
		return 0
	}
	// finish publishes progress 1 before marking the task finished.
	fin := t.IsFinished()
	v := t.ctx.Progress()
	if fin && v != 1 {
		m.log.Error("finished task reports partial progress", zap.String("task", t.name), zap.Float32("progress", v))
	}
	return v
}

// MarkForStopping asks t to stop. It does not wait.
func (m *Manager) MarkForStopping(t *Task) {
	if t == nil {
		return
	}
	t.ctx.requestStop()
}

// ClearFinishedTasks drops finished tasks from tracking. Order is not kept.
func (m *Manager) ClearFinishedTasks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < len(m.tasks); {
		if !m.tasks[i].IsFinished() {
			i++
			continue
		}
		last := len(m.tasks) - 1
		m.tasks[i] = m.tasks[last]
		m.tasks[last] = nil
		m.tasks = m.tasks[:last]
	}
}

// ClearAndRestart blocks new spawns, asks every tracked task to stop, waits
// for them one at a time and then accepts spawns again. With concurrent
// calls, spawns resume only once the last of them returns.
func (m *Manager) ClearAndRestart() {
	m.spawnMu.Lock()
	m.stopped = true
	m.drains++
	m.spawnMu.Unlock()

	m.mu.Lock()
	pending := len(m.tasks)
	for _, t := range m.tasks {
		t.ctx.requestStop()
	}
	m.mu.Unlock()
	m.log.Info("draining tasks", zap.Int("tracked", pending))

	for {
		m.ClearFinishedTasks()
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.mu.Unlock()
			break
		}
		first := m.tasks[0]
		m.mu.Unlock()
		first.ctx.requestStop()
		m.WaitUntilFinished(first)
	}

	m.mu.Lock()
	if n := len(m.queue); n != 0 {
		m.log.Error("pool queue not empty after drain", zap.Int("queued", n))
	}
	m.mu.Unlock()

	m.spawnMu.Lock()
	m.drains--
	if m.drains == 0 {
		m.stopped = m.closed
	}
	m.spawnMu.Unlock()
	m.log.Info("tasks drained")
}

// Close drains all tasks and refuses further spawns.
func (m *Manager) Close() {
	m.spawnMu.Lock()
	m.closed = true
	m.spawnMu.Unlock()
	m.ClearAndRestart()
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Tracked       int
	PooledWaiting int
	PoolInUse     int
	PoolSize      int
}

// Stats returns current counts. Safe from any goroutine.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Tracked:       len(m.tasks),
		PooledWaiting: len(m.queue),
		PoolInUse:     m.poolInUse,
		PoolSize:      m.poolSize,
	}
}
