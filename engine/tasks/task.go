package tasks

import (
	"math"
	"sync"
	"sync/atomic"
)

// Flags control how a task is run and shown.
type Flags uint8

const (
	// ShowInUI lists the task in reports.
	ShowInUI Flags = 1 << iota
	// UseThreadPool runs the task on the bounded worker pool instead of a
	// dedicated goroutine.
	UseThreadPool
)

// WorkFunc is the body of a task. Its return value becomes Task.Result.
type WorkFunc func(tc *Context) bool

// Context is shared between a running task and the manager. Each field is
// independently atomic; there is no ordering between them.
type Context struct {
	forceStop atomic.Bool
	progress  atomic.Uint32 // float32 bits
	hideInUI  atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newContext() *Context {
	return &Context{stopCh: make(chan struct{})}
}

// ForceStop reports whether the task was asked to stop. Work functions
// should poll it and return early.
func (c *Context) ForceStop() bool { return c.forceStop.Load() }

// Done is closed once the task is asked to stop.
func (c *Context) Done() <-chan struct{} { return c.stopCh }

func (c *Context) requestStop() {
	c.forceStop.Store(true)
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// SetProgress publishes progress in [0,1].
func (c *Context) SetProgress(v float32) {
	c.progress.Store(math.Float32bits(clamp01(v)))
}

// Progress returns the last published progress.
func (c *Context) Progress() float32 { return math.Float32frombits(c.progress.Load()) }

// SetHideInUI hides or shows the task in reports.
func (c *Context) SetHideInUI(v bool) { c.hideInUI.Store(v) }

// HideInUI reports whether the task asked to be hidden.
func (c *Context) HideInUI() bool { return c.hideInUI.Load() }

func clamp01(v float32) float32 {
	switch {
	case v != v || v < 0: // NaN or negative
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Task is a handle to background work, shared between the caller and the
// manager.
type Task struct {
	name  string
	flags Flags
	fn    WorkFunc
	ctx   *Context

	// pooledWaiting is true while the task sits in the pool queue.
	pooledWaiting atomic.Bool

	mu       sync.Mutex
	finished bool
	result   bool
	done     chan struct{}
}

func newTask(name string, flags Flags, fn WorkFunc) *Task {
	return &Task{
		name:  name,
		flags: flags,
		fn:    fn,
		ctx:   newContext(),
		done:  make(chan struct{}),
	}
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Flags returns the spawn flags.
func (t *Task) Flags() Flags { return t.flags }

// Context returns the task's shared context.
func (t *Task) Context() *Context { return t.ctx }

// IsFinished reports whether the work function has returned.
func (t *Task) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Result returns the work function's return value. It is only meaningful
// once IsFinished is true.
func (t *Task) Result() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// PooledWaiting reports whether the task is queued for a free pool slot.
func (t *Task) PooledWaiting() bool { return t.pooledWaiting.Load() }

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// finish marks the task finished exactly once.
func (t *Task) finish(result bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.result = result
	t.ctx.progress.Store(math.Float32bits(1))
	t.finished = true
	close(t.done)
}
