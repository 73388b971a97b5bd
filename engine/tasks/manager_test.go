package tasks

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestManager(t *testing.T, poolSize int) *Manager {
	t.Helper()
	m, err := New(Config{PoolSize: poolSize}, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func mustSpawn(t *testing.T, m *Manager, name string, flags Flags, fn WorkFunc) *Task {
	t.Helper()
	task, err := m.Spawn(name, flags, fn)
	if err != nil {
		t.Fatalf("Spawn(%q): %v", name, err)
	}
	return task
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDefaultPoolSize(t *testing.T) {
	if n := DefaultPoolSize(); n < 2 {
		t.Errorf("DefaultPoolSize() = %d, want >= 2", n)
	}
	m := newTestManager(t, 0)
	if m.PoolSize() != DefaultPoolSize() {
		t.Errorf("PoolSize() = %d, want %d", m.PoolSize(), DefaultPoolSize())
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := New(Config{PoolSize: -1}, nil, nil); err == nil {
		t.Fatal("negative pool size should be rejected")
	}
}

func TestSpawnAndWait(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := newTestManager(t, 2)

	for _, flags := range []Flags{0, UseThreadPool, ShowInUI | UseThreadPool} {
		release := make(chan struct{})
		task := mustSpawn(t, m, "work", flags, func(tc *Context) bool {
			<-release
			return true
		})
		if task.IsFinished() || m.Progress(task) != 0 {
			t.Fatal("fresh task must be unfinished with zero progress")
		}
		close(release)
		m.WaitUntilFinished(task)
		if !task.IsFinished() || !task.Result() || m.Progress(task) != 1 {
			t.Errorf("flags %v: finished=%v result=%v progress=%v", flags, task.IsFinished(), task.Result(), m.Progress(task))
		}
	}
	m.WaitUntilFinished(nil)
	m.ClearAndRestart()
}

func TestFinishIsMonotonic(t *testing.T) {
	m := newTestManager(t, 3)
	var tasks []*Task
	for i := 0; i < 20; i++ {
		flags := Flags(0)
		if i%2 == 0 {
			flags = UseThreadPool
		}
		tasks = append(tasks, mustSpawn(t, m, "mono", flags, func(tc *Context) bool {
			for p := float32(0); p < 1; p += 0.25 {
				tc.SetProgress(p)
				time.Sleep(100 * time.Microsecond)
			}
			return true
		}))
	}

	seen := make([]bool, len(tasks))
	for done := 0; done < len(tasks); {
		done = 0
		for i, task := range tasks {
			fin := task.IsFinished()
			if seen[i] && !fin {
				t.Fatalf("task %d went from finished back to running", i)
			}
			if fin {
				if p := m.Progress(task); p != 1 {
					t.Fatalf("task %d finished with progress %v", i, p)
				}
				seen[i] = true
				done++
			}
		}
	}
}

func TestPoolCapacity(t *testing.T) {
	defer goleak.VerifyNone(t)
	const poolSize, n = 2, 5
	m := newTestManager(t, poolSize)

	var running atomic.Int32
	releases := make([]chan struct{}, n)
	tasks := make([]*Task, n)
	for i := range tasks {
		release := make(chan struct{})
		releases[i] = release
		tasks[i] = mustSpawn(t, m, "pooled", UseThreadPool, func(tc *Context) bool {
			running.Add(1)
			<-release
			running.Add(-1)
			return true
		})
	}

	waitFor(t, "pool to fill", func() bool { return running.Load() == poolSize })
	st := m.Stats()
	if st.PoolInUse != poolSize || st.PooledWaiting != n-poolSize || st.Tracked != n {
		t.Fatalf("stats = %+v", st)
	}
	for i := poolSize; i < n; i++ {
		if !tasks[i].PooledWaiting() {
			t.Errorf("task %d should be waiting for a pool slot", i)
		}
	}

	close(releases[0])
	waitFor(t, "first queued task to start", func() bool { return !tasks[poolSize].PooledWaiting() })
	if !tasks[poolSize+1].PooledWaiting() {
		t.Error("queued tasks must start in FIFO order")
	}
	waitFor(t, "pool to refill", func() bool { return running.Load() == poolSize })
	if st := m.Stats(); st.PoolInUse != poolSize || st.PooledWaiting != n-poolSize-1 {
		t.Errorf("stats after one release = %+v", st)
	}

	for i := 1; i < n; i++ {
		close(releases[i])
	}
	for _, task := range tasks {
		m.WaitUntilFinished(task)
	}
	waitFor(t, "pool to empty", func() bool { return m.Stats().PoolInUse == 0 })
}

func TestPoolQueueFIFO(t *testing.T) {
	m := newTestManager(t, 1)
	block := make(chan struct{})
	first := mustSpawn(t, m, "blocker", UseThreadPool, func(*Context) bool { <-block; return true })

	var mu sync.Mutex
	var order []int
	var last *Task
	for i := 0; i < 4; i++ {
		i := i
		last = mustSpawn(t, m, "queued", UseThreadPool, func(*Context) bool {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return true
		})
	}
	close(block)
	m.WaitUntilFinished(first)
	m.WaitUntilFinished(last)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestClearAndRestartDrains(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := newTestManager(t, 2)

	var spawnedLate atomic.Int32
	loop := func(tc *Context) bool {
		<-tc.Done()
		return false
	}
	for i := 0; i < 6; i++ {
		mustSpawn(t, m, "spinner", UseThreadPool|ShowInUI, loop)
	}
	mustSpawn(t, m, "dedicated", 0, loop)
	mustSpawn(t, m, "parent", UseThreadPool, func(tc *Context) bool {
		<-tc.Done()
		if _, err := m.Spawn("child", UseThreadPool, loop); errors.Is(err, ErrStopped) {
			spawnedLate.Add(1)
		}
		return true
	})

	m.ClearAndRestart()

	st := m.Stats()
	if st.Tracked != 0 || st.PooledWaiting != 0 {
		t.Fatalf("after drain: %+v", st)
	}
	if spawnedLate.Load() != 1 {
		t.Error("spawn during drain should be refused")
	}

	task := mustSpawn(t, m, "after", 0, func(*Context) bool { return true })
	m.WaitUntilFinished(task)
	m.ClearAndRestart()
}

func TestCloseRefusesSpawn(t *testing.T) {
	m := newTestManager(t, 2)
	m.Close()
	if _, err := m.Spawn("late", 0, func(*Context) bool { return true }); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestMarkForStopping(t *testing.T) {
	m := newTestManager(t, 2)
	task := mustSpawn(t, m, "cancellable", UseThreadPool, func(tc *Context) bool {
		for !tc.ForceStop() {
			time.Sleep(100 * time.Microsecond)
		}
		return false
	})
	m.MarkForStopping(task)
	m.MarkForStopping(task)
	m.MarkForStopping(nil)
	m.WaitUntilFinished(task)
	if task.Result() {
		t.Error("stopped task should report false")
	}
}

func TestProgressReporting(t *testing.T) {
	m := newTestManager(t, 2)
	half := make(chan struct{})
	checked := make(chan struct{})
	task := mustSpawn(t, m, "progress", UseThreadPool, func(tc *Context) bool {
		<-checked
		tc.SetProgress(0.5)
		close(half)
		<-checked
		return true
	})

	if p := m.Progress(task); p != 0 {
		t.Errorf("early progress = %v, want 0", p)
	}
	checked <- struct{}{}
	<-half
	if p := m.Progress(task); p != 0.5 {
		t.Errorf("mid progress = %v, want 0.5", p)
	}
	checked <- struct{}{}
	m.WaitUntilFinished(task)
	if p := m.Progress(task); p != 1 {
		t.Errorf("final progress = %v, want 1", p)
	}
	if m.Progress(nil) != 0 {
		t.Error("nil task progress should be 0")
	}
}

func TestProgressClamp(t *testing.T) {
	c := newContext()
	for _, tt := range []struct{ in, want float32 }{
		{-1, 0}, {0.25, 0.25}, {2, 1}, {float32(math.NaN()), 0},
	} {
		c.SetProgress(tt.in)
		if got := c.Progress(); got != tt.want {
			t.Errorf("SetProgress(%v) -> %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPanickingTaskFails(t *testing.T) {
	m := newTestManager(t, 1)
	bad := mustSpawn(t, m, "bad", UseThreadPool, func(*Context) bool { panic("boom") })
	next := mustSpawn(t, m, "next", UseThreadPool, func(*Context) bool { return true })
	m.WaitUntilFinished(bad)
	m.WaitUntilFinished(next)
	if bad.Result() || !next.Result() {
		t.Errorf("results = %v/%v, want false/true", bad.Result(), next.Result())
	}
}

func TestClearFinishedTasks(t *testing.T) {
	m := newTestManager(t, 2)
	block := make(chan struct{})
	quick := mustSpawn(t, m, "quick", 0, func(*Context) bool { return true })
	slow := mustSpawn(t, m, "slow", 0, func(*Context) bool { <-block; return true })
	m.WaitUntilFinished(quick)

	m.ClearFinishedTasks()
	if st := m.Stats(); st.Tracked != 1 {
		t.Fatalf("tracked = %d, want 1", st.Tracked)
	}
	close(block)
	m.WaitUntilFinished(slow)
	m.ClearFinishedTasks()
	if st := m.Stats(); st.Tracked != 0 {
		t.Fatalf("tracked = %d, want 0", st.Tracked)
	}
}

func TestWaitContext(t *testing.T) {
	m := newTestManager(t, 2)
	block := make(chan struct{})
	task := mustSpawn(t, m, "blocked", 0, func(*Context) bool { <-block; return true })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.WaitContext(ctx, task); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	close(block)
	if err := m.WaitContext(context.Background(), task); err != nil {
		t.Fatal(err)
	}
}

type recordingHooks struct {
	started atomic.Int32
	waits   atomic.Int32
	resumes atomic.Int32
}

func (h *recordingHooks) OnThreadStart(int) { h.started.Add(1) }
func (h *recordingHooks) OnWaitStart()      { h.waits.Add(1) }
func (h *recordingHooks) OnWaitStop()       { h.resumes.Add(1) }

func TestProgressPollingLogsNoErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m, err := New(Config{PoolSize: 2}, nil, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		task := mustSpawn(t, m, "half", 0, func(tc *Context) bool {
			tc.SetProgress(0.5)
			return true
		})
		for !task.IsFinished() {
			if p := m.Progress(task); p != 0 && p != 0.5 && p != 1 {
				t.Fatalf("progress = %v", p)
			}
		}
		if p := m.Progress(task); p != 1 {
			t.Fatalf("finished progress = %v, want 1", p)
		}
	}
	if n := logs.Len(); n != 0 {
		t.Fatalf("got %d error entries while polling, first: %v", n, logs.All()[0].Message)
	}
}

// holdingHooks parks the second OnWaitStop caller until hold is closed.
type holdingHooks struct {
	waits atomic.Int32
	stops atomic.Int32
	hold  chan struct{}
}

func (h *holdingHooks) OnThreadStart(int) {}
func (h *holdingHooks) OnWaitStart()      { h.waits.Add(1) }
func (h *holdingHooks) OnWaitStop() {
	if h.stops.Add(1) == 2 {
		<-h.hold
	}
}

func TestConcurrentClearAndRestartKeepsSpawnBlocked(t *testing.T) {
	h := &holdingHooks{hold: make(chan struct{})}
	m, err := New(Config{PoolSize: 2}, h, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	gate := make(chan struct{})
	mustSpawn(t, m, "slow", 0, func(*Context) bool { <-gate; return true })

	firstDone, secondDone := make(chan struct{}), make(chan struct{})
	go func() { m.ClearAndRestart(); close(firstDone) }()
	waitFor(t, "first drain to wait", func() bool { return h.waits.Load() == 1 })
	go func() { m.ClearAndRestart(); close(secondDone) }()
	waitFor(t, "second drain to wait", func() bool { return h.waits.Load() == 2 })

	close(gate)
	select {
	case <-firstDone:
	case <-secondDone:
	case <-time.After(5 * time.Second):
		t.Fatal("no drain returned")
	}
	if _, err := m.Spawn("early", 0, func(*Context) bool { return true }); !errors.Is(err, ErrStopped) {
		t.Fatalf("spawn while a drain is still running: err = %v, want ErrStopped", err)
	}

	close(h.hold)
	<-firstDone
	<-secondDone
	task := mustSpawn(t, m, "after", 0, func(*Context) bool { return true })
	m.WaitUntilFinished(task)
}

func TestHooks(t *testing.T) {
	h := &recordingHooks{}
	m, err := New(Config{PoolSize: 1}, h, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	block := make(chan struct{})
	a := mustSpawn(t, m, "a", UseThreadPool, func(*Context) bool { <-block; return true })
	b := mustSpawn(t, m, "b", UseThreadPool, func(*Context) bool { return true })
	close(block)
	m.WaitUntilFinished(a)
	m.WaitUntilFinished(b)

	// b ran on a's goroutine.
	if got := h.started.Load(); got != 1 {
		t.Errorf("OnThreadStart calls = %d, want 1", got)
	}
	if h.waits.Load() != 2 || h.resumes.Load() != 2 {
		t.Errorf("wait hooks = %d/%d, want 2/2", h.waits.Load(), h.resumes.Load())
	}
}

func TestWriteReport(t *testing.T) {
	m := newTestManager(t, 1)
	block := make(chan struct{})
	defer close(block)
	wait := func(tc *Context) bool { <-block; return true }

	mustSpawn(t, m, "visible", ShowInUI|UseThreadPool, func(tc *Context) bool {
		tc.SetProgress(0.5)
		<-block
		return true
	})
	mustSpawn(t, m, "queued", ShowInUI|UseThreadPool, wait)
	mustSpawn(t, m, "silent", 0, wait)
	mustSpawn(t, m, "hidden", ShowInUI, func(tc *Context) bool {
		tc.SetHideInUI(true)
		<-block
		return true
	})

	waitFor(t, "progress", func() bool {
		for _, ti := range m.Tasks() {
			if ti.Name == "visible" && ti.Progress == 0.5 {
				return true
			}
		}
		return false
	})
	waitFor(t, "hidden flag", func() bool {
		for _, ti := range m.Tasks() {
			if ti.Name == "hidden" {
				return ti.Hidden
			}
		}
		return false
	})

	var buf bytes.Buffer
	if err := m.WriteReport(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"pool 1/1, queued 1", "visible", "50%", "queued"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"silent", "hidden"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("report should not list %q:\n%s", unwanted, out)
		}
	}
}
