package metrics

import (
	"strings"
	"testing"

	"github.com/hubastard/framecore/engine/profiler"
	"github.com/hubastard/framecore/engine/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
)

type stepClock struct{ t float64 }

func (c *stepClock) Seconds() float64 { return c.t }

type fixedTasks tasks.Stats

func (f fixedTasks) Stats() tasks.Stats { return tasks.Stats(f) }

func TestTaskGauges(t *testing.T) {
	c := NewCollector(nil, fixedTasks{Tracked: 5, PooledWaiting: 2, PoolInUse: 3, PoolSize: 3})
	want := `
# HELP framecore_task_pool_size Capacity of the task pool.
# TYPE framecore_task_pool_size gauge
framecore_task_pool_size 3
# HELP framecore_tasks_pooled_waiting Pooled tasks waiting for a free slot.
# TYPE framecore_tasks_pooled_waiting gauge
framecore_tasks_pooled_waiting 2
# HELP framecore_tasks_tracked Background tasks tracked by the manager.
# TYPE framecore_tasks_tracked gauge
framecore_tasks_tracked 5
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"framecore_task_pool_size", "framecore_tasks_pooled_waiting", "framecore_tasks_tracked")
	if err != nil {
		t.Fatal(err)
	}
}

func TestNoSnapshotBeforeFirstFrame(t *testing.T) {
	clk := &stepClock{t: 1}
	p := profiler.New(profiler.Config{ThreadID: func() uint64 { return 1 }}, clk, zaptest.NewLogger(t))
	c := NewCollector(p, nil)
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("collected %d metrics before any frame, want 0", n)
	}
}

func TestScopeGauges(t *testing.T) {
	if profiler.Disabled() {
		t.Skip("profiler disabled by build tag")
	}
	clk := &stepClock{t: 1}
	p := profiler.New(profiler.Config{ThreadID: func() uint64 { return 1 }}, clk, zaptest.NewLogger(t))
	p.NewFrame()
	upd := p.Begin("Update")
	clk.t += 0.25
	upd.End()
	clk.t += 0.25
	p.NewFrame()

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewCollector(p, nil))
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	got := map[string]float64{}
	for _, mf := range families {
		switch mf.GetName() {
		case "framecore_profiler_nodes":
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 2 {
				t.Errorf("nodes = %v, want 2", v)
			}
		case "framecore_scope_seconds":
			for _, m := range mf.GetMetric() {
				var scope, kind string
				for _, lp := range m.GetLabel() {
					switch lp.GetName() {
					case "scope":
						scope = lp.GetValue()
					case "kind":
						kind = lp.GetValue()
					}
				}
				got[scope+" "+kind] = m.GetGauge().GetValue()
			}
		}
	}

	for key, want := range map[string]float64{
		"root/Update total_cpu": 0.25,
		"root total_cpu":        0.5,
		"root exclusive_cpu":    0.25,
	} {
		if got[key] != want {
			t.Errorf("%s = %v, want %v", key, got[key], want)
		}
	}
	if _, ok := got["root/Update total_gpu"]; ok {
		t.Error("GPU series exported for a CPU-only scope")
	}
}
