// Package metrics exports profiler snapshots and task manager state to
// Prometheus.
package metrics

import (
	"github.com/hubastard/framecore/engine/profiler"
	"github.com/hubastard/framecore/engine/tasks"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "framecore"

// SnapshotSource publishes completed profiler frames. *profiler.Profiler
// satisfies it and is safe to scrape from the HTTP goroutine.
type SnapshotSource interface {
	Snapshot() *profiler.FrameSnapshot
}

// TaskSource reports task manager counts. *tasks.Manager satisfies it.
type TaskSource interface {
	Stats() tasks.Stats
}

// Collector implements prometheus.Collector. Values are read at scrape time;
// nothing is cached between scrapes.
type Collector struct {
	prof  SnapshotSource
	tasks TaskSource

	scopeSeconds  *prometheus.Desc
	nodes         *prometheus.Desc
	frame         *prometheus.Desc
	tracked       *prometheus.Desc
	pooledWaiting *prometheus.Desc
	poolInUse     *prometheus.Desc
	poolSize      *prometheus.Desc
}

// NewCollector returns a collector over either source; a nil source is
// skipped.
func NewCollector(prof SnapshotSource, tasks TaskSource) *Collector {
	return &Collector{
		prof:  prof,
		tasks: tasks,
		scopeSeconds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "scope_seconds"),
			"Per-scope timings of the last completed frame, by kind.",
			[]string{"scope", "kind"}, nil,
		),
		nodes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "profiler", "nodes"),
			"Scope nodes in the profiler tree, root included.",
			nil, nil,
		),
		frame: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "profiler", "frame"),
			"Index of the last completed profiler frame.",
			nil, nil,
		),
		tracked: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "tasks", "tracked"),
			"Background tasks tracked by the manager.",
			nil, nil,
		),
		pooledWaiting: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "tasks", "pooled_waiting"),
			"Pooled tasks waiting for a free slot.",
			nil, nil,
		),
		poolInUse: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "task_pool", "in_use"),
			"Task pool slots currently running work.",
			nil, nil,
		),
		poolSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "task_pool", "size"),
			"Capacity of the task pool.",
			nil, nil,
		),
	}
}

// Describe implements the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.scopeSeconds
	ch <- c.nodes
	ch <- c.frame
	ch <- c.tracked
	ch <- c.pooledWaiting
	ch <- c.poolInUse
	ch <- c.poolSize
}

// Collect implements the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.prof != nil {
		c.collectSnapshot(ch, c.prof.Snapshot())
	}
	if c.tasks != nil {
		st := c.tasks.Stats()
		ch <- prometheus.MustNewConstMetric(c.tracked, prometheus.GaugeValue, float64(st.Tracked))
		ch <- prometheus.MustNewConstMetric(c.pooledWaiting, prometheus.GaugeValue, float64(st.PooledWaiting))
		ch <- prometheus.MustNewConstMetric(c.poolInUse, prometheus.GaugeValue, float64(st.PoolInUse))
		ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(st.PoolSize))
	}
}

func (c *Collector) collectSnapshot(ch chan<- prometheus.Metric, snap *profiler.FrameSnapshot) {
	// Nothing is published before the first NewFrame.
	if snap == nil || snap.Frame < 0 {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.frame, prometheus.GaugeValue, float64(snap.Frame))
	ch <- prometheus.MustNewConstMetric(c.nodes, prometheus.GaugeValue, float64(len(snap.Nodes)))
	for _, n := range snap.Nodes {
		c.scope(ch, n.Path, "total_cpu", n.Current.TotalCPU)
		c.scope(ch, n.Path, "exclusive_cpu", max(n.Current.ExclusiveCPU, 0))
		c.scope(ch, n.Path, "avg_cpu", n.Average.TotalCPU)
		c.scope(ch, n.Path, "max_cpu", n.Max.TotalCPU)
		if !n.HasGPUTimings {
			continue
		}
		c.scope(ch, n.Path, "total_gpu", n.Current.TotalGPU)
		c.scope(ch, n.Path, "exclusive_gpu", max(n.Current.ExclusiveGPU, 0))
		c.scope(ch, n.Path, "avg_gpu", n.Average.TotalGPU)
		c.scope(ch, n.Path, "max_gpu", n.Max.TotalGPU)
	}
}

func (c *Collector) scope(ch chan<- prometheus.Metric, path, kind string, v float64) {
	ch <- prometheus.MustNewConstMetric(c.scopeSeconds, prometheus.GaugeValue, v, path, kind)
}
