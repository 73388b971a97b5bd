package profiler

import "go.uber.org/zap"

// SchedulerHooks are instrumentation callbacks for an external task
// scheduler. They only log; they do not affect the profiler tree.
type SchedulerHooks struct {
	p   *Profiler
	log *zap.Logger
}

// Hooks returns the scheduler callbacks bound to p.
func (p *Profiler) Hooks() SchedulerHooks {
	return SchedulerHooks{p: p, log: p.log.Named("sched")}
}

// OnThreadStart names a scheduler worker.
func (h SchedulerHooks) OnThreadStart(index int) {
	h.log.Debug("worker started", zap.Int("worker", index))
}

// OnWaitStart is called before a thread blocks on the scheduler.
func (h SchedulerHooks) OnWaitStart() {
	if h.p.onMainThread() {
		h.log.Debug("main thread waiting", zap.Int64("frame", h.p.frame))
	}
}

// OnWaitStop is called once a blocked thread resumes.
func (h SchedulerHooks) OnWaitStop() {
	if h.p.onMainThread() {
		h.log.Debug("main thread resumed", zap.Int64("frame", h.p.frame))
	}
}
