package profiler

// Timer pairs a StartScope with its StopScope. Use it as
//
//	t := p.Begin("Update")
//	defer t.End()
type Timer struct {
	p *Profiler
	s Scope
}

// Begin opens a CPU-only scope. While profiling is disabled, or if the scope
// cannot be recorded, the returned Timer does nothing.
func (p *Profiler) Begin(name string) Timer {
	return p.BeginGPU(name, nil)
}

// BeginGPU opens a scope that is also GPU-timed against dc.
func (p *Profiler) BeginGPU(name string, dc DeviceContext) Timer {
	if p == nil || Disabled() {
		return Timer{}
	}
	s, err := p.StartScope(name, false, dc)
	if err != nil {
		return Timer{}
	}
	return Timer{p: p, s: s}
}

// End closes the scope. Calling End on an inert Timer is a no-op.
func (t Timer) End() {
	if t.p == nil || !t.s.Valid() {
		return
	}
	t.p.StopScope(t.s)
}

// Scope returns the handle held by t.
func (t Timer) Scope() Scope { return t.s }

// Track is a shorthand for defer-style instrumentation:
//
//	defer p.Track("Physics")()
func (p *Profiler) Track(name string) func() {
	return p.Begin(name).End
}
