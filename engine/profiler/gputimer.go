package profiler

// DeviceContext is the render device context a GPU-timed scope runs against.
// The profiler never inspects it beyond asking for new timers.
type DeviceContext interface {
	NewGPUTimer() GPUTimer
}

// GPUTimer measures GPU time between Start and Stop. Results typically lag a
// few frames behind; LastTime reports the most recent resolved measurement.
type GPUTimer interface {
	Start(dc DeviceContext)
	Stop(dc DeviceContext)
	LastTime() float64
	SetName(name string)
}

// releaser is implemented by timers holding device resources.
type releaser interface {
	Release()
}

func releaseTimer(t GPUTimer) {
	if r, ok := t.(releaser); ok {
		r.Release()
	}
}
