package glbackend

import (
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/hubastard/framecore/engine/profiler"
)

// timerLatency is how many frames of queries a timer keeps in flight.
const timerLatency = 3

// glTimer measures GPU time with pairs of GL_TIMESTAMP queries. Unlike
// GL_TIME_ELAPSED, timestamps may nest, which child scopes need. Results are
// read back without stalling, a few frames late.
type glTimer struct {
	name    string
	queries [timerLatency][2]uint32
	pending [timerLatency]bool
	cursor  int
	running bool
	last    float64
}

func newGLTimer() *glTimer {
	t := &glTimer{}
	gl.GenQueries(2*timerLatency, &t.queries[0][0])
	return t
}

var _ profiler.GPUTimer = (*glTimer)(nil)

func (t *glTimer) SetName(name string) { t.name = name }

func (t *glTimer) Start(profiler.DeviceContext) {
	t.poll()
	// An unresolved slot is overwritten; its sample is lost.
	t.pending[t.cursor] = false
	gl.QueryCounter(t.queries[t.cursor][0], gl.TIMESTAMP)
	t.running = true
}

func (t *glTimer) Stop(profiler.DeviceContext) {
	if !t.running {
		return
	}
	gl.QueryCounter(t.queries[t.cursor][1], gl.TIMESTAMP)
	t.pending[t.cursor] = true
	t.cursor = (t.cursor + 1) % timerLatency
	t.running = false
}

// LastTime returns the newest resolved duration in seconds.
func (t *glTimer) LastTime() float64 {
	t.poll()
	return t.last
}

// poll collects finished queries, oldest first.
func (t *glTimer) poll() {
	for i := 0; i < timerLatency; i++ {
		slot := (t.cursor + i) % timerLatency
		if !t.pending[slot] {
			continue
		}
		q := t.queries[slot]
		var avail int32
		gl.GetQueryObjectiv(q[1], gl.QUERY_RESULT_AVAILABLE, &avail)
		if avail == 0 {
			return
		}
		var begin, end uint64
		gl.GetQueryObjectui64v(q[0], gl.QUERY_RESULT, &begin)
		gl.GetQueryObjectui64v(q[1], gl.QUERY_RESULT, &end)
		if end >= begin {
			t.last = float64(end-begin) / 1e9
		}
		t.pending[slot] = false
	}
}

// Release deletes the queries. The profiler calls it when the node is pruned.
func (t *glTimer) Release() {
	gl.DeleteQueries(2*timerLatency, &t.queries[0][0])
	t.queries = [timerLatency][2]uint32{}
	t.pending = [timerLatency]bool{}
}
