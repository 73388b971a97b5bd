package profiler

// HistoryCapacity is the number of frames kept per node.
const HistoryCapacity = 128

// Sample holds one frame worth of timings, in seconds.
type Sample struct {
	TotalCPU     float64
	TotalGPU     float64
	ExclusiveCPU float64
	ExclusiveGPU float64
}

// history is a fixed ring of samples. Average and Max are only refreshed when
// the write cursor wraps, so between wraps they describe the previous window.
type history struct {
	samples [HistoryCapacity]Sample
	cursor  int
	avg     Sample
	max     Sample
}

func (h *history) push(s Sample) {
	h.samples[h.cursor] = s
	h.cursor++
	if h.cursor < HistoryCapacity {
		return
	}
	h.cursor = 0
	h.recompute()
}

func (h *history) recompute() {
	var sum Sample
	mx := h.samples[0]
	for _, s := range h.samples {
		sum.TotalCPU += s.TotalCPU
		sum.TotalGPU += s.TotalGPU
		sum.ExclusiveCPU += s.ExclusiveCPU
		sum.ExclusiveGPU += s.ExclusiveGPU
		mx.TotalCPU = max(mx.TotalCPU, s.TotalCPU)
		mx.TotalGPU = max(mx.TotalGPU, s.TotalGPU)
		mx.ExclusiveCPU = max(mx.ExclusiveCPU, s.ExclusiveCPU)
		mx.ExclusiveGPU = max(mx.ExclusiveGPU, s.ExclusiveGPU)
	}
	const n = float64(HistoryCapacity)
	h.avg = Sample{
		TotalCPU:     sum.TotalCPU / n,
		TotalGPU:     sum.TotalGPU / n,
		ExclusiveCPU: sum.ExclusiveCPU / n,
		ExclusiveGPU: sum.ExclusiveGPU / n,
	}
	h.max = mx
}
