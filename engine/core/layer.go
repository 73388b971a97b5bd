package core

type Layer interface {
	OnAttach(e *Engine)
	OnDetach(e *Engine)
	OnUpdate(e *Engine, dt float64)
	OnRender(e *Engine, alpha float64)
	OnEvent(e *Engine, ev Event) bool // return true if handled; propagation stops
}

// LayerStack keeps regular layers below overlays. Rendering walks bottom-up,
// events top-down.
type LayerStack struct {
	list   []Layer
	insert int // first overlay index
}

// Push adds l above the other regular layers and below every overlay.
func (ls *LayerStack) Push(l Layer) {
	ls.list = append(ls.list, nil)
	copy(ls.list[ls.insert+1:], ls.list[ls.insert:])
	ls.list[ls.insert] = l
	ls.insert++
}

// PushOverlay adds l on top of everything.
func (ls *LayerStack) PushOverlay(l Layer) { ls.list = append(ls.list, l) }

// Remove takes l out of the stack. It reports whether l was present.
func (ls *LayerStack) Remove(l Layer) bool {
	for i, v := range ls.list {
		if v != l {
			continue
		}
		copy(ls.list[i:], ls.list[i+1:])
		ls.list[len(ls.list)-1] = nil
		ls.list = ls.list[:len(ls.list)-1]
		if i < ls.insert {
			ls.insert--
		}
		return true
	}
	return false
}

func (ls *LayerStack) Len() int { return len(ls.list) }

func (ls *LayerStack) ForEach(f func(Layer)) {
	for _, l := range ls.list {
		f(l)
	}
}

func (ls *LayerStack) ForEachReverse(f func(Layer) bool) {
	for i := len(ls.list) - 1; i >= 0; i-- {
		if stop := f(ls.list[i]); stop {
			break
		}
	}
}
