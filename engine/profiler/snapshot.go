package profiler

// NodeStats describes one node as of the last completed frame.
type NodeStats struct {
	Name string
	// Path joins the names from the root down with '/'.
	Path  string
	Depth int

	Current Sample
	Average Sample
	Max     Sample

	HasGPUTimings   bool
	Open            bool
	UsageIndex      int
	FramesUntouched int
	LastUsedFrame   int64
}

// FrameSnapshot is an immutable copy of the tree taken at NewFrame. Nodes are
// listed depth-first in display order, root first.
type FrameSnapshot struct {
	Frame int64
	Nodes []NodeStats
}

// Snapshot returns the snapshot published by the last NewFrame. It is safe
// to call from any goroutine.
func (p *Profiler) Snapshot() *FrameSnapshot { return p.snap.Load() }

func (p *Profiler) buildSnapshot() *FrameSnapshot {
	s := &FrameSnapshot{
		Frame: p.frame,
		Nodes: make([]NodeStats, 0, p.tree.live),
	}
	var walk func(idx int32, path string, depth int)
	walk = func(idx int32, path string, depth int) {
		st := p.stats(idx)
		if path != "" {
			path += "/"
		}
		st.Path = path + st.Name
		st.Depth = depth
		s.Nodes = append(s.Nodes, st)
		for _, c := range p.tree.get(idx).sorted {
			walk(c, st.Path, depth+1)
		}
	}
	walk(p.root, "", 0)
	return s
}

// Find returns the first node named name, depth-first.
func (s *FrameSnapshot) Find(name string) (NodeStats, bool) {
	for _, n := range s.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeStats{}, false
}

// Lookup returns the node at path, e.g. "root/Update/Physics".
func (s *FrameSnapshot) Lookup(path string) (NodeStats, bool) {
	for _, n := range s.Nodes {
		if n.Path == path {
			return n, true
		}
	}
	return NodeStats{}, false
}
