package profiler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

const (
	// MaxNodes caps the number of live nodes in a tree.
	MaxNodes = 10000
	// MaxChildren caps the number of live children under one parent.
	MaxChildren = 1000
	// orphanFrames is how many processed frames a node may go unentered
	// before it is pruned.
	orphanFrames = 2 * HistoryCapacity

	maxDuplicates = 99
	dupSep        = "_p"
	noNode        = int32(-1)
)

var errScopeOpen = errors.New("profiler: scope is already open")

type node struct {
	name     string
	gen      uint32
	parent   int32
	children map[string]int32
	sorted   []int32

	startCPU        float64
	lastUsedFrame   int64
	usageIndex      int
	childUsage      int
	framesUntouched int

	cur    Sample
	hist   history
	hasGPU bool

	gpu      GPUTimer
	gpuCtx   DeviceContext
	gpuStart bool
}

func (n *node) open() bool { return n.startCPU != 0 }

// tree is an arena of nodes addressed by slot index. Slots are recycled
// through a free list and carry a generation so stale handles can be told
// apart from the node now occupying the slot.
type tree struct {
	nodes []*node
	free  []int32
	live  int
}

func (t *tree) alloc(name string, parent int32) int32 {
	var idx int32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = int32(len(t.nodes))
		t.nodes = append(t.nodes, &node{})
	}
	n := t.nodes[idx]
	*n = node{
		name:          name,
		gen:           n.gen,
		parent:        parent,
		children:      make(map[string]int32),
		lastUsedFrame: -1,
		usageIndex:    -1,
	}
	t.live++
	return idx
}

// release frees idx and its whole subtree.
func (t *tree) release(idx int32) {
	n := t.nodes[idx]
	for _, c := range n.children {
		t.release(c)
	}
	if n.gpu != nil {
		releaseTimer(n.gpu)
	}
	*n = node{gen: n.gen + 1, parent: noNode}
	t.free = append(t.free, idx)
	t.live--
}

func (t *tree) get(idx int32) *node { return t.nodes[idx] }

// startScope locates or creates the child called name under parent and opens it.
func (t *tree) startScope(parent int32, name string, now float64, frame int64, aggregate bool, dc DeviceContext) (int32, error) {
	p := t.nodes[parent]
	idx, ok := p.children[name]
	switch {
	case !ok:
		if len(p.children) >= MaxChildren {
			return noNode, ErrCapacityExceeded
		}
		if t.live >= MaxNodes {
			return noNode, ErrNodeCeiling
		}
		idx = t.alloc(name, parent)
		// alloc may grow the arena; p stays valid since nodes are pointers.
		p.children[name] = idx
		if dc != nil {
			n := t.nodes[idx]
			n.gpu = dc.NewGPUTimer()
			if n.gpu != nil {
				n.gpu.SetName(name)
			}
		}
	case t.nodes[idx].lastUsedFrame != frame:
		// reuse
	case aggregate:
		return noNode, ErrAggregationUnsupported
	default:
		next, err := nextDuplicateName(name)
		if err != nil {
			return noNode, err
		}
		return t.startScope(parent, next, now, frame, aggregate, dc)
	}

	n := t.nodes[idx]
	if n.open() {
		return noNode, errScopeOpen
	}
	n.usageIndex = p.childUsage
	p.childUsage++
	n.lastUsedFrame = frame
	n.framesUntouched = 0
	n.childUsage = 0
	n.startCPU = now
	if n.gpu != nil && dc != nil {
		n.gpu.Start(dc)
		n.gpuCtx = dc
		n.gpuStart = true
	}
	return idx, nil
}

// stopScope closes idx. The caller has already checked that it is open.
func (t *tree) stopScope(idx int32, now float64) {
	n := t.nodes[idx]
	n.cur.TotalCPU = now - n.startCPU
	n.startCPU = 0
	if n.gpuStart {
		n.gpu.Stop(n.gpuCtx)
		n.gpuStart = false
		n.gpuCtx = nil
	}
}

// nextDuplicateName turns "X" into "X_p01" and "X_pNN" into "X_pNN+1".
func nextDuplicateName(name string) (string, error) {
	base, counter := name, 0
	if i := len(name) - len(dupSep) - 2; i >= 0 && name[i:i+len(dupSep)] == dupSep {
		if v, err := strconv.Atoi(name[i+len(dupSep):]); err == nil && v > 0 {
			base, counter = name[:i], v
		}
	}
	counter++
	if counter > maxDuplicates {
		return "", ErrTooManyDuplicateScopes
	}
	return fmt.Sprintf("%s%s%02d", base, dupSep, counter), nil
}

// removeOrphans prunes children left untouched for more than orphanFrames
// processed frames. Returns the number of nodes released.
func (t *tree) removeOrphans(idx int32) int {
	n := t.nodes[idx]
	removed := 0
	for name, c := range n.children {
		if t.nodes[c].framesUntouched > orphanFrames {
			before := t.live
			t.release(c)
			delete(n.children, name)
			removed += before - t.live
			continue
		}
		removed += t.removeOrphans(c)
	}
	return removed
}

// process aggregates idx post-order for the frame that just ended and pushes
// the result into its history.
func (t *tree) process(idx int32, frame int64) {
	n := t.nodes[idx]
	t.sortChildren(n)

	var childCPU, childGPU float64
	hasGPU := n.gpu != nil
	for _, c := range n.sorted {
		t.process(c, frame)
		cn := t.nodes[c]
		childCPU += cn.cur.TotalCPU
		childGPU += cn.cur.TotalGPU
		hasGPU = hasGPU || cn.hasGPU
	}

	if n.lastUsedFrame != frame {
		n.cur.TotalCPU = 0
	}
	switch {
	case n.gpu != nil && n.lastUsedFrame == frame:
		n.cur.TotalGPU = n.gpu.LastTime()
	case n.gpu != nil:
		n.cur.TotalGPU = 0
	default:
		n.cur.TotalGPU = childGPU
	}
	n.cur.ExclusiveCPU = n.cur.TotalCPU - childCPU
	n.cur.ExclusiveGPU = n.cur.TotalGPU - childGPU
	n.hasGPU = hasGPU

	n.framesUntouched++
	n.usageIndex = -1
	n.hist.push(n.cur)
}

// sortChildren rebuilds the display order: children entered this frame sit at
// their call position, the rest follow sorted by name. A child whose slot is
// already taken is appended rather than dropped.
func (t *tree) sortChildren(n *node) {
	slots := make([]int32, min(len(n.children), MaxChildren))
	for i := range slots {
		slots[i] = noNode
	}
	var rest []int32
	for _, c := range n.children {
		ui := t.nodes[c].usageIndex
		if ui >= 0 && ui < len(slots) && slots[ui] == noNode {
			slots[ui] = c
			continue
		}
		rest = append(rest, c)
	}
	sort.Slice(rest, func(i, j int) bool {
		return t.nodes[rest[i]].name < t.nodes[rest[j]].name
	})

	n.sorted = n.sorted[:0]
	for _, c := range slots {
		if c != noNode {
			n.sorted = append(n.sorted, c)
		}
	}
	n.sorted = append(n.sorted, rest...)
}

// find searches idx and its subtree depth-first for name.
func (t *tree) find(idx int32, name string) int32 {
	n := t.nodes[idx]
	if n.name == name {
		return idx
	}
	for _, c := range n.children {
		if r := t.find(c, name); r != noNode {
			return r
		}
	}
	return noNode
}
