// Package profiler records nested CPU/GPU scopes per frame into a tree keyed
// by scope name, keeping per-node rolling statistics.
//
// A Profiler is single-threaded: every mutating call must come from the
// goroutine (locked to its OS thread) that created it. Only Snapshot may be
// read from other goroutines.
package profiler

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

const rootName = "root"

// Config controls a Profiler.
type Config struct {
	// Strict turns precondition violations into panics instead of logged no-ops.
	Strict bool
	// ThreadID identifies the calling thread. Nil uses the OS thread id.
	ThreadID func() uint64
}

// DefaultConfig returns the release configuration.
func DefaultConfig() Config {
	return Config{}
}

// Scope is a handle to a profiler node. The zero Scope is invalid. A handle
// stays meaningful until the node is pruned; pruned handles resolve to nothing.
type Scope struct {
	idx int32 // slot + 1
	gen uint32
}

// Valid reports whether s refers to a node at all (it may still be stale).
func (s Scope) Valid() bool { return s.idx > 0 }

// Profiler owns the scope tree and the frame counter.
type Profiler struct {
	log      *zap.Logger
	clock    Clock
	strict   bool
	threadID func() uint64
	main     uint64

	tree       tree
	root       int32
	current    int32
	lastClosed int32
	frame      int64
	selected   string
	// warned records the frame each dropped scope name was last logged in.
	warned map[string]int64

	snap atomic.Pointer[FrameSnapshot]
}

// New creates a profiler bound to the calling thread.
func New(cfg Config, clock Clock, log *zap.Logger) *Profiler {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = NewMonotonicClock()
	}
	tid := cfg.ThreadID
	if tid == nil {
		tid = currentThreadID
	}
	p := &Profiler{
		log:        log.Named("profiler"),
		clock:      clock,
		strict:     cfg.Strict,
		threadID:   tid,
		main:       tid(),
		current:    noNode,
		lastClosed: noNode,
		warned:     make(map[string]int64),
	}
	p.root = p.tree.alloc(rootName, noNode)
	p.snap.Store(&FrameSnapshot{Frame: -1})
	return p
}

func (p *Profiler) onMainThread() bool { return p.threadID() == p.main }

// fault reports a broken precondition: a panic in strict mode, a logged
// error otherwise.
func (p *Profiler) fault(msg string, fields ...zap.Field) {
	if p.strict {
		panic("profiler: " + msg)
	}
	p.log.Error(msg, fields...)
}

func (p *Profiler) handle(idx int32) Scope {
	if idx == noNode {
		return Scope{}
	}
	return Scope{idx: idx + 1, gen: p.tree.get(idx).gen}
}

// resolve maps a handle back to a live slot.
func (p *Profiler) resolve(s Scope) (int32, bool) {
	if !s.Valid() || int(s.idx) > len(p.tree.nodes) {
		return noNode, false
	}
	idx := s.idx - 1
	n := p.tree.get(idx)
	if n.gen != s.gen || n.children == nil {
		return noNode, false
	}
	return idx, true
}

// Frame returns the index of the frame currently being recorded.
func (p *Profiler) Frame() int64 { return p.frame }

// NodeCount returns the number of live nodes, root included.
func (p *Profiler) NodeCount() int { return p.tree.live }

// Root returns the root scope handle.
func (p *Profiler) Root() Scope { return p.handle(p.root) }

// Current returns the innermost open scope, or the zero Scope.
func (p *Profiler) Current() Scope { return p.handle(p.current) }

// LastClosed returns the most recently closed scope this frame.
func (p *Profiler) LastClosed() Scope { return p.handle(p.lastClosed) }

// StartScope opens name under the current scope and descends into it. With
// no scope open it opens the root instead and returns it. A non-nil dc gives
// a newly created node its own GPU timer and starts it.
func (p *Profiler) StartScope(name string, aggregate bool, dc DeviceContext) (Scope, error) {
	if !p.onMainThread() {
		p.log.Warn("scope started off the main thread", zap.String("scope", name))
		return Scope{}, ErrWrongThread
	}
	if name == "" {
		p.fault(ErrEmptyScopeName.Error())
		return Scope{}, ErrEmptyScopeName
	}
	now := p.clock.Seconds()
	if p.current == noNode {
		p.openRoot(now)
		return p.handle(p.root), nil
	}

	idx, err := p.tree.startScope(p.current, name, now, p.frame, aggregate, dc)
	switch {
	case err == nil:
	case errors.Is(err, errScopeOpen), errors.Is(err, ErrNodeCeiling), errors.Is(err, ErrAggregationUnsupported):
		p.fault(err.Error(), zap.String("scope", name))
		return Scope{}, err
	default:
		if f, ok := p.warned[name]; !ok || f != p.frame {
			p.warned[name] = p.frame
			p.log.Warn("scope dropped", zap.String("scope", name), zap.Error(err))
		}
		return Scope{}, err
	}
	p.current = idx
	return p.handle(idx), nil
}

func (p *Profiler) openRoot(now float64) {
	r := p.tree.get(p.root)
	r.startCPU = now
	r.lastUsedFrame = p.frame
	r.framesUntouched = 0
	r.childUsage = 0
	r.usageIndex = 0
	p.current = p.root
}

// StopScope closes s, which must be the current scope, and ascends to its parent.
func (p *Profiler) StopScope(s Scope) {
	if !p.onMainThread() {
		p.fault("scope stopped off the main thread")
		return
	}
	idx, ok := p.resolve(s)
	if !ok || idx != p.current {
		p.fault("stopped scope is not the current scope")
		return
	}
	n := p.tree.get(idx)
	if !n.open() {
		p.fault("stopped scope is not open", zap.String("scope", n.name))
		return
	}
	p.tree.stopScope(idx, p.clock.Seconds())
	if n.framesUntouched != 0 {
		p.fault("scope stopped across a frame boundary", zap.String("scope", n.name))
	}
	p.lastClosed = idx
	p.current = n.parent
}

// NewFrame ends the frame being recorded: it closes any open scopes, prunes
// stale nodes, aggregates the tree, publishes a snapshot and reopens the root.
func (p *Profiler) NewFrame() {
	if !p.onMainThread() {
		p.fault("NewFrame called off the main thread")
		return
	}
	now := p.clock.Seconds()
	if p.current != noNode {
		for p.current != p.root {
			n := p.tree.get(p.current)
			p.log.Warn("scope left open at frame end", zap.String("scope", n.name))
			p.tree.stopScope(p.current, now)
			p.current = n.parent
		}
		p.tree.stopScope(p.root, now)
		p.current = noNode
	}

	if removed := p.tree.removeOrphans(p.root); removed > 0 {
		p.log.Debug("pruned orphan scopes", zap.Int("count", removed), zap.Int64("frame", p.frame))
	}
	p.tree.process(p.root, p.frame)
	p.snap.Store(p.buildSnapshot())
	clear(p.warned)

	p.frame++
	p.openRoot(p.clock.Seconds())
	p.lastClosed = noNode
}

// FindNode searches the tree depth-first for name. The handle is only
// guaranteed meaningful until the next NewFrame.
func (p *Profiler) FindNode(name string) (Scope, bool) {
	idx := p.tree.find(p.root, name)
	return p.handle(idx), idx != noNode
}

// Select remembers a scope name for highlighting in reports.
func (p *Profiler) Select(name string) { p.selected = name }

// Selected returns the name passed to Select.
func (p *Profiler) Selected() string { return p.selected }

// Stats returns the last completed frame's figures for s.
func (p *Profiler) Stats(s Scope) (NodeStats, bool) {
	idx, ok := p.resolve(s)
	if !ok {
		return NodeStats{}, false
	}
	return p.stats(idx), true
}

func (p *Profiler) stats(idx int32) NodeStats {
	n := p.tree.get(idx)
	return NodeStats{
		Name:            n.name,
		Current:         n.cur,
		Average:         n.hist.avg,
		Max:             n.hist.max,
		HasGPUTimings:   n.hasGPU,
		Open:            n.open(),
		UsageIndex:      n.usageIndex,
		FramesUntouched: n.framesUntouched,
		LastUsedFrame:   n.lastUsedFrame,
	}
}

// Children returns the children of s in display order as of the last NewFrame,
// followed by any created since.
func (p *Profiler) Children(s Scope) []Scope {
	idx, ok := p.resolve(s)
	if !ok {
		return nil
	}
	n := p.tree.get(idx)
	out := make([]Scope, 0, len(n.children))
	seen := make(map[int32]bool, len(n.sorted))
	for _, c := range n.sorted {
		if p.tree.get(c).children == nil || p.tree.get(c).parent != idx {
			continue
		}
		seen[c] = true
		out = append(out, p.handle(c))
	}
	for _, c := range n.children {
		if !seen[c] {
			out = append(out, p.handle(c))
		}
	}
	return out
}

// History returns the ring of samples for s, oldest first.
func (p *Profiler) History(s Scope) []Sample {
	idx, ok := p.resolve(s)
	if !ok {
		return nil
	}
	h := &p.tree.get(idx).hist
	out := make([]Sample, 0, HistoryCapacity)
	out = append(out, h.samples[h.cursor:]...)
	return append(out, h.samples[:h.cursor]...)
}
