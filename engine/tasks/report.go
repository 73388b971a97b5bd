package tasks

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// TaskInfo describes a tracked task for display.
type TaskInfo struct {
	Name          string
	Progress      float32
	Flags         Flags
	PooledWaiting bool
	Hidden        bool
}

// Tasks clears finished tasks and returns the rest.
func (m *Manager) Tasks() []TaskInfo {
	m.ClearFinishedTasks()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskInfo, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, TaskInfo{
			Name:          t.name,
			Progress:      t.ctx.Progress(),
			Flags:         t.flags,
			PooledWaiting: t.pooledWaiting.Load(),
			Hidden:        t.ctx.HideInUI(),
		})
	}
	return out
}

// WriteReport lists running tasks flagged ShowInUI that have not hidden
// themselves.
func (m *Manager) WriteReport(w io.Writer) error {
	st := m.Stats()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "pool %d/%d, queued %d\n", st.PoolInUse, st.PoolSize, st.PooledWaiting)
	for _, ti := range m.Tasks() {
		if ti.Flags&ShowInUI == 0 || ti.Hidden {
			continue
		}
		state := "running"
		if ti.PooledWaiting {
			state = "queued"
		}
		fmt.Fprintf(tw, "%s\t%s\t%3.0f%%\n", ti.Name, state, ti.Progress*100)
	}
	return tw.Flush()
}
