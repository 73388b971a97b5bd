package profiler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type ssFile struct {
	Schema             string      `json:"$schema"`
	Shared             ssShared    `json:"shared"`
	Profiles           []ssProfile `json:"profiles"`
	ActiveProfileIndex int         `json:"activeProfileIndex,omitempty"`
	Exporter           string      `json:"exporter,omitempty"`
	Name               string      `json:"name,omitempty"`
}

type ssShared struct {
	Frames []ssFrame `json:"frames"`
}

type ssFrame struct {
	Name string `json:"name"`
}

type ssProfile struct {
	Type       string    `json:"type"` // "evented"
	Name       string    `json:"name"`
	Unit       string    `json:"unit"` // "microseconds"
	StartValue int64     `json:"startValue"`
	EndValue   int64     `json:"endValue"`
	Events     []ssEvent `json:"events"`
}

type ssEvent struct {
	Type  string `json:"type"` // "O" or "C"
	At    int64  `json:"at"`
	Frame int    `json:"frame"`
}

// WriteSpeedscope encodes the last completed frame as an evented speedscope
// profile. The tree keeps durations only, so children are laid out back to
// back from their parent's start in display order.
func (p *Profiler) WriteSpeedscope(w io.Writer) error {
	return p.Snapshot().WriteSpeedscope(w)
}

// WriteSpeedscope encodes s; see Profiler.WriteSpeedscope.
func (s *FrameSnapshot) WriteSpeedscope(w io.Writer) error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("profiler: no frame to dump")
	}

	frameIDs := map[string]int{}
	var frames []ssFrame
	intern := func(name string) int {
		if id, ok := frameIDs[name]; ok {
			return id
		}
		id := len(frames)
		frameIDs[name] = id
		frames = append(frames, ssFrame{Name: name})
		return id
	}

	type open struct {
		frame int
		depth int
		end   int64
		next  int64 // where the next child starts
	}
	out := make([]ssEvent, 0, 2*len(s.Nodes))
	var stack []open
	closeTo := func(depth int) {
		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			out = append(out, ssEvent{Type: "C", At: top.end, Frame: top.frame})
		}
	}

	var endUS int64
	for _, n := range s.Nodes {
		closeTo(n.Depth)
		var at int64
		if len(stack) > 0 {
			at = stack[len(stack)-1].next
		}
		dur := int64(max(n.Current.TotalCPU, 0) * 1e6)
		end := at + dur
		// A child can not outlast its parent in an evented profile.
		if len(stack) > 0 && end > stack[len(stack)-1].end {
			end = stack[len(stack)-1].end
		}
		if len(stack) > 0 {
			stack[len(stack)-1].next = end
		}
		id := intern(n.Name)
		out = append(out, ssEvent{Type: "O", At: at, Frame: id})
		stack = append(stack, open{frame: id, depth: n.Depth, end: end, next: at})
		endUS = max(endUS, end)
	}
	closeTo(0)

	doc := ssFile{
		Schema: "https://www.speedscope.app/file-format-schema.json",
		Shared: ssShared{Frames: frames},
		Profiles: []ssProfile{{
			Type:       "evented",
			Name:       fmt.Sprintf("frame %d", s.Frame),
			Unit:       "microseconds",
			StartValue: 0,
			EndValue:   endUS,
			Events:     out,
		}},
		Exporter: "framecore-profiler",
		Name:     "framecore capture",
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&doc)
}

// DumpSpeedscope writes the last completed frame into dir and returns the
// file path. The file is written to a temporary name and renamed into place.
func (p *Profiler) DumpSpeedscope(dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("framecore.frame%d.speedscope.json", p.Snapshot().Frame))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if err := p.WriteSpeedscope(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("profiler: rename dump: %w", err)
	}
	return path, nil
}
