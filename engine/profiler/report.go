package profiler

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteReport renders the last completed frame as an indented table, one row
// per node. The GPU columns appear only when some node carries GPU timings.
// Exclusive times are clamped to zero for display.
func (p *Profiler) WriteReport(w io.Writer) error {
	return p.Snapshot().WriteReport(w, p.Selected())
}

// WriteReport renders s; rows named selected are marked with '>'.
func (s *FrameSnapshot) WriteReport(w io.Writer, selected string) error {
	gpu := false
	for _, n := range s.Nodes {
		gpu = gpu || n.HasGPUTimings
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "frame %d\t\t\t\t", s.Frame)
	if gpu {
		fmt.Fprint(tw, "\t\t")
	}
	fmt.Fprintln(tw)

	fmt.Fprint(tw, "scope\tcpu ms\texcl ms\tavg ms\tmax ms\t")
	if gpu {
		fmt.Fprint(tw, "gpu ms\tgpu excl\t")
	}
	fmt.Fprintln(tw)

	for _, n := range s.Nodes {
		mark := " "
		if selected != "" && n.Name == selected {
			mark = ">"
		}
		label := mark + strings.Repeat("  ", n.Depth) + n.Name
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t",
			label, ms(n.Current.TotalCPU), ms(max(n.Current.ExclusiveCPU, 0)),
			ms(n.Average.TotalCPU), ms(n.Max.TotalCPU))
		if gpu {
			if n.HasGPUTimings {
				fmt.Fprintf(tw, "%.3f\t%.3f\t", ms(n.Current.TotalGPU), ms(max(n.Current.ExclusiveGPU, 0)))
			} else {
				fmt.Fprint(tw, "-\t-\t")
			}
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func ms(sec float64) float64 { return sec * 1000 }
