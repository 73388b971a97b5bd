package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hubastard/framecore/engine/core"
	"go.uber.org/zap"
)

// LayerDebug owns the profiler/task hotkeys and keeps frame timings in the
// window title:
//
//	Ctrl+P  dump the last frame as a speedscope profile
//	Ctrl+R  stop every background task and reload the shader
//	Ctrl+T  print the profiler and task reports to stdout
type LayerDebug struct {
	app     *App
	out     io.Writer
	elapsed float64
}

// titleInterval is how often, in seconds, the window title is refreshed.
const titleInterval = 0.5

func (l *LayerDebug) OnAttach(e *core.Engine) {
	if l.out == nil {
		l.out = os.Stdout
	}
}

func (l *LayerDebug) OnDetach(e *core.Engine) {}

func (l *LayerDebug) OnUpdate(e *core.Engine, dt float64) {
	l.elapsed += dt
	if l.elapsed < titleInterval {
		return
	}
	l.elapsed = 0
	snap := e.Profiler.Snapshot()
	root, ok := snap.Find("root")
	if !ok {
		return
	}
	st := e.Tasks.Stats()
	e.Window.SetTitle(fmt.Sprintf("framecore | frame %d | %.2f ms avg, %.2f ms max | tasks %d",
		snap.Frame, root.Average.TotalCPU*1000, root.Max.TotalCPU*1000, st.Tracked))
}

func (l *LayerDebug) OnRender(e *core.Engine, alpha float64) {}

func (l *LayerDebug) OnEvent(e *core.Engine, ev core.Event) bool {
	k, ok := ev.(core.EventKey)
	if !ok || !k.Down || k.Mods&core.ModCtrl == 0 {
		return false
	}
	log := l.app.log
	switch k.Key {
	case core.KeyP:
		path, err := e.Profiler.DumpSpeedscope(l.app.opts.profileDir)
		if err != nil {
			log.Error("speedscope dump failed", zap.Error(err))
		} else {
			log.Info("speedscope dump written", zap.String("path", path))
		}
	case core.KeyR:
		e.Tasks.ClearAndRestart()
		l.app.loadShader(e)
		l.app.spawnWorkers(e)
	case core.KeyT:
		if err := l.writeReports(e); err != nil {
			log.Error("report failed", zap.Error(err))
		}
	default:
		return false
	}
	return true
}

func (l *LayerDebug) writeReports(e *core.Engine) error {
	fmt.Fprintf(l.out, "--- profiler (frame %d) ---\n", e.Profiler.Snapshot().Frame)
	if err := e.Profiler.WriteReport(l.out); err != nil {
		return err
	}
	fmt.Fprintln(l.out, "--- tasks ---")
	return e.Tasks.WriteReport(l.out)
}
