package core

import (
	"runtime"
	"time"

	"github.com/hubastard/framecore/engine/profiler"
	"github.com/hubastard/framecore/engine/tasks"
	"go.uber.org/zap"
)

// Run wires the platform window + renderer and executes the main loop. Each
// frame is recorded by the profiler as Update, Render and Present scopes
// under the root. log may be nil.
func Run(app App, cfg Config, newWindow func(Config) (Window, error), newRenderer func(Window, Config) (Renderer, error), log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("core")

	// Graphics contexts and the profiler require the main OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	win, err := newWindow(cfg)
	if err != nil {
		return err
	}
	if d, ok := win.(interface{ Destroy() }); ok {
		defer d.Destroy()
	}

	rend, err := newRenderer(win, cfg)
	if err != nil {
		return err
	}
	defer rend.Shutdown()

	w, h := win.FramebufferSize()
	rend.Resize(w, h)

	var clock profiler.Clock
	if c, ok := win.(profiler.Clock); ok {
		clock = c
	}
	prof := profiler.New(cfg.Profiler, clock, log)
	mgr, err := tasks.New(cfg.Tasks, prof.Hooks(), log)
	if err != nil {
		return err
	}
	defer mgr.Close()

	eng := &Engine{
		Window:   win,
		Renderer: rend,
		Layers:   &LayerStack{},
		Input:    NewInput(),
		Profiler: prof,
		Tasks:    mgr,
		Log:      log,
		start:    time.Now(),
	}
	win.SetEventCallback(func(ev Event) { eng.dispatch(app, ev) })

	app.OnStart(eng)
	eng.Layers.ForEach(func(l Layer) { l.OnAttach(eng) })

	// Fixed-timestep with interpolation
	tick := time.Second / time.Duration(cfg.TickRate)
	dt := tick.Seconds()
	var (
		accum time.Duration
		prev  = time.Now()
		clear = cfg.ClearColor
	)

	prof.NewFrame()
	for !win.ShouldClose() {
		now := time.Now()
		accum += now.Sub(prev)
		prev = now

		update := prof.Begin("Update")
		// Poll OS events (platform will emit via callbacks)
		win.PollEvents()
		steps := 0
		for accum >= tick && steps < cfg.MaxSteps {
			app.OnUpdate(eng, dt)
			eng.Layers.ForEach(func(l Layer) { l.OnUpdate(eng, dt) })
			accum -= tick
			steps++
		}
		if steps == cfg.MaxSteps && accum >= tick {
			log.Debug("dropping fixed updates", zap.Duration("behind", accum))
			accum = 0
		}
		eng.Input.EndFrame()
		update.End()

		alpha := float64(accum) / float64(tick)
		render := prof.BeginGPU("Render", rend.DeviceContext())
		rend.Clear(clear[0], clear[1], clear[2], clear[3])
		app.OnRender(eng, alpha)
		eng.Layers.ForEach(func(l Layer) { l.OnRender(eng, alpha) })
		render.End()

		present := prof.Begin("Present")
		win.SwapBuffers()
		present.End()

		prof.NewFrame()
		eng.frames++
	}

	for eng.Layers.Len() > 0 {
		var top Layer
		eng.Layers.ForEachReverse(func(l Layer) bool { top = l; return true })
		top.OnDetach(eng)
		eng.Layers.Remove(top)
	}
	app.OnShutdown(eng)
	log.Info("engine exit", zap.Int64("frames", eng.frames), zap.Duration("uptime", eng.Uptime()))
	return nil
}

// dispatch routes an event to input tracking, then to layers top-down and
// finally to the app if no layer handled it.
func (e *Engine) dispatch(app App, ev Event) {
	e.Input.Handle(ev)
	if r, ok := ev.(EventResize); ok {
		fw, fh := e.Window.FramebufferSize()
		if fw >= 1 && fh >= 1 {
			e.Renderer.Resize(fw, fh)
		} else {
			e.Log.Debug("ignoring empty framebuffer", zap.Int("w", r.W), zap.Int("h", r.H))
		}
	}
	handled := false
	e.Layers.ForEachReverse(func(l Layer) bool {
		handled = l.OnEvent(e, ev)
		return handled
	})
	if !handled {
		app.OnEvent(e, ev)
	}
}
