package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hubastard/framecore/engine/assets"
	"github.com/hubastard/framecore/engine/core"
	glbackend "github.com/hubastard/framecore/engine/gfx/gl"
	"github.com/hubastard/framecore/engine/logging"
	"github.com/hubastard/framecore/engine/metrics"
	"github.com/hubastard/framecore/engine/platform"
	"github.com/hubastard/framecore/engine/profiler"
	"github.com/hubastard/framecore/engine/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type options struct {
	metricsAddr string
	profileDir  string
	shaderDir   string
	shader      string
	selectScope string
	workers     int
}

// Optional renderer capabilities the GL backend provides.
type (
	programSetter interface {
		SetDemoProgram(vs, fs string) error
	}
	rotator interface {
		SetDemoRotation(angle float32)
	}
)

type App struct {
	opts  options
	log   *zap.Logger
	angle float64

	srv    *http.Server
	debug  *LayerDebug
	shader *tasks.Task
	loaded assets.ProgramSources // written by the shader task before it finishes
}

func (a *App) OnStart(e *core.Engine) {
	e.Profiler.Select(a.opts.selectScope)

	a.debug = &LayerDebug{app: a}
	e.Layers.PushOverlay(a.debug)

	a.loadShader(e)
	a.spawnWorkers(e)
	if a.opts.metricsAddr != "" {
		a.serveMetrics(e)
	}
}

// loadShader reads the demo program on the pool; OnUpdate compiles it on the
// GL thread once the task is done.
func (a *App) loadShader(e *core.Engine) {
	dir, name := a.opts.shaderDir, a.opts.shader
	t, err := e.Tasks.Spawn("load shader "+name, tasks.UseThreadPool|tasks.ShowInUI, func(tc *tasks.Context) bool {
		src, err := assets.LoadProgramSources(dir, name)
		if err != nil {
			a.log.Warn("shader load failed", zap.String("shader", name), zap.Error(err))
			return false
		}
		tc.SetProgress(0.5)
		if tc.ForceStop() {
			return false
		}
		a.loaded = src
		return true
	})
	if err != nil {
		a.log.Warn("could not schedule shader load", zap.Error(err))
		return
	}
	a.shader = t
}

// spawnWorkers starts long-running simulated jobs so the task report has
// something to show.
func (a *App) spawnWorkers(e *core.Engine) {
	for i := 0; i < a.opts.workers; i++ {
		name := fmt.Sprintf("simulate %d", i)
		_, err := e.Tasks.Spawn(name, tasks.UseThreadPool|tasks.ShowInUI, func(tc *tasks.Context) bool {
			const steps = 200
			for s := 0; s < steps; s++ {
				select {
				case <-tc.Done():
					return false
				case <-time.After(25 * time.Millisecond):
				}
				tc.SetProgress(float32(s+1) / steps)
			}
			return true
		})
		if err != nil {
			a.log.Warn("could not spawn worker", zap.String("task", name), zap.Error(err))
		}
	}
}

func (a *App) serveMetrics(e *core.Engine) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(e.Profiler, e.Tasks),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	a.srv = &http.Server{Addr: a.opts.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", a.opts.metricsAddr))
}

func (a *App) OnUpdate(e *core.Engine, dt float64) {
	defer e.Profiler.Track("App.Update")()

	a.angle += dt
	if r, ok := e.Renderer.(rotator); ok {
		r.SetDemoRotation(float32(a.angle))
	}

	if a.shader == nil || !a.shader.IsFinished() {
		return
	}
	t := a.shader
	a.shader = nil
	if !t.Result() {
		return
	}
	ps, ok := e.Renderer.(programSetter)
	if !ok {
		return
	}
	compile := e.Profiler.Begin("CompileShader")
	err := ps.SetDemoProgram(a.loaded.Vertex, a.loaded.Fragment)
	compile.End()
	if err != nil {
		a.log.Warn("shader compile failed", zap.String("shader", a.loaded.Name), zap.Error(err))
	}
}

func (a *App) OnRender(e *core.Engine, alpha float64) {
	tri := e.Profiler.BeginGPU("Triangle", e.Renderer.DeviceContext())
	e.Renderer.DrawDemoTriangle()
	tri.End()
}

func (a *App) OnEvent(e *core.Engine, ev core.Event) {
	if k, ok := ev.(core.EventKey); ok && k.Down && k.Key == core.KeyEscape {
		e.Window.RequestClose()
	}
}

func (a *App) OnShutdown(e *core.Engine) {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		a.log.Warn("metrics server shutdown", zap.Error(err))
	}
}

func main() {
	cfg := core.DefaultConfig()
	cfg.Title = "framecore sandbox"
	logCfg := logging.DefaultConfig()
	opts := options{workers: 3}
	var noProfile bool

	fs := pflag.NewFlagSet("sandbox", pflag.ExitOnError)
	fs.StringVar(&cfg.Title, "title", cfg.Title, "window title")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "window width in pixels")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "window height in pixels")
	fs.BoolVar(&cfg.VSync, "vsync", cfg.VSync, "wait for vertical sync")
	fs.IntVar(&cfg.TickRate, "tick-rate", cfg.TickRate, "fixed update rate in Hz")
	fs.IntVar(&cfg.Tasks.PoolSize, "pool-size", cfg.Tasks.PoolSize, "background task pool size (0 = from core count)")
	fs.BoolVar(&cfg.Profiler.Strict, "strict", cfg.Profiler.Strict, "panic on profiler misuse instead of logging it")
	fs.BoolVar(&noProfile, "no-profile", profiler.Disabled(), "disable scope recording")
	fs.StringVar(&logCfg.Level, "log-level", logCfg.Level, "log level: debug, info, warn, error")
	fs.BoolVar(&logCfg.Development, "dev", logCfg.Development, "human-readable console logs")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.StringVar(&opts.profileDir, "profile-dir", os.TempDir(), "directory for speedscope dumps (Ctrl+P)")
	fs.StringVar(&opts.shaderDir, "shader-dir", "assets/shaders", "directory holding <shader>.vert and <shader>.frag")
	fs.StringVar(&opts.shader, "shader", "demo", "shader program loaded in the background at startup")
	fs.StringVar(&opts.selectScope, "select", "Triangle", "scope highlighted in profiler reports")
	fs.IntVar(&opts.workers, "workers", opts.workers, "simulated background jobs to spawn")
	_ = fs.Parse(os.Args[1:])

	if err := errors.Join(cfg.Validate(), logCfg.Validate()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()
	profiler.SetDisabled(noProfile)

	app := &App{opts: opts, log: log.Named("sandbox")}

	newWindow := func(cfg core.Config) (core.Window, error) {
		return platform.NewGLFWWindow(cfg, log)
	}
	newRenderer := func(win core.Window, cfg core.Config) (core.Renderer, error) {
		return glbackend.NewRendererGL(win, cfg, log)
	}

	if err := core.Run(app, cfg, newWindow, newRenderer, log); err != nil {
		log.Fatal("engine failed", zap.Error(err))
	}
}
