package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/hubastard/framecore/engine/profiler"
	"github.com/hubastard/framecore/engine/tasks"
	"go.uber.org/zap"
)

// App defines the game/application hooks.
type App interface {
	OnStart(e *Engine)                 // called once after window/renderer init
	OnUpdate(e *Engine, dt float64)    // called at a fixed tick
	OnRender(e *Engine, alpha float64) // render with interpolation alpha [0..1]
	OnEvent(e *Engine, ev Event)       // input/window events not handled by a layer
	OnShutdown(e *Engine)              // before exit
}

// Engine exposes core services to the App and its layers.
type Engine struct {
	Window   Window
	Renderer Renderer
	Layers   *LayerStack
	Input    *Input
	Profiler *profiler.Profiler
	Tasks    *tasks.Manager
	Log      *zap.Logger

	start  time.Time
	frames int64
}

func (e *Engine) Uptime() time.Duration { return time.Since(e.start) }

// Frames returns the number of frames presented so far.
func (e *Engine) Frames() int64 { return e.frames }

// Window abstraction.
type Window interface {
	PollEvents()
	SwapBuffers()
	ShouldClose() bool
	RequestClose()
	FramebufferSize() (int, int)
	SetTitle(title string)
	SetEventCallback(cb func(Event))
}

// Renderer abstraction. DeviceContext is what GPU-timed profiler scopes run
// against; it may be nil when the backend has no timer support.
type Renderer interface {
	Init() error
	Resize(w, h int)
	Clear(r, g, b, a float32)
	DrawDemoTriangle()
	DeviceContext() profiler.DeviceContext
	Shutdown()
}

// Event model (can expand over time).
type Event interface{ isEvent() }

type EventCloseRequested struct{}

func (EventCloseRequested) isEvent() {}

type EventResize struct{ W, H int }

func (EventResize) isEvent() {}

type EventKey struct {
	Key  Key
	Down bool
	Mods Mod
}

func (EventKey) isEvent() {}

type EventMouseMove struct{ X, Y float64 }

func (EventMouseMove) isEvent() {}

// Key/mod enums (subset; add as needed).
type Key int

const (
	KeyUnknown Key = iota
	KeyEscape
	KeySpace
	KeyW
	KeyA
	KeyS
	KeyD
	KeyP
	KeyR
	KeyT
)

type Mod int

const (
	ModNone  Mod = 0
	ModShift Mod = 1 << 0
	ModCtrl  Mod = 1 << 1
	ModAlt   Mod = 1 << 2
	ModSuper Mod = 1 << 3
)

// Config for the engine run.
type Config struct {
	Title      string
	Width      int
	Height     int
	VSync      bool
	ClearColor [4]float32 // RGBA

	// TickRate is the fixed update frequency in Hz.
	TickRate int
	// MaxSteps caps fixed updates per frame to avoid a spiral of death.
	MaxSteps int

	Profiler profiler.Config
	Tasks    tasks.Config
}

// DefaultConfig returns a 1280x720 vsynced window ticking at 60 Hz.
func DefaultConfig() Config {
	return Config{
		Title:      "framecore",
		Width:      1280,
		Height:     720,
		VSync:      true,
		ClearColor: [4]float32{0.1, 0.1, 0.12, 1},
		TickRate:   60,
		MaxSteps:   10,
		Profiler:   profiler.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("core: invalid window size %dx%d", c.Width, c.Height))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("core: tick rate must be positive, got %d", c.TickRate))
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("core: max steps must be positive, got %d", c.MaxSteps))
	}
	if err := c.Tasks.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
