package core

// Input tracks key and mouse state from the event stream.
type Input struct {
	keys           map[Key]bool
	pressed        map[Key]bool
	mods           Mod
	mouseX, mouseY float64
}

func NewInput() *Input { return &Input{keys: map[Key]bool{}, pressed: map[Key]bool{}} }

func (in *Input) Handle(ev Event) {
	switch e := ev.(type) {
	case EventKey:
		if e.Down && !in.keys[e.Key] {
			in.pressed[e.Key] = true
		}
		in.keys[e.Key] = e.Down
		in.mods = e.Mods
	case EventMouseMove:
		in.mouseX, in.mouseY = e.X, e.Y
	}
}

// EndFrame forgets this frame's key presses.
func (in *Input) EndFrame() { clear(in.pressed) }

func (in *Input) IsKeyDown(k Key) bool { return in.keys[k] }

// Pressed reports whether k went down during the current frame.
func (in *Input) Pressed(k Key) bool { return in.pressed[k] }

func (in *Input) Mods() Mod                 { return in.mods }
func (in *Input) Mouse() (float64, float64) { return in.mouseX, in.mouseY }
