package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/hubastard/framecore/engine/core"
)

func TestTranslateKey(t *testing.T) {
	tests := []struct {
		in   glfw.Key
		want core.Key
	}{
		{glfw.KeyEscape, core.KeyEscape},
		{glfw.KeyP, core.KeyP},
		{glfw.KeyR, core.KeyR},
		{glfw.KeyT, core.KeyT},
		{glfw.KeyF12, core.KeyUnknown},
	}
	for _, tt := range tests {
		if got := translateKey(tt.in); got != tt.want {
			t.Errorf("translateKey(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTranslateMods(t *testing.T) {
	got := translateMods(glfw.ModControl | glfw.ModShift)
	if got != core.ModCtrl|core.ModShift {
		t.Errorf("translateMods = %v", got)
	}
	if translateMods(0) != core.ModNone {
		t.Error("no modifiers should map to ModNone")
	}
}
