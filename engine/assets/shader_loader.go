// Package assets loads engine resources from disk. Loaders only touch the
// filesystem, so they are safe to run from background tasks.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ProgramSources holds the null-terminated stages of a shader program.
type ProgramSources struct {
	Name     string
	Vertex   string
	Fragment string
}

// LoadShader reads a GLSL file from dir into a null-terminated string for OpenGL.
func LoadShader(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load shader %q: %w", name, err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("load shader %q: empty file", name)
	}
	// Ensure null termination for gl.Str
	if b[len(b)-1] != 0 {
		b = append(b, 0)
	}
	return string(b), nil
}

// LoadProgramSources reads name.vert and name.frag from dir.
func LoadProgramSources(dir, name string) (ProgramSources, error) {
	vs, verr := LoadShader(dir, name+".vert")
	fs, ferr := LoadShader(dir, name+".frag")
	if err := errors.Join(verr, ferr); err != nil {
		return ProgramSources{}, err
	}
	return ProgramSources{Name: name, Vertex: vs, Fragment: fs}, nil
}
