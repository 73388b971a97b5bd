package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadProgramSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "demo.vert", "#version 330 core\nvoid main() {}\n")
	writeFile(t, dir, "demo.frag", "#version 330 core\nvoid main() {}\n\x00")

	src, err := LoadProgramSources(dir, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if src.Name != "demo" {
		t.Errorf("Name = %q", src.Name)
	}
	for stage, s := range map[string]string{"vertex": src.Vertex, "fragment": src.Fragment} {
		if !strings.HasSuffix(s, "\x00") || strings.Count(s, "\x00") != 1 {
			t.Errorf("%s source not terminated exactly once: %q", stage, s)
		}
	}
}

func TestLoadProgramSourcesMissingStage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "half.vert", "void main() {}")

	_, err := LoadProgramSources(dir, "half")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
	if !strings.Contains(err.Error(), "half.frag") {
		t.Errorf("error should name the missing file: %v", err)
	}
}

func TestLoadShaderEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.vert", "")
	if _, err := LoadShader(dir, "empty.vert"); err == nil {
		t.Fatal("empty shader should fail")
	}
}
