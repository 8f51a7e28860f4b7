package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteModel writes a small placeholder model file at the target path.
func WriteModel(t testing.TB, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := []byte("solid test\nendsolid test\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteToolpath writes a short G-code file at the target path.
func WriteToolpath(t testing.TB, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := []byte("G28\nG1 X0 Y0\nG1 X10 Y10\nM104 S0\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
