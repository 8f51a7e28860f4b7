package preflight_test

import (
	"os"
	"path/filepath"
	"testing"

	"conveyor/internal/preflight"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("Spool directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}

	missing := preflight.CheckDirectoryAccess("Spool directory", filepath.Join(dir, "missing"))
	if missing.Passed {
		t.Fatalf("expected failure for missing dir, got %+v", missing)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	notDir := preflight.CheckDirectoryAccess("Spool directory", file)
	if notDir.Passed {
		t.Fatalf("expected failure for non-directory, got %+v", notDir)
	}
}

func TestCheckExecutable(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "miracle_grue")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if result := preflight.CheckExecutable("Miracle-Grue executable", binary); !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}

	plain := filepath.Join(dir, "config.json")
	if err := os.WriteFile(plain, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if result := preflight.CheckExecutable("Miracle-Grue executable", plain); result.Passed {
		t.Fatalf("expected failure for non-executable, got %+v", result)
	}
}

func TestCheckDevicePortMissingIsNotAttached(t *testing.T) {
	result := preflight.CheckDevicePort("Device dev1", filepath.Join(t.TempDir(), "ttyACM9"))
	if result.Passed {
		t.Fatalf("expected failure, got %+v", result)
	}
	if result.Detail == "" {
		t.Fatal("expected detail describing missing port")
	}
}

func TestPassed(t *testing.T) {
	if !preflight.Passed([]preflight.Result{{Passed: true}, {Passed: true}}) {
		t.Fatal("expected all-pass to report true")
	}
	if preflight.Passed([]preflight.Result{{Passed: true}, {Passed: false}}) {
		t.Fatal("expected any failure to report false")
	}
	if !preflight.Passed(nil) {
		t.Fatal("expected empty results to report true")
	}
}
