package toolpath_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conveyor/internal/config"
	"conveyor/internal/profile"
	"conveyor/internal/services"
	"conveyor/internal/toolpath"
)

type fakeExecutor struct {
	binary string
	args   []string
	output []string
	err    error
	onRun  func(binary string, args []string)
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, onOutput func(string)) error {
	f.binary = binary
	f.args = args
	if f.onRun != nil {
		f.onRun(binary, args)
	}
	for _, line := range f.output {
		if onOutput != nil {
			onOutput(line)
		}
	}
	return f.err
}

func slicerProfiles(t *testing.T) (profile.Slicer, profile.Slicer) {
	t.Helper()
	cfg := config.Default()
	registry := profile.NewRegistry(&cfg)
	miracle, err := registry.ResolveSlicer("MiracleGrue")
	if err != nil {
		t.Fatalf("ResolveSlicer failed: %v", err)
	}
	skeinforge, err := registry.ResolveSlicer("Skeinforge")
	if err != nil {
		t.Fatalf("ResolveSlicer failed: %v", err)
	}
	return miracle, skeinforge
}

func TestMiracleGrueArguments(t *testing.T) {
	miracle, _ := slicerProfiles(t)
	tempDir := t.TempDir()
	output := filepath.Join(tempDir, "widget.gcode")

	exec := &fakeExecutor{
		onRun: func(_ string, _ []string) {
			// Simulate the slicer producing its output file.
			if err := os.WriteFile(output, []byte("G1 X0\n"), 0o644); err != nil {
				t.Fatalf("write output: %v", err)
			}
		},
	}
	client, err := toolpath.NewMiracleGrue(miracle, nil, toolpath.WithMiracleGrueExecutor(exec))
	if err != nil {
		t.Fatalf("NewMiracleGrue failed: %v", err)
	}

	req := toolpath.Request{
		JobID:         "job-a",
		ModelPath:     filepath.Join(tempDir, "widget.stl"),
		OutputPath:    output,
		StartSequence: []string{"M104 S230", "G28"},
		EndSequence:   []string{"M104 S0"},
	}
	if err := client.Slice(context.Background(), req); err != nil {
		t.Fatalf("Slice failed: %v", err)
	}

	if exec.binary != miracle.Path {
		t.Fatalf("unexpected binary: %q", exec.binary)
	}
	if len(exec.args) != 9 {
		t.Fatalf("unexpected args: %v", exec.args)
	}
	if exec.args[0] != "-c" || exec.args[1] != miracle.Config {
		t.Fatalf("missing config flag: %v", exec.args)
	}
	if exec.args[2] != "-o" || exec.args[3] != output {
		t.Fatalf("missing output flag: %v", exec.args)
	}
	if exec.args[4] != "-s" || exec.args[6] != "-e" {
		t.Fatalf("missing sequence flags: %v", exec.args)
	}
	if exec.args[8] != req.ModelPath {
		t.Fatalf("model path must be the final argument: %v", exec.args)
	}

	// The temporary sequence files passed via -s/-e carried the machine
	// sequences at invocation time and are removed afterwards.
	if _, err := os.Stat(exec.args[5]); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("start sequence file not cleaned up: %v", err)
	}
	if _, err := os.Stat(exec.args[7]); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("end sequence file not cleaned up: %v", err)
	}
}

func TestMiracleGrueFailureCarriesDiagnostics(t *testing.T) {
	miracle, _ := slicerProfiles(t)
	exec := &fakeExecutor{
		output: []string{"parsing model", "error: bad facet normal"},
		err:    errors.New("exit status 1"),
	}
	client, err := toolpath.NewMiracleGrue(miracle, nil, toolpath.WithMiracleGrueExecutor(exec))
	if err != nil {
		t.Fatalf("NewMiracleGrue failed: %v", err)
	}

	req := toolpath.Request{
		JobID:      "job-a",
		ModelPath:  "/models/widget.stl",
		OutputPath: filepath.Join(t.TempDir(), "widget.gcode"),
	}
	sliceErr := client.Slice(context.Background(), req)
	if !errors.Is(sliceErr, services.ErrSliceFailed) {
		t.Fatalf("expected ErrSliceFailed, got %v", sliceErr)
	}
	if !strings.Contains(sliceErr.Error(), "bad facet normal") {
		t.Fatalf("diagnostics missing from error: %v", sliceErr)
	}
}

func TestMiracleGrueRejectsMissingOutput(t *testing.T) {
	miracle, _ := slicerProfiles(t)
	client, err := toolpath.NewMiracleGrue(miracle, nil, toolpath.WithMiracleGrueExecutor(&fakeExecutor{}))
	if err != nil {
		t.Fatalf("NewMiracleGrue failed: %v", err)
	}
	req := toolpath.Request{
		JobID:      "job-a",
		ModelPath:  "/models/widget.stl",
		OutputPath: filepath.Join(t.TempDir(), "widget.gcode"),
	}
	if err := client.Slice(context.Background(), req); !errors.Is(err, services.ErrSliceFailed) {
		t.Fatalf("expected ErrSliceFailed when tool produces nothing, got %v", err)
	}
}

func TestNewMiracleGrueRejectsWrongBackend(t *testing.T) {
	_, skeinforge := slicerProfiles(t)
	if _, err := toolpath.NewMiracleGrue(skeinforge, nil); err == nil {
		t.Fatal("expected backend mismatch error")
	}
}

func TestSkeinforgeWrapsExport(t *testing.T) {
	_, skeinforge := slicerProfiles(t)
	tempDir := t.TempDir()

	model := filepath.Join(tempDir, "widget.stl")
	if err := os.WriteFile(model, []byte("solid widget\nendsolid\n"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	output := filepath.Join(tempDir, "widget.gcode")

	exec := &fakeExecutor{
		onRun: func(_ string, args []string) {
			// Skeinforge writes MODEL_export.gcode next to the staged model,
			// which is the last argument.
			staged := args[len(args)-1]
			exported := strings.TrimSuffix(staged, ".stl") + "_export.gcode"
			if err := os.WriteFile(exported, []byte("G1 X0\nG1 X1\n"), 0o644); err != nil {
				t.Fatalf("write export: %v", err)
			}
		},
	}
	client, err := toolpath.NewSkeinforge(skeinforge, nil,
		toolpath.WithSkeinforgeExecutor(exec), toolpath.WithSkeinforgePython("python2"))
	if err != nil {
		t.Fatalf("NewSkeinforge failed: %v", err)
	}

	req := toolpath.Request{
		JobID:         "job-a",
		ModelPath:     model,
		OutputPath:    output,
		StartSequence: []string{"; start", "G28"},
		EndSequence:   []string{"; end"},
	}
	if err := client.Slice(context.Background(), req); err != nil {
		t.Fatalf("Slice failed: %v", err)
	}

	if exec.binary != "python2" {
		t.Fatalf("unexpected interpreter: %q", exec.binary)
	}
	if exec.args[0] != skeinforge.Path || exec.args[1] != "-p" {
		t.Fatalf("unexpected args: %v", exec.args)
	}
	wantProfile := filepath.Join(skeinforge.ProfileDir, skeinforge.Profile)
	if exec.args[2] != wantProfile {
		t.Fatalf("unexpected profile argument: %q want %q", exec.args[2], wantProfile)
	}

	body, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if lines[0] != "; start" || lines[1] != "G28" {
		t.Fatalf("start sequence not prepended: %v", lines)
	}
	if lines[len(lines)-1] != "; end" {
		t.Fatalf("end sequence not appended: %v", lines)
	}
	if !strings.Contains(string(body), "G1 X1") {
		t.Fatalf("sliced body missing: %s", body)
	}
}

func TestVerifyOutputCountsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.gcode")
	if err := os.WriteFile(path, []byte("G28\nG1 X0\n\nG1 X1\n"), 0o644); err != nil {
		t.Fatalf("write toolpath: %v", err)
	}

	lines, err := toolpath.VerifyOutput(path)
	if err != nil {
		t.Fatalf("VerifyOutput failed: %v", err)
	}
	if lines != 3 {
		t.Fatalf("line count = %d, want 3 (blank lines ignored)", lines)
	}
}

func TestVerifyOutputRejectsMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	if _, err := toolpath.VerifyOutput(filepath.Join(dir, "absent.gcode")); !errors.Is(err, services.ErrSliceFailed) {
		t.Fatalf("expected ErrSliceFailed for missing file, got %v", err)
	}

	empty := filepath.Join(dir, "empty.gcode")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty toolpath: %v", err)
	}
	if _, err := toolpath.VerifyOutput(empty); !errors.Is(err, services.ErrSliceFailed) {
		t.Fatalf("expected ErrSliceFailed for empty file, got %v", err)
	}
}

func TestSkeinforgeFailureCarriesDiagnostics(t *testing.T) {
	_, skeinforge := slicerProfiles(t)
	tempDir := t.TempDir()
	model := filepath.Join(tempDir, "widget.stl")
	if err := os.WriteFile(model, []byte("solid widget\n"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	exec := &fakeExecutor{
		output: []string{"Traceback (most recent call last):", "ValueError: empty mesh"},
		err:    errors.New("exit status 1"),
	}
	client, err := toolpath.NewSkeinforge(skeinforge, nil, toolpath.WithSkeinforgeExecutor(exec))
	if err != nil {
		t.Fatalf("NewSkeinforge failed: %v", err)
	}
	req := toolpath.Request{
		JobID:      "job-a",
		ModelPath:  model,
		OutputPath: filepath.Join(tempDir, "widget.gcode"),
	}
	sliceErr := client.Slice(context.Background(), req)
	if !errors.Is(sliceErr, services.ErrSliceFailed) {
		t.Fatalf("expected ErrSliceFailed, got %v", sliceErr)
	}
	if !strings.Contains(sliceErr.Error(), "empty mesh") {
		t.Fatalf("diagnostics missing from error: %v", sliceErr)
	}
}
