package printer_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"conveyor/internal/job"
	"conveyor/internal/printer"
	"conveyor/internal/profile"
	"conveyor/internal/services"
)

type fakePort struct {
	mu      sync.Mutex
	lines   []string
	failAt  int
	onWrite func(line string)
}

func (p *fakePort) WriteLine(line string) error {
	p.mu.Lock()
	if p.failAt > 0 && len(p.lines)+1 >= p.failAt {
		p.mu.Unlock()
		return errors.New("input/output error")
	}
	p.lines = append(p.lines, line)
	onWrite := p.onWrite
	p.mu.Unlock()
	if onWrite != nil {
		onWrite(line)
	}
	return nil
}

func (p *fakePort) Close() error { return nil }

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func writeMachineProfile(t *testing.T, dir, machine string, p printer.MachineProfile) {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, machine+".json"), data, 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
}

func newDriver(t *testing.T, opts ...printer.MakerBotOption) *printer.MakerBot {
	t.Helper()
	dir := t.TempDir()
	writeMachineProfile(t, dir, "Replicator", printer.MachineProfile{
		StartSequence: []string{"; start"},
		EndSequence:   []string{"; end"},
		AbortSequence: []string{"M104 S0", "M18"},
	})
	driver, err := printer.NewMakerBot(profile.Driver{
		Name:       "MakerBotDriver",
		ProfileDir: dir,
		Machine:    "Replicator",
		BaudRate:   115200,
	}, nil, opts...)
	if err != nil {
		t.Fatalf("NewMakerBot failed: %v", err)
	}
	return driver
}

func writeToolpath(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build.gcode")
	body := ""
	for _, line := range lines {
		body += line + "\n"
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write toolpath: %v", err)
	}
	return path
}

func TestPrintStreamsEveryLine(t *testing.T) {
	driver := newDriver(t)
	port := &fakePort{}
	toolpath := writeToolpath(t, "G28", "G1 X0", "G1 X1", "M104 S0")

	var final job.Progress
	err := driver.Print(context.Background(), port, printer.Request{
		JobID:        "job-a",
		BuildName:    "widget",
		ToolpathPath: toolpath,
	}, func(p job.Progress) { final = p })
	if err != nil {
		t.Fatalf("Print failed: %v", err)
	}

	lines := port.written()
	if len(lines) != 4 || lines[0] != "G28" || lines[3] != "M104 S0" {
		t.Fatalf("unexpected streamed lines: %v", lines)
	}
	if final.CurrentLine != 4 || final.TotalLines != 4 {
		t.Fatalf("unexpected final progress: %+v", final)
	}
	if final.Fraction(job.StatePrinting) != 1.0 {
		t.Fatalf("expected full fraction, got %v", final.Fraction(job.StatePrinting))
	}
}

func TestPrintReportsDisconnect(t *testing.T) {
	driver := newDriver(t)
	port := &fakePort{failAt: 2}
	toolpath := writeToolpath(t, "G28", "G1 X0", "G1 X1")

	err := driver.Print(context.Background(), port, printer.Request{
		JobID:        "job-a",
		ToolpathPath: toolpath,
	}, nil)
	if !errors.Is(err, services.ErrDeviceDisconnected) {
		t.Fatalf("expected ErrDeviceDisconnected, got %v", err)
	}
}

func TestPrintCancellationRunsAbortSequence(t *testing.T) {
	driver := newDriver(t)
	ctx, cancel := context.WithCancel(context.Background())

	port := &fakePort{}
	port.onWrite = func(line string) {
		// Cancel mid-stream after the first body line goes out.
		if line == "G1 X0" {
			cancel()
		}
	}
	toolpath := writeToolpath(t, "G28", "G1 X0", "G1 X1", "G1 X2", "M104 S0")

	err := driver.Print(ctx, port, printer.Request{
		JobID:        "job-a",
		ToolpathPath: toolpath,
	}, nil)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	lines := port.written()
	if len(lines) < 2 {
		t.Fatalf("expected abort sequence on the wire: %v", lines)
	}
	if lines[len(lines)-2] != "M104 S0" || lines[len(lines)-1] != "M18" {
		t.Fatalf("abort sequence missing from tail: %v", lines)
	}
}

func TestPrintRejectsEmptyToolpath(t *testing.T) {
	driver := newDriver(t)
	path := filepath.Join(t.TempDir(), "empty.gcode")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write toolpath: %v", err)
	}
	err := driver.Print(context.Background(), &fakePort{}, printer.Request{
		JobID:        "job-a",
		ToolpathPath: path,
	}, nil)
	if err == nil {
		t.Fatal("expected error for empty toolpath")
	}
}

func TestPrintProgressThrottled(t *testing.T) {
	driver := newDriver(t, printer.WithProgressInterval(time.Millisecond))
	port := &fakePort{onWrite: func(string) { time.Sleep(2 * time.Millisecond) }}
	toolpath := writeToolpath(t, "G28", "G1 X0", "G1 X1")

	var updates []job.Progress
	err := driver.Print(context.Background(), port, printer.Request{
		JobID:        "job-a",
		ToolpathPath: toolpath,
	}, func(p job.Progress) { updates = append(updates, p) })
	if err != nil {
		t.Fatalf("Print failed: %v", err)
	}
	if len(updates) < 2 {
		t.Fatalf("expected interim progress updates, got %v", updates)
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].CurrentLine < updates[i-1].CurrentLine {
			t.Fatalf("progress went backwards: %v", updates)
		}
	}
}

func TestLoadMachineProfileDefaults(t *testing.T) {
	dir := t.TempDir()
	writeMachineProfile(t, dir, "Thing-O-Matic", printer.MachineProfile{
		StartSequence: []string{"G28"},
	})

	p, err := printer.LoadMachineProfile(dir, "Thing-O-Matic")
	if err != nil {
		t.Fatalf("LoadMachineProfile failed: %v", err)
	}
	if p.Name != "Thing-O-Matic" {
		t.Fatalf("expected machine name default, got %q", p.Name)
	}
	if len(p.AbortSequence) == 0 {
		t.Fatal("expected default abort sequence")
	}
	if _, err := printer.LoadMachineProfile(dir, "NoSuchMachine"); err == nil {
		t.Fatal("expected error for missing profile")
	}
}
