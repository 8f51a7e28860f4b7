package spool_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/device"
	"conveyor/internal/events"
	"conveyor/internal/job"
	"conveyor/internal/printer"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/spool"
	"conveyor/internal/toolpath"
)

type fakeSlicer struct {
	mu      sync.Mutex
	err     error
	release chan struct{}
	calls   int
}

func (f *fakeSlicer) Name() string { return "fake-slicer" }

func (f *fakeSlicer) Slice(ctx context.Context, req toolpath.Request) error {
	f.mu.Lock()
	f.calls++
	release := f.release
	err := f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, []byte("G28\nG1 X0\nG1 X1\nM104 S0\n"), 0o644)
}

type fakeDriver struct {
	mu       sync.Mutex
	err      error
	release  chan struct{}
	active   atomic.Int32
	overlap  atomic.Bool
	printing chan string
}

func (f *fakeDriver) Name() string { return "fake-driver" }

func (f *fakeDriver) Print(ctx context.Context, _ printer.Port, req printer.Request, progress func(job.Progress)) error {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)

	f.mu.Lock()
	release := f.release
	err := f.err
	f.mu.Unlock()

	if f.printing != nil {
		f.printing <- req.JobID
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return services.Wrap(services.ErrCancelled, "fake-driver", "print", "abort sequence completed", nil)
		}
	}
	if err != nil {
		return err
	}
	if progress != nil {
		progress(job.Progress{CurrentLine: 4, TotalLines: 4})
	}
	return nil
}

type nopPort struct{}

func (nopPort) WriteLine(string) error { return nil }
func (nopPort) Close() error           { return nil }

type harness struct {
	manager *spool.Manager
	store   *queue.Store
	hub     *events.Hub
	devices *device.Registry
	slicer  *fakeSlicer
	driver  *fakeDriver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Server.SpoolDir = t.TempDir()
	cfg.Server.SliceWorkers = 2
	cfg.Devices = []config.Device{
		{ID: "dev1", Port: "/dev/ttyACM0", Driver: "MakerBotDriver"},
		{ID: "dev2", Port: "/dev/ttyACM1", Driver: "MakerBotDriver"},
	}

	store, err := queue.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hub := events.NewHub(0, nil)
	registry := profile.NewRegistry(&cfg)
	devices := device.NewRegistry(cfg.Devices)

	slicer := &fakeSlicer{}
	driver := &fakeDriver{}
	machine := printer.MachineProfile{
		StartSequence: []string{"; start"},
		EndSequence:   []string{"; end"},
		AbortSequence: []string{"M104 S0", "M18"},
		BaudRate:      115200,
	}

	manager := spool.NewManager(&cfg, store, hub, registry, devices, nil,
		spool.WithSlicer("MiracleGrue", slicer),
		spool.WithSlicer("Skeinforge", slicer),
		spool.WithDriver("MakerBotDriver", driver, machine),
		spool.WithPortOpener(func(config.Device, int) (printer.Port, error) { return nopPort{}, nil }),
	)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	t.Cleanup(manager.Stop)

	return &harness{manager: manager, store: store, hub: hub, devices: devices, slicer: slicer, driver: driver}
}

func submit(t *testing.T, h *harness, deviceID string) string {
	t.Helper()
	id, err := h.manager.Submit(context.Background(), spool.SubmitRequest{
		ModelPath:     "/models/widget.stl",
		SlicerProfile: "MiracleGrue",
		DriverProfile: "MakerBotDriver",
		DeviceID:      deviceID,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return id
}

func waitForState(t *testing.T, h *harness, jobID string, want job.State) spool.JobStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := h.manager.Status(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.Job.State == want {
			return status
		}
		if status.Job.State.Terminal() && status.Job.State != want {
			t.Fatalf("job reached %q (detail %q), want %q",
				status.Job.State, status.Job.ErrorDetail, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q", want)
	return spool.JobStatus{}
}

func TestSubmitRunsFullLifecycle(t *testing.T) {
	h := newHarness(t)
	sub := h.hub.Subscribe(32)
	defer sub.Close()

	jobID := submit(t, h, "dev1")
	status := waitForState(t, h, jobID, job.StateCompleted)

	if status.Progress != 1.0 {
		t.Fatalf("expected progress 1.0 after completion, got %v", status.Progress)
	}
	if err := status.Job.ValidateHistory(); err != nil {
		t.Fatalf("invalid history: %v", err)
	}

	wantPath := []job.State{job.StateSlicing, job.StateQueued, job.StatePrinting, job.StateCompleted}
	for _, want := range wantPath {
		select {
		case event := <-sub.C():
			if event.JobID != jobID || event.NewState != want {
				t.Fatalf("unexpected event %+v, want state %q", event, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event for state %q", want)
		}
	}
}

func TestSecondJobWaitsInFIFO(t *testing.T) {
	h := newHarness(t)
	h.driver.release = make(chan struct{})
	h.driver.printing = make(chan string, 4)

	first := submit(t, h, "dev1")
	select {
	case got := <-h.driver.printing:
		if got != first {
			t.Fatalf("unexpected printing job %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first job never started printing")
	}

	second := submit(t, h, "dev1")
	status := waitForState(t, h, second, job.StateQueued)
	if status.QueuePosition != 1 {
		t.Fatalf("expected wait-list position 1, got %d", status.QueuePosition)
	}

	close(h.driver.release)
	waitForState(t, h, first, job.StateCompleted)
	waitForState(t, h, second, job.StateCompleted)

	if h.driver.overlap.Load() {
		t.Fatal("two jobs printed concurrently on one device")
	}
}

func TestJobsOnDistinctDevicesPrintConcurrently(t *testing.T) {
	h := newHarness(t)
	h.driver.release = make(chan struct{})
	h.driver.printing = make(chan string, 4)

	first := submit(t, h, "dev1")
	second := submit(t, h, "dev2")

	started := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-h.driver.printing:
			started[id] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d jobs started printing", len(started))
		}
	}
	if !started[first] || !started[second] {
		t.Fatalf("unexpected printing set: %v", started)
	}

	close(h.driver.release)
	waitForState(t, h, first, job.StateCompleted)
	waitForState(t, h, second, job.StateCompleted)
}

func TestSubmitUnknownProfileCreatesNoJob(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.Submit(context.Background(), spool.SubmitRequest{
		ModelPath:     "/models/widget.stl",
		SlicerProfile: "NoSuchSlicer",
		DriverProfile: "MakerBotDriver",
		DeviceID:      "dev1",
	})
	if !errors.Is(err, services.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	jobs, err := h.manager.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs after rejected submit, got %d", len(jobs))
	}
}

func TestSubmitUnknownDevice(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.Submit(context.Background(), spool.SubmitRequest{
		ModelPath:     "/models/widget.stl",
		SlicerProfile: "MiracleGrue",
		DriverProfile: "MakerBotDriver",
		DeviceID:      "ghost",
	})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelTerminalJobIsIdempotent(t *testing.T) {
	h := newHarness(t)
	jobID := submit(t, h, "dev1")
	waitForState(t, h, jobID, job.StateCompleted)

	err := h.manager.Cancel(context.Background(), jobID)
	if !errors.Is(err, services.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	status, err := h.manager.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Job.State != job.StateCompleted {
		t.Fatalf("cancel of terminal job changed state to %q", status.Job.State)
	}
}

func TestCancelWhilePrintingRunsAbort(t *testing.T) {
	h := newHarness(t)
	h.driver.release = make(chan struct{})
	h.driver.printing = make(chan string, 1)

	jobID := submit(t, h, "dev1")
	<-h.driver.printing

	if err := h.manager.Cancel(context.Background(), jobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	status := waitForState(t, h, jobID, job.StateCancelled)
	if status.Job.ErrorDetail == "" {
		t.Fatal("expected cancellation detail on the job")
	}
}

func TestCancelWhileQueued(t *testing.T) {
	h := newHarness(t)
	h.driver.release = make(chan struct{})
	h.driver.printing = make(chan string, 2)

	first := submit(t, h, "dev1")
	<-h.driver.printing

	second := submit(t, h, "dev1")
	waitForState(t, h, second, job.StateQueued)

	if err := h.manager.Cancel(context.Background(), second); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	waitForState(t, h, second, job.StateCancelled)

	close(h.driver.release)
	waitForState(t, h, first, job.StateCompleted)
}

func TestCancelWhileSlicing(t *testing.T) {
	h := newHarness(t)
	h.slicer.release = make(chan struct{})

	jobID := submit(t, h, "dev1")
	waitForState(t, h, jobID, job.StateSlicing)

	if err := h.manager.Cancel(context.Background(), jobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	waitForState(t, h, jobID, job.StateCancelled)
}

func TestSliceFailureTerminatesJob(t *testing.T) {
	h := newHarness(t)
	h.slicer.err = services.Wrap(services.ErrSliceFailed, "miraclegrue", "slice", "error: bad facet normal", nil)

	jobID := submit(t, h, "dev1")
	status := waitForState(t, h, jobID, job.StateFailed)
	if status.Job.ErrorDetail == "" {
		t.Fatal("expected slice diagnostics on the job")
	}
}

func TestDeviceDisconnectFailsJobAndMarksDevice(t *testing.T) {
	h := newHarness(t)
	h.driver.err = services.Wrap(services.ErrDeviceDisconnected, "makerbot", "stream toolpath", "line 2 of 4", nil)

	jobID := submit(t, h, "dev1")
	waitForState(t, h, jobID, job.StateFailed)

	if h.devices.Connected("dev1") {
		t.Fatal("expected device marked disconnected after mid-print loss")
	}
}

func TestListProfilesAndDevices(t *testing.T) {
	h := newHarness(t)

	profiles := h.manager.ListProfiles()
	if len(profiles) != 3 {
		t.Fatalf("unexpected profile count: %d", len(profiles))
	}
	devices := h.manager.Devices()
	if len(devices) != 2 || devices[0].ID != "dev1" {
		t.Fatalf("unexpected devices: %+v", devices)
	}
}
