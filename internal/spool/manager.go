package spool

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"conveyor/internal/config"
	"conveyor/internal/device"
	"conveyor/internal/events"
	"conveyor/internal/job"
	"conveyor/internal/logging"
	"conveyor/internal/printer"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/toolpath"
)

// SubmitRequest describes one print submission.
type SubmitRequest struct {
	ModelPath     string
	SlicerProfile string
	DriverProfile string
	DeviceID      string
	Params        config.Slicing
}

// JobStatus is the client-facing view of one job.
type JobStatus struct {
	Job *job.Job `json:"job"`
	// Progress is the completion fraction in [0,1].
	Progress float64 `json:"progress"`
	// QueuePosition is the 1-based wait-list position while the job waits
	// for its device, zero otherwise.
	QueuePosition int `json:"queue_position,omitempty"`
}

// PortOpener opens the device port for a print. Injected in tests.
type PortOpener func(dev config.Device, baudRate int) (printer.Port, error)

type cancelState struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	requested bool
}

func (c *cancelState) request() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = true
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *cancelState) bind(cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = cancel
	return c.requested
}

func (c *cancelState) wasRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// Manager is the job orchestrator.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	hub      *events.Hub
	profiles *profile.Registry
	devices  *device.Registry
	logger   *slog.Logger

	openPort PortOpener

	backendMu sync.Mutex
	slicers   map[string]toolpath.Slicer
	drivers   map[string]printer.Driver
	machines  map[string]printer.MachineProfile

	mu        sync.Mutex
	waitlists map[string]*waitlist
	cancels   map[string]*cancelState

	sliceSem chan struct{}

	runCtx  context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option configures the manager.
type Option func(*Manager)

// WithSlicer injects a slicing backend for a profile name (primarily for
// tests).
func WithSlicer(name string, s toolpath.Slicer) Option {
	return func(m *Manager) {
		m.slicers[strings.ToLower(name)] = s
	}
}

// WithDriver injects a printer driver and its machine profile for a
// profile name (primarily for tests).
func WithDriver(name string, d printer.Driver, machine printer.MachineProfile) Option {
	return func(m *Manager) {
		key := strings.ToLower(name)
		m.drivers[key] = d
		m.machines[key] = machine
	}
}

// WithPortOpener overrides how device ports are opened.
func WithPortOpener(open PortOpener) Option {
	return func(m *Manager) {
		if open != nil {
			m.openPort = open
		}
	}
}

// NewManager builds the orchestrator. Backends are constructed lazily on
// first use so a broken slicer installation fails the jobs that need it
// instead of the whole daemon.
func NewManager(
	cfg *config.Config,
	store *queue.Store,
	hub *events.Hub,
	profiles *profile.Registry,
	devices *device.Registry,
	logger *slog.Logger,
	opts ...Option,
) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:       cfg,
		store:     store,
		hub:       hub,
		profiles:  profiles,
		devices:   devices,
		logger:    logging.NewComponentLogger(logger, "spool"),
		openPort:  func(dev config.Device, baudRate int) (printer.Port, error) { return printer.OpenSerial(dev.Port, baudRate) },
		slicers:   make(map[string]toolpath.Slicer),
		drivers:   make(map[string]printer.Driver),
		machines:  make(map[string]printer.MachineProfile),
		waitlists: make(map[string]*waitlist),
		cancels:   make(map[string]*cancelState),
		sliceSem:  make(chan struct{}, cfg.Server.SliceWorkers),
	}
	for _, dev := range cfg.Devices {
		m.waitlists[dev.ID] = newWaitlist()
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the per-device print workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	m.runCtx, m.stop = context.WithCancel(ctx)
	for deviceID, list := range m.waitlists {
		m.wg.Add(1)
		go m.printWorker(deviceID, list)
	}
	m.started = true
	m.logger.Info("orchestrator started",
		logging.Int("slice_workers", cap(m.sliceSem)),
		logging.Int("devices", len(m.waitlists)))
	return nil
}

// Stop cancels all in-flight work and waits for workers to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	stop := m.stop
	m.mu.Unlock()

	stop()
	m.wg.Wait()

	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
	m.logger.Info("orchestrator stopped")
}

// Submit validates the request, creates the job, and begins slicing
// asynchronously. The caller never blocks on slicing.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.ModelPath) == "" {
		return "", fmt.Errorf("model path required")
	}
	if _, err := m.profiles.ResolveSlicer(req.SlicerProfile); err != nil {
		return "", err
	}
	if _, err := m.profiles.ResolveDriver(req.DriverProfile); err != nil {
		return "", err
	}
	if _, err := m.devices.Get(req.DeviceID); err != nil {
		return "", err
	}

	j := job.New(req.ModelPath, req.SlicerProfile, req.DriverProfile, req.DeviceID)
	if err := m.store.Insert(ctx, j); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.cancels[j.ID] = &cancelState{}
	m.mu.Unlock()

	m.logger.Info("job submitted",
		logging.String(logging.FieldJobID, j.ID),
		logging.String(logging.FieldDevice, req.DeviceID),
		logging.String("slicer", req.SlicerProfile),
		logging.String("model", req.ModelPath))

	m.wg.Add(1)
	go m.sliceJob(j.ID, req.Params)

	return j.ID, nil
}

// Cancel requests cancellation of a job. Jobs still waiting (created or
// queued) are cancelled immediately; a slicing or printing job transitions
// once its worker confirms the external process or abort sequence
// finished.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	j, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if j.State.Terminal() {
		return services.Wrap(services.ErrAlreadyTerminal, "spool", "cancel",
			fmt.Sprintf("%s is %s", jobID, j.State), nil)
	}

	m.mu.Lock()
	state := m.cancels[jobID]
	if state == nil {
		state = &cancelState{}
		m.cancels[jobID] = state
	}
	list := m.waitlists[j.DeviceID]
	m.mu.Unlock()

	state.request()

	// A queued job sits in the wait list with no worker attached; cancel
	// it here. Losing the race with the print worker is fine: the worker
	// re-checks the cancel flag before printing.
	if list != nil && list.remove(jobID) {
		m.finish(jobID, job.StateCancelled, "cancelled while queued")
		return nil
	}
	if j.State == job.StateCreated {
		// The slice worker has not picked the job up yet; it bails when it
		// sees the terminal state.
		if m.transition(jobID, job.StateCancelled, "cancelled before slicing") {
			m.mu.Lock()
			delete(m.cancels, jobID)
			m.mu.Unlock()
			return nil
		}
	}

	m.logger.Info("cancel requested",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldState, string(j.State)))
	return nil
}

// Status returns the current state of one job.
func (m *Manager) Status(ctx context.Context, jobID string) (JobStatus, error) {
	j, err := m.store.Get(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	return m.status(j), nil
}

// List returns the status of every job, oldest first.
func (m *Manager) List(ctx context.Context) ([]JobStatus, error) {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		statuses = append(statuses, m.status(j))
	}
	return statuses, nil
}

// ListProfiles returns every registered slicer and driver profile.
func (m *Manager) ListProfiles() []profile.Info {
	return m.profiles.List()
}

// Devices returns the status of every configured device.
func (m *Manager) Devices() []device.Status {
	return m.devices.List()
}

// Stats exposes queue statistics for the daemon status surface.
func (m *Manager) Stats(ctx context.Context) (queue.Stats, error) {
	return m.store.Stats(ctx)
}

func (m *Manager) status(j *job.Job) JobStatus {
	status := JobStatus{
		Job:      j,
		Progress: j.Progress.Fraction(j.State),
	}
	if j.State == job.StateQueued {
		m.mu.Lock()
		if list := m.waitlists[j.DeviceID]; list != nil {
			status.QueuePosition = list.position(j.ID)
		}
		m.mu.Unlock()
	}
	return status
}

// transition applies a state change and publishes the event. Returns false
// when the transition is rejected (the job moved concurrently).
func (m *Manager) transition(jobID string, to job.State, message string) bool {
	_, event, err := m.store.Transition(context.Background(), jobID, to, message)
	if err != nil {
		m.logger.Warn("transition rejected",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldState, string(to)),
			logging.Error(err))
		return false
	}
	m.hub.Publish(event)
	return true
}

// finish records a terminal transition and drops the cancel registration.
func (m *Manager) finish(jobID string, to job.State, message string) {
	if m.transition(jobID, to, message) {
		m.mu.Lock()
		delete(m.cancels, jobID)
		m.mu.Unlock()
	}
}

func (m *Manager) cancelState(jobID string) *cancelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.cancels[jobID]
	if state == nil {
		state = &cancelState{}
		m.cancels[jobID] = state
	}
	return state
}

func (m *Manager) toolpathPath(jobID string) string {
	return filepath.Join(m.cfg.ToolpathDir(), jobID+".gcode")
}

func buildName(modelPath string) string {
	base := filepath.Base(modelPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
