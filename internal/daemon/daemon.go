package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"conveyor/internal/config"
	"conveyor/internal/device"
	"conveyor/internal/events"
	"conveyor/internal/logging"
	"conveyor/internal/preflight"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/spool"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	hub     *events.Hub
	spool   *spool.Manager
	devices *device.Registry
	monitor *device.Monitor

	lockPath string
	lock     *flock.Flock
	pidPath  string

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	PID         int
	Address     string
	QueueDBPath string
	LockPath    string
	Queue       queue.Stats
	Devices     []device.Status
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	store *queue.Store,
	hub *events.Hub,
	mgr *spool.Manager,
	devices *device.Registry,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || store == nil || hub == nil || mgr == nil || devices == nil {
		return nil, errors.New("daemon requires config, store, hub, orchestrator, and device registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Server.SpoolDir, "conveyord.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		hub:      hub,
		spool:    mgr,
		devices:  devices,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		pidPath:  cfg.Common.PIDFile,
	}
	d.monitor = device.NewMonitor(devices, logger, func(deviceID string) {
		// An unplugged printer surfaces as a write failure on the port; the
		// print worker records the terminal state. Nothing else to do here.
		d.logger.Warn("configured printer detached",
			logging.String(logging.FieldDevice, deviceID))
	})
	return d, nil
}

// Start acquires the daemon lock, fails over jobs left from a previous
// run, and launches the orchestrator and device monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another conveyor daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	// Jobs that were mid-flight when the previous process died cannot be
	// resumed; a half-printed object is scrap.
	failed, err := d.store.FailNonTerminal(d.ctx, "daemon stopped")
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("fail interrupted jobs: %w", err)
	}
	if failed > 0 {
		d.logger.Warn("failed jobs interrupted by previous shutdown", logging.Int("count", failed))
	}

	if err := d.writePIDFile(); err != nil {
		d.logger.Warn("failed to write pid file",
			logging.String("path", d.pidPath), logging.Error(err))
	}

	_ = d.monitor.Start(d.ctx)

	if err := d.spool.Start(d.ctx); err != nil {
		d.monitor.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start orchestrator: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("conveyor daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.cfg.Common.Address))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.spool.Stop()
	d.monitor.Stop()
	d.removePIDFile()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("conveyor daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the orchestrator is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Submit creates a job. Zero-valued slicing parameters fall back to the
// configured defaults.
func (d *Daemon) Submit(ctx context.Context, req spool.SubmitRequest) (string, error) {
	if !d.running.Load() {
		return "", errors.New("daemon is not running")
	}
	if req.Params == (config.Slicing{}) {
		req.Params = d.cfg.Client.Slicing
	}
	return d.spool.Submit(ctx, req)
}

// Cancel requests cancellation of a job.
func (d *Daemon) Cancel(ctx context.Context, jobID string) error {
	return d.spool.Cancel(ctx, jobID)
}

// Job returns the status of one job.
func (d *Daemon) Job(ctx context.Context, jobID string) (spool.JobStatus, error) {
	return d.spool.Status(ctx, jobID)
}

// Jobs returns the status of every job, oldest first.
func (d *Daemon) Jobs(ctx context.Context) ([]spool.JobStatus, error) {
	return d.spool.List(ctx)
}

// JobEvents returns the event history of one job.
func (d *Daemon) JobEvents(ctx context.Context, jobID string) ([]queue.Event, error) {
	if _, err := d.store.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return d.store.JobEvents(ctx, jobID)
}

// EventTail returns events after the given sequence cursor. When no events
// are pending and wait is positive, the call blocks until an event arrives
// or the wait elapses. The returned cursor feeds the next call.
func (d *Daemon) EventTail(ctx context.Context, after int64, limit int, wait time.Duration) ([]queue.Event, int64, error) {
	events, err := d.store.EventsSince(ctx, after, limit)
	if err != nil {
		return nil, after, err
	}
	if len(events) == 0 && wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		if err := d.hub.Wait(waitCtx, after); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, after, nil
			}
			return nil, after, err
		}
		events, err = d.store.EventsSince(ctx, after, limit)
		if err != nil {
			return nil, after, err
		}
	}
	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	return events, next, nil
}

// Profiles returns every registered slicer and driver profile.
func (d *Daemon) Profiles() []profile.Info {
	return d.spool.ListProfiles()
}

// Devices returns the status of every configured device.
func (d *Daemon) Devices() []device.Status {
	return d.spool.Devices()
}

// LogFilePath returns the daemon log file location for a configuration.
func LogFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.LogDir(), "conveyord.log")
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return LogFilePath(d.cfg)
}

// Preflight runs environment checks against the current configuration.
func (d *Daemon) Preflight() []preflight.Result {
	return preflight.RunAll(d.cfg)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	return Status{
		Running:     d.running.Load(),
		PID:         os.Getpid(),
		Address:     d.cfg.Common.Address,
		QueueDBPath: d.store.Path(),
		LockPath:    d.lockPath,
		Queue:       stats,
		Devices:     d.devices.List(),
	}
}

func (d *Daemon) writePIDFile() error {
	if d.pidPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.pidPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func (d *Daemon) removePIDFile() {
	if d.pidPath == "" {
		return
	}
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file",
			logging.String("path", d.pidPath), logging.Error(err))
	}
}
