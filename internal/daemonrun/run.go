// Package daemonrun hosts the daemon process runtime loop shared by the
// conveyord binary and the `conveyor daemon run` command.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"conveyor/internal/address"
	"conveyor/internal/config"
	"conveyor/internal/daemon"
	"conveyor/internal/device"
	"conveyor/internal/events"
	"conveyor/internal/ipc"
	"conveyor/internal/logging"
	"conveyor/internal/preflight"
	"conveyor/internal/profile"
	"conveyor/internal/queue"
	"conveyor/internal/spool"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// Address overrides the configured IPC endpoint.
	Address  string
	LogLevel string
}

// Run starts the conveyor daemon runtime loop and blocks until the context
// is canceled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addrValue := strings.TrimSpace(opts.Address)
	if addrValue == "" {
		addrValue = cfg.Common.Address
	}
	addr, err := address.Parse(addrValue)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Server.LogLevel
	}
	logPath := daemon.LogFilePath(cfg)
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Server.LogFormat,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logPreflightSnapshot(logger, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	lastSeq, err := store.LastEventSeq(signalCtx)
	if err != nil {
		logger.Error("read event cursor", logging.Error(err))
		return err
	}

	hub := events.NewHub(lastSeq, logger)
	profiles := profile.NewRegistry(cfg)
	devices := device.NewRegistry(cfg.Devices)
	manager := spool.NewManager(cfg, store, hub, profiles, devices, logger)

	d, err := daemon.New(cfg, store, hub, manager, devices, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, addr, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and spool directory access"),
		)
	}

	<-signalCtx.Done()
	logger.Info("conveyor daemon shutting down")
	return nil
}

func logPreflightSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	for _, check := range preflight.RunAll(cfg) {
		if check.Passed {
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail))
	}
}
