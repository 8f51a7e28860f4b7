package spool

import (
	"context"
	"errors"
	"log/slog"

	"conveyor/internal/job"
	"conveyor/internal/logging"
	"conveyor/internal/printer"
	"conveyor/internal/services"
)

// printWorker is the single consumer of one device's wait list. One worker
// per device plus the exclusive device handle means two jobs can never be
// printing on the same device concurrently.
func (m *Manager) printWorker(deviceID string, list *waitlist) {
	defer m.wg.Done()

	logger := m.logger.With(logging.String(logging.FieldDevice, deviceID))
	for {
		jobID, ok := list.pop()
		if !ok {
			select {
			case <-m.runCtx.Done():
				return
			case <-list.wake:
				continue
			}
		}

		m.printJob(jobID, deviceID, logger)

		select {
		case <-m.runCtx.Done():
			return
		default:
		}
	}
}

func (m *Manager) printJob(jobID, deviceID string, logger *slog.Logger) {
	state := m.cancelState(jobID)
	if state.wasRequested() {
		m.finish(jobID, job.StateCancelled, "cancelled while queued")
		return
	}

	handle, err := m.devices.Acquire(m.runCtx, deviceID)
	if err != nil {
		if m.runCtx.Err() != nil {
			return
		}
		m.finish(jobID, job.StateFailed, err.Error())
		return
	}
	defer handle.Release()

	j, err := m.store.Get(context.Background(), jobID)
	if err != nil {
		logger.Warn("load job for printing", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return
	}
	if j.State != job.StateQueued {
		// Cancelled while waiting; nothing to do.
		return
	}

	driver, err := m.driverFor(j.DriverProfile)
	if err != nil {
		m.finish(jobID, job.StateFailed, err.Error())
		return
	}

	machine, err := m.machineFor(j.DriverProfile)
	if err != nil {
		m.finish(jobID, job.StateFailed, err.Error())
		return
	}

	port, err := m.openPort(handle.Device(), machine.BaudRate)
	if err != nil {
		m.devices.SetConnected(deviceID, false)
		m.finish(jobID, job.StateFailed,
			services.Wrap(services.ErrDeviceDisconnected, "spool", "open port", deviceID, err).Error())
		return
	}
	defer func() { _ = port.Close() }()

	if !m.transition(jobID, job.StatePrinting, "") {
		return
	}

	printCtx, cancel := context.WithCancel(m.runCtx)
	defer cancel()
	if state.bind(cancel) {
		cancel()
	}

	err = driver.Print(printCtx, port, printer.Request{
		JobID:        jobID,
		BuildName:    buildName(j.ModelPath),
		ToolpathPath: j.ToolpathPath,
	}, func(p job.Progress) {
		if updateErr := m.store.UpdateProgress(context.Background(), jobID, p.CurrentLine, p.TotalLines); updateErr != nil {
			logger.Warn("record progress", logging.String(logging.FieldJobID, jobID), logging.Error(updateErr))
		}
	})

	switch {
	case err == nil:
		m.finish(jobID, job.StateCompleted, "")
		logger.Info("print completed", logging.String(logging.FieldJobID, jobID))
	case errors.Is(err, services.ErrCancelled):
		m.finish(jobID, job.StateCancelled, "abort sequence completed")
		logger.Info("print cancelled", logging.String(logging.FieldJobID, jobID))
	case errors.Is(err, services.ErrDeviceDisconnected):
		m.devices.SetConnected(deviceID, false)
		m.finish(jobID, job.StateFailed, err.Error())
		logger.Warn("device disconnected mid-print",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
	default:
		if state.wasRequested() || errors.Is(err, context.Canceled) {
			m.finish(jobID, job.StateCancelled, "cancelled during print")
			return
		}
		m.finish(jobID, job.StateFailed, err.Error())
		logger.Warn("print failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
}
