package spool

import (
	"context"
	"errors"

	"conveyor/internal/config"
	"conveyor/internal/job"
	"conveyor/internal/logging"
	"conveyor/internal/toolpath"
)

// sliceJob runs one slicing unit of work: Created → Slicing → Queued, or a
// terminal state on failure or cancellation. Concurrency is bounded by the
// slice worker semaphore.
func (m *Manager) sliceJob(jobID string, params config.Slicing) {
	defer m.wg.Done()

	m.mu.Lock()
	runCtx := m.runCtx
	m.mu.Unlock()
	if runCtx == nil {
		runCtx = context.Background()
	}

	select {
	case m.sliceSem <- struct{}{}:
		defer func() { <-m.sliceSem }()
	case <-runCtx.Done():
		m.finish(jobID, job.StateFailed, "daemon stopping")
		return
	}

	state := m.cancelState(jobID)
	if state.wasRequested() {
		// Cancel may already have moved the job; a rejected transition
		// here just means that.
		m.finish(jobID, job.StateCancelled, "cancelled before slicing")
		return
	}

	if !m.transition(jobID, job.StateSlicing, "") {
		// The job reached a terminal state before the worker picked it up.
		return
	}

	j, err := m.store.Get(context.Background(), jobID)
	if err != nil {
		m.logger.Error("load job for slicing", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return
	}

	slicer, err := m.slicerFor(j.SlicerProfile)
	if err != nil {
		m.finish(jobID, job.StateFailed, err.Error())
		return
	}
	machine, err := m.machineFor(j.DriverProfile)
	if err != nil {
		m.finish(jobID, job.StateFailed, err.Error())
		return
	}

	sliceCtx, cancel := context.WithCancel(runCtx)
	defer cancel()
	if state.bind(cancel) {
		m.finish(jobID, job.StateCancelled, "cancelled before slicing")
		return
	}

	outputPath := m.toolpathPath(jobID)
	err = slicer.Slice(sliceCtx, toolpath.Request{
		JobID:         jobID,
		ModelPath:     j.ModelPath,
		OutputPath:    outputPath,
		StartSequence: machine.StartSequence,
		EndSequence:   machine.EndSequence,
		Params:        params,
	})
	if err != nil {
		if state.wasRequested() || errors.Is(err, context.Canceled) {
			m.finish(jobID, job.StateCancelled, "cancelled during slicing")
			return
		}
		m.finish(jobID, job.StateFailed, err.Error())
		return
	}

	lines, err := toolpath.VerifyOutput(outputPath)
	if err != nil {
		m.finish(jobID, job.StateFailed, err.Error())
		return
	}
	if err := m.store.SetToolpath(context.Background(), jobID, outputPath); err != nil {
		m.finish(jobID, job.StateFailed, err.Error())
		return
	}
	if err := m.store.UpdateProgress(context.Background(), jobID, 0, lines); err != nil {
		m.logger.Warn("record toolpath line count",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
	if !m.transition(jobID, job.StateQueued, "") {
		return
	}

	// Hand the job to its device's FIFO wait list.
	m.mu.Lock()
	list := m.waitlists[j.DeviceID]
	m.mu.Unlock()
	if list == nil {
		m.finish(jobID, job.StateFailed, "device removed from configuration")
		return
	}
	list.push(jobID)
}
