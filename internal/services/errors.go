package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProfileNotFound marks a submission referencing an unknown slicer or
	// driver profile. Always a client-input error, never retried.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrSliceFailed marks a slicing backend failure. The diagnostic output of
	// the external process is carried in the wrapped message.
	ErrSliceFailed = errors.New("slice failed")
	// ErrDeviceDisconnected marks connection loss to a printer mid-job. Fatal
	// to the job; the device is unavailable until it reconnects.
	ErrDeviceDisconnected = errors.New("device disconnected")
	// ErrDeviceBusy marks a device with an active job. Transient; jobs wait in
	// the per-device FIFO rather than erroring.
	ErrDeviceBusy = errors.New("device busy")
	// ErrNotFound marks lookups of unknown jobs or devices.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyTerminal marks cancellation of a job that already reached a
	// terminal state. Reported to the caller, never an internal failure.
	ErrAlreadyTerminal = errors.New("job already terminal")
	// ErrIllegalTransition marks a state transition the job graph forbids.
	// Treated as a programming defect: logged loudly and rejected.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrCancelled marks cooperative cancellation. Not itself a failure.
	ErrCancelled = errors.New("cancel requested")
)

// Wrap builds an error message that includes operation context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = errors.New("service failure")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
