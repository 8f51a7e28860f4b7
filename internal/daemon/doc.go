// Package daemon ties the conveyor services together: the job store, the
// event hub, the orchestrator, and the device monitor. It enforces
// single-instance execution with a file lock and owns the PID file.
package daemon
