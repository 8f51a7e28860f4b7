// Package logging provides slog-based structured logging for the conveyor
// daemon and client. It offers a human-readable console handler, a JSON
// handler for log files, standardized attribute helpers, and context
// propagation of job/device identifiers.
package logging
