// Package logs reads the daemon log file incrementally so clients can
// page through history or follow new lines as they are written.
package logs
