// Package printer wraps printer drivers behind one contract: a toolpath
// file plus an open device port in, a finite stream of progress updates
// out. The MakerBot driver streams G-code lines over a serial port, honors
// cooperative cancellation by running the machine's abort sequence, and
// reports connection loss distinctly so the orchestrator can fail the job
// and mark the device unavailable.
package printer
