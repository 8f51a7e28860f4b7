// Package preflight runs environment checks before the daemon starts
// accepting jobs: slicer executables present and runnable, profile
// directories readable, the spool directory writable, and configured
// device ports accessible. Failed checks are reported, not fatal; the
// daemon starts degraded and submissions against broken backends fail with
// clear diagnostics.
package preflight
