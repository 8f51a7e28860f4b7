// Package services defines the shared error taxonomy for conveyor's
// external collaborators (slicer executables, printer drivers) and the
// classification helpers the orchestrator uses to map failures onto job
// states.
package services
