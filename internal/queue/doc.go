// Package queue owns the authoritative record of every job. It persists
// jobs and their state-change events in SQLite, enforces transition
// legality centrally, and answers wait-list position queries for jobs
// contending on one device. All mutation goes through the Store; the
// orchestrator and the IPC gateway only reference jobs by ID.
package queue
