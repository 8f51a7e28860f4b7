// Package spool is the job orchestration engine. It resolves submissions
// against the profile registry, drives jobs through slice, queue, print,
// and finish, and publishes every state change to the event hub.
//
// Concurrency model: a bounded worker pool executes slicing invocations;
// one print worker goroutine per configured device consumes that device's
// FIFO wait list, so two jobs can never print on one device at the same
// time. Client-facing calls never block on slicing or printing; those run
// as independent units of work whose completion is observed through
// events. Cancellation is cooperative: a job-scoped context is cancelled
// and the owning worker performs the terminal transition once the external
// process or device confirms.
package spool
