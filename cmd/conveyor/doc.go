// Command conveyor is the client CLI for the conveyor print daemon. It
// submits models for slicing and printing, inspects jobs and devices, and
// controls the daemon process.
package main
