// Package config loads, validates, and normalizes conveyor's TOML
// configuration: the shared service address, one section per slicer and
// driver backend, server-side daemon settings, client-side defaults, and
// the static device table.
package config
