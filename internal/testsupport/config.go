// Package testsupport provides helpers shared by package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"conveyor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Common.Address = "pipe:" + filepath.Join(base, "conveyord.socket")
	cfgVal.Common.PIDFile = filepath.Join(base, "conveyord.pid")
	cfgVal.Server.SpoolDir = filepath.Join(base, "spool")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDevices replaces the configured devices on the test config.
func WithDevices(devices ...config.Device) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Devices = devices
	}
}

// WithSliceWorkers overrides the slicing concurrency on the test config.
func WithSliceWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.SliceWorkers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Server.SpoolDir)
}
