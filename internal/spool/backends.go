package spool

import (
	"fmt"
	"strings"

	"conveyor/internal/printer"
	"conveyor/internal/profile"
	"conveyor/internal/toolpath"
)

// slicerFor returns the slicing backend for a profile name, constructing
// it on first use.
func (m *Manager) slicerFor(name string) (toolpath.Slicer, error) {
	key := strings.ToLower(name)

	m.backendMu.Lock()
	defer m.backendMu.Unlock()
	if s, ok := m.slicers[key]; ok {
		return s, nil
	}

	resolved, err := m.profiles.ResolveSlicer(name)
	if err != nil {
		return nil, err
	}

	var s toolpath.Slicer
	switch resolved.Backend {
	case profile.BackendMiracleGrue:
		s, err = toolpath.NewMiracleGrue(resolved, m.logger)
	case profile.BackendSkeinforge:
		s, err = toolpath.NewSkeinforge(resolved, m.logger)
	default:
		err = fmt.Errorf("unknown slicer backend %q", resolved.Backend)
	}
	if err != nil {
		return nil, err
	}
	m.slicers[key] = s
	return s, nil
}

// driverFor returns the printer driver for a profile name, constructing it
// on first use. Construction reads the machine profile from disk, so a
// broken driver installation fails the jobs that need it rather than the
// daemon.
func (m *Manager) driverFor(name string) (printer.Driver, error) {
	key := strings.ToLower(name)

	m.backendMu.Lock()
	defer m.backendMu.Unlock()
	if d, ok := m.drivers[key]; ok {
		return d, nil
	}

	resolved, err := m.profiles.ResolveDriver(name)
	if err != nil {
		return nil, err
	}
	driver, err := printer.NewMakerBot(resolved, m.logger)
	if err != nil {
		return nil, err
	}
	m.drivers[key] = driver
	m.machines[key] = driver.Machine()
	return driver, nil
}

// machineFor returns the machine profile behind a driver profile name. The
// slicer needs it for the start and end G-code sequences.
func (m *Manager) machineFor(name string) (printer.MachineProfile, error) {
	key := strings.ToLower(name)

	m.backendMu.Lock()
	machine, ok := m.machines[key]
	m.backendMu.Unlock()
	if ok {
		return machine, nil
	}

	if _, err := m.driverFor(name); err != nil {
		return printer.MachineProfile{}, err
	}

	m.backendMu.Lock()
	defer m.backendMu.Unlock()
	return m.machines[key], nil
}
