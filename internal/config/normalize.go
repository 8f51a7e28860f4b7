package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeCommon(); err != nil {
		return err
	}
	if err := c.normalizeBackends(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeClient()
	c.normalizeDevices()
	return nil
}

func (c *Config) normalizeCommon() error {
	c.Common.Address = strings.TrimSpace(c.Common.Address)
	if c.Common.Address == "" {
		c.Common.Address = defaultAddress
	}
	c.Common.PIDFile = strings.TrimSpace(c.Common.PIDFile)
	if c.Common.PIDFile == "" {
		c.Common.PIDFile = defaultPIDFile
	}
	var err error
	if c.Common.PIDFile, err = expandPath(c.Common.PIDFile); err != nil {
		return fmt.Errorf("common.pid_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackends() error {
	var err error

	c.MiracleGrue.Name = strings.TrimSpace(c.MiracleGrue.Name)
	if c.MiracleGrue.Name == "" {
		c.MiracleGrue.Name = defaultMiracleGrueName
	}
	if c.MiracleGrue.Path, err = expandPath(c.MiracleGrue.Path); err != nil {
		return fmt.Errorf("miraclegrue.path: %w", err)
	}
	if c.MiracleGrue.Config, err = expandPath(c.MiracleGrue.Config); err != nil {
		return fmt.Errorf("miraclegrue.config: %w", err)
	}

	c.Skeinforge.Name = strings.TrimSpace(c.Skeinforge.Name)
	if c.Skeinforge.Name == "" {
		c.Skeinforge.Name = defaultSkeinforgeName
	}
	if c.Skeinforge.Path, err = expandPath(c.Skeinforge.Path); err != nil {
		return fmt.Errorf("skeinforge.path: %w", err)
	}
	if c.Skeinforge.ProfileDir, err = expandPath(c.Skeinforge.ProfileDir); err != nil {
		return fmt.Errorf("skeinforge.profile_dir: %w", err)
	}
	c.Skeinforge.Profile = strings.TrimSpace(c.Skeinforge.Profile)
	if c.Skeinforge.Profile == "" {
		c.Skeinforge.Profile = defaultSkeinforgeProfile
	}

	c.MakerBot.Name = strings.TrimSpace(c.MakerBot.Name)
	if c.MakerBot.Name == "" {
		c.MakerBot.Name = defaultMakerBotName
	}
	if c.MakerBot.ProfileDir, err = expandPath(c.MakerBot.ProfileDir); err != nil {
		return fmt.Errorf("makerbot.profile_dir: %w", err)
	}
	c.MakerBot.Machine = strings.TrimSpace(c.MakerBot.Machine)
	if c.MakerBot.Machine == "" {
		c.MakerBot.Machine = defaultMakerBotMachine
	}
	if c.MakerBot.BaudRate <= 0 {
		c.MakerBot.BaudRate = defaultMakerBotBaudRate
	}
	return nil
}

func (c *Config) normalizeServer() error {
	if c.Server.SliceWorkers <= 0 {
		c.Server.SliceWorkers = defaultSliceWorks
	}
	if strings.TrimSpace(c.Server.SpoolDir) == "" {
		c.Server.SpoolDir = defaultSpoolDir
	}
	var err error
	if c.Server.SpoolDir, err = expandPath(c.Server.SpoolDir); err != nil {
		return fmt.Errorf("server.spool_dir: %w", err)
	}
	c.Server.LogFormat = strings.ToLower(strings.TrimSpace(c.Server.LogFormat))
	switch c.Server.LogFormat {
	case "", "console":
		c.Server.LogFormat = "console"
	case "json":
	default:
		c.Server.LogFormat = "console"
	}
	c.Server.LogLevel = strings.ToLower(strings.TrimSpace(c.Server.LogLevel))
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
	return nil
}

func (c *Config) normalizeClient() {
	if c.Client.Workers <= 0 {
		c.Client.Workers = defaultClientWorks
	}
	c.Client.LogLevel = strings.ToLower(strings.TrimSpace(c.Client.LogLevel))
	if c.Client.LogLevel == "" {
		c.Client.LogLevel = defaultLogLevel
	}
	s := &c.Client.Slicing
	if s.InfillDensity <= 0 {
		s.InfillDensity = defaultInfillDensity
	}
	if s.LayerHeight <= 0 {
		s.LayerHeight = defaultLayerHeight
	}
	if s.Shells <= 0 {
		s.Shells = defaultShells
	}
	if s.ExtruderTemperature <= 0 {
		s.ExtruderTemperature = defaultExtruderTemperature
	}
	if s.PlatformTemperature <= 0 {
		s.PlatformTemperature = defaultPlatformTemperature
	}
	if s.PrintSpeed <= 0 {
		s.PrintSpeed = defaultPrintSpeed
	}
	if s.TravelSpeed <= 0 {
		s.TravelSpeed = defaultTravelSpeed
	}
}

func (c *Config) normalizeDevices() {
	devices := make([]Device, 0, len(c.Devices))
	for _, device := range c.Devices {
		device.ID = strings.TrimSpace(device.ID)
		device.Port = strings.TrimSpace(device.Port)
		device.Driver = strings.TrimSpace(device.Driver)
		if device.Driver == "" {
			device.Driver = c.MakerBot.Name
		}
		devices = append(devices, device)
	}
	c.Devices = devices
}
