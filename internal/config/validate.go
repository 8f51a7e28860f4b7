package config

import (
	"errors"
	"fmt"

	"conveyor/internal/address"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDevices(); err != nil {
		return err
	}
	return c.validateSlicing()
}

func (c *Config) validateCommon() error {
	if _, err := address.Parse(c.Common.Address); err != nil {
		return fmt.Errorf("common.address: %w", err)
	}
	if c.Common.PIDFile == "" {
		return errors.New("common.pid_file must be set")
	}
	return nil
}

func (c *Config) validateBackends() error {
	if c.MiracleGrue.Name == c.Skeinforge.Name {
		return fmt.Errorf("miraclegrue.name and skeinforge.name collide on %q", c.MiracleGrue.Name)
	}
	if c.MiracleGrue.Path == "" {
		return errors.New("miraclegrue.path must be set")
	}
	if c.Skeinforge.Path == "" {
		return errors.New("skeinforge.path must be set")
	}
	if c.MakerBot.BaudRate <= 0 {
		return errors.New("makerbot.baud_rate must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.SliceWorkers <= 0 {
		return errors.New("server.slice_workers must be positive")
	}
	if c.Server.SpoolDir == "" {
		return errors.New("server.spool_dir must be set")
	}
	return nil
}

func (c *Config) validateDevices() error {
	seen := make(map[string]struct{}, len(c.Devices))
	for i, device := range c.Devices {
		if device.ID == "" {
			return fmt.Errorf("devices[%d].id must be set", i)
		}
		if device.Port == "" {
			return fmt.Errorf("devices[%d].port must be set", i)
		}
		if _, exists := seen[device.ID]; exists {
			return fmt.Errorf("duplicate device id %q", device.ID)
		}
		seen[device.ID] = struct{}{}
	}
	return nil
}

func (c *Config) validateSlicing() error {
	s := c.Client.Slicing
	if s.InfillDensity <= 0 || s.InfillDensity > 1 {
		return errors.New("client.slicing.infill_density must be between 0 and 1")
	}
	if s.LayerHeight <= 0 {
		return errors.New("client.slicing.layer_height must be positive")
	}
	if s.Shells <= 0 {
		return errors.New("client.slicing.shells must be positive")
	}
	if s.ExtruderTemperature <= 0 {
		return errors.New("client.slicing.extruder_temperature must be positive")
	}
	if s.PlatformTemperature < 0 {
		return errors.New("client.slicing.platform_temperature must be >= 0")
	}
	if s.PrintSpeed <= 0 {
		return errors.New("client.slicing.print_speed must be positive")
	}
	if s.TravelSpeed <= 0 {
		return errors.New("client.slicing.travel_speed must be positive")
	}
	return nil
}
