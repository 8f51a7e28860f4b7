package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Common contains settings shared by the daemon and the client.
type Common struct {
	// Address is the service endpoint in scheme:host:port form, e.g.
	// "pipe:/var/run/conveyor/conveyord.socket" or "tcp:localhost:9999".
	Address string `toml:"address"`
	PIDFile string `toml:"pid_file"`
}

// MiracleGrue configures the Miracle-Grue slicing backend.
type MiracleGrue struct {
	// Name overrides the profile name the registry exposes for this backend.
	Name string `toml:"name"`
	Path string `toml:"path"`
	// Config is the Miracle-Grue JSON configuration passed via -c.
	Config string `toml:"config"`
}

// Skeinforge configures the Skeinforge slicing backend.
type Skeinforge struct {
	Name       string `toml:"name"`
	Path       string `toml:"path"`
	ProfileDir string `toml:"profile_dir"`
	// Profile is the craft profile name within ProfileDir.
	Profile string `toml:"profile"`
}

// MakerBot configures the MakerBot printer driver backend.
type MakerBot struct {
	Name       string `toml:"name"`
	ProfileDir string `toml:"profile_dir"`
	// Machine selects the machine profile within ProfileDir (start/end
	// G-code sequences, build envelope).
	Machine  string `toml:"machine"`
	BaudRate int    `toml:"baud_rate"`
}

// Device declares one physical printer the daemon may print to.
type Device struct {
	ID     string `toml:"id"`
	Port   string `toml:"port"`
	Driver string `toml:"driver"`
}

// Server contains daemon-side settings.
type Server struct {
	// SliceWorkers bounds the number of concurrent slicing invocations.
	SliceWorkers int `toml:"slice_workers"`
	// SpoolDir holds sliced toolpath files, the job database, the daemon
	// lock, and log output.
	SpoolDir  string `toml:"spool_dir"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	// ChDir controls whether the daemon changes to the root directory when
	// launched by the service wrapper.
	ChDir bool `toml:"chdir"`
}

// Slicing carries the client-side default slicing parameters merged into
// submissions that do not override them.
type Slicing struct {
	Raft                bool    `toml:"raft"`
	Support             bool    `toml:"support"`
	InfillDensity       float64 `toml:"infill_density"`
	LayerHeight         float64 `toml:"layer_height"`
	Shells              int     `toml:"shells"`
	ExtruderTemperature float64 `toml:"extruder_temperature"`
	PlatformTemperature float64 `toml:"platform_temperature"`
	PrintSpeed          float64 `toml:"print_speed"`
	TravelSpeed         float64 `toml:"travel_speed"`
}

// Client contains client-side settings.
type Client struct {
	Workers  int     `toml:"workers"`
	LogLevel string  `toml:"log_level"`
	Slicing  Slicing `toml:"slicing"`
}

// Config encapsulates all configuration values for conveyor.
//
// Configuration sections by subsystem:
//   - Common: service address and PID file shared by daemon and client
//   - MiracleGrue / Skeinforge: slicing backend executables and profiles
//   - MakerBot: printer driver machine profiles and serial settings
//   - Devices: static table of known printers
//   - Server: worker pool sizing, spool directory, daemon logging
//   - Client: client worker pool and default slicing parameters
type Config struct {
	Common      Common      `toml:"common"`
	MiracleGrue MiracleGrue `toml:"miraclegrue"`
	Skeinforge  Skeinforge  `toml:"skeinforge"`
	MakerBot    MakerBot    `toml:"makerbot"`
	Devices     []Device    `toml:"devices"`
	Server      Server      `toml:"server"`
	Client      Client      `toml:"client"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/conveyor/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return
// value is the resolved path; the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("conveyor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs to operate.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Server.SpoolDir, c.LogDir(), c.ToolpathDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Common.PIDFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pid directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogDir returns the daemon log directory under the spool directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.Server.SpoolDir, "logs")
}

// ToolpathDir returns the directory for sliced toolpath output files.
func (c *Config) ToolpathDir() string {
	return filepath.Join(c.Server.SpoolDir, "toolpaths")
}

// DeviceByID looks up a configured device.
func (c *Config) DeviceByID(id string) (Device, bool) {
	for _, device := range c.Devices {
		if device.ID == id {
			return device, true
		}
	}
	return Device{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
