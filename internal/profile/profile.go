// Package profile exposes the slicer and driver profiles the daemon can
// resolve job submissions against. Profiles are built from the backend
// sections of the configuration at startup; submissions reference them by
// name.
package profile

import (
	"sort"
	"strings"

	"conveyor/internal/config"
	"conveyor/internal/services"
)

// Kind distinguishes slicer profiles from driver profiles.
type Kind string

const (
	KindSlicer Kind = "slicer"
	KindDriver Kind = "driver"
)

// SlicerBackend identifies which external slicing tool a profile drives.
type SlicerBackend string

const (
	BackendMiracleGrue SlicerBackend = "miraclegrue"
	BackendSkeinforge  SlicerBackend = "skeinforge"
)

// Slicer describes one named slicing configuration.
type Slicer struct {
	Name    Name
	Backend SlicerBackend
	// Path is the backend executable (or entry script for Skeinforge).
	Path string
	// Config is the Miracle-Grue JSON configuration file. Empty for
	// Skeinforge.
	Config string
	// ProfileDir and Profile select the Skeinforge craft profile. Empty for
	// Miracle-Grue.
	ProfileDir string
	Profile    string
}

// Driver describes one named printer driver configuration.
type Driver struct {
	Name       Name
	ProfileDir string
	// Machine selects the machine profile carrying start/end G-code and the
	// build envelope.
	Machine  string
	BaudRate int
}

// Name is a case-insensitive profile identifier.
type Name string

func (n Name) key() string {
	return strings.ToLower(strings.TrimSpace(string(n)))
}

// Info is the client-facing description of a profile.
type Info struct {
	Name Name `json:"name"`
	Kind Kind `json:"kind"`
}

// Registry resolves profile names to profiles. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	slicers map[string]Slicer
	drivers map[string]Driver
}

// NewRegistry builds the registry from the backend configuration sections.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		slicers: make(map[string]Slicer, 2),
		drivers: make(map[string]Driver, 1),
	}

	miracle := Slicer{
		Name:    Name(cfg.MiracleGrue.Name),
		Backend: BackendMiracleGrue,
		Path:    cfg.MiracleGrue.Path,
		Config:  cfg.MiracleGrue.Config,
	}
	r.slicers[miracle.Name.key()] = miracle

	skeinforge := Slicer{
		Name:       Name(cfg.Skeinforge.Name),
		Backend:    BackendSkeinforge,
		Path:       cfg.Skeinforge.Path,
		ProfileDir: cfg.Skeinforge.ProfileDir,
		Profile:    cfg.Skeinforge.Profile,
	}
	r.slicers[skeinforge.Name.key()] = skeinforge

	driver := Driver{
		Name:       Name(cfg.MakerBot.Name),
		ProfileDir: cfg.MakerBot.ProfileDir,
		Machine:    cfg.MakerBot.Machine,
		BaudRate:   cfg.MakerBot.BaudRate,
	}
	r.drivers[driver.Name.key()] = driver

	return r
}

// ResolveSlicer returns the slicer profile for name.
func (r *Registry) ResolveSlicer(name string) (Slicer, error) {
	slicer, ok := r.slicers[Name(name).key()]
	if !ok {
		return Slicer{}, services.Wrap(services.ErrProfileNotFound, "profile", "resolve slicer", name, nil)
	}
	return slicer, nil
}

// ResolveDriver returns the driver profile for name.
func (r *Registry) ResolveDriver(name string) (Driver, error) {
	driver, ok := r.drivers[Name(name).key()]
	if !ok {
		return Driver{}, services.Wrap(services.ErrProfileNotFound, "profile", "resolve driver", name, nil)
	}
	return driver, nil
}

// List returns every registered profile sorted by kind then name.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.slicers)+len(r.drivers))
	for _, slicer := range r.slicers {
		infos = append(infos, Info{Name: slicer.Name, Kind: KindSlicer})
	}
	for _, driver := range r.drivers {
		infos = append(infos, Info{Name: driver.Name, Kind: KindDriver})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Kind != infos[j].Kind {
			return infos[i].Kind < infos[j].Kind
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}
