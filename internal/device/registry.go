// Package device tracks the printers the daemon may print to. The registry
// is seeded from the configured device table; a udev netlink monitor flips
// connectivity as hardware attaches and detaches. A device handle is an
// exclusive-access token: acquiring it blocks until the previous holder
// releases it, which is what serializes printing per device.
package device

import (
	"context"
	"sort"
	"sync"

	"conveyor/internal/config"
	"conveyor/internal/services"
)

// Status is the client-facing view of one device.
type Status struct {
	ID        string `json:"id"`
	Port      string `json:"port"`
	Driver    string `json:"driver"`
	Connected bool   `json:"connected"`
	Busy      bool   `json:"busy"`
}

type entry struct {
	device config.Device
	token  chan struct{}

	mu        sync.Mutex
	connected bool
	busy      bool
}

// Registry holds every known device.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry seeds the registry from the configured device table.
// Configured devices start out connected; the hotplug monitor corrects
// this as hardware comes and goes.
func NewRegistry(devices []config.Device) *Registry {
	r := &Registry{entries: make(map[string]*entry, len(devices))}
	for _, device := range devices {
		e := &entry{device: device, token: make(chan struct{}, 1), connected: true}
		e.token <- struct{}{}
		r.entries[device.ID] = e
	}
	return r
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "device", "lookup", id, nil)
	}
	return e, nil
}

// Get returns the configured device record.
func (r *Registry) Get(id string) (config.Device, error) {
	e, err := r.lookup(id)
	if err != nil {
		return config.Device{}, err
	}
	return e.device, nil
}

// Handle is an exclusive-access token for one device.
type Handle struct {
	entry   *entry
	release sync.Once
}

// Device returns the configured device record for the held device.
func (h *Handle) Device() config.Device {
	return h.entry.device
}

// Release returns the token. Safe to call more than once.
func (h *Handle) Release() {
	h.release.Do(func() {
		h.entry.mu.Lock()
		h.entry.busy = false
		h.entry.mu.Unlock()
		h.entry.token <- struct{}{}
	})
}

// Acquire blocks until the device's exclusive token is free or the context
// ends.
func (r *Registry) Acquire(ctx context.Context, id string) (*Handle, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-e.token:
		e.mu.Lock()
		e.busy = true
		e.mu.Unlock()
		return &Handle{entry: e}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire acquires the token without blocking. The second return value
// reports whether the token was free.
func (r *Registry) TryAcquire(id string) (*Handle, bool, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, false, err
	}
	select {
	case <-e.token:
		e.mu.Lock()
		e.busy = true
		e.mu.Unlock()
		return &Handle{entry: e}, true, nil
	default:
		return nil, false, nil
	}
}

// SetConnected flips a device's connectivity. Unknown IDs are ignored so
// the hotplug monitor can report raw port names freely.
func (r *Registry) SetConnected(id string, connected bool) {
	e, err := r.lookup(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.connected = connected
	e.mu.Unlock()
}

// Connected reports whether the device is currently attached.
func (r *Registry) Connected(id string) bool {
	e, err := r.lookup(id)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// ByPort maps a device node path back to the configured device ID.
func (r *Registry) ByPort(port string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.device.Port == port {
			return id, true
		}
	}
	return "", false
}

// List returns every device sorted by ID.
func (r *Registry) List() []Status {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	statuses := make([]Status, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		statuses = append(statuses, Status{
			ID:        e.device.ID,
			Port:      e.device.Port,
			Driver:    e.device.Driver,
			Connected: e.connected,
			Busy:      e.busy,
		})
		e.mu.Unlock()
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
