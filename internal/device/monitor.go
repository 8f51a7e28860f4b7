package device

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"conveyor/internal/logging"
)

// Monitor listens for udev netlink events on the tty subsystem and flips
// registry connectivity as configured printers attach and detach. This
// removes the need for udev rules that poke the daemon externally.
type Monitor struct {
	registry *Registry
	logger   *slog.Logger
	// onDetach is called with the device ID when a configured printer
	// disappears, so the orchestrator can fail its active job.
	onDetach func(deviceID string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates a hotplug monitor over the registry.
func NewMonitor(registry *Registry, logger *slog.Logger, onDetach func(deviceID string)) *Monitor {
	if registry == nil {
		return nil
	}
	return &Monitor{
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "device-monitor"),
		onDetach: onDetach,
	}
}

// Start begins listening for udev netlink events. A failure to reach the
// netlink socket is non-fatal: configured devices keep their static
// connectivity.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; hotplug detection unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("device monitor started",
		logging.String(logging.FieldEventType, "device_monitor_started"))
	return nil
}

// Stop shuts the monitor down.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("device monitor stopped",
		logging.String(logging.FieldEventType, "device_monitor_stopped"))
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"))
		}
	}
}

// buildMatcher matches serial device attach/detach:
// SUBSYSTEM=tty, ACTION=add|remove.
func (m *Monitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "tty",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	port := extractDeviceName(uevent)
	if port == "" {
		return
	}

	id, ok := m.registry.ByPort(port)
	if !ok {
		m.logger.Debug("ignoring event for unconfigured port",
			logging.String("port", port),
			logging.String("action", string(uevent.Action)))
		return
	}

	switch uevent.Action {
	case netlink.ADD:
		m.registry.SetConnected(id, true)
		m.logger.Info("device attached",
			logging.String(logging.FieldDevice, id),
			logging.String("port", port),
			logging.String(logging.FieldEventType, "device_attached"))
	case netlink.REMOVE:
		m.registry.SetConnected(id, false)
		m.logger.Info("device detached",
			logging.String(logging.FieldDevice, id),
			logging.String("port", port),
			logging.String(logging.FieldEventType, "device_detached"))
		if m.onDetach != nil {
			m.onDetach(id)
		}
	}
}

func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return "/dev/" + devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}
