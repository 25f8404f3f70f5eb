package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"laserlink/internal/logging"
)

// portWatcher receives hotplug notifications for serial devices.
type portWatcher interface {
	PortAdded(device string) bool
	PortRemoved(ctx context.Context, device string) bool
}

// ttyMonitor listens for udev netlink events on the tty subsystem so an
// unplugged USB serial adapter is noticed immediately and a replugged one is
// reopened without waiting for the retry interval.
type ttyMonitor struct {
	logger  *slog.Logger
	watcher portWatcher

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newTTYMonitor(logger *slog.Logger, watcher portWatcher) *ttyMonitor {
	if watcher == nil {
		return nil
	}
	return &ttyMonitor{
		logger:  logging.NewComponentLogger(logger, "tty-monitor"),
		watcher: watcher,
	}
}

// Start begins listening for udev netlink events. A missing netlink socket is
// not fatal: lost ports are still noticed when their reads fail.
func (m *ttyMonitor) Start(ctx context.Context) error {
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
		m.logger.Warn("failed to connect to netlink socket; port hotplug relies on read errors",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "replugged ports reopen on the next retry instead of immediately"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("tty monitor started", logging.String(logging.FieldEventType, "tty_monitor_started"))
	return nil
}

// Stop shuts down the monitor.
func (m *ttyMonitor) Stop() {
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

	m.logger.Info("tty monitor stopped", logging.String(logging.FieldEventType, "tty_monitor_stopped"))
}

// Running reports whether the monitor is active.
func (m *ttyMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *ttyMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildTTYMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "port hotplug detection may be affected"),
			)
		}
	}
}

// buildTTYMatcher matches SUBSYSTEM=tty with ACTION=add|remove.
func buildTTYMatcher() netlink.Matcher {
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

func (m *ttyMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	var matched bool
	switch uevent.Action {
	case netlink.ADD:
		matched = m.watcher.PortAdded(devname)
	case netlink.REMOVE:
		matched = m.watcher.PortRemoved(ctx, devname)
	default:
		return
	}
	if !matched {
		m.logger.Debug("ignoring event for non-configured port",
			logging.String(logging.FieldPort, devname),
			logging.String("action", string(uevent.Action)),
		)
		return
	}
	m.logger.Info("serial port hotplug",
		logging.String(logging.FieldEventType, "tty_"+string(uevent.Action)),
		logging.String(logging.FieldPort, devname),
	)
}

// extractDeviceName returns the /dev path of the device in a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := strings.TrimSpace(uevent.Env["DEVNAME"]); devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return "/dev/" + devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(devpath, "/"), "/")
	last := parts[len(parts)-1]
	if last == "" {
		return ""
	}
	return "/dev/" + last
}
