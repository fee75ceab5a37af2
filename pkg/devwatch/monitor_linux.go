//go:build linux

package devwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"
)

// Monitor listens for udev netlink events on the video4linux subsystem.
type Monitor struct {
	logger  *slog.Logger
	handler func(Event)
	connect func() (*netlink.UEventConn, error)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates a monitor that calls handler for each add or remove.
func NewMonitor(logger *slog.Logger, handler func(Event)) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		logger:  logger.With("component", "devwatch"),
		handler: handler,
		connect: connectUdev,
	}
}

func connectUdev() (*netlink.UEventConn, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}
	return conn, nil
}

// Start connects to the netlink socket and starts delivering events until
// ctx ends or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn, err := m.connect()
	if err != nil {
		return fmt.Errorf("devwatch: netlink connect: %w", err)
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.loop(ctx, conn, quit)

	m.logger.Info("device monitor started")
	return nil
}

// Stop closes the netlink socket.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
	m.logger.Info("device monitor stopped")
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handle(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error", "error", err)
		}
	}
}

// matcher selects add and remove events for video4linux nodes.
func matcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *Monitor) handle(uevent netlink.UEvent) {
	ev, ok := eventFromUEvent(string(uevent.Action), uevent.Env)
	if !ok {
		m.logger.Debug("ignoring event without video node", "kobj", uevent.KObj)
		return
	}
	m.logger.Info("video device event", "action", ev.Action, "device", ev.Device.Path)
	if m.handler != nil {
		m.handler(ev)
	}
}
