//go:build !linux

package devwatch

import (
	"context"
	"log/slog"
)

// Monitor is a no-op outside Linux.
type Monitor struct{}

// NewMonitor returns a monitor that never reports events.
func NewMonitor(_ *slog.Logger, _ func(Event)) *Monitor {
	return &Monitor{}
}

// Start reports ErrUnsupported.
func (m *Monitor) Start(context.Context) error {
	return ErrUnsupported
}

// Stop does nothing.
func (m *Monitor) Stop() {}

// Running always reports false.
func (m *Monitor) Running() bool { return false }
