package capture

import (
	"errors"
	"fmt"
)

// Lifecycle errors.
var (
	// ErrAlreadyRunning is returned by Start when a session is starting or running.
	ErrAlreadyRunning = errors.New("capture: already running")

	// ErrNotRunning is returned by Stop when there is no session.
	ErrNotRunning = errors.New("capture: not running")

	// ErrStopPending is returned by Start while a previous loop that
	// outlived its stop timeout is still releasing the device.
	ErrStopPending = errors.New("capture: previous session still stopping")
)

// Device errors.
var (
	// ErrDeviceUnavailable means no backend could open the device.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrNoFrame means the device opened but produced no frame.
	ErrNoFrame = errors.New("capture: no frame")
)

// DeviceError wraps a device failure with the operation and device index.
type DeviceError struct {
	Op    string
	Index int
	Err   error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture: %s device %d: %v", e.Op, e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// deviceError wraps cause under kind unless it already is a *DeviceError.
func deviceError(op string, index int, kind, cause error) error {
	var de *DeviceError
	if errors.As(cause, &de) {
		return de
	}
	if cause == nil || errors.Is(cause, kind) {
		return &DeviceError{Op: op, Index: index, Err: kind}
	}
	return &DeviceError{Op: op, Index: index, Err: fmt.Errorf("%w: %v", kind, cause)}
}
