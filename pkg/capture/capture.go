// Package capture runs a single video device: it negotiates a resolution,
// draws overlays on every frame, encodes the result and publishes the
// latest encoded frame for concurrent readers.
//
// The package is independent of any video library. Devices and the
// renderer are supplied through the Opener and Renderer interfaces; see
// package cv for the OpenCV implementation and mock.go for test doubles.
package capture

import (
	"fmt"

	"github.com/teslashibe/go-obbcam/pkg/overlay"
)

// Frame is one decoded image owned by the caller until Close.
type Frame interface {
	Width() int
	Height() int
	Close() error
}

// Device is an open capture device. It is used by one goroutine at a time.
type Device interface {
	// Configure requests a pixel format and frame size. An empty fourcc
	// leaves the format to the driver. Drivers may silently ignore the request.
	Configure(fourcc string, width, height int)

	// Read grabs the next frame.
	Read() (Frame, error)

	// Close releases the device.
	Close() error
}

// Opener opens devices by index.
type Opener interface {
	Open(index int) (Device, error)
}

// Renderer draws overlays onto frames and encodes them.
type Renderer interface {
	Draw(f Frame, overlays []overlay.Overlay) error
	Encode(f Frame, quality int) ([]byte, error)
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String returns "WxH".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}
