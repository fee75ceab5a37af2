package capture

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/teslashibe/go-obbcam/pkg/overlay"
)

// ErrMockClosed is returned by a MockDevice after Close.
var ErrMockClosed = errors.New("capture: mock device closed")

// MockFrame is an in-memory Frame.
type MockFrame struct {
	W, H   int
	mu     sync.Mutex
	closed bool
}

// Width implements Frame.
func (f *MockFrame) Width() int { return f.W }

// Height implements Frame.
func (f *MockFrame) Height() int { return f.H }

// Close implements Frame.
func (f *MockFrame) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *MockFrame) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// MockDevice implements Device for testing.
// It only switches to a requested size listed in Supported, the way real
// drivers silently keep their current mode for unsupported requests.
type MockDevice struct {
	// Supported sizes the device will switch to.
	Supported []Resolution

	// Formats limits which FOURCC codes can switch sizes. Empty allows all.
	Formats []string

	// Current is the size produced before any accepted Configure.
	Current Resolution

	// ReadFunc overrides Read. n is the 1-based read count.
	ReadFunc func(n int) (Frame, error)

	mu         sync.Mutex
	fourcc     string
	reads      int
	closes     int
	configured []string
}

// NewMockDevice creates a device producing current until configured to one
// of supported.
func NewMockDevice(current Resolution, supported ...Resolution) *MockDevice {
	return &MockDevice{Current: current, Supported: supported}
}

// Configure implements Device.
func (d *MockDevice) Configure(fourcc string, width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fourcc != "" {
		d.fourcc = fourcc
	}
	d.configured = append(d.configured, fmt.Sprintf("%s %dx%d", fourcc, width, height))

	r := Resolution{Width: width, Height: height}
	if !slices.Contains(d.Supported, r) {
		return
	}
	if len(d.Formats) > 0 && d.fourcc != "" && !slices.Contains(d.Formats, d.fourcc) {
		return
	}
	d.Current = r
}

// Read implements Device.
func (d *MockDevice) Read() (Frame, error) {
	d.mu.Lock()
	if d.closes > 0 {
		d.mu.Unlock()
		return nil, ErrMockClosed
	}
	d.reads++
	n := d.reads
	cur := d.Current
	fn := d.ReadFunc
	d.mu.Unlock()

	if fn != nil {
		return fn(n)
	}
	return &MockFrame{W: cur.Width, H: cur.Height}, nil
}

// Close implements Device.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
	return nil
}

// Reads returns the number of Read calls.
func (d *MockDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Closes returns the number of Close calls.
func (d *MockDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Configured returns every Configure request as "FOURCC WxH".
func (d *MockDevice) Configured() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.configured)
}

// MockOpener implements Opener for testing.
type MockOpener struct {
	// OpenFunc overrides Open. If nil, Open returns Device.
	OpenFunc func(index int) (Device, error)

	// Device is returned by the default Open.
	Device Device

	mu    sync.Mutex
	opens []int
}

// NewMockOpener returns an opener that always hands out dev.
func NewMockOpener(dev Device) *MockOpener {
	return &MockOpener{Device: dev}
}

// Open implements Opener.
func (o *MockOpener) Open(index int) (Device, error) {
	o.mu.Lock()
	o.opens = append(o.opens, index)
	fn := o.OpenFunc
	dev := o.Device
	o.mu.Unlock()

	if fn != nil {
		return fn(index)
	}
	if dev == nil {
		return nil, ErrDeviceUnavailable
	}
	return dev, nil
}

// Opens returns the indexes passed to Open.
func (o *MockOpener) Opens() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.opens)
}

// MockRenderer implements Renderer for testing.
type MockRenderer struct {
	// DrawFunc overrides Draw.
	DrawFunc func(f Frame, overlays []overlay.Overlay) error

	// EncodeFunc overrides Encode. If nil, Encode returns a small fake JPEG.
	EncodeFunc func(f Frame, quality int) ([]byte, error)

	mu       sync.Mutex
	draws    int
	encodes  int
	lastDraw []overlay.Overlay
}

// Draw implements Renderer.
func (r *MockRenderer) Draw(f Frame, overlays []overlay.Overlay) error {
	r.mu.Lock()
	r.draws++
	r.lastDraw = overlays
	fn := r.DrawFunc
	r.mu.Unlock()
	if fn != nil {
		return fn(f, overlays)
	}
	return nil
}

// Encode implements Renderer.
func (r *MockRenderer) Encode(f Frame, quality int) ([]byte, error) {
	r.mu.Lock()
	r.encodes++
	fn := r.EncodeFunc
	r.mu.Unlock()
	if fn != nil {
		return fn(f, quality)
	}
	// SOI marker, a tag, EOI marker
	data := []byte{0xFF, 0xD8}
	data = append(data, fmt.Sprintf("%dx%d q%d", f.Width(), f.Height(), quality)...)
	return append(data, 0xFF, 0xD9), nil
}

// Draws returns the number of Draw calls.
func (r *MockRenderer) Draws() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draws
}

// Encodes returns the number of Encode calls.
func (r *MockRenderer) Encodes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.encodes
}

// LastDraw returns the overlays passed to the most recent Draw.
func (r *MockRenderer) LastDraw() []overlay.Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.lastDraw)
}
