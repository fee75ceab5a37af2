package cv

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/gofrs/flock"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-obbcam/pkg/capture"
)

// Backends returns the capture APIs tried for goos, in order.
func Backends(goos string) []gocv.VideoCaptureAPI {
	switch goos {
	case "windows":
		return []gocv.VideoCaptureAPI{gocv.VideoCaptureDshow, gocv.VideoCaptureMSMF, gocv.VideoCaptureAny}
	case "linux":
		return []gocv.VideoCaptureAPI{gocv.VideoCaptureV4L2, gocv.VideoCaptureAny}
	case "darwin":
		return []gocv.VideoCaptureAPI{gocv.VideoCaptureAVFoundation, gocv.VideoCaptureAny}
	default:
		return []gocv.VideoCaptureAPI{gocv.VideoCaptureAny}
	}
}

// Opener opens OpenCV capture devices. It holds a lock file per device index
// so two processes never drive the same camera.
type Opener struct {
	// LockDir holds the lock files. Empty uses the OS temp dir.
	LockDir string

	// Backends overrides the platform backend order.
	Backends []gocv.VideoCaptureAPI

	Logger *slog.Logger
}

// NewOpener returns an opener for the current platform.
func NewOpener(lockDir string, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default().With("component", "capture.cv")
	}
	return &Opener{
		LockDir:  lockDir,
		Backends: Backends(runtime.GOOS),
		Logger:   logger,
	}
}

// LockPath returns the lock file used for device index.
func (o *Opener) LockPath(index int) string {
	dir := o.LockDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("obbcam-video%d.lock", index))
}

// Open implements capture.Opener.
func (o *Opener) Open(index int) (capture.Device, error) {
	lock := flock.New(o.LockPath(index))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &capture.DeviceError{Op: "lock", Index: index,
			Err: fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)}
	}
	if !locked {
		return nil, &capture.DeviceError{Op: "lock", Index: index,
			Err: fmt.Errorf("%w: in use by another process", capture.ErrDeviceUnavailable)}
	}

	backends := o.Backends
	if len(backends) == 0 {
		backends = Backends(runtime.GOOS)
	}
	for _, api := range backends {
		vc, err := gocv.OpenVideoCaptureWithAPI(index, api)
		if err != nil {
			o.Logger.Debug("backend failed", "device", index, "api", int(api), "error", err)
			continue
		}
		if !vc.IsOpened() {
			vc.Close()
			continue
		}
		o.Logger.Info("device opened", "device", index, "api", int(api))
		return &Device{vc: vc, lock: lock}, nil
	}

	lock.Unlock()
	return nil, &capture.DeviceError{Op: "open", Index: index, Err: capture.ErrDeviceUnavailable}
}

// Device is an open gocv.VideoCapture.
type Device struct {
	vc   *gocv.VideoCapture
	lock *flock.Flock
	once sync.Once
	err  error
}

// Configure implements capture.Device.
func (d *Device) Configure(fourcc string, width, height int) {
	if fourcc != "" {
		d.vc.Set(gocv.VideoCaptureFOURCC, d.vc.ToCodec(fourcc))
	}
	d.vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	d.vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
}

// Read implements capture.Device. The caller owns the returned frame.
func (d *Device) Read() (capture.Frame, error) {
	mat := gocv.NewMat()
	if ok := d.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, errReadFailed
	}
	return &Frame{Mat: mat}, nil
}

// Close implements capture.Device. It is safe to call more than once.
func (d *Device) Close() error {
	d.once.Do(func() {
		d.err = d.vc.Close()
		if err := d.lock.Unlock(); err != nil && d.err == nil {
			d.err = err
		}
	})
	return d.err
}
