package capture

import (
	"log/slog"
)

// DefaultCandidates are tried in order; the first confirmed size wins.
var DefaultCandidates = []Resolution{
	{3840, 2160}, {2560, 1440}, {2592, 1944},
	{1920, 1080}, {1600, 1200},
	{1280, 1024}, {1280, 720},
	{1024, 768}, {800, 600},
	{640, 480},
}

// DefaultFormats are the pixel formats tried for each candidate.
// The empty entry leaves the format to the driver.
var DefaultFormats = []string{"MJPG", "YUY2", ""}

// DefaultFallback is reported when the device produces no frame at all.
var DefaultFallback = Resolution{Width: 640, Height: 480}

// DefaultWarmup is the number of frames discarded after reconfiguring.
const DefaultWarmup = 3

// Negotiator picks the best frame size a device actually delivers.
type Negotiator struct {
	Candidates []Resolution
	Formats    []string
	Warmup     int
	Fallback   Resolution
	Logger     *slog.Logger
}

// NewNegotiator returns a negotiator with the default candidate lists.
func NewNegotiator() *Negotiator {
	return &Negotiator{
		Candidates: DefaultCandidates,
		Formats:    DefaultFormats,
		Warmup:     DefaultWarmup,
		Fallback:   DefaultFallback,
	}
}

// Negotiate configures dev with each format and candidate size in order and
// returns the first size confirmed by a real frame. If none is confirmed it
// returns the size of whatever the device produces now, and the fallback
// if the device produces nothing. It never fails.
func (n *Negotiator) Negotiate(dev Device) Resolution {
	logger := n.logger()

	for _, fourcc := range n.Formats {
		for _, r := range n.Candidates {
			if n.try(dev, fourcc, r) {
				logger.Info("resolution negotiated", "resolution", r.String(), "fourcc", fourcc)
				return r
			}
		}
	}

	if f, err := dev.Read(); err == nil {
		r := Resolution{Width: f.Width(), Height: f.Height()}
		f.Close()
		if r.Width > 0 && r.Height > 0 {
			logger.Warn("no candidate confirmed, using current size", "resolution", r.String())
			return r
		}
	}

	fallback := n.Fallback
	if fallback.Width <= 0 || fallback.Height <= 0 {
		fallback = DefaultFallback
	}
	logger.Warn("device produced no frame during negotiation", "resolution", fallback.String())
	return fallback
}

func (n *Negotiator) try(dev Device, fourcc string, r Resolution) bool {
	dev.Configure(fourcc, r.Width, r.Height)
	for i := 0; i < n.Warmup; i++ {
		if f, err := dev.Read(); err == nil {
			f.Close()
		}
	}
	f, err := dev.Read()
	if err != nil {
		return false
	}
	defer f.Close()
	return f.Width() == r.Width && f.Height() == r.Height
}

func (n *Negotiator) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default().With("component", "capture.negotiate")
}
