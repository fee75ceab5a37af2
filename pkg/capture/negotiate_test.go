package capture

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func quietNegotiator() *Negotiator {
	n := NewNegotiator()
	n.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return n
}

func TestNegotiate_PicksOnlyConfirmedSize(t *testing.T) {
	dev := NewMockDevice(Resolution{640, 480}, Resolution{1280, 720})
	got := quietNegotiator().Negotiate(dev)
	if got != (Resolution{1280, 720}) {
		t.Errorf("Negotiate = %v, want 1280x720", got)
	}
	cfg := dev.Configured()
	if cfg[0] != "MJPG 3840x2160" {
		t.Errorf("first request = %q, want MJPG 3840x2160", cfg[0])
	}
	if cfg[len(cfg)-1] != "MJPG 1280x720" {
		t.Errorf("last request = %q, want MJPG 1280x720", cfg[len(cfg)-1])
	}
}

func TestNegotiate_PrefersListOrder(t *testing.T) {
	dev := NewMockDevice(Resolution{640, 480}, Resolution{1280, 720}, Resolution{1920, 1080})
	if got := quietNegotiator().Negotiate(dev); got != (Resolution{1920, 1080}) {
		t.Errorf("Negotiate = %v, want 1920x1080", got)
	}
}

func TestNegotiate_FallsThroughFormats(t *testing.T) {
	dev := NewMockDevice(Resolution{1000, 500}, Resolution{1920, 1080})
	dev.Formats = []string{"YUY2"}
	if got := quietNegotiator().Negotiate(dev); got != (Resolution{1920, 1080}) {
		t.Errorf("Negotiate = %v, want 1920x1080", got)
	}
	var sawYUY2 bool
	for _, c := range dev.Configured() {
		if c == "YUY2 1920x1080" {
			sawYUY2 = true
		}
	}
	if !sawYUY2 {
		t.Error("expected a YUY2 attempt")
	}
}

func TestNegotiate_UsesCurrentFrameWhenNothingConfirms(t *testing.T) {
	dev := NewMockDevice(Resolution{1000, 500})
	if got := quietNegotiator().Negotiate(dev); got != (Resolution{1000, 500}) {
		t.Errorf("Negotiate = %v, want 1000x500", got)
	}
}

func TestNegotiate_FallbackWhenNoFrames(t *testing.T) {
	dev := NewMockDevice(Resolution{1000, 500})
	dev.ReadFunc = func(int) (Frame, error) { return nil, errors.New("no signal") }
	if got := quietNegotiator().Negotiate(dev); got != DefaultFallback {
		t.Errorf("Negotiate = %v, want %v", got, DefaultFallback)
	}
}

func TestNegotiate_DiscardsWarmupFrames(t *testing.T) {
	dev := NewMockDevice(Resolution{640, 480}, Resolution{1280, 720})
	n := quietNegotiator()
	n.Candidates = []Resolution{{1280, 720}}
	n.Formats = []string{""}
	n.Warmup = 3

	if got := n.Negotiate(dev); got != (Resolution{1280, 720}) {
		t.Fatalf("Negotiate = %v", got)
	}
	if dev.Reads() != 4 {
		t.Errorf("Reads = %d, want 3 warm-up + 1 confirm", dev.Reads())
	}
}

func TestNegotiate_ClosesEveryFrame(t *testing.T) {
	var frames []*MockFrame
	dev := NewMockDevice(Resolution{640, 480}, Resolution{1280, 720})
	dev.ReadFunc = func(int) (Frame, error) {
		f := &MockFrame{W: 640, H: 480}
		frames = append(frames, f)
		return f, nil
	}
	quietNegotiator().Negotiate(dev)
	for i, f := range frames {
		if !f.Closed() {
			t.Fatalf("frame %d was not closed", i)
		}
	}
}
