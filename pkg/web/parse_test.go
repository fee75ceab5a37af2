package web

import (
	"math"
	"strings"
	"testing"

	"github.com/teslashibe/go-obbcam/pkg/overlay"
)

func mustFields(t *testing.T, body string) fields {
	t.Helper()
	f, err := decodeFields([]byte(body))
	if err != nil {
		t.Fatalf("decodeFields(%s): %v", body, err)
	}
	return f
}

func TestDecodeFieldsRejectsNonObjects(t *testing.T) {
	for _, body := range []string{"", "null", "[1,2]", "3", "{"} {
		if _, err := decodeFields([]byte(body)); err == nil {
			t.Errorf("decodeFields(%q) should fail", body)
		}
	}
}

func TestParseOverlay(t *testing.T) {
	f := mustFields(t, `{"id": "7", "cx": 100, "cy": "50.5", "w": 40, "h": 20, "angle_deg": 30}`)
	o, err := parseOverlay(f)
	if err != nil {
		t.Fatalf("parseOverlay failed: %v", err)
	}
	want := overlay.Overlay{ID: 7, CX: 100, CY: 50.5, W: 40, H: 20, Angle: 30, Color: overlay.DefaultColor}
	if o != want {
		t.Errorf("got %+v, want %+v", o, want)
	}
}

func TestParseOverlayMissingFields(t *testing.T) {
	_, err := parseOverlay(mustFields(t, `{"id": 1, "cx": 1, "w": 2}`))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"cy", "h", "angle_deg|angle_rad|angle"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestParseOverlayRejectsBadValues(t *testing.T) {
	bodies := []string{
		`{"id": 1.5, "cx": 1, "cy": 1, "w": 2, "h": 2, "angle": 0}`,
		`{"id": 1, "cx": "left", "cy": 1, "w": 2, "h": 2, "angle": 0}`,
		`{"id": 1, "cx": 1, "cy": 1, "w": 2, "h": 2, "angle": null}`,
		`{"id": 1, "cx": 1, "cy": 1, "w": 2, "h": 2, "angle": 0, "color_hex": "#12"}`,
		`{"id": 1, "cx": 1, "cy": 1, "w": 2, "h": 2, "angle": 0, "color_rgb": [1, 2]}`,
		`{"id": 1, "cx": 1, "cy": 1, "w": 2, "h": 2, "angle": 0, "color_bgr": [0, 256, 0]}`,
	}
	for _, body := range bodies {
		if _, err := parseOverlay(mustFields(t, body)); err == nil {
			t.Errorf("parseOverlay(%s) should fail", body)
		}
	}
}

func TestAnglePriority(t *testing.T) {
	tests := []struct {
		body string
		want float64
	}{
		{`{"angle_deg": 10, "angle_rad": 1, "angle": 99}`, 10},
		{`{"angle_rad": 3.141592653589793, "angle": 99}`, 180},
		{`{"angle": 45}`, 45},
	}
	for _, tt := range tests {
		got, ok, err := mustFields(t, tt.body).angle()
		if err != nil || !ok {
			t.Fatalf("angle(%s): ok=%v err=%v", tt.body, ok, err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("angle(%s) = %v, want %v", tt.body, got, tt.want)
		}
	}
	if _, ok, _ := mustFields(t, `{}`).angle(); ok {
		t.Error("angle should be absent")
	}
}

func TestColorPriority(t *testing.T) {
	tests := []struct {
		body string
		want overlay.Color
	}{
		{`{"color_hex": "ff0000", "color_rgb": [0, 0, 255], "color_bgr": [0, 255, 0]}`, overlay.FromRGB(255, 0, 0)},
		{`{"color_rgb": [0, 0, 255], "color_bgr": [0, 255, 0]}`, overlay.FromRGB(0, 0, 255)},
		{`{"color_bgr": [1, 2, 3]}`, overlay.Color{B: 1, G: 2, R: 3}},
		{`{}`, overlay.DefaultColor},
	}
	for _, tt := range tests {
		got, _, err := mustFields(t, tt.body).color()
		if err != nil {
			t.Fatalf("color(%s): %v", tt.body, err)
		}
		if got != tt.want {
			t.Errorf("color(%s) = %+v, want %+v", tt.body, got, tt.want)
		}
	}
}
