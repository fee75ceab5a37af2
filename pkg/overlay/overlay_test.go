package overlay

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		o     Overlay
		field string
	}{
		{"valid", Overlay{ID: 1, CX: 10, CY: 10, W: 5, H: 5}, ""},
		{"zero width", Overlay{ID: 1, W: 0, H: 5}, "w"},
		{"negative height", Overlay{ID: 1, W: 5, H: -1}, "h"},
		{"nan center", Overlay{ID: 1, CX: math.NaN(), W: 5, H: 5}, "cx"},
		{"inf angle", Overlay{ID: 1, W: 5, H: 5, Angle: math.Inf(1)}, "angle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.o.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidOverlay) {
				t.Fatalf("error %v should wrap ErrInvalidOverlay", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v should be a *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCorners_Unrotated(t *testing.T) {
	o := Overlay{CX: 100, CY: 100, W: 40, H: 20}
	want := [4]Point{{80, 110}, {80, 90}, {120, 90}, {120, 110}}
	got := o.Corners()
	for i := range want {
		if !near(got[i].X, want[i].X) || !near(got[i].Y, want[i].Y) {
			t.Errorf("corner %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCorners_QuarterTurn(t *testing.T) {
	// At 90 degrees a 40x20 box occupies a 20x40 footprint.
	o := Overlay{CX: 50, CY: 50, W: 40, H: 20, Angle: 90}
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range o.Corners() {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	if !near(maxX-minX, 20) || !near(maxY-minY, 40) {
		t.Errorf("footprint = %vx%v, want 20x40", maxX-minX, maxY-minY)
	}
}

func TestCorners_CenteredOnCenter(t *testing.T) {
	o := Overlay{CX: 320, CY: 240, W: 33, H: 17, Angle: 37.5}
	var sx, sy float64
	for _, p := range o.Corners() {
		sx += p.X
		sy += p.Y
	}
	if !near(sx/4, o.CX) || !near(sy/4, o.CY) {
		t.Errorf("centroid = (%v, %v), want (%v, %v)", sx/4, sy/4, o.CX, o.CY)
	}
}

func TestLabelOrigin(t *testing.T) {
	x, y := Overlay{CX: 100.7, CY: 50.2}.LabelOrigin()
	if x != 106 || y != 44 {
		t.Errorf("LabelOrigin = (%d, %d), want (106, 44)", x, y)
	}
}

func TestColor(t *testing.T) {
	c, err := ParseHex("#FF8000")
	if err != nil {
		t.Fatalf("ParseHex failed: %v", err)
	}
	if c != (Color{B: 0x00, G: 0x80, R: 0xFF}) {
		t.Errorf("ParseHex = %+v", c)
	}
	if c.Hex() != "#FF8000" {
		t.Errorf("Hex = %q", c.Hex())
	}
	if _, err := ParseHex("12345"); err == nil {
		t.Error("short hex should fail")
	}
	if _, err := ParseHex("zzzzzz"); err == nil {
		t.Error("non-hex should fail")
	}
	if DefaultColor.Hex() != "#00FF00" {
		t.Errorf("default color = %s, want green", DefaultColor.Hex())
	}
}

func TestColorJSON(t *testing.T) {
	data, err := json.Marshal(Overlay{ID: 3, W: 1, H: 1, Color: FromRGB(255, 0, 0)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	bgr, ok := raw["color_bgr"].([]any)
	if !ok || len(bgr) != 3 || bgr[0] != float64(0) || bgr[2] != float64(255) {
		t.Errorf("color_bgr = %v, want [0 0 255]", raw["color_bgr"])
	}

	var c Color
	if err := json.Unmarshal([]byte(`[1,2,300]`), &c); err == nil {
		t.Error("out of range channel should fail")
	}
}
