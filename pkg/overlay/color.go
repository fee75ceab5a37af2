package overlay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Color is a drawing color in blue, green, red channel order.
// It is the only color representation used past the HTTP boundary.
type Color struct {
	B, G, R uint8
}

// DefaultColor is green.
var DefaultColor = Color{B: 0, G: 255, R: 0}

// FromRGB builds a Color from red, green, blue components.
func FromRGB(r, g, b uint8) Color {
	return Color{B: b, G: g, R: r}
}

// ParseHex parses "#RRGGBB" or "RRGGBB".
func ParseHex(s string) (Color, error) {
	hx := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hx) != 6 {
		return Color{}, fmt.Errorf("color %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hx, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	return FromRGB(uint8(v>>16), uint8(v>>8), uint8(v)), nil
}

// Hex returns the color as "#RRGGBB" in upper case.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// BGR returns the channels as a [b, g, r] triple.
func (c Color) BGR() [3]uint8 {
	return [3]uint8{c.B, c.G, c.R}
}

// MarshalJSON encodes the color as [b, g, r].
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{int(c.B), int(c.G), int(c.R)})
}

// UnmarshalJSON decodes a [b, g, r] triple.
func (c *Color) UnmarshalJSON(data []byte) error {
	var v [3]int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("color: want [b,g,r]: %w", err)
	}
	for _, ch := range v {
		if ch < 0 || ch > 255 {
			return fmt.Errorf("color: channel %d out of range", ch)
		}
	}
	*c = Color{B: uint8(v[0]), G: uint8(v[1]), R: uint8(v[2])}
	return nil
}
