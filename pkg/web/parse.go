package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/teslashibe/go-obbcam/pkg/overlay"
)

var angleKeys = []string{"angle_deg", "angle_rad", "angle"}

var errNotObject = errors.New("body must be a JSON object")

// fields is a decoded JSON object. Numbers may arrive as JSON numbers or
// numeric strings.
type fields map[string]json.RawMessage

func decodeFields(body []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(body, &f); err != nil || f == nil {
		return nil, errNotObject
	}
	return f, nil
}

func (f fields) has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := f[k]; ok {
			return true
		}
	}
	return false
}

func (f fields) float(key string) (float64, error) {
	raw := bytes.TrimSpace(f[key])
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%s: not a number", key)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%s: not a number", key)
}

func (f fields) integer(key string) (int64, error) {
	raw := bytes.TrimSpace(f[key])
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%s: not an integer", key)
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%s: not an integer", key)
}

// angle returns the angle in degrees. angle_deg wins over angle_rad, which
// wins over angle (taken as degrees).
func (f fields) angle() (float64, bool, error) {
	switch {
	case f.has("angle_deg"):
		v, err := f.float("angle_deg")
		return v, true, err
	case f.has("angle_rad"):
		v, err := f.float("angle_rad")
		return v * 180 / math.Pi, true, err
	case f.has("angle"):
		v, err := f.float("angle")
		return v, true, err
	}
	return 0, false, nil
}

// color returns the color. color_hex wins over color_rgb, which wins over
// color_bgr.
func (f fields) color() (overlay.Color, bool, error) {
	switch {
	case f.has("color_hex"):
		var s string
		if err := json.Unmarshal(f["color_hex"], &s); err != nil {
			return overlay.Color{}, true, errors.New("color_hex: want a \"#RRGGBB\" string")
		}
		c, err := overlay.ParseHex(s)
		return c, true, err
	case f.has("color_rgb"):
		v, err := f.triple("color_rgb")
		return overlay.FromRGB(v[0], v[1], v[2]), true, err
	case f.has("color_bgr"):
		v, err := f.triple("color_bgr")
		return overlay.Color{B: v[0], G: v[1], R: v[2]}, true, err
	}
	return overlay.DefaultColor, false, nil
}

func (f fields) triple(key string) ([3]uint8, error) {
	var v []int
	if err := json.Unmarshal(f[key], &v); err != nil || len(v) != 3 {
		return [3]uint8{}, fmt.Errorf("%s: want three integers", key)
	}
	var out [3]uint8
	for i, ch := range v {
		if ch < 0 || ch > 255 {
			return [3]uint8{}, fmt.Errorf("%s: channel %d out of range 0-255", key, ch)
		}
		out[i] = uint8(ch)
	}
	return out, nil
}

// parseOverlay builds a complete overlay. id, cx, cy, w, h and one angle
// field are required; color defaults to green.
func parseOverlay(f fields) (overlay.Overlay, error) {
	var missing []string
	for _, k := range []string{"id", "cx", "cy", "w", "h"} {
		if !f.has(k) {
			missing = append(missing, k)
		}
	}
	if !f.has(angleKeys...) {
		missing = append(missing, strings.Join(angleKeys, "|"))
	}
	if len(missing) > 0 {
		return overlay.Overlay{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	var (
		o   overlay.Overlay
		err error
	)
	if o.ID, err = f.integer("id"); err != nil {
		return o, err
	}
	for _, p := range []struct {
		key string
		dst *float64
	}{
		{"cx", &o.CX}, {"cy", &o.CY}, {"w", &o.W}, {"h", &o.H},
	} {
		if *p.dst, err = f.float(p.key); err != nil {
			return o, err
		}
	}
	if o.Angle, _, err = f.angle(); err != nil {
		return o, err
	}
	if o.Color, _, err = f.color(); err != nil {
		return o, err
	}
	return o, nil
}
