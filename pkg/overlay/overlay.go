// Package overlay holds rotated bounding-box overlays and the
// concurrency-safe set the capture loop draws from.
package overlay

import (
	"math"
)

// Overlay is a rotated rectangle drawn on every captured frame.
// Angle is in degrees using the OpenCV RotatedRect convention.
type Overlay struct {
	ID    int64   `json:"id"`
	CX    float64 `json:"cx"`
	CY    float64 `json:"cy"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Angle float64 `json:"angle_deg_cv"`
	Color Color   `json:"color_bgr"`
}

// Point is a sub-pixel image coordinate.
type Point struct {
	X, Y float64
}

// Validate reports whether o can be drawn.
func (o Overlay) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"cx", o.CX}, {"cy", o.CY}, {"w", o.W}, {"h", o.H}, {"angle", o.Angle},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ValidationError{ID: o.ID, Field: f.name, Reason: "must be finite"}
		}
	}
	if o.W <= 0 {
		return &ValidationError{ID: o.ID, Field: "w", Reason: "must be > 0"}
	}
	if o.H <= 0 {
		return &ValidationError{ID: o.ID, Field: "h", Reason: "must be > 0"}
	}
	return nil
}

// Corners returns the four vertices of the rotated rectangle in the same
// order as cv::RotatedRect::points: bottom-left, top-left, top-right,
// bottom-right of the unrotated box.
func (o Overlay) Corners() [4]Point {
	rad := o.Angle * math.Pi / 180
	a := math.Sin(rad) * 0.5
	b := math.Cos(rad) * 0.5

	var pts [4]Point
	pts[0] = Point{X: o.CX - a*o.H - b*o.W, Y: o.CY + b*o.H - a*o.W}
	pts[1] = Point{X: o.CX + a*o.H - b*o.W, Y: o.CY - b*o.H - a*o.W}
	pts[2] = Point{X: 2*o.CX - pts[0].X, Y: 2*o.CY - pts[0].Y}
	pts[3] = Point{X: 2*o.CX - pts[1].X, Y: 2*o.CY - pts[1].Y}
	return pts
}

// LabelOrigin is where the id label is drawn relative to the center.
func (o Overlay) LabelOrigin() (int, int) {
	return int(o.CX) + 6, int(o.CY) - 6
}
