// Package cv implements capture devices and rendering on OpenCV through gocv.
package cv

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-obbcam/pkg/capture"
	"github.com/teslashibe/go-obbcam/pkg/overlay"
)

// Drawing parameters for overlays.
const (
	outlineThickness = 2
	centerRadius     = 3
	labelScale       = 0.5
	labelThickness   = 2
)

var (
	errReadFailed = errors.New("cv: read returned no frame")
	errNotMat     = errors.New("cv: frame is not an OpenCV frame")
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// Frame wraps a gocv.Mat.
type Frame struct {
	Mat gocv.Mat
}

// Width implements capture.Frame.
func (f *Frame) Width() int { return f.Mat.Cols() }

// Height implements capture.Frame.
func (f *Frame) Height() int { return f.Mat.Rows() }

// Close implements capture.Frame.
func (f *Frame) Close() error { return f.Mat.Close() }

// Renderer draws overlays with OpenCV primitives and encodes JPEG.
type Renderer struct{}

// NewRenderer returns an OpenCV renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Draw paints each overlay: the rotated outline, a white center dot and the
// id label just above and to the right of the center.
func (r *Renderer) Draw(f capture.Frame, overlays []overlay.Overlay) error {
	fr, ok := f.(*Frame)
	if !ok {
		return errNotMat
	}
	for _, o := range overlays {
		drawOverlay(&fr.Mat, o)
	}
	return nil
}

func drawOverlay(img *gocv.Mat, o overlay.Overlay) {
	c := toRGBA(o.Color)

	corners := o.Corners()
	pts := make([]image.Point, len(corners))
	for i, p := range corners {
		// Truncate like numpy astype(int32)
		pts[i] = image.Pt(int(p.X), int(p.Y))
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.Polylines(img, pv, true, c, outlineThickness)

	center := image.Pt(int(o.CX), int(o.CY))
	gocv.Circle(img, center, centerRadius, white, -1)

	lx, ly := o.LabelOrigin()
	gocv.PutTextWithParams(img, fmt.Sprint(o.ID), image.Pt(lx, ly),
		gocv.FontHersheySimplex, labelScale, c, labelThickness, gocv.LineAA, false)
}

// toRGBA maps a BGR overlay color to the color.RGBA gocv converts back to a
// BGR scalar.
func toRGBA(c overlay.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0}
}

// Encode returns the frame as JPEG at quality.
func (r *Renderer) Encode(f capture.Frame, quality int) ([]byte, error) {
	fr, ok := f.(*Frame)
	if !ok {
		return nil, errNotMat
	}
	if fr.Mat.Empty() {
		return nil, errReadFailed
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, fr.Mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("cv: encode jpeg: %w", err)
	}
	defer buf.Close()
	// GetBytes aliases C memory freed by Close
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
