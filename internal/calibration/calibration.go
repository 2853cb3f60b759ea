// Package calibration holds the 4-point perspective calibration of the camera rig.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"os"

	jsoniter "github.com/json-iterator/go"

	"partcount/pkg/geometry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed is returned for calibration data the rectifier cannot use.
var ErrMalformed = errors.New("malformed calibration")

// Default destination canvas for rectified frames.
const (
	DefaultWidth  = 4000
	DefaultHeight = 3000

	// MinSourceArea is the smallest source quadrilateral, in square pixels,
	// that still gives a well-conditioned homography.
	MinSourceArea = 100
)

// Points is the perspective calibration: four source corners in the raw frame
// (top-left, top-right, bottom-right, bottom-left) and the canvas they are
// mapped onto. Margin insets the target rectangle inside the canvas.
type Points struct {
	Source      [4]geometry.Point2D `json:"source"`
	Destination geometry.Size       `json:"destination"`
	Margin      geometry.Point2D    `json:"margin,omitempty"`
}

// Identity returns a calibration whose source quadrilateral equals its target
// rectangle, so rectification leaves a w x h frame unchanged.
func Identity(w, h int) Points {
	return Points{
		Source: [4]geometry.Point2D{
			{X: 0, Y: 0},
			{X: float64(w), Y: 0},
			{X: float64(w), Y: float64(h)},
			{X: 0, Y: float64(h)},
		},
		Destination: geometry.NewSize(w, h),
	}
}

// Target returns the destination rectangle corners in the same order as Source.
func (p Points) Target() [4]geometry.Point2D {
	w := float64(p.Destination.Width)
	h := float64(p.Destination.Height)
	mx, my := p.Margin.X, p.Margin.Y
	return [4]geometry.Point2D{
		{X: mx, Y: my},
		{X: w - mx, Y: my},
		{X: w - mx, Y: h - my},
		{X: mx, Y: h - my},
	}
}

// Validate checks that the calibration describes a usable mapping.
func (p Points) Validate() error {
	if p.Destination.Width <= 0 || p.Destination.Height <= 0 {
		return fmt.Errorf("%w: destination %dx%d", ErrMalformed, p.Destination.Width, p.Destination.Height)
	}
	if p.Margin.X < 0 || p.Margin.Y < 0 ||
		2*p.Margin.X >= float64(p.Destination.Width) || 2*p.Margin.Y >= float64(p.Destination.Height) {
		return fmt.Errorf("%w: margin %.1fx%.1f does not fit destination", ErrMalformed, p.Margin.X, p.Margin.Y)
	}
	for i, pt := range p.Source {
		if !pt.IsFinite() {
			return fmt.Errorf("%w: source point %d is not finite", ErrMalformed, i)
		}
	}
	if !geometry.IsConvex(p.Source[:]) {
		return fmt.Errorf("%w: source quadrilateral is degenerate or self-intersecting", ErrMalformed)
	}
	if area := math.Abs(geometry.PolygonArea(p.Source[:])); area < MinSourceArea {
		return fmt.Errorf("%w: source quadrilateral covers %.2f px, need at least %.0f", ErrMalformed, area, float64(MinSourceArea))
	}
	return nil
}

// Load reads and validates a calibration file.
func Load(path string) (Points, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Points{}, fmt.Errorf("read calibration: %w", err)
	}

	var raw struct {
		Source      []geometry.Point2D `json:"source"`
		Destination *geometry.Size     `json:"destination"`
		Margin      geometry.Point2D   `json:"margin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Points{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw.Source) != 4 {
		return Points{}, fmt.Errorf("%w: need exactly 4 source points, got %d", ErrMalformed, len(raw.Source))
	}

	p := Points{Margin: raw.Margin}
	copy(p.Source[:], raw.Source)
	if raw.Destination != nil {
		p.Destination = *raw.Destination
	} else {
		p.Destination = geometry.NewSize(DefaultWidth, DefaultHeight)
	}

	if err := p.Validate(); err != nil {
		return Points{}, err
	}
	return p, nil
}

// Save writes the calibration as indented JSON.
func (p Points) Save(path string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
