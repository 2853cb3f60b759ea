package lines

import (
	"image"
	"math"
)

// Segment is a detected line segment in image coordinates (y down).
type Segment struct {
	X1, Y1, X2, Y2 int
}

// Points returns the segment endpoints.
func (s Segment) Points() (image.Point, image.Point) {
	return image.Pt(s.X1, s.Y1), image.Pt(s.X2, s.Y2)
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return math.Hypot(float64(s.X2-s.X1), float64(s.Y2-s.Y1))
}

// Angle returns the segment's skew angle in degrees, normalized into
// (-45, 45]. Positive means the segment's right end sits lower on screen.
// Endpoint order does not matter.
func (s Segment) Angle() float64 {
	deg := math.Atan2(float64(s.Y1-s.Y2), float64(s.X1-s.X2)) * 180 / math.Pi
	return NormalizeAngle(deg)
}

// NormalizeAngle folds a direction in degrees into (-45, 45]. Directions
// are first reduced to (-90, 90] (a line has no orientation) and then
// shifted by a quarter turn so the long axis of a rectangular part maps
// onto the horizontal.
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 180)
	if deg > 90 {
		deg -= 180
	}
	if deg <= -90 {
		deg += 180
	}

	if deg <= -45 {
		deg += 90
	}
	if deg > 45 {
		deg -= 90
	}
	return deg
}
