// Package colorgate accepts or rejects matched regions by their average
// HLS color relative to a reference patch.
package colorgate

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// Gate is a color predicate bound to a reference image.
type Gate interface {
	SetRange(reference gocv.Mat) error
	InRange(patch gocv.Mat) bool
}

// Default band widths.
const (
	DefaultHWidth = 30
	DefaultLWidth = 30
	DefaultSWidth = 30
)

// HLS is an average color in OpenCV's 8-bit HLS space (H in 0..180).
type HLS struct {
	H, L, S int
}

// band is an inclusive integer range.
type band struct {
	lo, hi int
}

func (b band) contains(v int) bool {
	return v >= b.lo && v <= b.hi
}

// HLSRange accepts patches whose average HLS lies within a band around the
// reference average. Hue is circular: HWidth is the full width of the hue
// band, and a band crossing 0 or 180 is also checked shifted by a full turn.
// Lightness and saturation accept reference ± LWidth / SWidth.
//
// An HLSRange is not safe for concurrent SetRange and InRange calls.
type HLSRange struct {
	HWidth int
	LWidth int
	SWidth int

	hue     [2]band
	light   band
	sat     band
	hasBand bool
}

// NewHLSRange returns a gate with the given band widths.
func NewHLSRange(hWidth, lWidth, sWidth int) *HLSRange {
	return &HLSRange{HWidth: hWidth, LWidth: lWidth, SWidth: sWidth}
}

// Average returns the truncated mean HLS of a BGR patch.
func Average(patch gocv.Mat) (HLS, error) {
	if patch.Empty() {
		return HLS{}, fmt.Errorf("empty patch")
	}
	if patch.Channels() != 3 {
		return HLS{}, fmt.Errorf("patch has %d channels, want 3", patch.Channels())
	}

	hls := gocv.NewMat()
	defer hls.Close()
	gocv.CvtColor(patch, &hls, gocv.ColorBGRToHLS)

	m := hls.Mean()
	return HLS{H: int(m.Val1), L: int(m.Val2), S: int(m.Val3)}, nil
}

// SetRange computes the acceptable band from the reference patch.
func (r *HLSRange) SetRange(reference gocv.Mat) error {
	avg, err := Average(reference)
	if err != nil {
		return fmt.Errorf("set color range: %w", err)
	}
	r.SetAverage(avg)
	return nil
}

// SetAverage sets the band around a known reference color.
func (r *HLSRange) SetAverage(ref HLS) {
	half := float64(r.HWidth) / 2
	lo := int(math.Round(float64(ref.H) - half))
	hi := int(math.Round(float64(ref.H) + half))

	shift := 0
	switch {
	case lo < 0:
		shift = 180
	case hi > 180:
		shift = -180
	}

	r.hue = [2]band{{lo, hi}, {lo + shift, hi + shift}}
	r.light = band{ref.L - r.LWidth, ref.L + r.LWidth}
	r.sat = band{ref.S - r.SWidth, ref.S + r.SWidth}
	r.hasBand = true
}

// Contains reports whether c lies in the band. Without a band everything
// is accepted.
func (r *HLSRange) Contains(c HLS) bool {
	if !r.hasBand {
		return true
	}
	inHue := r.hue[0].contains(c.H) || r.hue[1].contains(c.H)
	return inHue && r.light.contains(c.L) && r.sat.contains(c.S)
}

// InRange reports whether the average color of patch lies in the band.
// Patches that cannot be measured are rejected.
func (r *HLSRange) InRange(patch gocv.Mat) bool {
	avg, err := Average(patch)
	if err != nil {
		return false
	}
	return r.Contains(avg)
}
