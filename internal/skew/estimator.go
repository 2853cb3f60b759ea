// Package skew estimates the in-plane rotation of the part array from
// detected line segments and levels frames accordingly.
package skew

import (
	"context"
	"errors"
	"fmt"
	"math"

	"partcount/internal/lines"
	"partcount/pkg/log"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrNoLines is returned when Estimate is called without any segment.
var ErrNoLines = errors.New("no lines to estimate skew from")

// Defaults for candidate verification.
const (
	DefaultMaxCandidates = 10
	DefaultTolerance     = 0.5
	DefaultMaxSpread     = 30
)

// LineDetector re-detects lines on a rotated edge map.
type LineDetector interface {
	Detect(ctx context.Context, edges gocv.Mat, minLength, threshold int) (lines.Result, error)
}

// Estimator picks the rotation that levels the part array.
type Estimator struct {
	Detector      LineDetector
	MaxCandidates int
	Tolerance     float64
	MaxSpread     float64
	Logger        logrus.FieldLogger
}

// Estimate is the chosen rotation. Confirmed is false when no candidate
// passed verification and Angle is the trimmed median.
type Estimate struct {
	Angle      float64
	Confirmed  bool
	Candidates []float64
	Tried      int
}

// NewEstimator returns an estimator with default settings.
func NewEstimator(d LineDetector) *Estimator {
	return &Estimator{
		Detector:      d,
		MaxCandidates: DefaultMaxCandidates,
		Tolerance:     DefaultTolerance,
		MaxSpread:     DefaultMaxSpread,
	}
}

// Estimate verifies up to MaxCandidates distinct angles, in detection order,
// by rotating the edge map and re-detecting lines with the same parameters.
// The first candidate whose re-detected lines all round into
// [-Tolerance, Tolerance] wins. Otherwise the median fallback is used.
func (e *Estimator) Estimate(ctx context.Context, segs []lines.Segment, edges gocv.Mat, minLength, threshold int) (Estimate, error) {
	cands := Candidates(segs)
	if len(cands) == 0 {
		return Estimate{}, ErrNoLines
	}
	if e.Detector == nil {
		return Estimate{}, fmt.Errorf("skew estimator has no line detector")
	}
	logger := log.OrDiscard(e.Logger)

	limit := e.MaxCandidates
	if limit <= 0 || limit > len(cands) {
		limit = len(cands)
	}

	est := Estimate{Candidates: cands}
	for _, deg := range cands[:limit] {
		est.Tried++

		rotated := Rotate(edges, deg)
		res, err := e.Detector.Detect(ctx, rotated, minLength, threshold)
		rotated.Close()
		if err != nil {
			return est, fmt.Errorf("verify candidate %.2f: %w", deg, err)
		}

		if e.levels(res.Lines) {
			est.Angle = deg
			est.Confirmed = true
			logger.WithFields(logrus.Fields{
				"angle": deg,
				"tried": est.Tried,
			}).Debug("skew candidate confirmed")
			return est, nil
		}
	}

	est.Angle = MedianFallback(cands, e.MaxSpread)
	logger.WithFields(logrus.Fields{
		"angle":      est.Angle,
		"candidates": len(cands),
	}).Debug("no skew candidate confirmed, using median")
	return est, nil
}

// levels reports whether every re-detected line is horizontal after rounding.
func (e *Estimator) levels(segs []lines.Segment) bool {
	if len(segs) == 0 {
		return false
	}
	for _, s := range segs {
		if math.Abs(RoundAngle(s.Angle())) > e.Tolerance {
			return false
		}
	}
	return true
}
