// Package match counts parts by normalized cross-correlation against a
// product's pattern set.
package match

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"partcount/internal/colorgate"
	"partcount/internal/pattern"
	"partcount/pkg/colorutil"
	"partcount/pkg/log"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned for a frame with no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// Defaults.
const (
	DefaultThreshold    = 0.85
	DefaultBorderWidth  = 3
	DefaultMargin       = 200
	DefaultCloseKernel  = 15
	DefaultAreaDivisor  = 5
	DefaultCoverGray    = 100
	DefaultOutlineWidth = 2
)

// Confidence qualifies a count.
type Confidence int

const (
	// ConfidenceOK means at least one orientation produced correlation hits.
	ConfidenceOK Confidence = iota
	// ConfidenceLow means no orientation produced a single hit; the count
	// (usually zero) should not be trusted.
	ConfidenceLow
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceOK:
		return "ok"
	case ConfidenceLow:
		return "low"
	default:
		return "unknown"
	}
}

// Region is one counted part.
type Region struct {
	Outline []image.Point // in aligned-frame coordinates
	Area    float64
	Bounds  image.Rectangle
}

// Result of MatchAndCount. Annotated covers ROI of the input frame and is
// owned by the caller.
type Result struct {
	Annotated     gocv.Mat
	Count         int
	PatternIndex  int
	HitCounts     [pattern.Count]int
	Candidates    int
	Confidence    Confidence
	ROI           image.Rectangle
	AreaThreshold float64
	Regions       []Region
}

// Close releases the annotated image.
func (r *Result) Close() error {
	return r.Annotated.Close()
}

// Matcher holds the template matching parameters. Gate, when set, rejects
// candidate rectangles whose color does not match the chosen pattern; a
// Matcher with a Gate must not be shared between concurrent calls.
type Matcher struct {
	Threshold   float32
	BorderWidth int
	Margin      int
	CloseKernel int
	AreaDivisor float64
	CoverGray   uint8
	Highlight   color.RGBA
	// OutlineWidth borders each highlighted part; zero draws the fill only.
	OutlineWidth int
	Gate         colorgate.Gate
	Logger       logrus.FieldLogger
}

// NewMatcher returns a matcher with default parameters.
func NewMatcher() *Matcher {
	return &Matcher{
		Threshold:    DefaultThreshold,
		BorderWidth:  DefaultBorderWidth,
		Margin:       DefaultMargin,
		CloseKernel:  DefaultCloseKernel,
		AreaDivisor:  DefaultAreaDivisor,
		CoverGray:    DefaultCoverGray,
		Highlight:    colorutil.Highlight,
		OutlineWidth: DefaultOutlineWidth,
	}
}

// MatchAndCount picks the best-fitting orientation of set, turns its
// correlation hits into separated blobs, and counts the blobs that are at
// least 1/AreaDivisor of the largest one.
func (m *Matcher) MatchAndCount(ctx context.Context, frame gocv.Mat, set *pattern.Set) (*Result, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}
	if frame.Channels() != 3 {
		return nil, fmt.Errorf("frame has %d channels, want 3", frame.Channels())
	}
	if set == nil {
		return nil, fmt.Errorf("no pattern set")
	}
	logger := log.OrDiscard(m.Logger)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	// Step 1 and 2: score all orientations, keep the winner's field.
	scores := m.scoreAll(gray, set)
	best := pickBest(scores)
	for i := range scores {
		if i != best {
			scores[i].close()
		}
	}
	if scores[best].err != nil {
		return nil, fmt.Errorf("score patterns: %w", scores[best].err)
	}
	field := scores[best].field
	defer field.Close()

	res := &Result{PatternIndex: best, Confidence: ConfidenceLow}
	for i, s := range scores {
		if s.err != nil {
			logger.WithError(s.err).WithField("pattern", i).Warn("pattern scoring failed")
		}
		res.HitCounts[i] = s.hits
		if s.hits > 0 {
			res.Confidence = ConfidenceOK
		}
	}

	logger.WithFields(logrus.Fields{
		"hits":    res.HitCounts,
		"pattern": best,
	}).Debug("pattern selected")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chosen := set.Patterns[best]
	if m.Gate != nil {
		if err := m.Gate.SetRange(chosen); err != nil {
			return nil, fmt.Errorf("color gate: %w", err)
		}
	}

	// Step 3: binary match mask.
	mask, candidates, err := m.buildMask(frame, field, set.Size(best))
	if err != nil {
		return nil, err
	}
	defer mask.Close()
	res.Candidates = candidates

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 4: region of interest.
	res.ROI = m.regionOfInterest(mask)

	// Step 5: count.
	maskROI := mask.Region(res.ROI)
	defer maskROI.Close()
	res.Regions, res.AreaThreshold = m.countRegions(maskROI, res.ROI.Min)
	res.Count = len(res.Regions)

	// Step 6: render.
	frameROI := frame.Region(res.ROI)
	defer frameROI.Close()
	res.Annotated = m.render(frameROI, res.Regions, res.ROI.Min)

	logger.WithFields(logrus.Fields{
		"count":      res.Count,
		"candidates": candidates,
		"confidence": res.Confidence.String(),
	}).Debug("template count complete")

	return res, nil
}
