// Package lines finds straight line segments in binary edge maps, relaxing
// the detector parameters until something is found.
package lines

import (
	"context"
	"fmt"
	"math"

	"partcount/pkg/log"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Default relaxation parameters.
const (
	DefaultMaxGap        = 30
	DefaultThresholdStep = 50
	DefaultMinLengthStep = 50
)

// DefaultTheta is the angular resolution of the Hough accumulator (0.25 deg).
const DefaultTheta = math.Pi / 720

// houghFunc runs one probabilistic Hough pass.
type houghFunc func(edges gocv.Mat, minLength, threshold int, theta float64, maxGap int) []Segment

// Detector runs the probabilistic Hough transform with adaptive relaxation.
type Detector struct {
	MaxGap        int
	ThresholdStep int
	MinLengthStep int
	Theta         float64
	Logger        logrus.FieldLogger

	hough houghFunc
}

// Result is the outcome of one Detect call. When Found is false, MinLength
// and Threshold hold the terminal (exhausted) parameter values.
type Result struct {
	Lines      []Segment
	MinLength  int
	Threshold  int
	Found      bool
	Iterations int
}

// NewDetector returns a detector with the default parameters.
func NewDetector() *Detector {
	return &Detector{
		MaxGap:        DefaultMaxGap,
		ThresholdStep: DefaultThresholdStep,
		MinLengthStep: DefaultMinLengthStep,
		Theta:         DefaultTheta,
	}
}

// MaxIterations returns the worst-case number of Hough passes for the given
// starting parameters.
func (d *Detector) MaxIterations(minLength, threshold int) int {
	if minLength <= 0 || threshold <= 0 || d.MinLengthStep <= 0 || d.ThresholdStep <= 0 {
		return 0
	}
	return ceilDiv(minLength, d.MinLengthStep) * ceilDiv(threshold, d.ThresholdStep)
}

// Detect searches edges for line segments. The threshold is lowered step by
// step while positive; when it is exhausted min_length is lowered by one step
// and the threshold sweep restarts from its initial value. The search stops
// at the first pass that yields any segment or once min_length is exhausted.
// Not finding a line is not an error.
func (d *Detector) Detect(ctx context.Context, edges gocv.Mat, minLength, threshold int) (Result, error) {
	if d.ThresholdStep <= 0 || d.MinLengthStep <= 0 {
		return Result{}, fmt.Errorf("invalid relaxation steps: threshold=%d, min_length=%d",
			d.ThresholdStep, d.MinLengthStep)
	}
	logger := log.OrDiscard(d.Logger)

	hough := d.hough
	if hough == nil {
		hough = houghP
	}
	theta := d.Theta
	if theta <= 0 {
		theta = DefaultTheta
	}

	res := Result{MinLength: minLength, Threshold: threshold}
	for res.MinLength > 0 {
		res.Threshold = threshold
		for res.Threshold > 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Iterations++

			segs := hough(edges, res.MinLength, res.Threshold, theta, d.MaxGap)
			if len(segs) > 0 {
				res.Lines = segs
				res.Found = true
				logger.WithFields(logrus.Fields{
					"min_length": res.MinLength,
					"threshold":  res.Threshold,
					"lines":      len(segs),
					"iterations": res.Iterations,
				}).Debug("lines detected")
				return res, nil
			}
			res.Threshold -= d.ThresholdStep
		}
		res.MinLength -= d.MinLengthStep
	}

	logger.WithField("iterations", res.Iterations).Debug("no lines detected")
	return res, nil
}

func houghP(edges gocv.Mat, minLength, threshold int, theta float64, maxGap int) []Segment {
	lines := gocv.NewMat()
	defer lines.Close()

	gocv.HoughLinesPWithParams(edges, &lines, 1, float32(theta), threshold, float32(minLength), float32(maxGap))

	segs := make([]Segment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		segs = append(segs, Segment{X1: int(v[0]), Y1: int(v[1]), X2: int(v[2]), Y2: int(v[3])})
	}
	return segs
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
