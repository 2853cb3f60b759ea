package pipeline

import (
	"context"
	"fmt"

	"partcount/internal/lines"
	"partcount/internal/skew"
	"partcount/pkg/log"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// AlignStatus tells whether skew correction was applied.
type AlignStatus int

const (
	// StatusAligned means the frame was rotated by the estimated angle.
	StatusAligned AlignStatus = iota
	// StatusNoSkew means no line was found and the frame is only rectified.
	StatusNoSkew
)

func (s AlignStatus) String() string {
	switch s {
	case StatusAligned:
		return "aligned"
	case StatusNoSkew:
		return "no_skew"
	default:
		return "unknown"
	}
}

// AlignResult is a rectified and leveled frame owned by the caller.
type AlignResult struct {
	Frame     gocv.Mat
	Angle     float64
	Status    AlignStatus
	Detection lines.Result
	Estimate  skew.Estimate
}

// Close releases the frame.
func (r *AlignResult) Close() error {
	return r.Frame.Close()
}

// RectifyAndAlign maps frame onto the calibrated canvas and rotates it so the
// part rows are horizontal. When no line can be found at all the rectified
// frame is returned unrotated with StatusNoSkew.
func (p *Pipeline) RectifyAndAlign(ctx context.Context, frame gocv.Mat, minLength, threshold int) (*AlignResult, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	fields := log.Fields{"min_length": minLength, "threshold": threshold}
	var res *AlignResult
	err := guard(ctx, p.logger, fields, func(c *call) error {
		var err error
		res, err = p.align(ctx, c, frame, minLength, threshold)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) align(ctx context.Context, c *call, frame gocv.Mat, minLength, threshold int) (*AlignResult, error) {
	c.enter(StageValidate)
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}
	if minLength <= 0 || threshold <= 0 {
		return nil, fmt.Errorf("line search needs positive parameters: min_length=%d, threshold=%d", minLength, threshold)
	}

	c.enter(StageRectify)
	rectified, err := p.rectifier.TransformChecked(frame)
	if err != nil {
		return nil, err
	}
	// released on every path except the no-skew return, including panics
	keep := false
	defer func() {
		if !keep {
			rectified.Close()
		}
	}()

	c.enter(StageEdges)
	edges, err := lines.EdgeMap(frame, p.rectifier)
	if err != nil {
		return nil, err
	}
	defer edges.Close()

	c.enter(StageDetect)
	det, err := p.detector.Detect(ctx, edges, minLength, threshold)
	if err != nil {
		return nil, err
	}
	if !det.Found {
		p.logger.WithFields(logrus.Fields{
			"image":      ImageFrom(ctx),
			"iterations": det.Iterations,
		}).Info("no line found, skipping skew correction")
		keep = true
		return &AlignResult{Frame: rectified, Status: StatusNoSkew, Detection: det}, nil
	}

	c.enter(StageEstimate)
	est, err := p.estimator.Estimate(ctx, det.Lines, edges, det.MinLength, det.Threshold)
	if err != nil {
		return nil, err
	}

	c.enter(StageRotate)
	aligned := skew.Rotate(rectified, est.Angle)

	p.logger.WithFields(logrus.Fields{
		"image":      ImageFrom(ctx),
		"angle":      est.Angle,
		"confirmed":  est.Confirmed,
		"tried":      est.Tried,
		"lines":      len(det.Lines),
		"min_length": det.MinLength,
		"threshold":  det.Threshold,
	}).Debug("frame aligned")

	return &AlignResult{
		Frame:     aligned,
		Angle:     est.Angle,
		Status:    StatusAligned,
		Detection: det,
		Estimate:  est,
	}, nil
}
