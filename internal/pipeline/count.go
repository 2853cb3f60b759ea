package pipeline

import (
	"context"
	"fmt"
	"time"

	"partcount/internal/colorgate"
	"partcount/internal/match"
	"partcount/internal/pattern"
	"partcount/internal/settings"
	"partcount/pkg/colorutil"
	"partcount/pkg/log"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Method names a counting strategy.
type Method string

const (
	MethodTemplate Method = "template"
	MethodContour  Method = "contour"
)

// CountResult is the outcome of one inspection. Annotated is owned by the
// caller.
type CountResult struct {
	RunID        string
	Annotated    gocv.Mat
	Count        int
	Method       Method
	Confidence   match.Confidence
	PatternIndex int
	Angle        float64
	AlignStatus  AlignStatus
	Duration     time.Duration
}

// Close releases the annotated image.
func (r *CountResult) Close() error {
	return r.Annotated.Close()
}

// CountByTemplate aligns frame and counts the parts of product by matching
// them against its registered pattern set, using the product's settings.
func (p *Pipeline) CountByTemplate(ctx context.Context, frame gocv.Mat, product string) (*CountResult, error) {
	return p.countByTemplate(ctx, frame, product, func() (*pattern.Set, func(), error) {
		set, err := p.patterns.Get(product)
		return set, func() {}, err
	})
}

// CountByTemplateDir is CountByTemplate with the pattern set read from dir on
// every call and default settings.
func (p *Pipeline) CountByTemplateDir(ctx context.Context, frame gocv.Mat, dir string) (*CountResult, error) {
	return p.countByTemplate(ctx, frame, "", func() (*pattern.Set, func(), error) {
		set, err := pattern.LoadSet(dir)
		if err != nil {
			return nil, nil, err
		}
		return set, func() { set.Close() }, nil
	})
}

func (p *Pipeline) countByTemplate(ctx context.Context, frame gocv.Mat, product string,
	load func() (*pattern.Set, func(), error)) (*CountResult, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	runID := newRunID(start)
	fields := log.Fields{
		"run_id":     runID,
		"method":     MethodTemplate,
		"product":    product,
		"min_length": p.minLength,
		"threshold":  p.threshold,
	}

	var res *CountResult
	err := guard(ctx, p.logger, fields, func(c *call) error {
		c.enter(StageSettings)
		s := settings.Defaults()
		if product != "" {
			var err error
			if s, err = settings.Load(p.settingsDir, product); err != nil {
				return err
			}
		}
		fields["matching_threshold"] = s.MatchingThreshold
		fields["use_color_gate"] = s.UseColorGate

		c.enter(StagePatterns)
		set, release, err := load()
		if err != nil {
			return fmt.Errorf("pattern set for %q: %w", product, err)
		}
		defer release()

		aligned, err := p.align(ctx, c, frame, p.minLength, p.threshold)
		if err != nil {
			return err
		}
		defer aligned.Close()

		c.enter(StageMatch)
		m := newMatcher(s, p.logger)
		mr, err := m.MatchAndCount(ctx, aligned.Frame, set)
		if err != nil {
			return err
		}

		res = &CountResult{
			RunID:        runID,
			Annotated:    mr.Annotated,
			Count:        mr.Count,
			Method:       MethodTemplate,
			Confidence:   mr.Confidence,
			PatternIndex: mr.PatternIndex,
			Angle:        aligned.Angle,
			AlignStatus:  aligned.Status,
			Duration:     time.Since(start),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := p.logger.WithFields(logrus.Fields{
		"run_id":     res.RunID,
		"image":      ImageFrom(ctx),
		"product":    product,
		"count":      res.Count,
		"pattern":    res.PatternIndex,
		"angle":      res.Angle,
		"align":      res.AlignStatus.String(),
		"confidence": res.Confidence.String(),
		"duration":   res.Duration,
	})
	if res.Confidence == match.ConfidenceLow {
		entry.Warn("no correlation hits, count is not reliable")
	} else {
		entry.Info("template count done")
	}
	return res, nil
}

// newMatcher builds a matcher for one call; a color gate holds per-call state.
func newMatcher(s settings.Settings, logger logrus.FieldLogger) *match.Matcher {
	m := match.NewMatcher()
	m.Threshold = float32(s.MatchingThreshold)
	m.Highlight = colorutil.HexOrDefault(s.HighlightColor, colorutil.Highlight)
	m.Logger = logger
	if s.UseColorGate {
		m.Gate = colorgate.NewHLSRange(s.HRange, s.LRange, s.SRange)
	}
	return m
}

// CountByContour aligns frame and counts parts by segmentation. Regions must
// be larger than area*contour.AreaScale pixels.
func (p *Pipeline) CountByContour(ctx context.Context, frame gocv.Mat, erode, dilate int, area float64) (*CountResult, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	runID := newRunID(start)
	fields := log.Fields{
		"run_id":     runID,
		"method":     MethodContour,
		"erode":      erode,
		"dilate":     dilate,
		"area":       area,
		"min_length": p.minLength,
		"threshold":  p.threshold,
	}

	var res *CountResult
	err := guard(ctx, p.logger, fields, func(c *call) error {
		aligned, err := p.align(ctx, c, frame, p.minLength, p.threshold)
		if err != nil {
			return err
		}
		defer aligned.Close()

		c.enter(StageContour)
		cr, err := p.counter.Count(aligned.Frame, erode, dilate, area)
		if err != nil {
			return err
		}

		res = &CountResult{
			RunID:        runID,
			Annotated:    cr.Annotated,
			Count:        cr.Count,
			Method:       MethodContour,
			Confidence:   match.ConfidenceOK,
			PatternIndex: -1,
			Angle:        aligned.Angle,
			AlignStatus:  aligned.Status,
			Duration:     time.Since(start),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"run_id":   res.RunID,
		"image":    ImageFrom(ctx),
		"count":    res.Count,
		"angle":    res.Angle,
		"align":    res.AlignStatus.String(),
		"duration": res.Duration,
	}).Info("contour count done")
	return res, nil
}

// CountByProductContour runs CountByContour with the erode, dilate and area
// values saved for product.
func (p *Pipeline) CountByProductContour(ctx context.Context, frame gocv.Mat, product string) (*CountResult, error) {
	s, err := settings.Load(p.settingsDir, product)
	if err != nil {
		traceID := log.ErrorWithTraceID(p.logger, log.Fields{
			"product": product,
			"image":   ImageFrom(ctx),
			"error":   err.Error(),
		}, "pipeline call failed")
		return nil, &Error{TraceID: traceID, Stage: StageSettings, Image: ImageFrom(ctx), Err: err}
	}
	return p.CountByContour(ctx, frame, s.ErodeSize, s.DilateSize, s.ThreshArea)
}
