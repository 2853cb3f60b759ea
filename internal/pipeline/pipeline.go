// Package pipeline wires rectification, skew correction and the two counting
// strategies into the entry points used by the operator front end.
package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"partcount/internal/calibration"
	"partcount/internal/contour"
	"partcount/internal/lines"
	"partcount/internal/pattern"
	"partcount/internal/rectify"
	"partcount/internal/skew"
	"partcount/pkg/geometry"
	"partcount/pkg/log"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Defaults for the line search and the per-call time bound.
const (
	DefaultMinLength = 500
	DefaultThreshold = 500
	DefaultTimeout   = 30 * time.Second
)

// Options configures New. Either Rectifier or Calibration together with
// FrameSize must be given.
type Options struct {
	Rectifier   *rectify.Rectifier
	Calibration calibration.Points
	FrameSize   geometry.Size

	// Initial line search parameters for the counting entry points.
	MinLength int
	Threshold int
	// Timeout bounds each call; zero disables it.
	Timeout time.Duration

	// SettingsDir holds the per-product settings files.
	SettingsDir string
	// Patterns resolves product names to pattern sets.
	Patterns *pattern.Cache

	Logger logrus.FieldLogger
}

// Pipeline is safe for concurrent use; every call works on its own frames.
type Pipeline struct {
	rectifier     *rectify.Rectifier
	ownsRectifier bool
	detector      *lines.Detector
	estimator     *skew.Estimator
	counter       *contour.Counter
	patterns      *pattern.Cache
	settingsDir   string
	minLength     int
	threshold     int
	timeout       time.Duration
	logger        logrus.FieldLogger
}

// New builds a pipeline. A calibration that cannot be used is reported here,
// before any frame is processed.
func New(opts Options) (*Pipeline, error) {
	logger := log.OrDiscard(opts.Logger)

	p := &Pipeline{
		rectifier:   opts.Rectifier,
		patterns:    opts.Patterns,
		settingsDir: opts.SettingsDir,
		minLength:   opts.MinLength,
		threshold:   opts.Threshold,
		timeout:     opts.Timeout,
		logger:      logger,
	}
	if p.rectifier == nil {
		r, err := rectify.New(opts.Calibration, opts.FrameSize.Width, opts.FrameSize.Height)
		if err != nil {
			return nil, fmt.Errorf("build rectifier: %w", err)
		}
		p.rectifier = r
		p.ownsRectifier = true
	}
	if p.minLength <= 0 {
		p.minLength = DefaultMinLength
	}
	if p.threshold <= 0 {
		p.threshold = DefaultThreshold
	}
	if p.patterns == nil {
		p.patterns = pattern.NewCache("patterns")
	}

	p.detector = lines.NewDetector()
	p.detector.Logger = logger
	p.estimator = skew.NewEstimator(p.detector)
	p.estimator.Logger = logger
	p.counter = contour.NewCounter()
	p.counter.Logger = logger

	logger.WithFields(logrus.Fields{
		"frame":      p.rectifier.FrameSize(),
		"output":     p.rectifier.OutputSize(),
		"min_length": p.minLength,
		"threshold":  p.threshold,
		"timeout":    p.timeout,
	}).Debug("pipeline ready")
	return p, nil
}

// Close releases the rectifier when New built it.
func (p *Pipeline) Close() error {
	if p.ownsRectifier {
		return p.rectifier.Close()
	}
	return nil
}

// Rectifier returns the rectifier frames are mapped with.
func (p *Pipeline) Rectifier() *rectify.Rectifier {
	return p.rectifier
}

// Patterns returns the pattern cache.
func (p *Pipeline) Patterns() *pattern.Cache {
	return p.patterns
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// newRunID returns a lexically sortable id for one inspection.
func newRunID(t time.Time) string {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ms, entropy)
	if err != nil {
		return fmt.Sprintf("run-%d", t.UnixNano())
	}
	return id.String()
}
