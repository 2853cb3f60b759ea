package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"partcount/pkg/log"

	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyFrame is returned for a frame with no pixels.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrPanic marks a fault recovered from inside an image operation.
	ErrPanic = errors.New("image operation panicked")
)

// Stage names a pipeline step in errors and logs.
type Stage string

const (
	StageValidate Stage = "validate"
	StageRectify  Stage = "rectify"
	StageEdges    Stage = "edges"
	StageDetect   Stage = "detect"
	StageEstimate Stage = "estimate"
	StageRotate   Stage = "rotate"
	StageSettings Stage = "settings"
	StagePatterns Stage = "patterns"
	StageMatch    Stage = "match"
	StageContour  Stage = "contour"
)

// Error is a failure of one pipeline call. It is safe to keep using the
// pipeline after an Error.
type Error struct {
	TraceID string
	Stage   Stage
	Image   string
	Err     error
}

func (e *Error) Error() string {
	if e.Image != "" {
		return fmt.Sprintf("%s %s: %v (trace %s)", e.Stage, e.Image, e.Err, e.TraceID)
	}
	return fmt.Sprintf("%s: %v (trace %s)", e.Stage, e.Err, e.TraceID)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type imageKey struct{}

// WithImage tags ctx with the identity of the input image (usually its path)
// so that faults can be traced back to it.
func WithImage(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, imageKey{}, name)
}

// ImageFrom returns the image identity stored by WithImage.
func ImageFrom(ctx context.Context) string {
	name, _ := ctx.Value(imageKey{}).(string)
	return name
}

// call tracks the step a pipeline call is in so a failure can be
// attributed to it.
type call struct {
	stage Stage
}

func (c *call) enter(stage Stage) {
	c.stage = stage
}

// guard runs fn, converting a panic into an error, and turns any failure
// into a logged *Error carrying a trace id. fields are the call parameters.
func guard(ctx context.Context, logger logrus.FieldLogger, fields log.Fields, fn func(c *call) error) (err error) {
	c := &call{stage: StageValidate}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			fields["stack"] = string(debug.Stack())
		}
		if err == nil {
			return
		}

		image := ImageFrom(ctx)
		fields["stage"] = string(c.stage)
		fields["image"] = image
		fields["error"] = err.Error()
		traceID := log.ErrorWithTraceID(logger, fields, "pipeline call failed")
		err = &Error{TraceID: traceID, Stage: c.stage, Image: image, Err: err}
	}()
	return fn(c)
}
