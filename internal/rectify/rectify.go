// Package rectify maps the calibrated quadrilateral of a raw camera frame onto
// a fixed rectangular canvas.
package rectify

import (
	"fmt"

	"partcount/internal/calibration"
	"partcount/pkg/geometry"

	"gocv.io/x/gocv"
)

// Rectifier applies one calibration to frames of one size. It is safe for
// concurrent use; Close releases the native transform matrix.
type Rectifier struct {
	cal        calibration.Points
	frame      geometry.Size
	homography Homography
	transform  gocv.Mat
}

// New builds a rectifier for frames of frameW x frameH pixels. A calibration
// that fails validation or yields a singular mapping is an error.
func New(cal calibration.Points, frameW, frameH int) (*Rectifier, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if frameW <= 0 || frameH <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", frameW, frameH)
	}

	h, err := ComputeHomography(cal.Source, cal.Target())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calibration.ErrMalformed, err)
	}

	transform := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			transform.SetDoubleAt(r, c, h[r][c])
		}
	}

	return &Rectifier{
		cal:        cal,
		frame:      geometry.NewSize(frameW, frameH),
		homography: h,
		transform:  transform,
	}, nil
}

// Close releases native resources.
func (r *Rectifier) Close() error {
	return r.transform.Close()
}

// FrameSize is the raw frame size the rectifier was built for.
func (r *Rectifier) FrameSize() geometry.Size {
	return r.frame
}

// OutputSize is the size of every rectified frame.
func (r *Rectifier) OutputSize() geometry.Size {
	return r.cal.Destination
}

// Homography returns the source-to-destination mapping.
func (r *Rectifier) Homography() Homography {
	return r.homography
}

// Transform resamples frame into the destination canvas and returns a new
// Mat owned by the caller. frame must be FrameSize(); other sizes are a
// caller error and produce a mapping for the wrong geometry.
func (r *Rectifier) Transform(frame gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.WarpPerspective(frame, &dst, r.transform, r.cal.Destination.Point())
	return dst
}

// TransformChecked is Transform with the frame size verified first.
func (r *Rectifier) TransformChecked(frame gocv.Mat) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty frame")
	}
	if frame.Cols() != r.frame.Width || frame.Rows() != r.frame.Height {
		return gocv.Mat{}, fmt.Errorf("frame is %dx%d, rectifier expects %dx%d",
			frame.Cols(), frame.Rows(), r.frame.Width, r.frame.Height)
	}
	return r.Transform(frame), nil
}

// Apply maps a raw-frame point into destination coordinates.
func (r *Rectifier) Apply(p geometry.Point2D) geometry.Point2D {
	return r.homography.Apply(p)
}
