// Package contour counts parts by segmenting them from the tray with color
// and edge masks, without reference patterns.
package contour

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"partcount/pkg/colorutil"
	"partcount/pkg/log"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned for a frame with no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// Defaults.
const (
	DefaultMarkingMaxS = 70
	DefaultMarkingMaxV = 50
	DefaultBlurSize    = 15
	DefaultSobelSize   = 15
	DefaultThickness   = 4

	// AreaScale multiplies the caller's area threshold.
	AreaScale = 10
)

// Counter holds the segmentation parameters.
type Counter struct {
	// Pixels with saturation and value at or below these are ink markings.
	MarkingMaxS float64
	MarkingMaxV float64
	BlurSize    int
	SobelSize   int
	Color       color.RGBA
	Thickness   int
	Logger      logrus.FieldLogger
}

// Region is one counted part with its minimum-area bounding box.
type Region struct {
	Box    []image.Point
	Area   float64
	Center image.Point
	Angle  float64
}

// Result of Count. Annotated is a copy of the frame with the boxes drawn and
// is owned by the caller.
type Result struct {
	Annotated gocv.Mat
	Count     int
	Regions   []Region
}

// Close releases the annotated image.
func (r *Result) Close() error {
	return r.Annotated.Close()
}

// NewCounter returns a counter with default parameters.
func NewCounter() *Counter {
	return &Counter{
		MarkingMaxS: DefaultMarkingMaxS,
		MarkingMaxV: DefaultMarkingMaxV,
		BlurSize:    DefaultBlurSize,
		SobelSize:   DefaultSobelSize,
		Color:       colorutil.BoxGreen,
		Thickness:   DefaultThickness,
	}
}

// Count segments parts and counts the regions larger than
// areaThreshold*AreaScale. The mask is eroded by a (2*erodeRadius+1) square
// to split touching parts and dilated by (2*dilateRadius+1) to restore bulk.
func (c *Counter) Count(frame gocv.Mat, erodeRadius, dilateRadius int, areaThreshold float64) (*Result, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}
	if frame.Channels() != 3 {
		return nil, fmt.Errorf("frame has %d channels, want 3", frame.Channels())
	}
	if erodeRadius < 0 || dilateRadius < 0 || areaThreshold < 0 {
		return nil, fmt.Errorf("invalid parameters: erode=%d, dilate=%d, area=%.1f",
			erodeRadius, dilateRadius, areaThreshold)
	}
	if c.BlurSize%2 == 0 || c.SobelSize%2 == 0 {
		return nil, fmt.Errorf("blur size %d and sobel size %d must be odd", c.BlurSize, c.SobelSize)
	}
	logger := log.OrDiscard(c.Logger)

	parts, err := c.partMask(frame)
	if err != nil {
		return nil, err
	}
	defer parts.Close()

	separated := gocv.NewMat()
	defer separated.Close()
	morph(parts, &separated, 2*erodeRadius+1, gocv.Erode)
	morph(separated, &separated, 2*dilateRadius+1, gocv.Dilate)

	contours := gocv.FindContours(separated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	res := &Result{Annotated: frame.Clone()}
	minArea := areaThreshold * AreaScale
	for i := 0; i < contours.Size(); i++ {
		cnt := contours.At(i)
		area := gocv.ContourArea(cnt)
		if area <= minArea {
			continue
		}

		rect := gocv.MinAreaRect(cnt)
		box := gocv.NewPointsVectorFromPoints([][]image.Point{rect.Points})
		gocv.DrawContours(&res.Annotated, box, -1, c.Color, c.Thickness)
		box.Close()

		res.Regions = append(res.Regions, Region{
			Box:    rect.Points,
			Area:   area,
			Center: rect.Center,
			Angle:  rect.Angle,
		})
	}
	res.Count = len(res.Regions)

	logger.WithFields(logrus.Fields{
		"count":    res.Count,
		"contours": contours.Size(),
		"erode":    erodeRadius,
		"dilate":   dilateRadius,
		"area":     areaThreshold,
	}).Debug("contour count complete")

	return res, nil
}

// partMask ANDs the three exclusion masks: not marking, not background and
// not gap.
func (c *Counter) partMask(frame gocv.Mat) (gocv.Mat, error) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	notMarking := c.notMarking(hsv)
	defer notMarking.Close()

	notBackground, err := notBackground(hsv)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer notBackground.Close()

	notGap := c.notGap(frame)
	defer notGap.Close()

	combined := gocv.NewMat()
	gocv.BitwiseAnd(notMarking, notBackground, &combined)
	gocv.BitwiseAnd(combined, notGap, &combined)
	return combined, nil
}

// notMarking removes dark, low-saturation ink.
func (c *Counter) notMarking(hsv gocv.Mat) gocv.Mat {
	marking := gocv.NewMat()
	defer marking.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(0, 0, 0, 0),
		gocv.NewScalar(180, c.MarkingMaxS, c.MarkingMaxV, 0),
		&marking)

	out := gocv.NewMat()
	gocv.BitwiseNot(marking, &out)
	return out
}

// notBackground keeps the duller side of an Otsu split on saturation; the
// tray is the more saturated surface.
func notBackground(hsv gocv.Mat) (gocv.Mat, error) {
	channels := gocv.Split(hsv)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	if len(channels) != 3 {
		return gocv.Mat{}, fmt.Errorf("hsv split returned %d channels", len(channels))
	}

	out := gocv.NewMat()
	gocv.Threshold(channels[1], &out, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	return out, nil
}

// notGap excludes strong gradients, which include the gaps between touching
// parts.
func (c *Counter) notGap(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	smooth := gocv.NewMat()
	defer smooth.Close()
	gocv.GaussianBlur(gray, &smooth, image.Pt(c.BlurSize, c.BlurSize), 0, 0, gocv.BorderDefault)

	gx := c.scaledSobel(smooth, 1, 0)
	defer gx.Close()
	gy := c.scaledSobel(smooth, 0, 1)
	defer gy.Close()

	both := gocv.NewMat()
	defer both.Close()
	gocv.BitwiseOr(gx, gy, &both)

	out := gocv.NewMat()
	gocv.Threshold(both, &out, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	return out
}

// scaledSobel returns |d/dx| or |d/dy| as 8-bit, scaled so the largest
// positive response maps to 255.
func (c *Counter) scaledSobel(src gocv.Mat, dx, dy int) gocv.Mat {
	grad := gocv.NewMat()
	defer grad.Close()
	gocv.Sobel(src, &grad, gocv.MatTypeCV64F, dx, dy, c.SobelSize, 1, 0, gocv.BorderDefault)

	_, maxVal, _, _ := gocv.MinMaxLoc(grad)
	alpha := 1.0
	if maxVal > 0 {
		alpha = 255 / float64(maxVal)
	}

	out := gocv.NewMat()
	gocv.ConvertScaleAbs(grad, &out, alpha, 0)
	return out
}

func morph(src gocv.Mat, dst *gocv.Mat, size int, op func(gocv.Mat, *gocv.Mat, gocv.Mat)) {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size))
	defer kernel.Close()
	op(src, dst, kernel)
}
