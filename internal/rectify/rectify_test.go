package rectify

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"partcount/internal/calibration"
	"partcount/pkg/colorutil"
	"partcount/pkg/geometry"
)

func skewedCalibration() calibration.Points {
	return calibration.Points{
		Source: [4]geometry.Point2D{
			{X: 100, Y: 80},
			{X: 700, Y: 60},
			{X: 740, Y: 560},
			{X: 60, Y: 540},
		},
		Destination: geometry.NewSize(400, 300),
	}
}

func TestHomographyMapsCornersExactly(t *testing.T) {
	cal := skewedCalibration()
	h, err := ComputeHomography(cal.Source, cal.Target())
	require.NoError(t, err)

	for i, src := range cal.Source {
		got := h.Apply(src)
		want := cal.Target()[i]
		assert.InDelta(t, want.X, got.X, 1e-6, "corner %d x", i)
		assert.InDelta(t, want.Y, got.Y, 1e-6, "corner %d y", i)
	}
}

func TestHomographyInverse(t *testing.T) {
	cal := skewedCalibration()
	h, err := ComputeHomography(cal.Source, cal.Target())
	require.NoError(t, err)
	inv, err := h.Inverse()
	require.NoError(t, err)

	p := geometry.NewPoint2D(321.5, 234.25)
	back := inv.Apply(h.Apply(p))
	assert.InDelta(t, p.X, back.X, 1e-6)
	assert.InDelta(t, p.Y, back.Y, 1e-6)
}

func TestIdentityCalibrationWithMargin(t *testing.T) {
	cal := calibration.Points{
		Source: [4]geometry.Point2D{
			{X: 400, Y: 300}, {X: 3600, Y: 300}, {X: 3600, Y: 2700}, {X: 400, Y: 2700},
		},
		Destination: geometry.NewSize(4000, 3000),
		Margin:      geometry.NewPoint2D(400, 300),
	}
	h, err := ComputeHomography(cal.Source, cal.Target())
	require.NoError(t, err)

	for _, p := range []geometry.Point2D{{X: 0, Y: 0}, {X: 1234, Y: 987}, {X: 3999, Y: 2999}} {
		got := h.Apply(p)
		assert.InDelta(t, p.X, got.X, 1e-6)
		assert.InDelta(t, p.Y, got.Y, 1e-6)
	}
}

func TestNewRejectsMalformedCalibration(t *testing.T) {
	cal := skewedCalibration()
	cal.Source[2] = cal.Source[1]
	_, err := New(cal, 800, 600)
	assert.ErrorIs(t, err, calibration.ErrMalformed)

	_, err = New(skewedCalibration(), 0, 600)
	assert.Error(t, err)
}

func TestTransformPlacesMarkersAtTargets(t *testing.T) {
	cal := skewedCalibration()
	r, err := New(cal, 800, 600)
	require.NoError(t, err)
	defer r.Close()

	inv, err := r.Homography().Inverse()
	require.NoError(t, err)

	targets := []geometry.Point2D{{X: 100, Y: 75}, {X: 300, Y: 75}, {X: 300, Y: 225}, {X: 100, Y: 225}}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 600, 800, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for _, target := range targets {
		src := inv.Apply(target)
		c := image.Pt(int(src.X+0.5), int(src.Y+0.5))
		gocv.Rectangle(&frame, image.Rect(c.X-3, c.Y-3, c.X+4, c.Y+4), colorutil.White, -1)
	}

	out, err := r.TransformChecked(frame)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 400, out.Cols())
	assert.Equal(t, 300, out.Rows())
	for _, target := range targets {
		v := out.GetVecbAt(int(target.Y), int(target.X))
		assert.Greater(t, int(v[0]), 128, "marker at %v", target)
	}
	// input untouched
	assert.Equal(t, 800, frame.Cols())
}

func TestTransformCheckedRejectsSizeMismatch(t *testing.T) {
	r, err := New(skewedCalibration(), 800, 600)
	require.NoError(t, err)
	defer r.Close()

	frame := gocv.NewMatWithSize(300, 400, gocv.MatTypeCV8UC3)
	defer frame.Close()
	_, err = r.TransformChecked(frame)
	assert.Error(t, err)
}
