package skew

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/anthonynsimon/bild/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"partcount/internal/imageio"
	"partcount/internal/lines"
	"partcount/internal/synthetic"
)

// scriptedDetector returns canned results in call order.
type scriptedDetector struct {
	results []lines.Result
	err     error
	calls   int
	sizes   []image.Point
}

func (d *scriptedDetector) Detect(_ context.Context, edges gocv.Mat, _, _ int) (lines.Result, error) {
	d.sizes = append(d.sizes, image.Pt(edges.Cols(), edges.Rows()))
	if d.err != nil {
		return lines.Result{}, d.err
	}
	r := d.results[d.calls]
	d.calls++
	return r, nil
}

func found(segs ...lines.Segment) lines.Result {
	return lines.Result{Lines: segs, Found: len(segs) > 0}
}

func smallEdges(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 60, 80, gocv.MatTypeCV8U)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestEstimateConfirmsFirstLevelCandidate(t *testing.T) {
	segs := []lines.Segment{
		{0, 0, 100, 20}, // ~11.3
		{0, 0, 100, 5},  // ~2.86
	}
	tilted := found(lines.Segment{0, 0, 100, 10})
	level := found(lines.Segment{0, 0, 100, 0}, lines.Segment{0, 50, 200, 51})
	det := &scriptedDetector{results: []lines.Result{tilted, level}}

	est, err := NewEstimator(det).Estimate(context.Background(), segs, smallEdges(t), 200, 100)
	require.NoError(t, err)
	assert.True(t, est.Confirmed)
	assert.Equal(t, 2, est.Tried)
	assert.InDelta(t, segs[1].Angle(), est.Angle, 1e-12)
	assert.Len(t, est.Candidates, 2)

	// the edge map was rotated with canvas expansion before re-detection
	assert.Equal(t, RotatedSize(80, 60, segs[0].Angle()).Point(), det.sizes[0])
}

func TestEstimateRejectsEmptyRedetection(t *testing.T) {
	segs := []lines.Segment{{0, 0, 100, 5}}
	det := &scriptedDetector{results: []lines.Result{{}}}

	est, err := NewEstimator(det).Estimate(context.Background(), segs, smallEdges(t), 200, 100)
	require.NoError(t, err)
	assert.False(t, est.Confirmed)
	assert.InDelta(t, segs[0].Angle(), est.Angle, 1e-12)
}

func TestEstimateFallsBackToMedian(t *testing.T) {
	var segs []lines.Segment
	var results []lines.Result
	for i := 0; i < 12; i++ {
		segs = append(segs, lines.Segment{X1: 0, Y1: 0, X2: 100, Y2: 2 + i})
		results = append(results, found(lines.Segment{0, 0, 100, 3}))
	}
	segs = append(segs, lines.Segment{0, 0, 100, 99}) // near-diagonal outlier
	det := &scriptedDetector{results: results}

	est, err := NewEstimator(det).Estimate(context.Background(), segs, smallEdges(t), 200, 100)
	require.NoError(t, err)
	assert.False(t, est.Confirmed)
	assert.Equal(t, DefaultMaxCandidates, est.Tried)
	assert.Equal(t, DefaultMaxCandidates, det.calls)
	assert.InDelta(t, MedianFallback(Candidates(segs), DefaultMaxSpread), est.Angle, 1e-12)
	assert.Less(t, est.Angle, 10.0)
}

func TestEstimateErrors(t *testing.T) {
	_, err := NewEstimator(&scriptedDetector{}).Estimate(context.Background(), nil, smallEdges(t), 200, 100)
	assert.ErrorIs(t, err, ErrNoLines)

	boom := errors.New("boom")
	_, err = NewEstimator(&scriptedDetector{err: boom}).Estimate(context.Background(),
		[]lines.Segment{{0, 0, 100, 5}}, smallEdges(t), 200, 100)
	assert.ErrorIs(t, err, boom)
}

// estimateFrame runs edge map, detection and estimation on a rectified frame.
func estimateFrame(t *testing.T, frame gocv.Mat) (Estimate, gocv.Mat, lines.Result) {
	t.Helper()
	edges, err := lines.EdgeMap(frame, nil)
	require.NoError(t, err)
	t.Cleanup(func() { edges.Close() })

	det := lines.NewDetector()
	res, err := det.Detect(context.Background(), edges, 500, 500)
	require.NoError(t, err)
	require.True(t, res.Found)

	est, err := NewEstimator(det).Estimate(context.Background(), res.Lines, edges, res.MinLength, res.Threshold)
	require.NoError(t, err)
	return est, edges, res
}

func TestSkewRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the full line detection")
	}
	for _, theta := range []float64{3, -7, 12} {
		g := synthetic.Grid{
			Width: 1600, Height: 1200,
			Cols: 5, Rows: 4,
			Part:  image.Pt(200, 150),
			Gap:   50,
			Angle: theta,
		}
		frame := g.Draw()

		est, edges, res := estimateFrame(t, frame)
		frame.Close()
		assert.InDelta(t, theta, est.Angle, 1, "theta %v", theta)
		assert.True(t, est.Confirmed, "theta %v", theta)

		leveled := Rotate(edges, est.Angle)
		again, err := lines.NewDetector().Detect(context.Background(), leveled, res.MinLength, res.Threshold)
		leveled.Close()
		require.NoError(t, err)
		require.True(t, again.Found)
		for _, s := range again.Lines {
			assert.LessOrEqual(t, math.Abs(RoundAngle(s.Angle())), DefaultTolerance, "theta %v segment %+v", theta, s)
		}
	}
}

func TestSkewMagnitudeOfExternallyRotatedImage(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the full line detection")
	}
	img := image.NewRGBA(image.Rect(0, 0, 1400, 1000))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{R: 40, G: 100, B: 170, A: 255}}, image.Point{}, draw.Src)
	part := &image.Uniform{color.RGBA{R: 215, G: 215, B: 215, A: 255}}
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			x0, y0 := 200+c*260, 250+r*200
			draw.Draw(img, image.Rect(x0, y0, x0+210, y0+150), part, image.Point{}, draw.Src)
		}
	}

	rotated := transform.Rotate(img, 4, &transform.RotationOptions{ResizeBounds: true})
	frame, err := imageio.ImageToMat(rotated)
	require.NoError(t, err)
	defer frame.Close()

	est, _, _ := estimateFrame(t, frame)
	assert.InDelta(t, 4, math.Abs(est.Angle), 1)
}
