package match

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"partcount/internal/colorgate"
	"partcount/internal/pattern"
	"partcount/internal/synthetic"
)

func testGrid(gap int) synthetic.Grid {
	return synthetic.Grid{
		Width: 1000, Height: 700,
		Cols: 5, Rows: 4,
		Part:     image.Pt(120, 80),
		Gap:      gap,
		Textured: true,
	}
}

func setFor(t *testing.T, base gocv.Mat) *pattern.Set {
	t.Helper()
	set, err := pattern.NewSet("test", pattern.Rotations(base))
	require.NoError(t, err)
	t.Cleanup(func() { set.Close() })
	return set
}

func baseSet(t *testing.T) *pattern.Set {
	t.Helper()
	base := testGrid(40).Pattern(0)
	defer base.Close()
	return setFor(t, base)
}

func TestCountsEveryPartOnce(t *testing.T) {
	for _, gap := range []int{40, 8} {
		g := testGrid(gap)
		frame := g.Draw()
		defer frame.Close()

		res, err := NewMatcher().MatchAndCount(context.Background(), frame, baseSet(t))
		require.NoError(t, err)
		defer res.Close()

		assert.Equal(t, g.Count(), res.Count, "gap %d", gap)
		assert.Equal(t, 0, res.PatternIndex)
		assert.Equal(t, ConfidenceOK, res.Confidence)
		assert.GreaterOrEqual(t, res.Candidates, g.Count())
		assert.Len(t, res.Regions, res.Count)
		assert.Equal(t, res.ROI.Dx(), res.Annotated.Cols())
		assert.Equal(t, res.ROI.Dy(), res.Annotated.Rows())

		for _, b := range g.Bounds() {
			assert.True(t, b.In(res.ROI), "part %v outside roi %v", b, res.ROI)
		}
	}
}

func TestRegionsSitOnParts(t *testing.T) {
	g := testGrid(40)
	frame := g.Draw()
	defer frame.Close()

	res, err := NewMatcher().MatchAndCount(context.Background(), frame, baseSet(t))
	require.NoError(t, err)
	defer res.Close()

	for _, r := range res.Regions {
		center := r.Bounds.Min.Add(r.Bounds.Size().Div(2))
		found := false
		for _, b := range g.Bounds() {
			if center.In(b) {
				found = true
				break
			}
		}
		assert.True(t, found, "region %v is not on a part", r.Bounds)
	}
}

func TestPortraitPartsPickRotatedPattern(t *testing.T) {
	g := testGrid(40)
	g.Portrait = true
	frame := g.Draw()
	defer frame.Close()

	res, err := NewMatcher().MatchAndCount(context.Background(), frame, baseSet(t))
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, 1, res.PatternIndex)
	assert.Greater(t, res.HitCounts[1], res.HitCounts[0])
	assert.Equal(t, g.Count(), res.Count)
}

func TestCountIsScaleInvariant(t *testing.T) {
	g := testGrid(40)
	frame := g.Draw()
	defer frame.Close()
	base := g.Pattern(0)
	defer base.Close()

	tests := []struct {
		k      float64
		interp gocv.InterpolationFlags
	}{
		{0.5, gocv.InterpolationArea},
		{2, gocv.InterpolationNearestNeighbor},
	}
	for _, tt := range tests {
		scaledFrame := gocv.NewMat()
		gocv.Resize(frame, &scaledFrame, image.Pt(0, 0), tt.k, tt.k, tt.interp)
		scaledBase := gocv.NewMat()
		gocv.Resize(base, &scaledBase, image.Pt(0, 0), tt.k, tt.k, tt.interp)

		res, err := NewMatcher().MatchAndCount(context.Background(), scaledFrame, setFor(t, scaledBase))
		require.NoError(t, err)
		assert.Equal(t, g.Count(), res.Count, "scale %v", tt.k)

		res.Close()
		scaledFrame.Close()
		scaledBase.Close()
	}
}

func TestNoHitsIsLowConfidence(t *testing.T) {
	noise := gocv.NewMatWithSize(500, 700, gocv.MatTypeCV8UC3)
	defer noise.Close()
	gocv.RandU(&noise, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(255, 255, 255, 0))

	res, err := NewMatcher().MatchAndCount(context.Background(), noise, baseSet(t))
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, ConfidenceLow, res.Confidence)
	assert.Equal(t, "low", res.Confidence.String())
	assert.Zero(t, res.Count)
	assert.Equal(t, [pattern.Count]int{}, res.HitCounts)
	assert.Equal(t, image.Rect(0, 0, 700, 500), res.ROI)
}

type fixedGate struct {
	accept bool
	ranged bool
}

func (g *fixedGate) SetRange(gocv.Mat) error { g.ranged = true; return nil }
func (g *fixedGate) InRange(gocv.Mat) bool   { return g.accept }

func TestColorGate(t *testing.T) {
	g := testGrid(40)
	frame := g.Draw()
	defer frame.Close()

	reject := &fixedGate{}
	m := NewMatcher()
	m.Gate = reject
	res, err := m.MatchAndCount(context.Background(), frame, baseSet(t))
	require.NoError(t, err)
	defer res.Close()
	assert.True(t, reject.ranged)
	assert.Zero(t, res.Count)
	assert.Equal(t, ConfidenceOK, res.Confidence)

	m.Gate = colorgate.NewHLSRange(colorgate.DefaultHWidth, colorgate.DefaultLWidth, colorgate.DefaultSWidth)
	res2, err := m.MatchAndCount(context.Background(), frame, baseSet(t))
	require.NoError(t, err)
	defer res2.Close()
	assert.Equal(t, g.Count(), res2.Count)
}

func TestMatchAndCountRejectsBadInput(t *testing.T) {
	_, err := NewMatcher().MatchAndCount(context.Background(), gocv.NewMat(), baseSet(t))
	assert.ErrorIs(t, err, ErrEmptyFrame)

	gray := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8U)
	defer gray.Close()
	_, err = NewMatcher().MatchAndCount(context.Background(), gray, baseSet(t))
	assert.Error(t, err)
}

func TestMatchAndCountHonorsContext(t *testing.T) {
	g := testGrid(40)
	frame := g.Draw()
	defer frame.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMatcher().MatchAndCount(ctx, frame, baseSet(t))
	assert.ErrorIs(t, err, context.Canceled)
}
