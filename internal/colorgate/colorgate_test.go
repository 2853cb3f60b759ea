package colorgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func solid(b, g, r float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), 8, 8, gocv.MatTypeCV8UC3)
}

func TestHueBandWrapsAroundZero(t *testing.T) {
	r := NewHLSRange(40, 40, 40)
	r.SetAverage(HLS{H: 10, L: 80, S: 153})

	assert.True(t, r.Contains(HLS{H: 175, L: 80, S: 153}), "wrapped hue")
	assert.True(t, r.Contains(HLS{H: 29, L: 80, S: 153}))
	assert.False(t, r.Contains(HLS{H: 31, L: 80, S: 153}))
	assert.False(t, r.Contains(HLS{H: 150, L: 80, S: 153}))
}

func TestHueBandWrapsAround180(t *testing.T) {
	r := NewHLSRange(40, 40, 40)
	r.SetAverage(HLS{H: 170, L: 80, S: 153})

	assert.True(t, r.Contains(HLS{H: 5, L: 80, S: 153}))
	assert.False(t, r.Contains(HLS{H: 20, L: 80, S: 153}))
}

func TestLightnessAndSaturationBands(t *testing.T) {
	r := NewHLSRange(30, 30, 30)
	r.SetAverage(HLS{H: 90, L: 127, S: 126})

	assert.True(t, r.Contains(HLS{H: 90, L: 157, S: 96}))
	assert.False(t, r.Contains(HLS{H: 90, L: 158, S: 126}))
	assert.False(t, r.Contains(HLS{H: 90, L: 127, S: 95}))
}

func TestNoBandAcceptsEverything(t *testing.T) {
	r := NewHLSRange(DefaultHWidth, DefaultLWidth, DefaultSWidth)
	assert.True(t, r.Contains(HLS{H: 1, L: 2, S: 3}))
}

func TestInRangeOnPatches(t *testing.T) {
	ref := solid(32, 64, 128) // H 10, L 80, S 153
	defer ref.Close()
	same := solid(30, 66, 125)
	defer same.Close()
	other := solid(150, 100, 50)
	defer other.Close()

	var g Gate = NewHLSRange(40, 40, 40)
	require.NoError(t, g.SetRange(ref))
	assert.True(t, g.InRange(same))
	assert.False(t, g.InRange(other))
	assert.False(t, g.InRange(gocv.NewMat()))
}

func TestAverageRejectsGray(t *testing.T) {
	gray := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8U)
	defer gray.Close()
	_, err := Average(gray)
	assert.Error(t, err)
}
