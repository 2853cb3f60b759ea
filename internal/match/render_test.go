package match

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func TestRenderFillsAndOutlinesRegions(t *testing.T) {
	crop := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 200, 200, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer crop.Close()

	offset := image.Pt(300, 400)
	square := []image.Point{{20, 20}, {80, 20}, {80, 80}, {20, 80}}
	outline := make([]image.Point, len(square))
	for i, p := range square {
		outline[i] = p.Add(offset)
	}

	m := NewMatcher()
	m.Highlight = color.RGBA{R: 255, A: 255}
	out := m.render(crop, []Region{{Outline: outline}}, offset)
	defer out.Close()

	// inside: half frame, half red (BGR order)
	assert.Equal(t, []uint8{100, 100, 228}, vec(out, 50, 50))
	// on the outline: half frame, half black
	assert.Equal(t, []uint8{100, 100, 100}, vec(out, 50, 20))
	// outside: half frame, half cover gray
	assert.Equal(t, []uint8{150, 150, 150}, vec(out, 5, 5))

	m.OutlineWidth = 0
	plain := m.render(crop, []Region{{Outline: outline}}, offset)
	defer plain.Close()
	assert.Equal(t, []uint8{100, 100, 228}, vec(plain, 50, 20))
}

func vec(m gocv.Mat, row, col int) []uint8 {
	v := m.GetVecbAt(row, col)
	return []uint8{v[0], v[1], v[2]}
}
