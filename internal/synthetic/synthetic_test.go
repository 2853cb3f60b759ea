package synthetic

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundsAreCenteredRowMajor(t *testing.T) {
	g := Grid{Width: 1000, Height: 600, Cols: 3, Rows: 2, Part: image.Pt(200, 100), Gap: 50}
	b := g.Bounds()
	assert.Len(t, b, g.Count())
	assert.Equal(t, image.Rect(150, 175, 350, 275), b[0])
	assert.Equal(t, image.Rect(400, 175, 600, 275), b[1])
	assert.Equal(t, image.Rect(150, 325, 350, 425), b[3])

	g.Portrait = true
	assert.Equal(t, image.Pt(100, 200), g.Bounds()[0].Size())
}

func TestCheckerSize(t *testing.T) {
	g := Grid{}
	assert.Zero(t, g.checker())
	g.Textured = true
	assert.Equal(t, DefaultChecker, g.checker())
	g.Checker = 16
	assert.Equal(t, 16, g.checker())
}

func TestPartTile(t *testing.T) {
	plain := PartTile(image.Pt(120, 80), 0)
	defer plain.Close()
	textured := PartTile(image.Pt(120, 80), DefaultChecker)
	defer textured.Close()

	assert.Equal(t, 120, plain.Cols())
	assert.Equal(t, 80, plain.Rows())
	// body color at the first checker square, texture-free on the plain tile
	assert.Equal(t, uint8(Body.B), plain.GetVecbAt(14, 14)[0])
	assert.Equal(t, uint8(Texture.B), textured.GetVecbAt(14, 14)[0])
	assert.Equal(t, uint8(Marker.B), textured.GetVecbAt(40, 5)[0])
}
