// Package synthetic renders tray images with a known layout, used for
// calibration checks and tests.
package synthetic

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Palette. Parts are a dull light gray on a saturated backing, like metal
// parts on a colored tray.
var (
	Tray    = color.RGBA{R: 40, G: 100, B: 170, A: 255}
	Body    = color.RGBA{R: 215, G: 215, B: 215, A: 255}
	Texture = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	Marker  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
)

// DefaultChecker is the checker square size in pixels for textured parts.
const DefaultChecker = 8

// Grid is a tray of identical parts laid out in Rows x Cols cells separated
// by Gap pixels and centered on a Width x Height canvas. Angle rotates the
// whole layout about the canvas center, clockwise on screen for positive
// values (the right end of each row ends up lower).
type Grid struct {
	Width, Height int
	Cols, Rows    int
	Part          image.Point
	Gap           int
	Angle         float64
	// Portrait draws each part rotated 90 degrees clockwise.
	Portrait bool
	// Textured adds a checker pattern and an orientation marker to parts so
	// that correlation peaks are sharp.
	Textured bool
	// Checker overrides DefaultChecker. Coarser squares survive repeated
	// resampling better.
	Checker int
}

// Count returns the number of parts.
func (g Grid) Count() int {
	return g.Rows * g.Cols
}

// cell returns the on-canvas size of one part.
func (g Grid) cell() image.Point {
	if g.Portrait {
		return image.Pt(g.Part.Y, g.Part.X)
	}
	return g.Part
}

// Bounds returns the unrotated rectangle of every part in row-major order.
func (g Grid) Bounds() []image.Rectangle {
	c := g.cell()
	totalW := g.Cols*c.X + (g.Cols-1)*g.Gap
	totalH := g.Rows*c.Y + (g.Rows-1)*g.Gap
	x0 := (g.Width - totalW) / 2
	y0 := (g.Height - totalH) / 2

	out := make([]image.Rectangle, 0, g.Count())
	for r := 0; r < g.Rows; r++ {
		for col := 0; col < g.Cols; col++ {
			tl := image.Pt(x0+col*(c.X+g.Gap), y0+r*(c.Y+g.Gap))
			out = append(out, image.Rectangle{Min: tl, Max: tl.Add(c)})
		}
	}
	return out
}

// PartTile renders a single part of the given size in its base orientation,
// textured with checker-sized squares when checker is positive.
func PartTile(size image.Point, checker int) gocv.Mat {
	tile := gocv.NewMatWithSizeFromScalar(scalar(Body), size.Y, size.X, gocv.MatTypeCV8UC3)
	if checker <= 0 {
		return tile
	}

	inset := 12
	for y := inset; y+checker <= size.Y-inset; y += checker {
		for x := inset; x+checker <= size.X-inset; x += checker {
			if ((x-inset)/checker+(y-inset)/checker)%2 == 0 {
				gocv.Rectangle(&tile, image.Rect(x, y, x+checker, y+checker), Texture, -1)
			}
		}
	}
	// orientation marker along the left edge
	gocv.Rectangle(&tile, image.Rect(2, 2, inset-2, size.Y-2), Marker, -1)
	return tile
}

// Pattern renders one part with margin pixels of tray around it, in the
// orientation the parts are drawn in.
func (g Grid) Pattern(margin int) gocv.Mat {
	c := g.cell()
	out := gocv.NewMatWithSizeFromScalar(scalar(Tray), c.Y+2*margin, c.X+2*margin, gocv.MatTypeCV8UC3)

	tile := g.tile()
	defer tile.Close()

	dst := out.Region(image.Rect(margin, margin, margin+c.X, margin+c.Y))
	tile.CopyTo(&dst)
	dst.Close()
	return out
}

func (g Grid) checker() int {
	switch {
	case !g.Textured:
		return 0
	case g.Checker > 0:
		return g.Checker
	default:
		return DefaultChecker
	}
}

func (g Grid) tile() gocv.Mat {
	tile := PartTile(g.Part, g.checker())
	if !g.Portrait {
		return tile
	}
	rotated := gocv.NewMat()
	gocv.Rotate(tile, &rotated, gocv.Rotate90Clockwise)
	tile.Close()
	return rotated
}

// Draw renders the tray.
func (g Grid) Draw() gocv.Mat {
	canvas := gocv.NewMatWithSizeFromScalar(scalar(Tray), g.Height, g.Width, gocv.MatTypeCV8UC3)

	tile := g.tile()
	defer tile.Close()

	for _, r := range g.Bounds() {
		dst := canvas.Region(r)
		tile.CopyTo(&dst)
		dst.Close()
	}

	if g.Angle == 0 {
		return canvas
	}
	defer canvas.Close()

	rot := gocv.GetRotationMatrix2D(image.Pt(g.Width/2, g.Height/2), -g.Angle, 1.0)
	defer rot.Close()

	out := gocv.NewMat()
	gocv.WarpAffineWithParams(canvas, &out, rot, image.Pt(g.Width, g.Height),
		gocv.InterpolationLinear, gocv.BorderConstant, Tray)
	return out
}

// scalar converts to OpenCV's BGR channel order.
func scalar(c color.RGBA) gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}
