package match

import (
	"image"

	"partcount/pkg/colorutil"

	"gocv.io/x/gocv"
)

// render fills every counted region with the highlight color on a gray
// cover, outlines it in black, and blends the cover half-and-half over the
// frame crop.
func (m *Matcher) render(crop gocv.Mat, regions []Region, offset image.Point) gocv.Mat {
	g := float64(m.CoverGray)
	cover := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(g, g, g, 0), crop.Rows(), crop.Cols(), gocv.MatTypeCV8UC3)
	defer cover.Close()

	if len(regions) > 0 {
		outlines := make([][]image.Point, len(regions))
		for i, r := range regions {
			pts := make([]image.Point, len(r.Outline))
			for j, p := range r.Outline {
				pts[j] = p.Sub(offset)
			}
			outlines[i] = pts
		}
		pv := gocv.NewPointsVectorFromPoints(outlines)
		defer pv.Close()

		highlight := m.Highlight
		if highlight.A == 0 {
			highlight = colorutil.Highlight
		}
		gocv.DrawContours(&cover, pv, -1, highlight, -1)
		if m.OutlineWidth > 0 {
			gocv.DrawContours(&cover, pv, -1, colorutil.Black, m.OutlineWidth)
		}
	}

	out := gocv.NewMat()
	gocv.AddWeighted(crop, 0.5, cover, 0.5, 0, &out)
	return out
}
