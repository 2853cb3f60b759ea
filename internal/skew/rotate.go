package skew

import (
	"image"
	"image/color"
	"math"

	"partcount/pkg/geometry"

	"gocv.io/x/gocv"
)

// RotatedSize returns the canvas size needed to hold a w x h image rotated by
// deg degrees without clipping.
func RotatedSize(w, h int, deg float64) geometry.Size {
	rad := deg * math.Pi / 180
	sin := math.Abs(math.Sin(rad))
	cos := math.Abs(math.Cos(rad))
	return geometry.NewSize(
		int(math.Round(float64(h)*sin+float64(w)*cos)),
		int(math.Round(float64(h)*cos+float64(w)*sin)),
	)
}

// RotationTransform maps source pixels of a w x h image into the expanded
// canvas when rotating by deg degrees. Positive angles turn the content
// counter-clockwise on screen.
func RotationTransform(w, h int, deg float64) (geometry.AffineTransform, geometry.Size) {
	size := RotatedSize(w, h, deg)
	m := geometry.Translation(float64(size.Width)/2, float64(size.Height)/2).
		Compose(geometry.Rotation(-deg * math.Pi / 180)).
		Compose(geometry.Translation(-float64(w)/2, -float64(h)/2))
	return m, size
}

// Rotate returns src rotated by deg degrees (counter-clockwise positive) on a
// canvas expanded to fit, filled black outside the source. Cubic resampling.
func Rotate(src gocv.Mat, deg float64) gocv.Mat {
	m, size := RotationTransform(src.Cols(), src.Rows(), deg)

	affine := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer affine.Close()
	affine.SetDoubleAt(0, 0, m.A)
	affine.SetDoubleAt(0, 1, m.B)
	affine.SetDoubleAt(0, 2, m.TX)
	affine.SetDoubleAt(1, 0, m.C)
	affine.SetDoubleAt(1, 1, m.D)
	affine.SetDoubleAt(1, 2, m.TY)

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, affine, image.Pt(size.Width, size.Height),
		gocv.InterpolationCubic, gocv.BorderConstant, color.RGBA{})
	return dst
}
