package rectify

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"partcount/pkg/geometry"
)

// Homography is a 3x3 projective transform, row-major, with H[2][2] == 1.
type Homography [3][3]float64

// ComputeHomography solves the projective transform mapping the four src
// points onto the four dst points (direct linear transform, h33 fixed to 1).
func ComputeHomography(src, dst [4]geometry.Point2D) (Homography, error) {
	// u = (h0 x + h1 y + h2) / (h6 x + h7 y + 1)
	// v = (h3 x + h4 y + h5) / (h6 x + h7 y + 1)
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		A.SetRow(i*2, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		B.SetVec(i*2, u)

		A.SetRow(i*2+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		B.SetVec(i*2+1, v)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return Homography{}, fmt.Errorf("solve homography: %w", err)
	}

	return Homography{
		{params.AtVec(0), params.AtVec(1), params.AtVec(2)},
		{params.AtVec(3), params.AtVec(4), params.AtVec(5)},
		{params.AtVec(6), params.AtVec(7), 1},
	}, nil
}

// Apply maps a point through the homography.
func (h Homography) Apply(p geometry.Point2D) geometry.Point2D {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	return geometry.Point2D{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}
}

// Inverse returns the inverse mapping.
func (h Homography) Inverse() (Homography, error) {
	m := mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Homography{}, fmt.Errorf("invert homography: %w", err)
	}

	scale := inv.At(2, 2)
	if scale == 0 {
		return Homography{}, fmt.Errorf("invert homography: singular projective row")
	}

	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = inv.At(r, c) / scale
		}
	}
	return out, nil
}
