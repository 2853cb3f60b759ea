package match

import (
	"fmt"
	"image"

	"partcount/pkg/colorutil"
	"partcount/pkg/geometry"

	"gocv.io/x/gocv"
)

// buildMask paints a filled pattern-sized rectangle for every field
// position at or above the threshold, in row-major order, and outlines each
// one in black right after filling it. The outlines keep neighbouring parts
// from merging into one blob.
func (m *Matcher) buildMask(frame gocv.Mat, field gocv.Mat, size image.Point) (gocv.Mat, int, error) {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frame.Rows(), frame.Cols(), gocv.MatTypeCV8U)

	data, err := field.DataPtrFloat32()
	if err != nil {
		mask.Close()
		return gocv.Mat{}, 0, fmt.Errorf("read similarity field: %w", err)
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	cols := field.Cols()
	candidates := 0
	for y := 0; y < field.Rows(); y++ {
		row := data[y*cols : (y+1)*cols]
		for x, v := range row {
			if v < m.Threshold {
				continue
			}
			rect := image.Rect(x, y, x+size.X, y+size.Y)
			if m.Gate != nil && !m.gateAccepts(frame, rect.Intersect(bounds)) {
				continue
			}
			candidates++
			gocv.Rectangle(&mask, rect, colorutil.White, -1)
			if m.BorderWidth > 0 {
				gocv.Rectangle(&mask, rect, colorutil.Black, m.BorderWidth)
			}
		}
	}
	return mask, candidates, nil
}

func (m *Matcher) gateAccepts(frame gocv.Mat, rect image.Rectangle) bool {
	if rect.Empty() {
		return false
	}
	patch := frame.Region(rect)
	defer patch.Close()
	return m.Gate.InRange(patch)
}

// regionOfInterest closes small gaps, takes the bounding box of all blobs
// and grows it by Margin, clipped to the mask. Without blobs the whole
// mask is returned.
func (m *Matcher) regionOfInterest(mask gocv.Mat) image.Rectangle {
	full := image.Rect(0, 0, mask.Cols(), mask.Rows())

	closed := gocv.NewMat()
	defer closed.Close()
	if m.CloseKernel > 1 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(m.CloseKernel, m.CloseKernel))
		defer kernel.Close()
		gocv.MorphologyEx(mask, &closed, gocv.MorphClose, kernel)
	} else {
		mask.CopyTo(&closed)
	}

	contours := gocv.FindContours(closed, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return full
	}

	var union geometry.RectInt
	for i := 0; i < contours.Size(); i++ {
		union = union.Union(geometry.RectFromImage(gocv.BoundingRect(contours.At(i))))
	}
	canvas := geometry.NewSize(mask.Cols(), mask.Rows())
	return union.Expand(m.Margin, canvas).Image()
}

// countRegions keeps the outer contours of the cropped mask whose area
// exceeds the largest area divided by AreaDivisor. offset translates
// outlines back to frame coordinates.
func (m *Matcher) countRegions(mask gocv.Mat, offset image.Point) ([]Region, float64) {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return nil, 0
	}

	areas := make([]float64, contours.Size())
	maxArea := 0.0
	for i := range areas {
		areas[i] = gocv.ContourArea(contours.At(i))
		maxArea = max(maxArea, areas[i])
	}

	divisor := m.AreaDivisor
	if divisor <= 0 {
		divisor = DefaultAreaDivisor
	}
	threshold := maxArea / divisor

	var regions []Region
	for i, area := range areas {
		if area <= threshold {
			continue
		}
		pts := contours.At(i).ToPoints()
		outline := make([]image.Point, len(pts))
		for j, p := range pts {
			outline[j] = p.Add(offset)
		}
		bounds := gocv.BoundingRect(contours.At(i)).Add(offset)
		regions = append(regions, Region{Outline: outline, Area: area, Bounds: bounds})
	}
	return regions, threshold
}
