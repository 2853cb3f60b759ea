package lines

import (
	"fmt"
	"image"

	"partcount/internal/rectify"
	"partcount/pkg/colorutil"

	"gocv.io/x/gocv"
)

// Canny hysteresis thresholds used for both edge passes.
const (
	cannyLow  = 100
	cannyHigh = 200
)

// EdgeMap prepares the binary edge map the line detector runs on. The part
// outlines are filled solid so that only the straight seams of the free
// space between parts remain as edges:
//
//	gray -> Canny -> rectify -> close 3x3 -> fill outer contours -> invert -> erode 3x3 -> Canny
//
// A nil rectifier skips rectification (the frame is already rectified).
// The returned Mat is owned by the caller.
func EdgeMap(frame gocv.Mat, r *rectify.Rectifier) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() == 1 {
		frame.CopyTo(&gray)
	} else {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}

	edges := gocv.NewMat()
	gocv.Canny(gray, &edges, cannyLow, cannyHigh)

	if r != nil {
		rectified := r.Transform(edges)
		edges.Close()
		edges = rectified
	}
	defer edges.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()

	filled := gocv.NewMat()
	defer filled.Close()
	gocv.MorphologyEx(edges, &filled, gocv.MorphClose, kernel)

	contours := gocv.FindContours(filled, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() > 0 {
		gocv.DrawContours(&filled, contours, -1, colorutil.White, -1)
	}

	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(filled, &inverted)

	eroded := gocv.NewMat()
	defer eroded.Close()
	gocv.Erode(inverted, &eroded, kernel)

	out := gocv.NewMat()
	gocv.Canny(eroded, &out, cannyLow, cannyHigh)
	return out, nil
}
