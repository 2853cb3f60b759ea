// Command skewtest runs rectification and skew estimation on one image and
// prints the line search and the angle candidates.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"math"
	"os"
	"time"

	"partcount/internal/calibration"
	"partcount/internal/imageio"
	"partcount/internal/lines"
	"partcount/internal/rectify"
	"partcount/internal/skew"
	"partcount/internal/synthetic"
	"partcount/pkg/log"

	"gocv.io/x/gocv"
)

func main() {
	imagePath := flag.String("image", "", "Path to tray image")
	synth := flag.Float64("synthetic", math.NaN(), "Use a synthetic 1600x1200 tray skewed by this many degrees instead of -image")
	calPath := flag.String("calibration", "", "Calibration file (identity when empty)")
	minLength := flag.Int("min-length", 500, "Initial minimum line length")
	threshold := flag.Int("threshold", 500, "Initial Hough threshold")
	out := flag.String("out", "", "Write the aligned frame here")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *imagePath == "" && math.IsNaN(*synth) {
		fmt.Println("Usage: skewtest -image <path> | -synthetic <degrees> [-calibration file] [-min-length 500] [-threshold 500] [-out aligned.jpg]")
		os.Exit(1)
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := log.NewLogger(log.Options{Level: level})

	var frame gocv.Mat
	if !math.IsNaN(*synth) {
		g := synthetic.Grid{
			Width: 1600, Height: 1200,
			Cols: 5, Rows: 4,
			Part:  image.Pt(200, 150),
			Gap:   50,
			Angle: *synth,
		}
		frame = g.Draw()
		fmt.Printf("Synthetic tray: %d parts, skew %.2f°\n", g.Count(), g.Angle)
	} else {
		var err error
		frame, err = imageio.Load(*imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Loaded %s: %dx%d pixels\n", *imagePath, frame.Cols(), frame.Rows())
	}
	defer frame.Close()

	cal := calibration.Identity(frame.Cols(), frame.Rows())
	if *calPath != "" {
		var err error
		if cal, err = calibration.Load(*calPath); err != nil {
			fmt.Fprintf(os.Stderr, "Calibration error: %v\n", err)
			os.Exit(1)
		}
	}
	r, err := rectify.New(cal, frame.Cols(), frame.Rows())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rectifier setup failed: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	// Step 1: edge map
	fmt.Printf("\n=== Edge map ===\n")
	start := time.Now()
	edges, err := lines.EdgeMap(frame, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Edge map failed: %v\n", err)
		os.Exit(1)
	}
	defer edges.Close()
	fmt.Printf("Rectified to %v, %d edge pixels (%s)\n", r.OutputSize(), gocv.CountNonZero(edges), time.Since(start).Round(time.Millisecond))

	// Step 2: line search
	fmt.Printf("\n=== Line search ===\n")
	det := lines.NewDetector()
	det.Logger = logger
	fmt.Printf("Worst case: %d passes\n", det.MaxIterations(*minLength, *threshold))
	res, err := det.Detect(context.Background(), edges, *minLength, *threshold)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Line search failed: %v\n", err)
		os.Exit(1)
	}
	if !res.Found {
		fmt.Printf("No lines after %d passes (min_length=%d threshold=%d), frame would stay unrotated\n",
			res.Iterations, res.MinLength, res.Threshold)
		return
	}
	fmt.Printf("%d lines at min_length=%d threshold=%d after %d passes\n",
		len(res.Lines), res.MinLength, res.Threshold, res.Iterations)

	// Step 3: candidates and verification
	fmt.Printf("\n=== Skew ===\n")
	est, err := skew.NewEstimator(det).Estimate(context.Background(), res.Lines, edges, res.MinLength, res.Threshold)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Estimation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Candidates (%d):", len(est.Candidates))
	for _, c := range est.Candidates {
		fmt.Printf(" %.2f", c)
	}
	fmt.Println()
	if est.Confirmed {
		fmt.Printf("Confirmed %.2f° after %d verifications\n", est.Angle, est.Tried)
	} else {
		fmt.Printf("No candidate confirmed in %d verifications, median %.2f°\n", est.Tried, est.Angle)
	}

	if *out != "" {
		rectified := r.Transform(frame)
		aligned := skew.Rotate(rectified, est.Angle)
		rectified.Close()
		defer aligned.Close()
		if err := imageio.Save(*out, aligned); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save aligned frame: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Aligned frame written to %s\n", *out)
	}
}
