// Command partcount counts the parts on a tray photograph.
//
// Paths and the line search start values come from the PARTCOUNT_*
// environment (or a .env file); flags select the product and method.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"partcount/internal/calibration"
	"partcount/internal/config"
	"partcount/internal/imageio"
	"partcount/internal/pattern"
	"partcount/internal/pipeline"
	"partcount/internal/settings"
	"partcount/internal/version"
	"partcount/pkg/geometry"
	"partcount/pkg/log"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

func main() {
	imagePath := flag.String("image", "", "Path to tray image (JPEG, PNG, BMP or TIFF), - for stdin")
	product := flag.String("product", "", "Product name (pattern set and settings)")
	method := flag.String("method", "template", "Counting method: template or contour")
	out := flag.String("out", "", "Write the annotated image here")
	erode := flag.Int("erode", -1, "Contour method: erode radius (product setting when negative)")
	dilate := flag.Int("dilate", -1, "Contour method: dilate radius (product setting when negative)")
	area := flag.Float64("area", -1, "Contour method: area threshold (product setting when negative)")
	theoretical := flag.Int("theoretical", 0, "Number of parts the tray holds")
	register := flag.String("register", "", "Register this image as the base pattern of -product and exit")
	envFile := flag.String("env", ".env", "dotenv file to read")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := log.NewLogger(log.Options{Level: cfg.LogLevel, Dir: cfg.LogDir})

	if *register != "" {
		if err := registerPattern(cfg, logger, *product, *register); err != nil {
			fmt.Fprintf(os.Stderr, "Registration failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *imagePath == "" || (*method == "template" && *product == "") {
		fmt.Println("Usage: partcount -image <path> -product <name> [-method template|contour] [-out result.jpg] [-theoretical N]")
		fmt.Println("       partcount -register <base-image> -product <name>")
		os.Exit(1)
	}

	frame, err := loadFrame(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	defer frame.Close()
	fmt.Printf("Loaded %s: %dx%d pixels\n", filepath.Base(*imagePath), frame.Cols(), frame.Rows())

	cal, err := loadCalibration(cfg, frame.Cols(), frame.Rows())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration error: %v\n", err)
		os.Exit(1)
	}

	patterns := pattern.NewCache(cfg.PatternRoot)
	defer patterns.Close()

	p, err := pipeline.New(pipeline.Options{
		Calibration: cal,
		FrameSize:   geometry.NewSize(frame.Cols(), frame.Rows()),
		MinLength:   cfg.MinLength,
		Threshold:   cfg.Threshold,
		Timeout:     cfg.Timeout,
		SettingsDir: cfg.SettingsDir,
		Patterns:    patterns,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline setup failed: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx := pipeline.WithImage(context.Background(), *imagePath)

	var res *pipeline.CountResult
	switch *method {
	case "template":
		res, err = p.CountByTemplate(ctx, frame, *product)
	case "contour":
		e, d, a, serr := contourParams(cfg, *product, *erode, *dilate, *area)
		if serr != nil {
			fmt.Fprintf(os.Stderr, "Settings error: %v\n", serr)
			os.Exit(1)
		}
		fmt.Printf("Contour parameters: erode=%d dilate=%d area=%.0f\n", e, d, a)
		res, err = p.CountByContour(ctx, frame, e, d, a)
	default:
		fmt.Fprintf(os.Stderr, "Unknown method %q\n", *method)
		os.Exit(1)
	}
	if err != nil {
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "Count failed in %s (trace %s): %v\n", perr.Stage, perr.TraceID, perr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
		}
		os.Exit(1)
	}
	defer res.Close()

	fmt.Printf("\n=== Result ===\n")
	fmt.Printf("Run:        %s\n", res.RunID)
	fmt.Printf("Method:     %s\n", res.Method)
	fmt.Printf("Skew:       %.1f° (%s)\n", res.Angle, res.AlignStatus)
	if res.Method == pipeline.MethodTemplate {
		fmt.Printf("Pattern:    %d\n", res.PatternIndex+1)
		fmt.Printf("Confidence: %s\n", res.Confidence)
	}
	fmt.Printf("Count:      %d\n", res.Count)
	fmt.Printf("Time:       %s\n", res.Duration.Round(1e6))

	if *theoretical > 0 {
		v := pipeline.Summary(res.Count, *theoretical)
		fmt.Printf("Yield:      %.1f%% of %d\n", v.YieldRate, v.Theoretical)
		if v.OverCount {
			fmt.Println("WARNING: more parts counted than the tray holds")
		}
	}

	if *out != "" {
		if err := imageio.Save(*out, res.Annotated); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save result: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Annotated image written to %s\n", *out)
	}
}

// loadFrame reads the frame from path, or from stdin when path is "-".
func loadFrame(path string) (gocv.Mat, error) {
	if path != "-" {
		return imageio.Load(path)
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("read stdin: %w", err)
	}
	return imageio.Decode(data)
}

// loadCalibration reads the configured calibration, or maps the whole frame
// onto itself when none is configured.
func loadCalibration(cfg config.Config, w, h int) (calibration.Points, error) {
	if cfg.Calibration == "" {
		return calibration.Identity(w, h), nil
	}
	return calibration.Load(cfg.Calibration)
}

// contourParams fills negative flag values from the product settings.
func contourParams(cfg config.Config, product string, erode, dilate int, area float64) (int, int, float64, error) {
	s := settings.Defaults()
	if product != "" {
		var err error
		if s, err = settings.Load(cfg.SettingsDir, product); err != nil {
			return 0, 0, 0, err
		}
	}
	if erode < 0 {
		erode = s.ErodeSize
	}
	if dilate < 0 {
		dilate = s.DilateSize
	}
	if area < 0 {
		area = s.ThreshArea
	}
	return erode, dilate, area, nil
}

// registerPattern writes the four orientations of base for product and a
// preview thumbnail next to them.
func registerPattern(cfg config.Config, logger logrus.FieldLogger, product, basePath string) error {
	if err := pattern.CheckProduct(product); err != nil {
		return err
	}
	base, err := imageio.Load(basePath)
	if err != nil {
		return err
	}
	defer base.Close()

	cache := pattern.NewCache(cfg.PatternRoot)
	defer cache.Close()
	dir := cache.Dir(product)
	if err := pattern.Register(dir, base); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"product": product, "dir": dir}).Info("pattern registered")

	set, err := cache.Get(product)
	if err != nil {
		return fmt.Errorf("verify registered set: %w", err)
	}
	for i := 0; i < pattern.Count; i++ {
		sz := set.Size(i)
		fmt.Printf("  %s: %dx%d\n", pattern.FileName(i), sz.X, sz.Y)
	}

	preview, err := pattern.Preview(dir, 160)
	if err != nil {
		return err
	}
	previewPath := filepath.Join(dir, "preview.png")
	if err := imaging.Save(preview, previewPath); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	fmt.Printf("Registered %s in %s\n", product, dir)
	return nil
}
