// Package imageio loads and saves frames as OpenCV matrices.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	"golang.org/x/image/tiff"
)

// ErrUnreadable is returned for image data that cannot be decoded.
var ErrUnreadable = errors.New("unreadable image")

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// Load reads a frame from disk as a BGR Mat. JPEG orientation tags are
// applied so portrait exports come out upright.
func Load(path string) (gocv.Mat, error) {
	if !IsSupportedFormat(path) {
		return gocv.Mat{}, fmt.Errorf("%w: unsupported format %q", ErrUnreadable, filepath.Ext(path))
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tif" || ext == ".tiff" {
		return loadTIFF(path)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return gocv.Mat{}, fmt.Errorf("failed to open image: %w", err)
		}
		return gocv.Mat{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return ImageToMat(img)
}

func loadTIFF(path string) (gocv.Mat, error) {
	file, err := os.Open(path)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, err := tiff.Decode(file)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return ImageToMat(img)
}

// Decode decodes an encoded image buffer (JPEG, PNG, BMP, TIFF) into a BGR
// Mat, applying JPEG orientation tags like Load.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("%w: empty buffer", ErrUnreadable)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return ImageToMat(img)
}

// Save writes mat to path; the format follows the file extension.
func Save(path string, mat gocv.Mat) error {
	if mat.Empty() {
		return fmt.Errorf("refusing to write empty image to %s", path)
	}
	if !IsSupportedFormat(path) {
		return fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
	img, err := MatToImage(mat)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("failed to write image %s: %w", path, err)
	}
	return nil
}
