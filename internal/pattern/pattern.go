// Package pattern loads the four reference orientations of a product.
package pattern

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"partcount/internal/imageio"

	"gocv.io/x/gocv"
)

var (
	// ErrPatternMissing is returned when a product directory lacks a pattern file.
	ErrPatternMissing = errors.New("pattern file missing")
	// ErrPatternMismatch is returned when the four files are not 90 degree
	// rotations of each other.
	ErrPatternMismatch = errors.New("pattern sizes are not 90 degree rotations")
)

// Count is the number of orientations in a set.
const Count = 4

// extensions tried, in order, for each pattern file.
var extensions = []string{".jpg", ".png"}

// FileName returns the base name of orientation i (0-based) without extension.
func FileName(i int) string {
	return fmt.Sprintf("pattern%d", i+1)
}

// Set holds one product's patterns: index 0 is the base orientation and each
// following one is rotated a further 90 degrees. Mats are read-only once
// loaded; Close releases them.
type Set struct {
	Dir      string
	Patterns [Count]gocv.Mat

	loaded int
}

// Size returns the width/height of orientation i.
func (s *Set) Size(i int) image.Point {
	return image.Pt(s.Patterns[i].Cols(), s.Patterns[i].Rows())
}

// Close releases all pattern Mats.
func (s *Set) Close() error {
	var firstErr error
	for i := 0; i < s.loaded; i++ {
		if err := s.Patterns[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.loaded = 0
	return firstErr
}

// NewSet wraps already decoded orientations and takes ownership of them on
// success.
func NewSet(dir string, patterns [Count]gocv.Mat) (*Set, error) {
	set := &Set{Dir: dir, Patterns: patterns, loaded: Count}
	for i := range patterns {
		if patterns[i].Empty() {
			return nil, fmt.Errorf("%w: %s is empty", ErrPatternMissing, FileName(i))
		}
	}
	if err := set.validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Rotations returns base and its three successive 90 degree clockwise
// rotations. The first element is a clone of base.
func Rotations(base gocv.Mat) [Count]gocv.Mat {
	var out [Count]gocv.Mat
	out[0] = base.Clone()
	for i := 1; i < Count; i++ {
		out[i] = gocv.NewMat()
		gocv.Rotate(out[i-1], &out[i], gocv.Rotate90Clockwise)
	}
	return out
}

// findFile returns the path of orientation i inside dir.
func findFile(dir string, i int) (string, error) {
	for _, ext := range extensions {
		path := filepath.Join(dir, FileName(i)+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrPatternMissing, FileName(i), dir)
}

// LoadSet reads pattern1..pattern4 from dir and checks that successive
// orientations swap width and height.
func LoadSet(dir string) (*Set, error) {
	set := &Set{Dir: dir}
	for i := 0; i < Count; i++ {
		path, err := findFile(dir, i)
		if err != nil {
			set.Close()
			return nil, err
		}
		mat, err := imageio.Load(path)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		set.Patterns[i] = mat
		set.loaded++
	}

	if err := set.validate(); err != nil {
		set.Close()
		return nil, err
	}
	return set, nil
}

func (s *Set) validate() error {
	base := s.Size(0)
	for i := 1; i < Count; i++ {
		want := base
		if i%2 == 1 {
			want = image.Pt(base.Y, base.X)
		}
		if got := s.Size(i); got != want {
			return fmt.Errorf("%w: %s is %dx%d, want %dx%d",
				ErrPatternMismatch, FileName(i), got.X, got.Y, want.X, want.Y)
		}
	}
	return nil
}

// Register writes the four orientations of base into dir as JPEG files,
// each rotated 90 degrees clockwise from the previous one.
func Register(dir string, base gocv.Mat) error {
	if base.Empty() {
		return fmt.Errorf("empty base pattern")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create pattern directory: %w", err)
	}

	rotations := Rotations(base)
	defer func() {
		for i := range rotations {
			rotations[i].Close()
		}
	}()

	for i, mat := range rotations {
		path := filepath.Join(dir, FileName(i)+".jpg")
		if err := imageio.Save(path, mat); err != nil {
			return err
		}
	}
	return nil
}
