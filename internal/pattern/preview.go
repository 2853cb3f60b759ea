package pattern

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Preview returns a landscape thumbnail of the product's pattern scaled to
// height pixels, for product pickers. pattern2 is used when pattern1 is
// portrait.
func Preview(dir string, height int) (image.Image, error) {
	if height <= 0 {
		return nil, fmt.Errorf("invalid preview height %d", height)
	}

	path, err := findFile(dir, 0)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern: %w", err)
	}

	if b := img.Bounds(); b.Dy() > b.Dx() {
		if path, err := findFile(dir, 1); err == nil {
			if rotated, err := imaging.Open(path); err == nil {
				img = rotated
			}
		} else {
			img = imaging.Rotate90(img)
		}
	}

	return imaging.Resize(img, 0, height, imaging.Lanczos), nil
}
