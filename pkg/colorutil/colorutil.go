// Package colorutil provides shared color utilities for the part counter.
package colorutil

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Common overlay colors used throughout the application.
var (
	Black     = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Highlight = color.RGBA{R: 0, G: 255, B: 30, A: 255} // match fill, "#00ff1e"
	BoxGreen  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
)

// ParseHex parses a "#rrggbb" string into an opaque RGBA color.
func ParseHex(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// HexOrDefault parses hex, falling back to def when hex is empty or invalid.
func HexOrDefault(hex string, def color.RGBA) color.RGBA {
	if hex == "" {
		return def
	}
	c, err := ParseHex(hex)
	if err != nil {
		return def
	}
	return c
}
