package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#1eff00")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 30, G: 255, B: 0, A: 255}, c)

	_, err = ParseHex("green")
	assert.Error(t, err)
}

func TestHexOrDefault(t *testing.T) {
	assert.Equal(t, Highlight, HexOrDefault("", Highlight))
	assert.Equal(t, Highlight, HexOrDefault("not-a-color", Highlight))
	assert.Equal(t, White, HexOrDefault("#ffffff", Highlight))
}
