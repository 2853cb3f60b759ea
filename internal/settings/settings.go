// Package settings stores the per-product detection parameters.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalid is returned when a settings file holds values out of range.
var ErrInvalid = errors.New("invalid settings")

// Ext is the file extension of a settings file.
const Ext = ".json"

// Settings are the tunables saved for one product.
type Settings struct {
	MatchingThreshold float64 `json:"matching_threshold" validate:"gt=0,lte=1"`
	ErodeSize         int     `json:"erode_size" validate:"gte=0,lte=100"`
	DilateSize        int     `json:"dilate_size" validate:"gte=0,lte=100"`
	ThreshArea        float64 `json:"thresh_area" validate:"gte=0"`
	HRange            int     `json:"h_range" validate:"gte=0,lte=180"`
	LRange            int     `json:"l_range" validate:"gte=0,lte=255"`
	SRange            int     `json:"s_range" validate:"gte=0,lte=255"`
	UseColorGate      bool    `json:"use_color_gate"`
	// HighlightColor fills counted parts in the annotated image, "#rrggbb".
	// Empty means the built-in green.
	HighlightColor string `json:"highlight_color,omitempty" validate:"omitempty,hexcolor"`
}

// Defaults returns the settings used when a product has none saved.
func Defaults() Settings {
	return Settings{
		MatchingThreshold: 0.85,
		ErodeSize:         5,
		DilateSize:        3,
		ThreshArea:        100,
		HRange:            30,
		LRange:            30,
		SRange:            30,
	}
}

var validate = validator.New()

// Validate checks every field against its allowed range.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// checkProduct rejects names that are empty or not a single path element.
func checkProduct(product string) error {
	if product == "" || product == "." || product == ".." ||
		strings.ContainsAny(product, `/\`) || product != filepath.Base(product) {
		return fmt.Errorf("%w: bad product name %q", ErrInvalid, product)
	}
	return nil
}

// Path returns the settings file for product under dir.
func Path(dir, product string) string {
	return filepath.Join(dir, product+Ext)
}

// Load reads the settings of product from dir. A product without a file gets
// Defaults; fields absent from the file keep their default value.
func Load(dir, product string) (Settings, error) {
	if err := checkProduct(product); err != nil {
		return Settings{}, err
	}

	s := Defaults()
	data, err := os.ReadFile(Path(dir, product))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("%w: %s: %v", ErrInvalid, product, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save validates s and writes it for product under dir.
func Save(dir, product string, s Settings) error {
	if err := checkProduct(product); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(dir, product), data, 0644)
}
