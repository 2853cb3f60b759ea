// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvCalibration = "PARTCOUNT_CALIBRATION"
	EnvPatternRoot = "PARTCOUNT_PATTERN_ROOT"
	EnvSettingsDir = "PARTCOUNT_SETTINGS_DIR"
	EnvLogDir      = "PARTCOUNT_LOG_DIR"
	EnvLogLevel    = "PARTCOUNT_LOG_LEVEL"
	EnvMinLength   = "PARTCOUNT_MIN_LENGTH"
	EnvThreshold   = "PARTCOUNT_THRESHOLD"
	EnvTimeout     = "PARTCOUNT_TIMEOUT"
)

// Config is the process-wide configuration.
type Config struct {
	Calibration string        `validate:"omitempty"`
	PatternRoot string        `validate:"required"`
	SettingsDir string        `validate:"required"`
	LogDir      string        `validate:"omitempty"`
	LogLevel    string        `validate:"oneof=trace debug info warn warning error fatal panic"`
	MinLength   int           `validate:"gt=0"`
	Threshold   int           `validate:"gt=0"`
	Timeout     time.Duration `validate:"gt=0"`
}

// Defaults returns the configuration used for unset variables.
func Defaults() Config {
	return Config{
		PatternRoot: "patterns",
		SettingsDir: "settings",
		LogLevel:    "info",
		MinLength:   500,
		Threshold:   500,
		Timeout:     30 * time.Second,
	}
}

// Load reads the given dotenv files (".env" when none are named) into the
// environment and builds a validated Config. A missing dotenv file is not an
// error; variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvCalibration, &cfg.Calibration)
	str(EnvPatternRoot, &cfg.PatternRoot)
	str(EnvSettingsDir, &cfg.SettingsDir)
	str(EnvLogDir, &cfg.LogDir)
	str(EnvLogLevel, &cfg.LogLevel)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	for key, dst := range map[string]*int{EnvMinLength: &cfg.MinLength, EnvThreshold: &cfg.Threshold} {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup(EnvTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
