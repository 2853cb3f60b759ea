package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupMap(nil))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, 500, cfg.MinLength)
	assert.Equal(t, 500, cfg.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookupMap(map[string]string{
		EnvCalibration: "/etc/partcount/calib.json",
		EnvPatternRoot: "/srv/patterns",
		EnvLogLevel:    "DEBUG",
		EnvMinLength:   " 300 ",
		EnvTimeout:     "5s",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/etc/partcount/calib.json", cfg.Calibration)
	assert.Equal(t, "/srv/patterns", cfg.PatternRoot)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 300, cfg.MinLength)
	assert.Equal(t, 500, cfg.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	_, err := FromEnv(lookupMap(map[string]string{EnvThreshold: "many"}))
	assert.Error(t, err)

	_, err = FromEnv(lookupMap(map[string]string{EnvMinLength: "0"}))
	assert.Error(t, err)

	_, err = FromEnv(lookupMap(map[string]string{EnvLogLevel: "loud"}))
	assert.Error(t, err)

	_, err = FromEnv(lookupMap(map[string]string{EnvTimeout: "soon"}))
	assert.Error(t, err)
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PARTCOUNT_SETTINGS_DIR=/tmp/partcount-settings\n"), 0644))
	t.Setenv(EnvSettingsDir, "")
	require.NoError(t, os.Unsetenv(EnvSettingsDir))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/partcount-settings", cfg.SettingsDir)
}

func TestLoadMissingDotenv(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
