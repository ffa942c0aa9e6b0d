package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 64, cfg.Channel.DefaultCapacity)
	assert.Equal(t, 1, cfg.Engine.PECount)
	assert.Equal(t, 1, cfg.Engine.EnginesPerPE)
	assert.Equal(t, "fiber", cfg.Engine.Kind)
	assert.Equal(t, "grpc", cfg.Transport.Kind)
	assert.Equal(t, "localhost:13338", cfg.Control.Address)
	assert.Equal(t, "9090", cfg.Admin.Port)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func writeTOML(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "executor.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// TestLoadTOMLValueSurvivesWithoutMatchingEnvVar guards against
// envconfig's default tag clobbering a TOML-set value back to its
// struct default when the corresponding environment variable is unset.
func TestLoadTOMLValueSurvivesWithoutMatchingEnvVar(t *testing.T) {
	os.Unsetenv("CHANNEL_DEFAULT_CAPACITY")

	path := writeTOML(t, "[channel]\ndefault_capacity = 500\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Channel.DefaultCapacity)
}

func TestLoadEnvironmentVariableOverridesTOML(t *testing.T) {
	require.NoError(t, os.Setenv("CHANNEL_DEFAULT_CAPACITY", "128"))
	defer os.Unsetenv("CHANNEL_DEFAULT_CAPACITY")

	path := writeTOML(t, "[channel]\ndefault_capacity = 500\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Channel.DefaultCapacity)
}

func TestLoadTOMLFieldsNotInFileKeepStructDefaults(t *testing.T) {
	os.Unsetenv("ENGINE_PE_COUNT")

	path := writeTOML(t, "[channel]\ndefault_capacity = 500\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Channel.DefaultCapacity)
	assert.Equal(t, 1, cfg.Engine.PECount)
	assert.Equal(t, "fiber", cfg.Engine.Kind)
}

func TestLoadPropagatesReadError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadOrDefaultFallsBackOnReadError(t *testing.T) {
	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Equal(t, Default(), cfg)
}
