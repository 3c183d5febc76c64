package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svinterp/internal/models"
	"svinterp/pkg/interpolation"
	"svinterp/pkg/regrid"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, models.SvVar, cfg.Interpolation.Target)
	assert.Equal(t, models.PingTimeDim, cfg.Interpolation.Dim)
	assert.Equal(t, "linear", cfg.Interpolation.Method)
	assert.False(t, cfg.Interpolation.EdgeFill)
	assert.Equal(t, "finest", cfg.Regrid.SpacingPolicy)
	assert.Positive(t, cfg.Processing.Workers)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "svinterp.yaml")
	cfg := DefaultConfig()
	cfg.Processing.Workers = 3
	cfg.Interpolation.Method = "nearest"
	cfg.Interpolation.EdgeFill = true
	cfg.Interpolation.MaskTypes = []string{"impulse", "transient"}
	cfg.Regrid.SpacingPolicy = "fixed"
	cfg.Regrid.Spacing = 0.25
	cfg.Output.PlotDir = "plots"

	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interpolation:\n  edgeFill: true\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Interpolation.EdgeFill)
	assert.Equal(t, "linear", cfg.Interpolation.Method)
	assert.Equal(t, "finest", cfg.Regrid.SpacingPolicy)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("processing: [1, 2"), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("unknown method", func(t *testing.T) {
		path := filepath.Join(dir, "method.yaml")
		require.NoError(t, os.WriteFile(path, []byte("interpolation:\n  method: cubic\n"), 0644))
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "interpolation.method")
	})

	t.Run("fixed without spacing", func(t *testing.T) {
		path := filepath.Join(dir, "fixed.yaml")
		require.NoError(t, os.WriteFile(path, []byte("regrid:\n  spacingPolicy: fixed\n"), 0644))
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "regrid.spacing")
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SVINTERP_METHOD", "nearest")
	t.Setenv("SVINTERP_EDGE_FILL", "true")
	t.Setenv("SVINTERP_WORKERS", "2")
	t.Setenv("SVINTERP_LOG_LEVEL", "debug")
	t.Setenv("SVINTERP_LOG_FORMAT", "json")
	t.Setenv("SVINTERP_SPACING_POLICY", "coarsest")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "nearest", cfg.Interpolation.Method)
	assert.True(t, cfg.Interpolation.EdgeFill)
	assert.Equal(t, 2, cfg.Processing.Workers)
	assert.Equal(t, "debug", cfg.Output.LogLevel)
	assert.Equal(t, "json", cfg.Output.LogFormat)
	assert.Equal(t, "coarsest", cfg.Regrid.SpacingPolicy)
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("SVINTERP_WORKERS", "many")
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "SVINTERP_WORKERS")
}

func TestParamsMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.Workers = 4
	cfg.Interpolation.Method = "nearest"
	cfg.Interpolation.Dim = models.RangeSampleDim
	cfg.Interpolation.MaskTypes = []string{"seabed"}
	cfg.Regrid.SpacingPolicy = "fixed"
	cfg.Regrid.Spacing = 0.1
	cfg.Regrid.Method = "nearest"

	ip, err := cfg.InterpolationParams()
	require.NoError(t, err)
	assert.Equal(t, interpolation.Nearest, ip.Method)
	assert.Equal(t, models.RangeSampleDim, ip.Dim)
	assert.Equal(t, models.SvVar, ip.Target)
	assert.Equal(t, []string{"seabed"}, ip.MaskTypes)
	assert.Equal(t, 4, ip.Workers)

	rp, err := cfg.RegridParams()
	require.NoError(t, err)
	assert.Equal(t, regrid.Fixed, rp.Policy)
	assert.Equal(t, 0.1, rp.Spacing)
	assert.Equal(t, interpolation.Nearest, rp.Method)
	assert.Equal(t, 4, rp.Workers)
	assert.Equal(t, regrid.DefaultPowerVariables, rp.PowerVariables)
}
