package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := EmptyPipelineConfig()

	assert.Equal(t, 300*time.Second, cfg.GetPeriod())
	assert.Equal(t, 10*time.Second, cfg.GetTolerance())
	assert.Equal(t, "nearest", cfg.GetMethod())
	assert.Equal(t, time.Hour, cfg.GetMaxGap())
	assert.Equal(t, 0.9, cfg.GetMinCoverage())
	assert.False(t, cfg.GetDropOnFailure())
	assert.Empty(t, cfg.GetFillDownColumns())
}

func TestLoadPipelineConfig(t *testing.T) {
	path := writeConfig(t, "pipeline.json", `{
		"period_seconds": 600,
		"tolerance_seconds": 5,
		"method": "interpolate",
		"max_gap": "2h",
		"min_coverage": 0.8,
		"drop_on_failure": true,
		"fill_down_columns": ["ElectricityBooster"]
	}`)

	cfg, err := LoadPipelineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 600*time.Second, cfg.GetPeriod())
	assert.Equal(t, 5*time.Second, cfg.GetTolerance())
	assert.Equal(t, "interpolate", cfg.GetMethod())
	assert.Equal(t, 2*time.Hour, cfg.GetMaxGap())
	assert.Equal(t, 0.8, cfg.GetMinCoverage())
	assert.True(t, cfg.GetDropOnFailure())
	assert.Equal(t, []string{"ElectricityBooster"}, cfg.GetFillDownColumns())
}

func TestLoadPipelineConfigPartial(t *testing.T) {
	path := writeConfig(t, "pipeline.json", `{"period_seconds": 900}`)

	cfg, err := LoadPipelineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 900*time.Second, cfg.GetPeriod())
	// Everything else stays at its default.
	assert.Equal(t, "nearest", cfg.GetMethod())
	assert.Equal(t, time.Hour, cfg.GetMaxGap())
}

func TestLoadPipelineConfigErrors(t *testing.T) {
	t.Run("wrong extension", func(t *testing.T) {
		path := writeConfig(t, "pipeline.yaml", `{}`)
		_, err := LoadPipelineConfig(path)
		assert.ErrorContains(t, err, ".json")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPipelineConfig(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := writeConfig(t, "pipeline.json", `{`)
		_, err := LoadPipelineConfig(path)
		assert.ErrorContains(t, err, "parse")
	})
}

func TestValidate(t *testing.T) {
	intp := func(v int) *int { return &v }
	strp := func(v string) *string { return &v }
	floatp := func(v float64) *float64 { return &v }

	t.Run("negative period", func(t *testing.T) {
		cfg := &PipelineConfig{PeriodSeconds: intp(-1)}
		assert.ErrorContains(t, cfg.Validate(), "period_seconds")
	})

	t.Run("negative tolerance", func(t *testing.T) {
		cfg := &PipelineConfig{ToleranceSeconds: intp(-5)}
		assert.ErrorContains(t, cfg.Validate(), "tolerance_seconds")
	})

	t.Run("coverage out of range", func(t *testing.T) {
		cfg := &PipelineConfig{MinCoverage: floatp(1.5)}
		assert.ErrorContains(t, cfg.Validate(), "min_coverage")
	})

	t.Run("bad max_gap", func(t *testing.T) {
		cfg := &PipelineConfig{MaxGap: strp("soon")}
		assert.ErrorContains(t, cfg.Validate(), "max_gap")
	})

	t.Run("bad method", func(t *testing.T) {
		cfg := &PipelineConfig{Method: strp("spline")}
		assert.ErrorContains(t, cfg.Validate(), "method")
	})

	t.Run("valid", func(t *testing.T) {
		cfg := &PipelineConfig{
			PeriodSeconds: intp(300),
			Method:        strp("nearest"),
			MaxGap:        strp("90m"),
			MinCoverage:   floatp(0.95),
		}
		assert.NoError(t, cfg.Validate())
	})
}
