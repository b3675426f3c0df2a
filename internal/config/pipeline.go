// Package config holds the pipeline's tunable parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PipelineConfig represents the tunables of a processing run. All
// fields are optional in the JSON file; omitted fields fall back to the
// defaults returned by the Get* accessors, so partial configs are safe.
type PipelineConfig struct {
	// Sampling grid
	PeriodSeconds    *int    `json:"period_seconds,omitempty"`
	ToleranceSeconds *int    `json:"tolerance_seconds,omitempty"`
	Method           *string `json:"method,omitempty"` // "nearest" or "interpolate"

	// Counter reconciliation
	MaxGap        *string  `json:"max_gap,omitempty"` // duration string like "1h"
	MinCoverage   *float64 `json:"min_coverage,omitempty"`
	DropOnFailure *bool    `json:"drop_on_failure,omitempty"`

	// Fill-down imputation for infrequently reporting devices
	FillDownColumns []string `json:"fill_down_columns,omitempty"`
}

// EmptyPipelineConfig returns a PipelineConfig with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	if c.PeriodSeconds != nil && *c.PeriodSeconds <= 0 {
		return fmt.Errorf("period_seconds must be positive, got %d", *c.PeriodSeconds)
	}
	if c.ToleranceSeconds != nil && *c.ToleranceSeconds < 0 {
		return fmt.Errorf("tolerance_seconds must be non-negative, got %d", *c.ToleranceSeconds)
	}
	if c.MinCoverage != nil {
		if *c.MinCoverage < 0 || *c.MinCoverage > 1 {
			return fmt.Errorf("min_coverage must be between 0 and 1, got %f", *c.MinCoverage)
		}
	}
	if c.MaxGap != nil && *c.MaxGap != "" {
		if _, err := time.ParseDuration(*c.MaxGap); err != nil {
			return fmt.Errorf("invalid max_gap '%s': %w", *c.MaxGap, err)
		}
	}
	if c.Method != nil {
		switch *c.Method {
		case "nearest", "interpolate":
		default:
			return fmt.Errorf("method must be \"nearest\" or \"interpolate\", got %q", *c.Method)
		}
	}
	return nil
}

// GetPeriod returns the sampling period or the 5-minute default.
func (c *PipelineConfig) GetPeriod() time.Duration {
	if c.PeriodSeconds == nil {
		return 300 * time.Second
	}
	return time.Duration(*c.PeriodSeconds) * time.Second
}

// GetTolerance returns the alignment tolerance or the 10-second default.
func (c *PipelineConfig) GetTolerance() time.Duration {
	if c.ToleranceSeconds == nil {
		return 10 * time.Second
	}
	return time.Duration(*c.ToleranceSeconds) * time.Second
}

// GetMethod returns the alignment method or the default "nearest".
func (c *PipelineConfig) GetMethod() string {
	if c.Method == nil || *c.Method == "" {
		return "nearest"
	}
	return *c.Method
}

// GetMaxGap parses and returns the maximum allowed counter gap.
func (c *PipelineConfig) GetMaxGap() time.Duration {
	if c.MaxGap == nil || *c.MaxGap == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(*c.MaxGap)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetMinCoverage returns the minimum coverage fraction or the default.
func (c *PipelineConfig) GetMinCoverage() float64 {
	if c.MinCoverage == nil {
		return 0.9
	}
	return *c.MinCoverage
}

// GetDropOnFailure returns the drop_on_failure policy, default false.
func (c *PipelineConfig) GetDropOnFailure() bool {
	if c.DropOnFailure == nil {
		return false
	}
	return *c.DropOnFailure
}

// GetFillDownColumns returns the configured fill-down column list, which
// may be empty.
func (c *PipelineConfig) GetFillDownColumns() []string {
	return c.FillDownColumns
}
