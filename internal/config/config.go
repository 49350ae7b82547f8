// Package config loads the kernel's tunable configuration from
// .empirica/config.yaml, following the rest of the pack's YAML
// convention (spec.md §6, SPEC_FULL.md §6.5, grounded on the teacher
// carrying no config file and intelligencedev-manifold/vinayprograms-agent's
// yaml.v3 loaders).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/empirica/kernel/internal/kernel/errs"
)

// Config holds every recognized option from spec.md §6, grouped by the
// subsystem that consumes it.
type Config struct {
	// Context Budget Manager (spec.md §4.2).
	TotalCapacity          int     `yaml:"total_capacity"`
	AnchorReserve          int     `yaml:"anchor_reserve"`
	WorkingSetTarget       int     `yaml:"working_set_target"`
	CacheLimit             int     `yaml:"cache_limit"`
	EvictionAggressiveness float64 `yaml:"eviction_aggressiveness"`
	DecayRate              float64 `yaml:"decay_rate"`
	MinPriorityThreshold   float64 `yaml:"min_priority_threshold"`
	PressureThreshold      float64 `yaml:"pressure_threshold"`

	// Cascade State Machine (spec.md §4.1).
	MaxRecalibrationCycles     int     `yaml:"max_recalibration_cycles"`
	ConfidenceThresholdProceed float64 `yaml:"confidence_threshold_proceed"`
	ConfidenceThresholdCaveat  float64 `yaml:"confidence_threshold_caveat"`

	// Attention Budget Allocator (spec.md §4.3).
	AttentionBudgetDefaultTotal int     `yaml:"attention_budget_default_total"`
	AttentionDeadEndPenalty     float64 `yaml:"attention_dead_end_penalty"`
	AttentionDiminishingRate    float64 `yaml:"attention_diminishing_rate"`

	// Rollup Gate (spec.md §4.5).
	RollupMinScore          float64 `yaml:"rollup_min_score"`
	RollupJaccardThreshold  float64 `yaml:"rollup_jaccard_threshold"`

	// Grounded Calibration Track (spec.md §4.7).
	CalibrationTolerance        float64 `yaml:"calibration_tolerance"`
	GroundedObservationVariance float64 `yaml:"grounded_observation_variance"`
	CalibrationMaxCorrection    float64 `yaml:"calibration_max_correction"`

	// Vector backend (SPEC_FULL.md §6.4), absent from spec.md's option
	// list but required to stand up the pluggable Qdrant adapter.
	QdrantHost   string `yaml:"qdrant_host"`
	QdrantPort   int    `yaml:"qdrant_port"`
	QdrantAPIKey string `yaml:"qdrant_api_key"`
	QdrantTLS    bool   `yaml:"qdrant_tls"`
}

// Default returns the built-in defaults, matching spec.md §6's enumerated
// values exactly.
func Default() *Config {
	return &Config{
		TotalCapacity:          200000,
		AnchorReserve:          15000,
		WorkingSetTarget:       150000,
		CacheLimit:             35000,
		EvictionAggressiveness: 0.5,
		DecayRate:              0.1,
		MinPriorityThreshold:   0.05,
		PressureThreshold:      0.85,

		MaxRecalibrationCycles:     5,
		ConfidenceThresholdProceed: 0.8,
		ConfidenceThresholdCaveat:  0.6,

		AttentionBudgetDefaultTotal: 20,
		AttentionDeadEndPenalty:     0.5,
		AttentionDiminishingRate:    0.3,

		RollupMinScore:         0.3,
		RollupJaccardThreshold: 0.7,

		CalibrationTolerance:        0.15,
		GroundedObservationVariance: 0.05,
		CalibrationMaxCorrection:    0.3,

		QdrantPort: 6334,
	}
}

// Load reads path (defaulting to .empirica/config.yaml) and overlays it
// on Default(). A missing file is not an error — callers get defaults.
// Malformed YAML is wrapped as ErrBadInput.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".empirica/config.yaml"
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, errs.ErrBadInput)
	}
	return cfg, nil
}
