package models

import (
	"time"

	"github.com/google/uuid"
)

// AutonomyTier is a graduated-autonomy level assigned by the sentinel
// (SPEC_FULL.md §11, grounded on autonomy/graduated_sentinel.py's tiers).
type AutonomyTier string

const (
	TierSupervised AutonomyTier = "supervised"
	TierAdvisory   AutonomyTier = "advisory"
	TierAutonomous AutonomyTier = "autonomous"
	TierTrusted    AutonomyTier = "trusted"
)

// TierForScore maps a trust score in [0,1] to its autonomy tier.
func TierForScore(score float64) AutonomyTier {
	switch {
	case score < 0.4:
		return TierSupervised
	case score < 0.65:
		return TierAdvisory
	case score < 0.85:
		return TierAutonomous
	default:
		return TierTrusted
	}
}

// TrustAssessment is the output of TrustCalculator.Compute (SPEC_FULL.md
// §11, grounded on autonomy/trust_calculator.py's weighted-score design).
// It is advisory only and never blocks a kernel operation.
type TrustAssessment struct {
	ID                  string       `json:"id" db:"id"`
	AIID                string       `json:"ai_id" db:"ai_id"`
	Score               float64      `json:"score" db:"score"`
	Tier                AutonomyTier `json:"tier" db:"tier"`
	GroundedCoverage    float64      `json:"grounded_coverage" db:"grounded_coverage"`
	TrajectoryDirection float64      `json:"trajectory_direction" db:"trajectory_direction"`
	CheckProceedRatio   float64      `json:"check_proceed_ratio" db:"check_proceed_ratio"`
	MistakeRate         float64      `json:"mistake_rate" db:"mistake_rate"`
	ComputedAt          time.Time    `json:"computed_at" db:"computed_at"`
}

// NewTrustAssessment stamps a fresh assessment with a generated ID and the
// tier derived from score.
func NewTrustAssessment(aiID string, score, groundedCoverage, trajectoryDirection, checkProceedRatio, mistakeRate float64) *TrustAssessment {
	return &TrustAssessment{
		ID:                  uuid.New().String(),
		AIID:                aiID,
		Score:               score,
		Tier:                TierForScore(score),
		GroundedCoverage:    groundedCoverage,
		TrajectoryDirection: trajectoryDirection,
		CheckProceedRatio:   checkProceedRatio,
		MistakeRate:         mistakeRate,
		ComputedAt:          time.Now(),
	}
}
