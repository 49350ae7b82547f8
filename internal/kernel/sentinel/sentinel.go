// Package sentinel implements the Trust & Sentinel layer: a read-only,
// advisory autonomy gate computed from the session's accumulated,
// evidence-backed track record (SPEC_FULL.md §11, grounded on
// original_source/empirica/core/autonomy/graduated_sentinel.py and
// .../trust_calculator.py).
package sentinel

import (
	"context"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/models"
)

// Weights for TrustCalculator.Compute's weighted sum, mirroring the
// teacher's OverallConfidence weighted-sum-minus-penalty shape
// (models.EpistemicVectors.OverallConfidence).
const (
	weightGroundedCoverage = 0.35
	weightTrajectory       = 0.25
	weightCheckProceed     = 0.25
	weightMistakePenalty   = 0.15
)

// TrustCalculator computes trust scores from calibration and cascade
// history (SPEC_FULL.md §11).
type TrustCalculator struct {
	Calibration *db.CalibrationRepository
	Cascades    *db.CascadeRepository
	Mistakes    *db.MistakeRepository
	Trust       *db.TrustRepository
}

// New creates a TrustCalculator.
func New(calibration *db.CalibrationRepository, cascades *db.CascadeRepository, mistakes *db.MistakeRepository, trust *db.TrustRepository) *TrustCalculator {
	return &TrustCalculator{Calibration: calibration, Cascades: cascades, Mistakes: mistakes, Trust: trust}
}

// Compute derives a trust score in [0,1] for aiID from grounded-calibration
// coverage, trajectory direction, CHECK proceed ratio, and mistake rate,
// then persists the assessment (SPEC_FULL.md §11). sessionIDs scopes the
// session history considered (typically the AI's recent sessions).
func (t *TrustCalculator) Compute(ctx context.Context, aiID string, sessionIDs []string) (*models.TrustAssessment, error) {
	groundedCoverage, err := t.groundedCoverage(sessionIDs)
	if err != nil {
		return nil, err
	}

	trajectoryScore, err := t.trajectoryScore(aiID)
	if err != nil {
		return nil, err
	}

	checkProceedRatio, err := t.checkProceedRatio(sessionIDs)
	if err != nil {
		return nil, err
	}

	mistakeRate, err := t.mistakeRate(sessionIDs)
	if err != nil {
		return nil, err
	}

	score := weightGroundedCoverage*groundedCoverage +
		weightTrajectory*trajectoryScore +
		weightCheckProceed*checkProceedRatio -
		weightMistakePenalty*mistakeRate
	score = models.Clamp01(score)

	assessment := models.NewTrustAssessment(aiID, score, groundedCoverage, trajectoryScore, checkProceedRatio, mistakeRate)
	if err := t.Trust.Create(assessment); err != nil {
		return nil, err
	}
	return assessment, nil
}

func (t *TrustCalculator) groundedCoverage(sessionIDs []string) (float64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	var total, grounded int
	for _, sid := range sessionIDs {
		beliefs, err := t.Calibration.ListBeliefsForSession(sid)
		if err != nil {
			return 0, err
		}
		for _, b := range beliefs {
			total++
			if b.EvidenceCount > 0 {
				grounded++
			}
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(grounded) / float64(total), nil
}

// trajectoryScore maps a trajectory.Direction to a [0,1] score: closing is
// rewarded, widening is penalized (spec.md §4.7/§11).
func (t *TrustCalculator) trajectoryScore(aiID string) (float64, error) {
	var score, count float64
	for _, v := range models.AllVectorNames {
		if models.UngroundableVectors[v] {
			continue
		}
		points, err := t.Calibration.ListTrajectory(aiID, v, 10)
		if err != nil {
			return 0, err
		}
		if len(points) < 2 {
			continue
		}
		count++
		switch directionOf(points) {
		case models.TrajectoryClosing:
			score += 1.0
		case models.TrajectoryStable:
			score += 0.5
		case models.TrajectoryWidening:
			score += 0.0
		}
	}
	if count == 0 {
		return 0.5, nil
	}
	return score / count, nil
}

func directionOf(points []*models.CalibrationTrajectoryPoint) models.TrajectoryDirection {
	var xs, ys []float64
	for i, p := range points {
		if p.Gap == nil {
			continue
		}
		xs = append(xs, float64(i))
		v := *p.Gap
		if v < 0 {
			v = -v
		}
		ys = append(ys, v)
	}
	if len(xs) < 2 {
		return models.TrajectoryStable
	}
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return models.TrajectoryStable
	}
	slope := (n*sumXY - sumX*sumY) / denom
	switch {
	case slope < -0.01:
		return models.TrajectoryClosing
	case slope > 0.01:
		return models.TrajectoryWidening
	default:
		return models.TrajectoryStable
	}
}

func (t *TrustCalculator) checkProceedRatio(sessionIDs []string) (float64, error) {
	var proceed, total int
	for _, sid := range sessionIDs {
		cascade, err := t.cascadeForSession(sid)
		if err != nil || cascade == nil {
			continue
		}
		if cascade.LastCheckDecision == nil {
			continue
		}
		total++
		if *cascade.LastCheckDecision == "proceed" || *cascade.LastCheckDecision == "proceed_with_caveat" {
			proceed++
		}
	}
	if total == 0 {
		return 0.5, nil
	}
	return float64(proceed) / float64(total), nil
}

func (t *TrustCalculator) cascadeForSession(sessionID string) (*models.Cascade, error) {
	return t.Cascades.GetLatestBySession(sessionID)
}

func (t *TrustCalculator) mistakeRate(sessionIDs []string) (float64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	var total int
	for _, sid := range sessionIDs {
		mistakes, err := t.Mistakes.List(sid, nil, -1)
		if err != nil {
			return 0, err
		}
		total += len(mistakes)
	}
	avgPerSession := float64(total) / float64(len(sessionIDs))
	return models.Clamp01(avgPerSession / 5.0), nil
}

// GraduatedSentinel exposes the tier mapping as its own collaborator,
// matching graduated_sentinel.py's separation from trust_calculator.py.
type GraduatedSentinel struct{}

// Tier maps a trust score to its autonomy tier (models.TierForScore).
func (GraduatedSentinel) Tier(score float64) models.AutonomyTier {
	return models.TierForScore(score)
}

// Latest retrieves the most recently computed assessment for aiID, or nil
// if none exists yet.
func (t *TrustCalculator) Latest(ctx context.Context, aiID string) (*models.TrustAssessment, error) {
	return t.Trust.Latest(aiID)
}
