package calibration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/bus"
	"github.com/empirica/kernel/internal/models"
)

// DefaultTrajectoryLookback is the number of prior sessions' trajectory
// points considered for the slope regression (spec.md §4.7).
const DefaultTrajectoryLookback = 10

// Tracker runs the Grounded Calibration Track for one session: collecting
// evidence, mapping it to vectors, Bayesian-updating belief state, and
// recording trajectory (spec.md §4.7, grounded on grounded_calibration.py's
// GroundedCalibrationTrack orchestrator).
type Tracker struct {
	Repo *db.CalibrationRepository
	Bus  *bus.Bus
	Log  zerolog.Logger
}

// New creates a Tracker. bus may be nil if event emission is not wanted.
func New(repo *db.CalibrationRepository, eventBus *bus.Bus, log zerolog.Logger) *Tracker {
	return &Tracker{Repo: repo, Bus: eventBus, Log: log}
}

// mappedValue is the quality-weighted average for one vector, produced by
// Map before the Bayesian update (spec.md §4.7).
type mappedValue struct {
	value      float64
	confidence float64
	weight     float64
	count      int
}

// Map aggregates evidence items into a per-vector weighted average and
// confidence, per spec.md §4.7:
//
//	grounded[v] = Σ(item.value × quality_weight) / Σ quality_weight
//	confidence[v] = min(1.0, total_weight / evidence_count)
func Map(items []*models.EvidenceItem) map[models.VectorName]mappedValue {
	sums := make(map[models.VectorName]float64)
	weights := make(map[models.VectorName]float64)
	counts := make(map[models.VectorName]int)

	for _, item := range items {
		w := float64(item.Quality)
		for _, v := range item.SupportsVectors {
			if models.UngroundableVectors[v] {
				continue
			}
			sums[v] += item.NormalizedValue * w
			weights[v] += w
			counts[v]++
		}
	}

	out := make(map[models.VectorName]mappedValue, len(sums))
	for v, sum := range sums {
		w := weights[v]
		if w == 0 {
			continue
		}
		confidence := w / float64(counts[v])
		if confidence > 1.0 {
			confidence = 1.0
		}
		out[v] = mappedValue{value: sum / w, confidence: confidence, weight: w, count: counts[v]}
	}
	return out
}

// Run executes one postflight pass of the Grounded Calibration Track:
// collecting from every Collector (tolerating individual failures),
// mapping to vectors, Bayesian-updating the belief store, and recording
// divergence against selfAssessed. phase is "noetic", "praxic" or
// "combined" (spec.md §4.7's phase-aware mode).
func (t *Tracker) Run(ctx context.Context, sessionID, aiID string, collectors []Collector, selfAssessed *models.EpistemicVectors, phase string) (*models.GroundedVerification, error) {
	var allItems []*models.EvidenceItem
	var sourcesAvailable, sourcesFailed []string

	for _, c := range collectors {
		items, err := c.Collect(ctx, sessionID)
		if err != nil {
			sourcesFailed = append(sourcesFailed, c.Name())
			t.Log.Warn().Err(err).Str("collector", c.Name()).Msg("evidence collector failed")
			continue
		}
		if items == nil {
			sourcesFailed = append(sourcesFailed, c.Name())
			continue
		}
		sourcesAvailable = append(sourcesAvailable, c.Name())
		allItems = append(allItems, items...)
	}

	mapped := Map(allItems)

	groundedVectors := make(map[models.VectorName]float64)
	gaps := make(map[models.VectorName]float64)
	selfMap := selfAssessed.ToMap()

	for v, m := range mapped {
		belief, err := t.Repo.GetBelief(sessionID, aiID, v, phase)
		if err != nil {
			return nil, err
		}
		if belief == nil {
			belief = models.NewGroundedBelief(sessionID, aiID, v, phase)
		}
		belief.Update(m.value, m.confidence, "grounded_calibration")
		if self, ok := selfMap[string(v)]; ok {
			belief.SetSelfReferential(self)
		}
		if err := t.Repo.UpsertBelief(belief); err != nil {
			return nil, err
		}

		groundedVectors[v] = belief.Mean
		if belief.Divergence != nil {
			gaps[v] = *belief.Divergence
		}

		if self, ok := selfMap[string(v)]; ok {
			grounded := belief.Mean
			point := models.NewCalibrationTrajectoryPoint(sessionID, aiID, v, self, &grounded, phase)
			if err := t.Repo.CreateTrajectoryPoint(point); err != nil {
				t.Log.Warn().Err(err).Msg("failed to record calibration trajectory point")
			}
		}

		for _, item := range allItems {
			if !containsVector(item.SupportsVectors, v) {
				continue
			}
			// Evidence rows are per (item, vector) link, each with its own
			// identity: the same EvidenceItem can support several beliefs.
			link := *item
			link.ID = uuid.New().String()
			link.BeliefID = belief.ID
			if err := t.Repo.CreateEvidence(&link); err != nil {
				t.Log.Warn().Err(err).Msg("failed to persist evidence item")
			}
		}
	}

	coverage := 0.0
	if len(models.AllVectorNames) > 0 {
		coverage = float64(len(groundedVectors)) / float64(len(models.AllVectorNames)-len(models.UngroundableVectors))
	}

	overallScore := calibrationScore(gaps)

	verification := &models.GroundedVerification{
		VerificationID:          uuid.New().String(),
		SessionID:                sessionID,
		AIID:                     aiID,
		SelfAssessedVectors:      selfAssessed,
		GroundedVectors:          groundedVectors,
		CalibrationGaps:          gaps,
		GroundedCoverage:         coverage,
		OverallCalibrationScore:  overallScore,
		EvidenceCount:            len(allItems),
		SourcesAvailable:         sourcesAvailable,
		SourcesFailed:            sourcesFailed,
		Phase:                    phase,
		RanAt:                    time.Now(),
	}

	if err := t.Repo.CreateVerification(verification); err != nil {
		return nil, err
	}

	if t.Bus != nil {
		data := map[string]any{
			"grounded_coverage":         coverage,
			"overall_calibration_score": overallScore,
			"phase":                     phase,
		}
		if overallScore < 0.5 {
			event := models.NewEpistemicEvent(models.EventDivergenceDetected, sessionID, data)
			t.Bus.Publish(ctx, event)
		} else {
			event := models.NewEpistemicEvent(models.EventCalibrationUpdated, sessionID, data)
			t.Bus.Publish(ctx, event)
		}
	}

	return verification, nil
}

// calibrationScore turns per-vector gaps into a single [0,1] score: 1.0
// means perfectly calibrated (zero average absolute gap), 0.0 means a gap
// of 1.0 or more on average.
func calibrationScore(gaps map[models.VectorName]float64) float64 {
	if len(gaps) == 0 {
		return 1.0
	}
	var sum float64
	for _, g := range gaps {
		sum += absF(g)
	}
	avg := sum / float64(len(gaps))
	return models.Clamp01(1.0 - avg)
}

func containsVector(vs []models.VectorName, target models.VectorName) bool {
	for _, v := range vs {
		if v == target {
			return true
		}
	}
	return false
}

// Direction performs a linear regression on the absolute gap of the
// trajectory points (oldest first) and classifies the slope per spec.md
// §4.7: slope < -0.01 is closing, slope > 0.01 is widening, else stable.
func Direction(points []*models.CalibrationTrajectoryPoint) models.TrajectoryDirection {
	var xs, ys []float64
	for i, p := range points {
		if p.Gap == nil {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, absF(*p.Gap))
	}
	if len(xs) < 2 {
		return models.TrajectoryStable
	}

	slope := linearSlope(xs, ys)
	switch {
	case slope < -0.01:
		return models.TrajectoryClosing
	case slope > 0.01:
		return models.TrajectoryWidening
	default:
		return models.TrajectoryStable
	}
}

// linearSlope computes the least-squares slope of y = a + b*x.
func linearSlope(xs, ys []float64) float64 {
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
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
