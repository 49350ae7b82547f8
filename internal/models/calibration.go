package models

import (
	"time"

	"github.com/google/uuid"
)

// EvidenceQuality weights how much an EvidenceItem is trusted when mapped
// into a GroundedBelief update (spec.md §4.7: OBJECTIVE=1.0,
// SEMI_OBJECTIVE=0.7, INFERRED=0.4, grounded on grounded_calibration.py's
// EvidenceQuality enum).
type EvidenceQuality float64

const (
	QualityObjective     EvidenceQuality = 1.0
	QualitySemiObjective EvidenceQuality = 0.7
	QualityInferred       EvidenceQuality = 0.4
)

// EvidenceItem is a single unit of externally-checkable evidence emitted by
// one of the Grounded Calibration Track's evidence sources (goals,
// artifacts, sentinel, tests, git) — spec.md §4.7, grounded on
// grounded_calibration.py's EvidenceItem dataclass.
type EvidenceItem struct {
	ID              string          `json:"id" db:"id"`
	SessionID       string          `json:"session_id" db:"session_id"`
	BeliefID        string          `json:"belief_id" db:"belief_id"`
	Source          string          `json:"source" db:"source"`
	MetricName      string          `json:"metric_name" db:"metric_name"`
	NormalizedValue float64         `json:"normalized_value" db:"normalized_value"`
	RawValue        float64         `json:"raw_value" db:"raw_value"`
	Quality         EvidenceQuality `json:"quality" db:"quality"`
	SupportsVectors []VectorName    `json:"supports_vectors"`
	Phase           string          `json:"phase" db:"phase"` // "noetic" | "praxic" | "combined"
	Metadata        map[string]any  `json:"metadata,omitempty"`
	RecordedAt      time.Time       `json:"recorded_at" db:"recorded_at"`
}

// NewEvidenceItem stamps an EvidenceItem with a fresh ID and timestamp.
func NewEvidenceItem(sessionID, source, metricName string, normalizedValue, rawValue float64, quality EvidenceQuality, supports []VectorName) *EvidenceItem {
	return &EvidenceItem{
		ID:              uuid.New().String(),
		SessionID:       sessionID,
		Source:          source,
		MetricName:      metricName,
		NormalizedValue: Clamp01(normalizedValue),
		RawValue:        rawValue,
		Quality:         quality,
		SupportsVectors: supports,
		RecordedAt:      time.Now(),
	}
}

// GroundedBelief is the per-(session, vector) Bayesian calibration record
// driven by objective evidence (spec.md §3/§4.7, grounded on
// grounded_calibration.py's GroundedBelief dataclass). Prior mean=0.5,
// variance=0.25; each update narrows variance monotonically (spec.md §8
// invariant 6: "information cannot increase uncertainty in this model").
type GroundedBelief struct {
	ID                   string     `json:"id" db:"id"`
	SessionID            string     `json:"session_id" db:"session_id"`
	AIID                 string     `json:"ai_id" db:"ai_id"`
	Vector               VectorName `json:"vector_name" db:"vector_name"`
	Mean                 float64    `json:"mean" db:"mean"`
	Variance             float64    `json:"variance" db:"variance"`
	EvidenceCount        int        `json:"evidence_count" db:"evidence_count"`
	LastObservation       *float64  `json:"last_observation,omitempty" db:"last_observation"`
	LastObservationSource string    `json:"last_observation_source,omitempty" db:"last_observation_source"`
	SelfReferentialMean  *float64   `json:"self_referential_mean,omitempty" db:"self_referential_mean"`
	Divergence           *float64   `json:"divergence,omitempty" db:"divergence"`
	Phase                string     `json:"phase" db:"phase"`
	Grounded             bool       `json:"grounded" db:"grounded"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// PriorMean and PriorVariance are the Bayesian prior for every vector before
// any evidence is observed (spec.md §3).
const (
	PriorMean     = 0.5
	PriorVariance = 0.25

	// BaseObservationVariance is the Grounded track's observation variance,
	// lower than the self-referential track's 0.1 because objective
	// evidence is trusted more (spec.md §3/§6.5 grounded_observation_variance).
	BaseObservationVariance = 0.05
)

// NewGroundedBelief starts a belief at the canonical Gaussian prior
// (spec.md §3: mean=0.5, variance=0.25).
func NewGroundedBelief(sessionID, aiID string, vector VectorName, phase string) *GroundedBelief {
	return &GroundedBelief{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		AIID:          aiID,
		Vector:        vector,
		Mean:          PriorMean,
		Variance:      PriorVariance,
		EvidenceCount: 0,
		Phase:         phase,
		Grounded:      !UngroundableVectors[vector],
		UpdatedAt:     time.Now(),
	}
}

// Update performs the spec.md §4.7 Bayesian Gaussian update in place:
//
//	obs_var = 0.05 / max(confidence, 0.1)
//	posterior_mean = (prior_var*obs + obs_var*prior_mean) / (prior_var+obs_var)
//	posterior_var  = 1 / (1/prior_var + 1/obs_var)
//
// and records the observation's source and value, returning the previous
// variance so callers can assert the monotonic-narrowing invariant.
func (g *GroundedBelief) Update(obs, confidence float64, source string) float64 {
	priorVariance := g.Variance
	if confidence < 0.1 {
		confidence = 0.1
	}
	obsVar := BaseObservationVariance / confidence

	posteriorMean := (priorVariance*obs + obsVar*g.Mean) / (priorVariance + obsVar)
	posteriorVar := 1.0 / (1.0/priorVariance + 1.0/obsVar)

	g.Mean = Clamp01(posteriorMean)
	g.Variance = posteriorVar
	g.EvidenceCount++
	observed := obs
	g.LastObservation = &observed
	g.LastObservationSource = source
	g.UpdatedAt = time.Now()
	return priorVariance
}

// SetSelfReferential stamps the comparison self-assessed value and
// recomputes Divergence = self_assessed - grounded_mean (spec.md §4.7/§glossary).
func (g *GroundedBelief) SetSelfReferential(selfAssessed float64) {
	g.SelfReferentialMean = &selfAssessed
	d := selfAssessed - g.Mean
	g.Divergence = &d
}

// TrajectoryDirection classifies the slope of absolute-gap regression over a
// lookback window (spec.md §4.7).
type TrajectoryDirection string

const (
	TrajectoryClosing  TrajectoryDirection = "closing"
	TrajectoryWidening TrajectoryDirection = "widening"
	TrajectoryStable   TrajectoryDirection = "stable"
)

// CalibrationTrajectoryPoint is one sample in a vector's calibration history
// over time (spec.md §3/§4.7/§6.1).
type CalibrationTrajectoryPoint struct {
	PointID      string     `json:"point_id" db:"point_id"`
	SessionID    string     `json:"session_id" db:"session_id"`
	AIID         string     `json:"ai_id" db:"ai_id"`
	Vector       VectorName `json:"vector_name" db:"vector_name"`
	SelfAssessed float64    `json:"self_assessed" db:"self_assessed"`
	Grounded     *float64   `json:"grounded,omitempty" db:"grounded"`
	Gap          *float64   `json:"gap,omitempty" db:"gap"`
	Domain       string     `json:"domain,omitempty" db:"domain"`
	GoalID       string     `json:"goal_id,omitempty" db:"goal_id"`
	Phase        string     `json:"phase" db:"phase"`
	Timestamp    time.Time  `json:"timestamp" db:"timestamp"`
}

// NewCalibrationTrajectoryPoint records one (self, grounded) sample.
func NewCalibrationTrajectoryPoint(sessionID, aiID string, vector VectorName, selfAssessed float64, grounded *float64, phase string) *CalibrationTrajectoryPoint {
	p := &CalibrationTrajectoryPoint{
		PointID:      uuid.New().String(),
		SessionID:    sessionID,
		AIID:         aiID,
		Vector:       vector,
		SelfAssessed: selfAssessed,
		Grounded:     grounded,
		Phase:        phase,
		Timestamp:    time.Now(),
	}
	if grounded != nil {
		gap := selfAssessed - *grounded
		p.Gap = &gap
	}
	return p
}

// GroundedVerification is the durable outcome of one grounded-calibration
// run for a session: self-assessed vs grounded vectors, the per-vector
// gaps, and which evidence sources succeeded/failed (spec.md §6.1, grounded
// on grounded_calibration.py's run_grounded_verification).
type GroundedVerification struct {
	VerificationID         string             `json:"verification_id" db:"verification_id"`
	SessionID              string             `json:"session_id" db:"session_id"`
	AIID                   string             `json:"ai_id" db:"ai_id"`
	SelfAssessedVectors    *EpistemicVectors  `json:"self_assessed_vectors"`
	GroundedVectors        map[VectorName]float64 `json:"grounded_vectors"`
	CalibrationGaps        map[VectorName]float64 `json:"calibration_gaps"`
	GroundedCoverage       float64            `json:"grounded_coverage" db:"grounded_coverage"`
	OverallCalibrationScore float64           `json:"overall_calibration_score" db:"overall_calibration_score"`
	EvidenceCount          int                `json:"evidence_count" db:"evidence_count"`
	SourcesAvailable       []string           `json:"sources_available"`
	SourcesFailed          []string           `json:"sources_failed"`
	Domain                 string             `json:"domain,omitempty" db:"domain"`
	GoalID                 string             `json:"goal_id,omitempty" db:"goal_id"`
	Phase                  string             `json:"phase" db:"phase"`
	RanAt                  time.Time          `json:"ran_at" db:"ran_at"`
}
