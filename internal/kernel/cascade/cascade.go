// Package cascade implements the Cascade State Machine: the orchestration
// spine enforcing PREFLIGHT -> (INVESTIGATE <-> CHECK)* -> ACT -> POSTFLIGHT
// (spec.md §4.1, grounded on the teacher's Cascade/Reflex models and
// CascadeRepository, generalized from a fixed 7-flag completion record into
// a gated decision engine).
package cascade

import (
	"context"
	"fmt"
	"strings"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/bus"
	"github.com/empirica/kernel/internal/kernel/errs"
	"github.com/empirica/kernel/internal/models"
)

const (
	confidenceThresholdProceed = 0.8
	confidenceThresholdCaveat  = 0.6
	maxCycles                  = 5
	calibrationTolerance       = 0.15
)

// Engine runs the cascade state machine against the session store and
// publishes phase-transition events (spec.md §4.1).
type Engine struct {
	sessions *db.SessionRepository
	cascades *db.CascadeRepository
	reflexes *db.ReflexRepository
	bus      *bus.Bus
}

// New wires a cascade Engine.
func New(sessions *db.SessionRepository, cascades *db.CascadeRepository, reflexes *db.ReflexRepository, eventBus *bus.Bus) *Engine {
	return &Engine{sessions: sessions, cascades: cascades, reflexes: reflexes, bus: eventBus}
}

// StartCascade emits a PREFLIGHT reflex with baseline vectors and publishes
// session_started. Fails with ErrNoSession if the session does not exist.
func (e *Engine) StartCascade(ctx context.Context, sessionID, userPrompt string) (*models.Cascade, error) {
	session, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("look up session: %w", errs.ErrPersistFailed)
	}
	if session == nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, errs.ErrNoSession)
	}

	cascade := models.NewCascade(sessionID, userPrompt)
	if err := e.cascades.Create(cascade); err != nil {
		return nil, fmt.Errorf("create cascade: %w", errs.ErrPersistFailed)
	}

	baseline := models.NewDefaultVectors()
	reflex := models.NewReflex(sessionID, string(models.PhasePreflight), baseline, 0)
	reflex.CascadeID = &cascade.CascadeID
	if err := e.reflexes.Create(reflex); err != nil {
		return nil, fmt.Errorf("write preflight reflex: %w", errs.ErrPersistFailed)
	}
	cascade.PreflightCompleted = true

	e.bus.Publish(ctx, models.NewEpistemicEvent(models.EventCascadeStarted, sessionID, map[string]any{
		"cascade_id": cascade.CascadeID,
		"task":       userPrompt,
	}))

	return cascade, nil
}

// SubmitCheck computes a CHECK decision from confidence and cycle count, and
// persists a CHECK reflex. ACT may not proceed while the decision is
// investigate or escalate (spec.md §4.1's invariant).
func (e *Engine) SubmitCheck(ctx context.Context, cascadeID, summary string, confidence float64, gaps []string) (*models.CheckResult, error) {
	cascade, err := e.cascades.Get(cascadeID)
	if err != nil {
		return nil, fmt.Errorf("look up cascade: %w", errs.ErrPersistFailed)
	}
	if cascade == nil {
		return nil, fmt.Errorf("cascade %q: %w", cascadeID, errs.ErrNoSession)
	}

	cycle := cascade.InvestigationRounds
	result := &models.CheckResult{CascadeID: cascadeID, Confidence: confidence, Cycle: cycle}

	switch {
	case confidence >= confidenceThresholdProceed:
		result.Decision = models.DecisionProceed
	case confidence >= confidenceThresholdCaveat:
		result.Decision = models.DecisionProceedWithCaveat
	case cycle >= maxCycles:
		result.Decision = models.DecisionEscalate
		result.Reason = "max recalibration cycles reached"
	default:
		result.Decision = models.DecisionInvestigate
		result.NextTargets = nextTargets(gaps)
	}

	vectors := models.NewDefaultVectors()
	vectors.Uncertainty = 1 - confidence
	reflex := models.NewReflex(cascade.SessionID, string(models.PhaseCheck), vectors, cycle+1)
	reflex.CascadeID = &cascadeID
	reflex.Reasoning = &summary
	if err := e.reflexes.Create(reflex); err != nil {
		return nil, fmt.Errorf("write check reflex: %w", errs.ErrPersistFailed)
	}

	cascade.InvestigationRounds = cycle + 1
	decisionStr := string(result.Decision)
	cascade.LastCheckDecision = &decisionStr
	if err := e.cascades.UpdatePhase(cascadeID, "CHECK", true); err != nil {
		return nil, fmt.Errorf("update cascade phase: %w", errs.ErrPersistFailed)
	}

	e.bus.Publish(ctx, models.NewEpistemicEvent(models.EventCascadePhaseChange, cascade.SessionID, map[string]any{
		"cascade_id": cascadeID,
		"phase":      "CHECK",
		"decision":   result.Decision,
		"confidence": confidence,
	}))

	return result, nil
}

// SubmitAct records ACT work against the cascade. It enforces spec.md
// §4.1's invariant that no ACT may execute while the most recent CHECK
// decision is investigate or escalate.
func (e *Engine) SubmitAct(ctx context.Context, cascadeID, actionSummary string) error {
	cascade, err := e.cascades.Get(cascadeID)
	if err != nil {
		return fmt.Errorf("look up cascade: %w", errs.ErrPersistFailed)
	}
	if cascade == nil {
		return fmt.Errorf("cascade %q: %w", cascadeID, errs.ErrNoSession)
	}
	if cascade.LastCheckDecision != nil {
		switch models.CheckDecision(*cascade.LastCheckDecision) {
		case models.DecisionInvestigate, models.DecisionEscalate:
			return fmt.Errorf("last check decision %q: %w", *cascade.LastCheckDecision, errs.ErrPhaseViolation)
		}
	}

	round := cascade.InvestigationRounds + 1
	vectors := models.NewDefaultVectors()
	reflex := models.NewReflex(cascade.SessionID, string(models.PhaseAct), vectors, round)
	reflex.CascadeID = &cascadeID
	reflex.Reasoning = &actionSummary
	if err := e.reflexes.Create(reflex); err != nil {
		return fmt.Errorf("write act reflex: %w", errs.ErrPersistFailed)
	}
	if err := e.cascades.UpdatePhase(cascadeID, "ACT", true); err != nil {
		return fmt.Errorf("update cascade phase: %w", errs.ErrPersistFailed)
	}

	e.bus.Publish(ctx, models.NewEpistemicEvent(models.EventActionDecided, cascade.SessionID, map[string]any{
		"cascade_id": cascadeID,
		"summary":    actionSummary,
	}))
	return nil
}

// nextTargets maps investigation gaps to suggested next actions via keyword
// matching (spec.md §4.1).
func nextTargets(gaps []string) []string {
	var targets []string
	seen := map[string]bool{}
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}
	for _, gap := range gaps {
		lower := strings.ToLower(gap)
		if containsAny(lower, "file", "code") {
			add("Read relevant source files")
		}
		if containsAny(lower, "doc") {
			add("Read relevant documentation")
		}
		if containsAny(lower, "architecture", "structure") {
			add("Map system architecture")
		}
		if containsAny(lower, "dependency", "import") {
			add("Check dependency graph")
		}
	}
	if len(targets) == 0 && len(gaps) > 0 {
		add("Read relevant source files")
	}
	return targets
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// SubmitPostflight computes the delta from PREFLIGHT vectors and a
// calibration verdict from the gap between CHECK and POSTFLIGHT confidence,
// then marks the cascade terminal (spec.md §4.1: "POSTFLIGHT is terminal").
func (e *Engine) SubmitPostflight(ctx context.Context, cascadeID, taskSummary string, postflightVectors *models.EpistemicVectors, learningNotes string) (*models.PostflightReport, error) {
	cascade, err := e.cascades.Get(cascadeID)
	if err != nil {
		return nil, fmt.Errorf("look up cascade: %w", errs.ErrPersistFailed)
	}
	if cascade == nil {
		return nil, fmt.Errorf("cascade %q: %w", cascadeID, errs.ErrNoSession)
	}
	if cascade.LastCheckDecision != nil {
		switch models.CheckDecision(*cascade.LastCheckDecision) {
		case models.DecisionInvestigate, models.DecisionEscalate:
			return nil, fmt.Errorf("last check decision %q: %w", *cascade.LastCheckDecision, errs.ErrPhaseViolation)
		}
	}

	preflight, err := e.reflexes.GetLatestByPhase(cascade.SessionID, string(models.PhasePreflight))
	if err != nil {
		return nil, fmt.Errorf("look up preflight reflex: %w", errs.ErrPersistFailed)
	}

	round := cascade.InvestigationRounds + 1
	reflex := models.NewReflex(cascade.SessionID, string(models.PhasePostflight), postflightVectors, round)
	reflex.CascadeID = &cascadeID
	reflex.Reasoning = &learningNotes
	if err := e.reflexes.Create(reflex); err != nil {
		return nil, fmt.Errorf("write postflight reflex: %w", errs.ErrPersistFailed)
	}

	checkReflex, err := e.reflexes.GetLatestByPhase(cascade.SessionID, string(models.PhaseCheck))
	if err != nil {
		return nil, fmt.Errorf("look up check reflex: %w", errs.ErrPersistFailed)
	}

	var delta *models.EpistemicVectors
	if preflight != nil {
		delta = postflightVectors.Delta(preflight.ToVectors())
	} else {
		delta = postflightVectors
	}

	// Both sides are read as 1 - uncertainty, the same scale SubmitCheck
	// records confidence on.
	var checkConfidence float64
	if checkReflex != nil && checkReflex.Uncertainty != nil {
		checkConfidence = 1 - *checkReflex.Uncertainty
	}
	postflightConfidence := 1 - postflightVectors.Uncertainty
	gap := checkConfidence - postflightConfidence

	verdict := models.VerdictWellCalibrated
	absGap := gap
	if absGap < 0 {
		absGap = -absGap
	}
	if absGap > calibrationTolerance {
		if gap > 0 {
			verdict = models.VerdictOverconfident
		} else {
			verdict = models.VerdictUnderconfident
		}
	}

	if err := e.cascades.Complete(cascadeID, string(models.ActionProceed), postflightConfidence); err != nil {
		return nil, fmt.Errorf("complete cascade: %w", errs.ErrPersistFailed)
	}
	if err := e.cascades.UpdatePhase(cascadeID, "POSTFLIGHT", true); err != nil {
		return nil, fmt.Errorf("update cascade phase: %w", errs.ErrPersistFailed)
	}

	e.bus.Publish(ctx, models.NewEpistemicEvent(models.EventCascadeCompleted, cascade.SessionID, map[string]any{
		"cascade_id": cascadeID,
		"verdict":    verdict,
		"gap":        gap,
	}))

	return &models.PostflightReport{
		CascadeID:     cascadeID,
		Delta:         delta,
		Verdict:       verdict,
		Gap:           gap,
		LearningNotes: learningNotes,
	}, nil
}
