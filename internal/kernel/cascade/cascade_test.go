package cascade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/bus"
	"github.com/empirica/kernel/internal/kernel/errs"
	"github.com/empirica/kernel/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, *db.SessionRepository, string) {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	sessions := db.NewSessionRepository(database)
	cascades := db.NewCascadeRepository(database)
	reflexes := db.NewReflexRepository(database)
	eventBus := bus.New()

	session := models.NewSession("a1")
	require.NoError(t, sessions.Create(session))

	return New(sessions, cascades, reflexes, eventBus), sessions, session.SessionID
}

func TestStartCascade_UnknownSessionFails(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	defer database.Close()

	engine := New(db.NewSessionRepository(database), db.NewCascadeRepository(database), db.NewReflexRepository(database), bus.New())
	_, err = engine.StartCascade(context.Background(), "does-not-exist", "do something")
	assert.ErrorIs(t, err, errs.ErrNoSession)
}

func TestStartCascade_WritesPreflightReflex(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "Refactor auth")
	require.NoError(t, err)
	assert.True(t, c.PreflightCompleted)
	assert.Equal(t, sessionID, c.SessionID)
}

// Scenario A from spec.md §8: confidence 0.85 at CHECK proceeds.
func TestSubmitCheck_HighConfidenceProceeds(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "Refactor auth")
	require.NoError(t, err)

	result, err := engine.SubmitCheck(context.Background(), c.CascadeID, "read auth.py", 0.85, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionProceed, result.Decision)
}

func TestSubmitCheck_ModerateConfidenceProceedsWithCaveat(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "task")
	require.NoError(t, err)

	result, err := engine.SubmitCheck(context.Background(), c.CascadeID, "partial read", 0.65, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionProceedWithCaveat, result.Decision)
}

// Scenario C from spec.md §8: repeated low-confidence CHECK rounds return
// investigate with suggested next_targets; the fifth round escalates.
func TestSubmitCheck_RecalibrationLoopThenEscalate(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "task")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		result, err := engine.SubmitCheck(context.Background(), c.CascadeID, "still unclear", 0.5, []string{"file x unclear"})
		require.NoError(t, err)
		if i < 5-1 {
			assert.Equal(t, models.DecisionInvestigate, result.Decision, "round %d", i)
			assert.Contains(t, result.NextTargets, "Read relevant source files")
		} else {
			assert.Equal(t, models.DecisionEscalate, result.Decision, "round %d", i)
		}
	}
}

func TestSubmitAct_BlockedAfterInvestigateDecision(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "task")
	require.NoError(t, err)

	_, err = engine.SubmitCheck(context.Background(), c.CascadeID, "unclear", 0.4, []string{"doc missing"})
	require.NoError(t, err)

	err = engine.SubmitAct(context.Background(), c.CascadeID, "proceeded anyway")
	assert.ErrorIs(t, err, errs.ErrPhaseViolation)
}

func TestSubmitAct_AllowedAfterProceed(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "task")
	require.NoError(t, err)

	_, err = engine.SubmitCheck(context.Background(), c.CascadeID, "confident", 0.9, nil)
	require.NoError(t, err)

	err = engine.SubmitAct(context.Background(), c.CascadeID, "added PKCE")
	assert.NoError(t, err)
}

// Scenario A: well-calibrated verdict when |check confidence - postflight
// confidence| <= 0.15.
func TestSubmitPostflight_WellCalibratedVerdict(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "Refactor auth")
	require.NoError(t, err)

	_, err = engine.SubmitCheck(context.Background(), c.CascadeID, "read auth.py", 0.85, nil)
	require.NoError(t, err)
	require.NoError(t, engine.SubmitAct(context.Background(), c.CascadeID, "added PKCE"))

	postflight := models.NewDefaultVectors()
	postflight.Know = 0.85
	postflight.Uncertainty = 0.15
	postflight.Engagement = 0.85
	postflight.Completion = 1.0

	report, err := engine.SubmitPostflight(context.Background(), c.CascadeID, "added PKCE", postflight, "learned OAuth2 PKCE flow")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictWellCalibrated, report.Verdict)
}

// Scenario B: CHECK confidence 0.9, POSTFLIGHT confidence much lower ->
// overconfident, with a positive gap.
func TestSubmitPostflight_OverconfidentVerdict(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "task")
	require.NoError(t, err)

	_, err = engine.SubmitCheck(context.Background(), c.CascadeID, "confident", 0.9, nil)
	require.NoError(t, err)
	require.NoError(t, engine.SubmitAct(context.Background(), c.CascadeID, "did the work"))

	postflight := models.NewDefaultVectors()
	postflight.Know = 0.2
	postflight.Do = 0.2
	postflight.Context = 0.2
	postflight.Engagement = 0.2
	postflight.Uncertainty = 0.9

	report, err := engine.SubmitPostflight(context.Background(), c.CascadeID, "summary", postflight, "notes")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictOverconfident, report.Verdict)
	assert.Greater(t, report.Gap, 0.15)
}

func TestSubmitPostflight_BlockedAfterEscalate(t *testing.T) {
	engine, _, sessionID := newTestEngine(t)
	c, err := engine.StartCascade(context.Background(), sessionID, "task")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = engine.SubmitCheck(context.Background(), c.CascadeID, "unclear", 0.5, []string{"unclear"})
		require.NoError(t, err)
	}

	_, err = engine.SubmitPostflight(context.Background(), c.CascadeID, "summary", models.NewDefaultVectors(), "notes")
	assert.ErrorIs(t, err, errs.ErrPhaseViolation)
}
