package sentinel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/models"
)

func newTestCalculator(t *testing.T) (*TrustCalculator, *db.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	return New(
		db.NewCalibrationRepository(database),
		db.NewCascadeRepository(database),
		db.NewMistakeRepository(database),
		db.NewTrustRepository(database),
	), database
}

func TestCompute_HighGroundedCoverageAndNoMistakesYieldsHighScore(t *testing.T) {
	calc, database := newTestCalculator(t)
	sessions := db.NewSessionRepository(database)

	session := models.NewSession("ai-1")
	require.NoError(t, sessions.Create(session))

	cascade := models.NewCascade(session.SessionID, "task")
	proceed := "proceed"
	cascade.LastCheckDecision = &proceed
	require.NoError(t, db.NewCascadeRepository(database).Create(cascade))

	belief := models.NewGroundedBelief(session.SessionID, "ai-1", models.VectorKnow, "CHECK")
	belief.EvidenceCount = 3
	require.NoError(t, db.NewCalibrationRepository(database).UpsertBelief(belief))

	assessment, err := calc.Compute(context.Background(), "ai-1", []string{session.SessionID})
	require.NoError(t, err)
	require.NotNil(t, assessment)

	// groundedCoverage=1, trajectory defaults to 0.5 (too few points),
	// checkProceedRatio=1, mistakeRate=0 ->
	// 0.35*1 + 0.25*0.5 + 0.25*1 - 0.15*0 = 0.725
	require.InDelta(t, 0.725, assessment.Score, 1e-9)
	require.Equal(t, models.TierAutonomous, assessment.Tier)
}

func TestCompute_MistakesPenalizeScore(t *testing.T) {
	calc, database := newTestCalculator(t)
	sessions := db.NewSessionRepository(database)

	session := models.NewSession("ai-2")
	require.NoError(t, sessions.Create(session))

	mistakes := db.NewMistakeRepository(database)
	for i := 0; i < 5; i++ {
		require.NoError(t, mistakes.Create(models.NewMistake(session.SessionID, "repeated the same broken query", "correctness")))
	}

	withMistakes, err := calc.Compute(context.Background(), "ai-2", []string{session.SessionID})
	require.NoError(t, err)

	withoutSession := models.NewSession("ai-3")
	require.NoError(t, sessions.Create(withoutSession))
	clean, err := calc.Compute(context.Background(), "ai-3", []string{withoutSession.SessionID})
	require.NoError(t, err)

	require.Less(t, withMistakes.Score, clean.Score)
}

func TestGraduatedSentinel_TierThresholds(t *testing.T) {
	s := GraduatedSentinel{}
	require.Equal(t, models.TierSupervised, s.Tier(0.1))
	require.Equal(t, models.TierAdvisory, s.Tier(0.5))
	require.Equal(t, models.TierAutonomous, s.Tier(0.7))
	require.Equal(t, models.TierTrusted, s.Tier(0.9))
}

func TestLatest_ReturnsMostRecentlyComputedAssessment(t *testing.T) {
	calc, database := newTestCalculator(t)
	sessions := db.NewSessionRepository(database)
	session := models.NewSession("ai-4")
	require.NoError(t, sessions.Create(session))

	_, err := calc.Compute(context.Background(), "ai-4", []string{session.SessionID})
	require.NoError(t, err)

	latest, err := calc.Latest(context.Background(), "ai-4")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "ai-4", latest.AIID)
}
