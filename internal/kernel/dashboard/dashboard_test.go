package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/cbm"
	"github.com/empirica/kernel/internal/models"
)

func newTestDashboard(t *testing.T) (*Dashboard, *db.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	d := New(
		db.NewSessionRepository(database),
		db.NewCascadeRepository(database),
		db.NewReflexRepository(database),
		db.NewGoalRepository(database),
		db.NewBreadcrumbRepository(database),
		db.NewMistakeRepository(database),
		db.NewEventRepository(database),
		db.NewCalibrationRepository(database),
		db.NewTrustRepository(database),
		nil,
	)
	return d, database
}

func TestSnapshot_DegradesGracefullyForUnknownSession(t *testing.T) {
	d, _ := newTestDashboard(t)
	snap, err := d.Snapshot(context.Background(), "no-such-session")
	require.NoError(t, err)
	require.Contains(t, snap.Degraded, "session")
	require.Contains(t, snap.Degraded, "cbm")
}

func TestSnapshot_AggregatesLiveSessionState(t *testing.T) {
	d, database := newTestDashboard(t)

	sessions := db.NewSessionRepository(database)
	session := models.NewSession("ai-1")
	require.NoError(t, sessions.Create(session))

	cascade := models.NewCascade(session.SessionID, "investigate the bug")
	cascade.PreflightCompleted = true
	cascade.CheckCompleted = true
	require.NoError(t, db.NewCascadeRepository(database).Create(cascade))

	reflex := models.NewReflex(session.SessionID, "CHECK", models.NewDefaultVectors(), 1)
	require.NoError(t, db.NewReflexRepository(database).Create(reflex))

	goal := models.NewGoal(session.SessionID, "ship the fix", models.ScopeVector{Breadth: 0.5})
	require.NoError(t, db.NewGoalRepository(database).Create(goal))

	finding := models.NewFinding("", session.SessionID, "root cause is a stale cache entry", 0.7)
	require.NoError(t, db.NewBreadcrumbRepository(database).CreateFinding(finding))

	event := models.NewEpistemicEvent(models.EventSessionStarted, session.SessionID, nil)
	require.NoError(t, db.NewEventRepository(database).Create(event))

	d.CBMManagers = map[string]*cbm.Manager{}

	snap, err := d.Snapshot(context.Background(), session.SessionID)
	require.NoError(t, err)

	require.Equal(t, models.PhaseCheck, snap.CascadePhase)
	require.NotNil(t, snap.LatestVectors)
	require.Equal(t, 1, snap.GoalCount)
	require.Equal(t, 1, snap.FindingCount)
	require.Equal(t, 1, snap.EventCounts[string(models.EventSessionStarted)])
	require.Contains(t, snap.Degraded, "cbm")
	require.NotContains(t, snap.Degraded, "session")
	require.NotContains(t, snap.Degraded, "goals")
}
