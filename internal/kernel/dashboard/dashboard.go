// Package dashboard implements the System Dashboard: a pure read-only
// aggregation across every kernel subsystem for a session, the epistemic
// kernel's analogue of /proc (SPEC_FULL.md §10, grounded on
// original_source/empirica/core/system_dashboard.py).
package dashboard

import (
	"context"
	"time"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/cbm"
	"github.com/empirica/kernel/internal/models"
)

// Dashboard assembles DashboardSnapshots from already-persisted state. It
// never mutates anything, and each sub-read degrades independently: a
// missing CBM manager or absent grounded beliefs yields a zero-value
// section rather than an error (spec.md §7).
type Dashboard struct {
	Sessions    *db.SessionRepository
	Cascades    *db.CascadeRepository
	Reflexes    *db.ReflexRepository
	Goals       *db.GoalRepository
	Breadcrumbs *db.BreadcrumbRepository
	Mistakes    *db.MistakeRepository
	Events      *db.EventRepository
	Calibration *db.CalibrationRepository
	Trust       *db.TrustRepository

	// CBMManagers maps a live session to its in-memory Context Budget
	// Manager, if any is currently running (spec.md §10: "if a manager is
	// live for the session").
	CBMManagers map[string]*cbm.Manager
}

// New creates a Dashboard over the given repositories. cbmManagers may be
// nil when no CBM managers are tracked by the caller.
func New(sessions *db.SessionRepository, cascades *db.CascadeRepository, reflexes *db.ReflexRepository,
	goals *db.GoalRepository, breadcrumbs *db.BreadcrumbRepository, mistakes *db.MistakeRepository,
	events *db.EventRepository, calibration *db.CalibrationRepository, trust *db.TrustRepository,
	cbmManagers map[string]*cbm.Manager) *Dashboard {
	return &Dashboard{
		Sessions: sessions, Cascades: cascades, Reflexes: reflexes, Goals: goals,
		Breadcrumbs: breadcrumbs, Mistakes: mistakes, Events: events,
		Calibration: calibration, Trust: trust, CBMManagers: cbmManagers,
	}
}

// Snapshot assembles a read-only DashboardSnapshot for sessionID.
func (d *Dashboard) Snapshot(ctx context.Context, sessionID string) (*models.DashboardSnapshot, error) {
	snap := &models.DashboardSnapshot{
		SessionID:   sessionID,
		GeneratedAt: time.Now(),
	}

	session, err := d.Sessions.Get(sessionID)
	if err != nil || session == nil {
		snap.Degraded = append(snap.Degraded, "session")
	}

	if cascade, err := d.latestCascade(sessionID); err == nil && cascade != nil {
		snap.CascadePhase = currentPhase(cascade)
	} else {
		snap.Degraded = append(snap.Degraded, "cascade")
	}

	if reflexes, err := d.Reflexes.ListBySession(sessionID, 1); err == nil && len(reflexes) > 0 {
		snap.LatestVectors = reflexes[0].ToVectors()
	} else {
		snap.Degraded = append(snap.Degraded, "reflex")
	}

	if mgr, ok := d.CBMManagers[sessionID]; ok && mgr != nil {
		snap.Budget = mgr.GetBudgetReport()
	} else {
		snap.Degraded = append(snap.Degraded, "cbm")
	}

	d.fillGoals(sessionID, snap)
	d.fillArtifacts(session, sessionID, snap)
	d.fillEvents(sessionID, snap)
	d.fillCalibration(sessionID, snap)

	if session != nil {
		if trust, err := d.Trust.Latest(session.AIID); err == nil && trust != nil {
			snap.Trust = trust
		} else {
			snap.Degraded = append(snap.Degraded, "trust")
		}
	}

	return snap, nil
}

func (d *Dashboard) latestCascade(sessionID string) (*models.Cascade, error) {
	return d.Cascades.GetLatestBySession(sessionID)
}

func currentPhase(c *models.Cascade) models.CASCADEPhase {
	switch {
	case c.PostflightCompleted:
		return models.PhasePostflight
	case c.ActCompleted:
		return models.PhaseAct
	case c.CheckCompleted:
		return models.PhaseCheck
	case c.InvestigateCompleted:
		return models.PhaseInvestigate
	case c.PreflightCompleted:
		return models.PhasePreflight
	default:
		return models.PhasePreflight
	}
}

func (d *Dashboard) fillGoals(sessionID string, snap *models.DashboardSnapshot) {
	goals, err := d.Goals.List(sessionID, nil, -1)
	if err != nil {
		snap.Degraded = append(snap.Degraded, "goals")
		return
	}
	snap.GoalCount = len(goals)
}

func (d *Dashboard) fillArtifacts(session *models.Session, sessionID string, snap *models.DashboardSnapshot) {
	projectID := ""
	if session != nil && session.ProjectID != nil {
		projectID = *session.ProjectID
	}

	findings, err := d.Breadcrumbs.ListFindings(projectID, sessionID, -1)
	if err != nil {
		snap.Degraded = append(snap.Degraded, "findings")
	} else {
		snap.FindingCount = len(findings)
	}

	unknowns, err := d.Breadcrumbs.ListUnknowns(projectID, sessionID, nil, -1)
	if err != nil {
		snap.Degraded = append(snap.Degraded, "unknowns")
	} else {
		snap.UnknownCount = len(unknowns)
	}

	deadEnds, err := d.Breadcrumbs.ListDeadEnds(projectID, sessionID, -1)
	if err != nil {
		snap.Degraded = append(snap.Degraded, "dead_ends")
	} else {
		snap.DeadEndCount = len(deadEnds)
	}

	mistakes, err := d.Mistakes.List(sessionID, nil, -1)
	if err != nil {
		snap.Degraded = append(snap.Degraded, "mistakes")
	} else {
		snap.MistakeCount = len(mistakes)
	}
}

func (d *Dashboard) fillEvents(sessionID string, snap *models.DashboardSnapshot) {
	events, err := d.Events.Query(models.EventQuery{SessionID: sessionID, Limit: 0})
	if err != nil {
		snap.Degraded = append(snap.Degraded, "events")
		return
	}
	snap.EventCounts = make(map[string]int)
	for _, e := range events {
		snap.EventCounts[string(e.Type)]++
	}
}

func (d *Dashboard) fillCalibration(sessionID string, snap *models.DashboardSnapshot) {
	beliefs, err := d.Calibration.ListBeliefsForSession(sessionID)
	if err != nil || len(beliefs) == 0 {
		snap.Degraded = append(snap.Degraded, "calibration")
		return
	}
	var sum float64
	var count int
	for _, b := range beliefs {
		if b.Divergence != nil {
			v := *b.Divergence
			if v < 0 {
				v = -v
			}
			sum += v
			count++
		}
	}
	if count > 0 {
		snap.CalibrationDrift = sum / float64(count)
	}
}
