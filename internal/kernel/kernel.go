// Package kernel wires the seven core subsystems plus the System
// Dashboard and Trust & Sentinel tracks into one explicit, non-singleton
// object (SPEC_FULL.md §2/§9, grounded on the Design Note that forbids
// package-level kernel state).
package kernel

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/empirica/kernel/internal/config"
	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/attention"
	"github.com/empirica/kernel/internal/kernel/bus"
	"github.com/empirica/kernel/internal/kernel/calibration"
	"github.com/empirica/kernel/internal/kernel/cascade"
	"github.com/empirica/kernel/internal/kernel/cbm"
	"github.com/empirica/kernel/internal/kernel/dashboard"
	"github.com/empirica/kernel/internal/kernel/gitnotes"
	"github.com/empirica/kernel/internal/kernel/orchestrator"
	"github.com/empirica/kernel/internal/kernel/rollup"
	"github.com/empirica/kernel/internal/kernel/sentinel"
	"github.com/empirica/kernel/internal/models"
	"github.com/empirica/kernel/internal/vectorstore"
)

// Kernel owns the one *db.DB and one *bus.Bus for a process, plus a
// per-session Context Budget Manager, and constructs every other
// subsystem on demand. No package under internal/kernel holds a
// package-level instance of this type; the CLI layer keeps one, set in
// its PersistentPreRunE (SPEC_FULL.md §9).
type Kernel struct {
	DB     *db.DB
	Bus    *bus.Bus
	Config *config.Config
	Log    zerolog.Logger
	Notes  *gitnotes.Store

	repos repositories

	mu   sync.Mutex
	cbms map[string]*cbm.Manager
}

type repositories struct {
	sessions    *db.SessionRepository
	reflexes    *db.ReflexRepository
	cascades    *db.CascadeRepository
	goals       *db.GoalRepository
	subtasks    *db.SubtaskRepository
	breadcrumbs *db.BreadcrumbRepository
	mistakes    *db.MistakeRepository
	events      *db.EventRepository
	cbmState    *db.CBMStateRepository
	attention   *db.AttentionBudgetRepository
	calibration *db.CalibrationRepository
	rollup      *db.RollupRepository
	trust       *db.TrustRepository
	handoff     *db.HandoffRepository
}

// New wires a Kernel over an already-open *db.DB. workDir roots the
// git-notes store; cfg may be nil (config.Default() is used).
func New(database *db.DB, workDir string, cfg *config.Config, log zerolog.Logger) *Kernel {
	if cfg == nil {
		cfg = config.Default()
	}

	k := &Kernel{
		DB:     database,
		Bus:    bus.New(),
		Config: cfg,
		Log:    log,
		Notes:  gitnotes.New(workDir),
		cbms:   make(map[string]*cbm.Manager),
		repos: repositories{
			sessions:    db.NewSessionRepository(database),
			reflexes:    db.NewReflexRepository(database),
			cascades:    db.NewCascadeRepository(database),
			goals:       db.NewGoalRepository(database),
			subtasks:    db.NewSubtaskRepository(database),
			breadcrumbs: db.NewBreadcrumbRepository(database),
			mistakes:    db.NewMistakeRepository(database),
			events:      db.NewEventRepository(database),
			cbmState:    db.NewCBMStateRepository(database),
			attention:   db.NewAttentionBudgetRepository(database),
			calibration: db.NewCalibrationRepository(database),
			rollup:      db.NewRollupRepository(database),
			trust:       db.NewTrustRepository(database),
			handoff:     db.NewHandoffRepository(database),
		},
	}

	k.Bus.Subscribe(bus.NewSQLiteObserver(k.repos.events, log))
	return k
}

// EnableVectorObserver wires an optional semantic-search observer over
// the pluggable vector backend (SPEC_FULL.md §6.4). Pass vectorstore.NewNoop()
// and vectorstore.NewNoopEmbedder() when no backend is configured.
func (k *Kernel) EnableVectorObserver(ctx context.Context, store vectorstore.Store, embedder vectorstore.Embedder) {
	k.Bus.Subscribe(bus.NewVectorObserver(ctx, store, embedder, k.Log))
}

// Cascade returns a Cascade State Machine bound to this Kernel's DB/Bus.
func (k *Kernel) Cascade() *cascade.Engine {
	return cascade.New(k.repos.sessions, k.repos.cascades, k.repos.reflexes, k.Bus)
}

// CBM returns the live Context Budget Manager for sessionID, creating one
// with the configured thresholds on first use (SPEC_FULL.md §9: one
// *cbm.Manager per open session, held by the Kernel rather than a global).
func (k *Kernel) CBM(sessionID string) (*cbm.Manager, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if mgr, ok := k.cbms[sessionID]; ok {
		return mgr, nil
	}
	thresholds := models.BudgetThresholds{
		TotalCapacity:           k.Config.TotalCapacity,
		AnchorReserve:           k.Config.AnchorReserve,
		WorkingSetTarget:        k.Config.WorkingSetTarget,
		CacheLimit:              k.Config.CacheLimit,
		EvictionAggressiveness:  k.Config.EvictionAggressiveness,
		DecayRate:               k.Config.DecayRate,
		MinPriorityThreshold:    k.Config.MinPriorityThreshold,
		PageFaultRetrievalLimit: 5,
		PressureThreshold:       k.Config.PressureThreshold,
	}
	mgr, err := cbm.New(sessionID, thresholds, k.repos.cbmState, k.Bus)
	if err != nil {
		return nil, err
	}
	k.cbms[sessionID] = mgr
	return mgr, nil
}

// liveCBMs snapshots the session->manager map for the Dashboard, which
// needs to read (not create) whatever managers are already running.
func (k *Kernel) liveCBMs() map[string]*cbm.Manager {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[string]*cbm.Manager, len(k.cbms))
	for k2, v := range k.cbms {
		out[k2] = v
	}
	return out
}

// Calibration returns a Grounded Calibration Track tracker.
func (k *Kernel) Calibration() *calibration.Tracker {
	return calibration.New(k.repos.calibration, k.Bus, k.Log)
}

// Rollup returns a Rollup Gate using the configured thresholds.
func (k *Kernel) Rollup() *rollup.Gate {
	g := rollup.New(k.repos.rollup, k.Bus, k.Log)
	g.MinScore = k.Config.RollupMinScore
	g.JaccardThreshold = k.Config.RollupJaccardThreshold
	return g
}

// Sentinel returns a Trust & Sentinel calculator.
func (k *Kernel) Sentinel() *sentinel.TrustCalculator {
	return sentinel.New(k.repos.calibration, k.repos.cascades, k.repos.mistakes, k.repos.trust)
}

// Dashboard returns a System Dashboard reader.
func (k *Kernel) Dashboard() *dashboard.Dashboard {
	return dashboard.New(k.repos.sessions, k.repos.cascades, k.repos.reflexes, k.repos.goals,
		k.repos.breadcrumbs, k.repos.mistakes, k.repos.events, k.repos.calibration, k.repos.trust,
		k.liveCBMs())
}

// Orchestrator returns a Parallel Orchestrator wired to this Kernel's
// breadcrumb store for prior-finding/dead-end lookups.
func (k *Kernel) Orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(&breadcrumbPriors{repo: k.repos.breadcrumbs})
}

// breadcrumbPriors adapts BreadcrumbRepository to orchestrator.PriorLookup,
// treating a finding/dead-end's Subject field as its domain tag since the
// session store has no dedicated domain column (SPEC_FULL.md §6.1).
type breadcrumbPriors struct {
	repo *db.BreadcrumbRepository
}

func (p *breadcrumbPriors) PriorCounts(ctx context.Context, sessionID, domain string) (int, int, error) {
	findings, err := p.repo.ListFindings("", sessionID, -1)
	if err != nil {
		return 0, 0, err
	}
	deadEnds, err := p.repo.ListDeadEnds("", sessionID, -1)
	if err != nil {
		return 0, 0, err
	}

	findingCount := 0
	for _, f := range findings {
		if f.Subject != nil && *f.Subject == domain {
			findingCount++
		}
	}
	deadEndCount := 0
	for _, d := range deadEnds {
		if d.Subject != nil && *d.Subject == domain {
			deadEndCount++
		}
	}
	return findingCount, deadEndCount, nil
}

// AttentionBudget builds a fresh attention.AttentionBudget using the
// configured default total when the caller does not override it.
func (k *Kernel) AttentionBudget(sessionID string, domains []string, vectors *models.EpistemicVectors, priorFindings, deadEnds map[string]int, total int) *models.AttentionBudget {
	if total <= 0 {
		total = k.Config.AttentionBudgetDefaultTotal
	}
	return attention.CreateBudget(sessionID, domains, vectors, priorFindings, deadEnds, total)
}

// Messages returns the inter-agent async messaging layer over git notes.
func (k *Kernel) Messages() *gitnotes.MessageStore {
	return gitnotes.NewMessageStore(k.Notes)
}
