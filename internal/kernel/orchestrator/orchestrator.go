// Package orchestrator implements the Parallel Orchestrator: Plan/Regulate/
// Aggregate over a fan-out of independent investigation sub-agents
// (spec.md §4.4, grounded on
// original_source/empirica/core/parallel_orchestrator.py and
// intelligencedev-manifold's errgroup-based bounded worker pool idiom).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/empirica/kernel/internal/kernel/attention"
	"github.com/empirica/kernel/internal/models"
)

// DefaultMaxAgents caps concurrent sub-agents per plan (spec.md §4.4/§5).
const DefaultMaxAgents = 5

// DefaultWallClockTimeout bounds a full orchestration round (spec.md §5).
const DefaultWallClockTimeout = 120

// RoundsWithoutNovelStopThreshold is how many consecutive rounds of no
// novel findings trigger a stale stop (spec.md §4.4).
const RoundsWithoutNovelStopThreshold = 2

// domainKeywords maps domain names to the keyword signals that select them
// during Plan's text scan (spec.md §4.4 step 1).
var domainKeywords = map[string][]string{
	"security":    {"security", "vulnerability", "exploit", "auth", "injection"},
	"performance": {"performance", "latency", "slow", "throughput", "bottleneck"},
	"correctness": {"bug", "incorrect", "wrong", "fails", "broken"},
	"reliability": {"crash", "panic", "timeout", "flaky", "retry"},
	"usability":   {"confusing", "ux", "ergonomic", "documentation"},
}

// Finder repository surface needed by Plan to seed priors; satisfied by
// internal/db's BreadcrumbRepository (findings/dead-ends) and
// CalibrationRepository is intentionally not required here — Plan only
// needs prior-finding counts, not belief state.
type PriorLookup interface {
	PriorCounts(ctx context.Context, sessionID, domain string) (findings, deadEnds int, err error)
}

// Orchestrator runs Plan/Regulate/Aggregate for one session.
type Orchestrator struct {
	Priors    PriorLookup
	MaxAgents int
}

// New creates an Orchestrator with spec.md §4.4 defaults.
func New(priors PriorLookup) *Orchestrator {
	return &Orchestrator{Priors: priors, MaxAgents: DefaultMaxAgents}
}

// DetectDomains scans task text for keyword signals, falling back to
// ["general"] when nothing matches (spec.md §4.4 step 1).
func DetectDomains(task string) []string {
	lower := strings.ToLower(task)
	var domains []string
	for domain, keywords := range domainKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				domains = append(domains, domain)
				break
			}
		}
	}
	if len(domains) == 0 {
		return []string{"general"}
	}
	return domains
}

var personas = []string{"investigator", "skeptic", "domain_expert", "synthesizer", "adversary"}

func personaFor(i int) string {
	return personas[i%len(personas)]
}

// Plan builds an OrchestrationPlan: domain detection, agent capping, prior
// lookup, attention budget construction, and per-agent focus assignment
// (spec.md §4.4).
func (o *Orchestrator) Plan(ctx context.Context, sessionID, cascadeID, task string, domains []string, maxAgents int, vectors *models.EpistemicVectors) (*models.OrchestrationPlan, error) {
	if len(domains) == 0 {
		domains = DetectDomains(task)
	}
	if maxAgents <= 0 {
		maxAgents = o.maxAgents()
	}
	if len(domains) > maxAgents {
		domains = domains[:maxAgents]
	}

	priorFindings := make(map[string]int, len(domains))
	deadEnds := make(map[string]int, len(domains))
	for _, d := range domains {
		if o.Priors == nil {
			continue
		}
		f, de, err := o.Priors.PriorCounts(ctx, sessionID, d)
		if err != nil {
			continue
		}
		priorFindings[d] = f
		deadEnds[d] = de
	}

	budget := attention.CreateBudget(sessionID, domains, vectors, priorFindings, deadEnds, budgetTotalFor(len(domains)))

	allocations := make([]models.AgentAllocation, 0, len(budget.Allocations))
	for i, alloc := range budget.Allocations {
		allocations = append(allocations, models.AgentAllocation{
			Domain:       alloc.Domain,
			Persona:      personaFor(i),
			Focus:        fmt.Sprintf("Investigate %s aspects of: %s", alloc.Domain, task),
			Budget:       alloc.Budget,
			ExpectedGain: alloc.ExpectedGain,
		})
	}

	return &models.OrchestrationPlan{
		CascadeID:   cascadeID,
		SessionID:   sessionID,
		Task:        task,
		Allocations: allocations,
		TotalBudget: budget.TotalBudget,
	}, nil
}

func (o *Orchestrator) maxAgents() int {
	if o.MaxAgents <= 0 {
		return DefaultMaxAgents
	}
	return o.MaxAgents
}

func budgetTotalFor(numDomains int) int {
	if numDomains == 0 {
		return 10
	}
	return numDomains * 10
}

// Regulate decides whether a running round should continue, spawn more
// agents, or stop, following spec.md §4.4's ordered checks.
func (o *Orchestrator) Regulate(domain string, result *models.RollupResult, round int, roundsWithoutNovel int, vectors *models.EpistemicVectors, priorFindings, deadEnds int) *models.RegulationDecision {
	if result.BudgetRemaining <= 0 {
		return &models.RegulationDecision{Domain: domain, Action: models.RegulationStop, Reason: "budget exhausted"}
	}

	novelCount := 0
	for _, f := range result.Accepted {
		if f.Novelty > 0.3 {
			novelCount++
		}
	}
	if novelCount == 0 {
		roundsWithoutNovel++
	} else {
		roundsWithoutNovel = 0
	}
	if roundsWithoutNovel >= RoundsWithoutNovelStopThreshold {
		return &models.RegulationDecision{Domain: domain, Action: models.RegulationStop, Reason: "stale"}
	}

	gain := attention.EstimateAggregateGain(vectors, priorFindings, deadEnds)
	if gain < 0.1 {
		return &models.RegulationDecision{Domain: domain, Action: models.RegulationStop, Reason: "low gain", ExpectedGain: gain}
	}

	if novelCount > 3 {
		return &models.RegulationDecision{Domain: domain, Action: models.RegulationSpawnMore, Reason: "high novel yield", ExpectedGain: gain}
	}

	return &models.RegulationDecision{Domain: domain, Action: models.RegulationContinue, Reason: "proceeding", ExpectedGain: gain}
}

// AgentResult is one sub-agent's contribution to an Aggregate call.
type AgentResult struct {
	Domain     string
	Vectors    *models.EpistemicVectors
	Findings   []*models.ScoredFinding
	Confidence float64
}

// Aggregate merges agent results into a single AggregatedSynthesis:
// confidence-weighted vector synthesis, exact-text dedup, and
// consensus/conflict domain classification (spec.md §4.4).
func Aggregate(cascadeID string, domains []string, results []AgentResult) *models.AggregatedSynthesis {
	synthesis := &models.AggregatedSynthesis{CascadeID: cascadeID, Domains: domains}

	seen := make(map[string]bool)
	findingDomains := make(map[string]int)
	for _, r := range results {
		hasFindings := false
		for _, f := range r.Findings {
			hasFindings = true
			if seen[f.Finding] {
				continue
			}
			seen[f.Finding] = true
			synthesis.AcceptedFindings = append(synthesis.AcceptedFindings, f)
		}
		if hasFindings {
			findingDomains[r.Domain]++
		}
	}

	synthesis.Vectors = aggregateVectors(results)

	var summary strings.Builder
	for _, d := range domains {
		switch {
		case findingDomains[d] >= 2:
			summary.WriteString(d + ": consensus; ")
		case findingDomains[d] == 0:
			summary.WriteString(d + ": conflict (no findings); ")
		}
	}
	synthesis.Summary = strings.TrimSuffix(summary.String(), "; ")

	return synthesis
}

// aggregateVectors computes the confidence-weighted vector synthesis
// (spec.md §4.4), returned for callers that need the merged epistemic
// state alongside the synthesis (e.g. a cascade ACT decision).
func aggregateVectors(results []AgentResult) *models.EpistemicVectors {
	if len(results) == 0 {
		return models.NewDefaultVectors()
	}
	var totalConf float64
	sums := make(map[string]float64)
	for _, r := range results {
		if r.Vectors == nil || r.Confidence <= 0 {
			continue
		}
		totalConf += r.Confidence
		for k, v := range r.Vectors.ToMap() {
			sums[k] += v * r.Confidence
		}
	}
	if totalConf == 0 {
		return models.NewDefaultVectors()
	}
	merged := &models.EpistemicVectors{}
	weighted := make(map[string]float64, len(sums))
	for k, v := range sums {
		weighted[k] = v / totalConf
	}
	merged.FromMap(weighted)
	return merged
}

// Launch runs a bounded fan-out of sub-agent work functions, capping
// concurrency at maxAgents and respecting ctx cancellation — the
// errgroup-based worker pool idiom (spec.md §5). The round carries a
// DefaultWallClockTimeout-second deadline; a worker that fails, or returns
// after the deadline or a cancellation, is dropped from the results.
func Launch(ctx context.Context, maxAgents int, work []func(context.Context) (AgentResult, error)) ([]AgentResult, error) {
	if maxAgents <= 0 {
		maxAgents = DefaultMaxAgents
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultWallClockTimeout*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxAgents)

	results := make([]AgentResult, len(work))
	errored := make([]bool, len(work))
	for i, fn := range work {
		i, fn := i, fn
		g.Go(func() error {
			r, err := fn(gctx)
			if err != nil || gctx.Err() != nil {
				errored[i] = true
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]AgentResult, 0, len(results))
	for i, r := range results {
		if !errored[i] {
			out = append(out, r)
		}
	}
	return out, nil
}
