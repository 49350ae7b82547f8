package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/models"
)

type fakePriors struct {
	counts map[string][2]int
	err    error
}

func (f *fakePriors) PriorCounts(ctx context.Context, sessionID, domain string) (int, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	c := f.counts[domain]
	return c[0], c[1], nil
}

func TestDetectDomains_MatchesKeywords(t *testing.T) {
	domains := DetectDomains("there is a SQL injection vulnerability in the login handler")
	assert.Contains(t, domains, "security")
}

func TestDetectDomains_FallsBackToGeneral(t *testing.T) {
	domains := DetectDomains("please tidy up the formatting")
	assert.Equal(t, []string{"general"}, domains)
}

func TestPlan_CapsAtMaxAgents(t *testing.T) {
	o := New(&fakePriors{counts: map[string][2]int{}})
	o.MaxAgents = 2
	plan, err := o.Plan(context.Background(), "s1", "c1", "security performance reliability bug", nil, 0, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(plan.Allocations), 2)
}

func TestPlan_ToleratesPriorLookupFailure(t *testing.T) {
	o := New(&fakePriors{err: errors.New("boom")})
	plan, err := o.Plan(context.Background(), "s1", "c1", "generic task", []string{"general"}, 5, nil)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
}

func TestRegulate_StopsOnBudgetExhausted(t *testing.T) {
	o := New(nil)
	decision := o.Regulate("security", &models.RollupResult{BudgetRemaining: 0}, 1, 0, nil, 0, 0)
	assert.Equal(t, models.RegulationStop, decision.Action)
	assert.Contains(t, decision.Reason, "budget")
}

// Spec.md §8 boundary behavior: zero sub-agent findings after max rounds ->
// stop (stale) on the second consecutive empty round.
func TestRegulate_StopsStaleAfterTwoEmptyRounds(t *testing.T) {
	o := New(nil)
	vectors := &models.EpistemicVectors{Know: 0.3, Uncertainty: 0.5}
	empty := &models.RollupResult{BudgetRemaining: 10}

	first := o.Regulate("security", empty, 1, 0, vectors, 0, 0)
	assert.NotEqual(t, models.RegulationStop, first.Action)

	second := o.Regulate("security", empty, 2, 1, vectors, 0, 0)
	assert.Equal(t, models.RegulationStop, second.Action)
	assert.Equal(t, "stale", second.Reason)
}

func TestRegulate_SpawnsMoreOnHighNovelYield(t *testing.T) {
	o := New(nil)
	vectors := &models.EpistemicVectors{Know: 0.1, Uncertainty: 0.9}
	result := &models.RollupResult{BudgetRemaining: 10}
	for i := 0; i < 5; i++ {
		result.Accepted = append(result.Accepted, &models.ScoredFinding{Novelty: 0.9})
	}
	decision := o.Regulate("security", result, 1, 0, vectors, 0, 0)
	assert.Equal(t, models.RegulationSpawnMore, decision.Action)
}

func TestAggregate_ConfidenceWeightedVectors(t *testing.T) {
	results := []AgentResult{
		{Domain: "security", Vectors: &models.EpistemicVectors{Know: 1.0}, Confidence: 1.0},
		{Domain: "security", Vectors: &models.EpistemicVectors{Know: 0.0}, Confidence: 0.0},
	}
	synthesis := Aggregate("c1", []string{"security"}, results)
	assert.InDelta(t, 1.0, synthesis.Vectors.Know, 1e-9)
}

func TestAggregate_DeduplicatesExactFindings(t *testing.T) {
	f1 := &models.ScoredFinding{Finding: "dup"}
	f2 := &models.ScoredFinding{Finding: "dup"}
	results := []AgentResult{
		{Domain: "security", Findings: []*models.ScoredFinding{f1}, Confidence: 1.0, Vectors: models.NewDefaultVectors()},
		{Domain: "security", Findings: []*models.ScoredFinding{f2}, Confidence: 1.0, Vectors: models.NewDefaultVectors()},
	}
	synthesis := Aggregate("c1", []string{"security"}, results)
	assert.Len(t, synthesis.AcceptedFindings, 1)
}

func TestAggregate_IdentifiesConsensusAndConflictDomains(t *testing.T) {
	results := []AgentResult{
		{Domain: "security", Findings: []*models.ScoredFinding{{Finding: "a"}}, Confidence: 1.0, Vectors: models.NewDefaultVectors()},
		{Domain: "security", Findings: []*models.ScoredFinding{{Finding: "b"}}, Confidence: 1.0, Vectors: models.NewDefaultVectors()},
	}
	synthesis := Aggregate("c1", []string{"security", "performance"}, results)
	assert.Contains(t, synthesis.Summary, "security: consensus")
	assert.Contains(t, synthesis.Summary, "performance: conflict")
}

func TestLaunch_BoundsConcurrencyAndToleratesFailures(t *testing.T) {
	work := make([]func(context.Context) (AgentResult, error), 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		work = append(work, func(ctx context.Context) (AgentResult, error) {
			if i == 2 {
				return AgentResult{}, errors.New("agent failed")
			}
			return AgentResult{Domain: "d", Confidence: 1.0}, nil
		})
	}
	results, err := Launch(context.Background(), 2, work)
	require.NoError(t, err)
	assert.Len(t, results, 4)
}
