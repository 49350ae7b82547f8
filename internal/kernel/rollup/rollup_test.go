package rollup

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate() *Gate {
	return New(nil, nil, zerolog.Nop())
}

// Scenario F from spec.md §8: two agents report the same finding with
// confidences 0.9 and 0.6; budget=5, min_score=0.3. Exactly one accepted
// (the 0.9 copy), one rejected as a duplicate, budget_consumed == 1.
func TestProcess_DuplicateFindingsKeepHighestScore(t *testing.T) {
	gate := newTestGate()
	candidates := []Candidate{
		{Finding: "OAuth2 module lacks PKCE", AgentName: "agent-a", Domain: "security", Confidence: 0.9, DomainRelevance: 1.0},
		{Finding: "OAuth2 module lacks PKCE", AgentName: "agent-b", Domain: "security", Confidence: 0.6, DomainRelevance: 1.0},
	}

	result, err := gate.Process(context.Background(), "s1", "c1", candidates, nil, 5)
	require.NoError(t, err)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "agent-a", result.Accepted[0].AgentName)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "Duplicate finding", result.Rejected[0].RejectReason)
	assert.Equal(t, 1, result.BudgetConsumed)
	assert.Equal(t, 4, result.BudgetRemaining)
}

func TestProcess_BelowMinScoreRejected(t *testing.T) {
	gate := newTestGate()
	candidates := []Candidate{
		{Finding: "a minor, low-confidence observation about logging", AgentName: "agent-a", Domain: "general", Confidence: 0.2, DomainRelevance: 0.5},
	}
	result, err := gate.Process(context.Background(), "s1", "c1", candidates, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "Below min_score", result.Rejected[0].RejectReason)
}

func TestProcess_BudgetExhaustedRejectsOverflow(t *testing.T) {
	gate := newTestGate()
	candidates := []Candidate{
		{Finding: "finding one about the database connection pool", Confidence: 0.9, DomainRelevance: 1.0},
		{Finding: "finding two about the cache eviction policy", Confidence: 0.9, DomainRelevance: 1.0},
	}
	result, err := gate.Process(context.Background(), "s1", "c1", candidates, nil, 1)
	require.NoError(t, err)
	assert.Len(t, result.Accepted, 1)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, "Budget exhausted", result.Rejected[0].RejectReason)
	assert.Equal(t, 1, result.BudgetConsumed)
	assert.Equal(t, 0, result.BudgetRemaining)
}

func TestProcess_NoveltyOneWhenNoExistingFindings(t *testing.T) {
	gate := newTestGate()
	candidates := []Candidate{
		{Finding: "a completely new finding about rate limiting", Confidence: 1.0, DomainRelevance: 1.0},
	}
	result, err := gate.Process(context.Background(), "s1", "c1", candidates, nil, 5)
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	assert.Equal(t, 1.0, result.Accepted[0].Novelty)
	assert.InDelta(t, 1.0, result.Accepted[0].Score, 1e-9)
}

func TestProcess_NearDuplicateByJaccardMerged(t *testing.T) {
	gate := newTestGate()
	candidates := []Candidate{
		{Finding: "the authentication module lacks rate limiting entirely", Confidence: 0.9, DomainRelevance: 1.0},
		{Finding: "the authentication module lacks rate limiting mostly", Confidence: 0.5, DomainRelevance: 1.0},
	}
	result, err := gate.Process(context.Background(), "s1", "c1", candidates, nil, 5)
	require.NoError(t, err)
	assert.Len(t, result.Accepted, 1)
	assert.Equal(t, 0.9, result.Accepted[0].Confidence)
}

func TestTokenize_ExcludesStopWordsAndShortTokens(t *testing.T) {
	tokens := tokenize("The cat and the dog are in a box")
	assert.False(t, tokens["the"])
	assert.False(t, tokens["and"])
	assert.False(t, tokens["are"])
	assert.True(t, tokens["cat"])
	assert.True(t, tokens["dog"])
	assert.True(t, tokens["box"])
}

func TestJaccard_EmptySetsAreZero(t *testing.T) {
	assert.Equal(t, 0.0, jaccard(map[string]bool{}, map[string]bool{}))
}
