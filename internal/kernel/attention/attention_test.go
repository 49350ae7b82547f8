package attention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/models"
)

func TestCreateBudget_SumsToTotalAndEveryAllocationAtLeastOne(t *testing.T) {
	domains := []string{"security", "performance", "usability"}
	vectors := &models.EpistemicVectors{Know: 0.3, Uncertainty: 0.6}
	budget := CreateBudget("s1", domains, vectors, nil, nil, 10)

	require.Len(t, budget.Allocations, 3)
	sum := 0
	for _, a := range budget.Allocations {
		assert.GreaterOrEqual(t, a.Budget, 1)
		sum += a.Budget
	}
	assert.Equal(t, 10, sum)
	assert.Equal(t, 10, budget.TotalBudget)
}

// Scenario D from spec.md §8: performance (no priors, no dead ends) must
// receive strictly more budget than security (3 prior findings, 2 dead ends).
func TestCreateBudget_DeadEndsAndPriorsPenalizeDomain(t *testing.T) {
	vectors := &models.EpistemicVectors{Know: 0.4, Uncertainty: 0.7}
	priors := map[string]int{"security": 3, "performance": 0}
	deadEnds := map[string]int{"security": 2, "performance": 0}

	budget := CreateBudget("s1", []string{"security", "performance"}, vectors, priors, deadEnds, 10)

	var security, performance models.DomainAllocation
	for _, a := range budget.Allocations {
		switch a.Domain {
		case "security":
			security = a
		case "performance":
			performance = a
		}
	}
	assert.Greater(t, performance.Budget, security.Budget)
	assert.Equal(t, 10, security.Budget+performance.Budget)
	assert.GreaterOrEqual(t, security.Budget, 1)
}

func TestCreateBudget_EmptyDomainsReturnsZeroAllocations(t *testing.T) {
	budget := CreateBudget("s1", nil, nil, nil, nil, 20)
	assert.Empty(t, budget.Allocations)
	assert.Equal(t, 20, budget.TotalBudget)
	assert.Equal(t, 20, budget.Remaining)
}

func TestEntropy_NeverNaNAtBoundaries(t *testing.T) {
	h0 := entropy(0)
	h1 := entropy(1)
	assert.False(t, isNaN(h0))
	assert.False(t, isNaN(h1))
	assert.Greater(t, h0, 0.0)
	assert.Greater(t, h1, 0.0)
}

func TestCreateBudget_ManyDomainsStillSumsExactly(t *testing.T) {
	domains := []string{"a", "b", "c", "d", "e", "f", "g"}
	vectors := &models.EpistemicVectors{Know: 0.9, Uncertainty: 0.1}
	budget := CreateBudget("s1", domains, vectors, nil, nil, 7)

	sum := 0
	for _, a := range budget.Allocations {
		assert.GreaterOrEqual(t, a.Budget, 1)
		sum += a.Budget
	}
	assert.Equal(t, 7, sum)
}

func isNaN(f float64) bool { return f != f }
