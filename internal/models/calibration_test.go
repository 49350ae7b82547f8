package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Invariant 6 from spec.md §8: every GroundedBelief update must not
// increase variance relative to its prior.
func TestGroundedBeliefUpdate_VarianceNeverIncreases(t *testing.T) {
	belief := NewGroundedBelief("s1", "a1", VectorKnow, "combined")
	assert.Equal(t, PriorVariance, belief.Variance)

	for _, obs := range []float64{0.8, 0.9, 0.2, 0.7} {
		priorVar := belief.Variance
		returnedPrior := belief.Update(obs, 0.9, "test")
		assert.Equal(t, priorVar, returnedPrior, "Update should return the prior variance")
		assert.LessOrEqual(t, belief.Variance, priorVar)
	}
}

func TestGroundedBeliefUpdate_LowConfidenceFloorsAtPointOne(t *testing.T) {
	belief := NewGroundedBelief("s1", "a1", VectorKnow, "combined")
	priorVar := belief.Variance
	belief.Update(0.9, 0.0, "test")
	assert.Less(t, belief.Variance, priorVar)
}

func TestSetSelfReferential_DivergenceIsSelfMinusGrounded(t *testing.T) {
	belief := NewGroundedBelief("s1", "a1", VectorKnow, "combined")
	belief.Update(0.3, 1.0, "test")
	belief.SetSelfReferential(0.9)
	assert.NotNil(t, belief.Divergence)
	assert.InDelta(t, 0.9-belief.Mean, *belief.Divergence, 1e-9)
}

func TestClamp01_ClampsOutOfRangeValues(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-1))
	assert.Equal(t, 1.0, Clamp01(2))
	assert.Equal(t, 0.5, Clamp01(0.5))
}
