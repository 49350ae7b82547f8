package models

// VectorName is the closed set of the 13 canonical epistemic vector names.
// spec.md §9 calls for replacing the source's dynamic string-keyed maps
// with a closed enumeration at strongly-typed boundaries; ToMap/FromMap on
// EpistemicVectors remain the only string-keyed surface, used for event
// payloads and persistence.
type VectorName string

const (
	VectorEngagement  VectorName = "engagement"
	VectorKnow        VectorName = "know"
	VectorDo          VectorName = "do"
	VectorContext     VectorName = "context"
	VectorClarity     VectorName = "clarity"
	VectorCoherence   VectorName = "coherence"
	VectorSignal      VectorName = "signal"
	VectorDensity     VectorName = "density"
	VectorState       VectorName = "state"
	VectorChange      VectorName = "change"
	VectorCompletion  VectorName = "completion"
	VectorImpact      VectorName = "impact"
	VectorUncertainty VectorName = "uncertainty"
)

// AllVectorNames lists the 13 canonical vectors in a stable order.
var AllVectorNames = []VectorName{
	VectorEngagement, VectorKnow, VectorDo, VectorContext,
	VectorClarity, VectorCoherence, VectorSignal, VectorDensity,
	VectorState, VectorChange, VectorCompletion, VectorImpact,
	VectorUncertainty,
}

// UngroundableVectors have no objective evidence signal (spec.md §4.7) and
// retain self-referential calibration only.
var UngroundableVectors = map[VectorName]bool{
	VectorEngagement: true,
	VectorCoherence:  true,
	VectorDensity:    true,
}

// IsKnownVector reports whether name is one of the 13 canonical vectors.
func IsKnownVector(name string) bool {
	for _, v := range AllVectorNames {
		if string(v) == name {
			return true
		}
	}
	return false
}

// Clamp01 clamps a scalar into [0, 1], per spec.md §3's VectorSnapshot invariant.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
