package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/models"
)

func TestMap_WeightedAverageAcrossQualities(t *testing.T) {
	items := []*models.EvidenceItem{
		models.NewEvidenceItem("s1", "tests", "pass_rate", 0.9, 0.9, models.QualityObjective, []models.VectorName{models.VectorKnow}),
		models.NewEvidenceItem("s1", "sentinel", "check_proceed_ratio", 0.5, 0.5, models.QualitySemiObjective, []models.VectorName{models.VectorKnow}),
	}
	mapped := Map(items)
	require.Contains(t, mapped, models.VectorKnow)

	want := (0.9*1.0 + 0.5*0.7) / (1.0 + 0.7)
	assert.InDelta(t, want, mapped[models.VectorKnow].value, 1e-9)
}

func TestMap_ExcludesUngroundableVectors(t *testing.T) {
	items := []*models.EvidenceItem{
		models.NewEvidenceItem("s1", "tests", "x", 0.9, 0.9, models.QualityObjective, []models.VectorName{models.VectorEngagement}),
	}
	mapped := Map(items)
	assert.NotContains(t, mapped, models.VectorEngagement)
}

func TestMap_EmptyEvidenceYieldsEmptyMap(t *testing.T) {
	mapped := Map(nil)
	assert.Empty(t, mapped)
}

func TestDirection_ClosingWhenGapShrinks(t *testing.T) {
	var points []*models.CalibrationTrajectoryPoint
	gaps := []float64{0.5, 0.4, 0.3, 0.2, 0.1}
	for _, g := range gaps {
		gap := g
		points = append(points, &models.CalibrationTrajectoryPoint{Gap: &gap})
	}
	assert.Equal(t, models.TrajectoryClosing, Direction(points))
}

func TestDirection_WideningWhenGapGrows(t *testing.T) {
	var points []*models.CalibrationTrajectoryPoint
	gaps := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	for _, g := range gaps {
		gap := g
		points = append(points, &models.CalibrationTrajectoryPoint{Gap: &gap})
	}
	assert.Equal(t, models.TrajectoryWidening, Direction(points))
}

func TestDirection_StableWithFewerThanTwoPoints(t *testing.T) {
	assert.Equal(t, models.TrajectoryStable, Direction(nil))
	gap := 0.2
	assert.Equal(t, models.TrajectoryStable, Direction([]*models.CalibrationTrajectoryPoint{{Gap: &gap}}))
}
