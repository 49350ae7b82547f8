package models

import "time"

// DashboardSnapshot is a read-only aggregate view across a session's
// subsystems, assembled by internal/kernel/dashboard (SPEC_FULL.md §10,
// grounded on system_dashboard.py's aggregate report shape).
type DashboardSnapshot struct {
	SessionID         string           `json:"session_id"`
	GeneratedAt       time.Time        `json:"generated_at"`
	CascadePhase      CASCADEPhase     `json:"cascade_phase,omitempty"`
	LatestVectors     *EpistemicVectors `json:"latest_vectors,omitempty"`
	Budget            *BudgetReport    `json:"budget,omitempty"`
	AttentionUtil     float64          `json:"attention_utilization"`
	GoalCount         int              `json:"goal_count"`
	OpenSubtaskCount  int              `json:"open_subtask_count"`
	FindingCount      int              `json:"finding_count"`
	UnknownCount      int              `json:"unknown_count"`
	DeadEndCount      int              `json:"dead_end_count"`
	MistakeCount      int              `json:"mistake_count"`
	EventCounts       map[string]int   `json:"event_counts,omitempty"`
	CalibrationDrift  float64          `json:"calibration_drift"`
	Trust             *TrustAssessment `json:"trust,omitempty"`
	Degraded          []string         `json:"degraded,omitempty"`
}
