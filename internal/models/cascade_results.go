package models

// CheckDecision is the result of the Cascade State Machine's SubmitCheck
// operation (spec.md §4.1).
type CheckDecision string

const (
	DecisionProceed            CheckDecision = "proceed"
	DecisionProceedWithCaveat  CheckDecision = "proceed_with_caveat"
	DecisionInvestigate        CheckDecision = "investigate"
	DecisionEscalate           CheckDecision = "escalate"
)

// CheckResult carries the decision plus the supporting detail the CLI and
// orchestrator consume (spec.md §4.1).
type CheckResult struct {
	CascadeID     string        `json:"cascade_id"`
	Decision      CheckDecision `json:"decision"`
	Confidence    float64       `json:"confidence"`
	Cycle         int           `json:"cycle"`
	NextTargets   []string      `json:"next_targets,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// CalibrationVerdict classifies the gap between CHECK and POSTFLIGHT
// confidence (spec.md §4.1).
type CalibrationVerdict string

const (
	VerdictWellCalibrated CalibrationVerdict = "well_calibrated"
	VerdictOverconfident  CalibrationVerdict = "overconfident"
	VerdictUnderconfident CalibrationVerdict = "underconfident"
)

// PostflightReport is the result of SubmitPostflight (spec.md §4.1).
type PostflightReport struct {
	CascadeID  string              `json:"cascade_id"`
	Delta      *EpistemicVectors   `json:"delta"`
	Verdict    CalibrationVerdict  `json:"calibration_verdict"`
	Gap        float64             `json:"gap"`
	LearningNotes string           `json:"learning_notes,omitempty"`
}
