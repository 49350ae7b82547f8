package models

import "time"

// AgentAllocation is one sub-agent's assignment within an OrchestrationPlan
// (spec.md §4.4, grounded on parallel_orchestrator.py's AgentAllocation).
type AgentAllocation struct {
	Domain        string   `json:"domain"`
	Persona       string   `json:"persona"`
	Focus         string   `json:"focus"`
	Priors        []string `json:"priors,omitempty"`
	DeadEnds      []string `json:"dead_ends,omitempty"`
	Budget        int      `json:"budget"`
	ExpectedGain  float64  `json:"expected_gain"`
}

// OrchestrationPlan is the Parallel Orchestrator's Plan output (spec.md §4.4).
type OrchestrationPlan struct {
	CascadeID   string            `json:"cascade_id"`
	SessionID   string            `json:"session_id"`
	Task        string            `json:"task"`
	Allocations []AgentAllocation `json:"allocations"`
	TotalBudget int               `json:"total_budget"`
	CreatedAt   time.Time         `json:"created_at"`
}

// RegulationAction is the Regulate operation's verdict for a running
// sub-agent (spec.md §4.4).
type RegulationAction string

const (
	RegulationContinue   RegulationAction = "continue"
	RegulationReallocate RegulationAction = "reallocate"
	RegulationSpawnMore  RegulationAction = "spawn_more"
	RegulationStop       RegulationAction = "stop"
)

// RegulationDecision reports whether a domain's sub-agent should keep going,
// be handed a revised budget, or be halted (spec.md §4.4, grounded on
// parallel_orchestrator.py's RegulationDecision).
type RegulationDecision struct {
	Domain       string           `json:"domain"`
	Action       RegulationAction `json:"action"`
	Reason       string           `json:"reason"`
	ExpectedGain float64          `json:"expected_gain"`
	NewBudget    int              `json:"new_budget,omitempty"`
}

// AggregatedSynthesis is the Parallel Orchestrator's Aggregate output: the
// rollup-gated findings merged back into a single report (spec.md §4.4).
type AggregatedSynthesis struct {
	CascadeID        string            `json:"cascade_id"`
	Domains          []string          `json:"domains"`
	AcceptedFindings []*ScoredFinding  `json:"accepted_findings"`
	RejectedCount    int               `json:"rejected_count"`
	Summary          string            `json:"summary"`
	Vectors          *EpistemicVectors `json:"vectors,omitempty"`
}
