package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// ScoredFinding is a sub-agent finding after scoring, used only in the
// Rollup Gate (spec.md §3/§4.5, grounded on epistemic_rollup.py's
// ScoredFinding dataclass).
type ScoredFinding struct {
	Finding         string  `json:"finding"`
	Score           float64 `json:"score"`
	AgentName       string  `json:"agent_name"`
	Domain          string  `json:"domain"`
	Novelty         float64 `json:"novelty"`
	Confidence      float64 `json:"confidence"`
	DomainRelevance float64 `json:"domain_relevance"`
	FindingHash     string  `json:"finding_hash"`
	Accepted        bool    `json:"accepted"`
	RejectReason    string  `json:"reject_reason,omitempty"`
}

// FindingHash truncates a SHA-256 hex digest to 16 chars (spec.md §4.5).
func FindingHash(finding string) string {
	sum := sha256.Sum256([]byte(finding))
	return hex.EncodeToString(sum[:])[:16]
}

// NewScoredFinding computes the finding hash if not already set.
func NewScoredFinding(finding, agentName, domain string, score, novelty, confidence, domainRelevance float64) *ScoredFinding {
	return &ScoredFinding{
		Finding:         finding,
		Score:           score,
		AgentName:       agentName,
		Domain:          domain,
		Novelty:         novelty,
		Confidence:      confidence,
		DomainRelevance: domainRelevance,
		FindingHash:     FindingHash(finding),
	}
}

// RollupResult is the output of the Rollup Gate pipeline (spec.md §4.5).
type RollupResult struct {
	Accepted        []*ScoredFinding `json:"accepted"`
	Rejected        []*ScoredFinding `json:"rejected"`
	TotalScore      float64          `json:"total_score"`
	BudgetConsumed  int              `json:"budget_consumed"`
	BudgetRemaining int              `json:"budget_remaining"`
}

// AcceptanceRate is len(accepted) / (len(accepted) + len(rejected)), or 0.
func (r *RollupResult) AcceptanceRate() float64 {
	total := len(r.Accepted) + len(r.Rejected)
	if total == 0 {
		return 0
	}
	return float64(len(r.Accepted)) / float64(total)
}
