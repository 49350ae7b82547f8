package models

import (
	"time"

	"github.com/google/uuid"
)

// DomainAllocation is the budget allocated to a single investigation domain
// (spec.md §3/§4.3, grounded on attention_budget.py's DomainAllocation).
type DomainAllocation struct {
	Domain        string  `json:"domain"`
	Budget        int     `json:"budget"`
	Priority      float64 `json:"priority"`
	ExpectedGain  float64 `json:"expected_gain"`
	PriorFindings int     `json:"prior_findings"`
	DeadEnds      int     `json:"dead_ends"`
}

// EffectiveBudget is the budget remaining after accounting for prior findings.
func (d *DomainAllocation) EffectiveBudget() int {
	eb := d.Budget - d.PriorFindings
	if eb < 0 {
		return 0
	}
	return eb
}

// AttentionBudget tracks a parallel investigation session's findings quota
// (spec.md §3/§4.3).
type AttentionBudget struct {
	ID          string             `json:"id" db:"id"`
	SessionID   string             `json:"session_id" db:"session_id"`
	TotalBudget int                `json:"total_budget" db:"total_budget"`
	Allocated   int                `json:"allocated" db:"allocated"`
	Remaining   int                `json:"remaining" db:"remaining"`
	Strategy    string             `json:"strategy" db:"strategy"`
	Allocations []DomainAllocation `json:"allocations" db:"-"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// NewAttentionBudget constructs an AttentionBudget with remaining == total,
// mirroring the Python dataclass's __post_init__.
func NewAttentionBudget(sessionID string, total int, allocations []DomainAllocation) *AttentionBudget {
	now := time.Now()
	return &AttentionBudget{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		TotalBudget: total,
		Allocated:   0,
		Remaining:   total,
		Strategy:    "information_gain",
		Allocations: allocations,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Consume decrements the remaining budget. Returns false if insufficient.
func (b *AttentionBudget) Consume(count int) bool {
	if b.Remaining < count {
		return false
	}
	b.Allocated += count
	b.Remaining -= count
	b.UpdatedAt = time.Now()
	return true
}

// Exhausted reports whether the budget has no remaining capacity.
func (b *AttentionBudget) Exhausted() bool {
	return b.Remaining <= 0
}

// Utilization is the fraction of total budget allocated so far.
func (b *AttentionBudget) Utilization() float64 {
	if b.TotalBudget == 0 {
		return 0
	}
	return float64(b.Allocated) / float64(b.TotalBudget)
}

// GetDomainAllocation finds the allocation for a domain, or nil.
func (b *AttentionBudget) GetDomainAllocation(domain string) *DomainAllocation {
	for i := range b.Allocations {
		if b.Allocations[i].Domain == domain {
			return &b.Allocations[i]
		}
	}
	return nil
}
