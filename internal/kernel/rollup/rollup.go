// Package rollup implements the Rollup Gate: scoring, deduplication and
// budget-gated acceptance of sub-agent findings before merge into the
// parent session (spec.md §4.5, grounded on
// original_source/empirica/core/epistemic_rollup.py).
package rollup

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/bus"
	"github.com/empirica/kernel/internal/models"
)

// DefaultMinScore is the acceptance floor applied at the gate step
// (spec.md §4.5).
const DefaultMinScore = 0.3

// DefaultJaccardThreshold is the near-duplicate similarity floor
// (spec.md §4.5).
const DefaultJaccardThreshold = 0.7

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "day": true,
	"get": true, "has": true, "him": true, "his": true, "how": true,
	"man": true, "new": true, "now": true, "old": true, "see": true,
	"two": true, "way": true, "who": true, "boy": true, "did": true,
	"its": true, "let": true, "put": true, "say": true, "she": true,
	"too": true, "use": true, "with": true, "this": true, "that": true,
	"from": true, "have": true, "were": true, "been": true, "their": true,
}

// tokenize splits finding text into lowercase words of 3+ chars, excluding
// stop-words (spec.md §4.5).
func tokenize(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

// jaccard computes |A∩B| / |A∪B| over two token sets, 0 when both are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var intersection, union int
	union = len(b)
	for w := range a {
		union++
		if b[w] {
			intersection++
			union--
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Candidate is a single raw sub-agent finding presented to the gate.
type Candidate struct {
	Finding         string
	AgentName       string
	Domain          string
	Confidence      float64
	DomainRelevance float64
}

// Gate runs the Rollup Gate pipeline (spec.md §4.5).
type Gate struct {
	Repo            *db.RollupRepository
	Bus             *bus.Bus
	Log             zerolog.Logger
	MinScore        float64
	JaccardThreshold float64
}

// New creates a Gate with spec.md §4.5 defaults.
func New(repo *db.RollupRepository, eventBus *bus.Bus, log zerolog.Logger) *Gate {
	return &Gate{
		Repo:             repo,
		Bus:              eventBus,
		Log:              log,
		MinScore:         DefaultMinScore,
		JaccardThreshold: DefaultJaccardThreshold,
	}
}

// Process scores, deduplicates and gates candidates against an existing
// corpus of already-accepted finding texts and a remaining budget
// (spec.md §4.5).
func (g *Gate) Process(ctx context.Context, sessionID, cascadeID string, candidates []Candidate, existing []string, budgetRemaining int) (*models.RollupResult, error) {
	existingTokens := make([]map[string]bool, len(existing))
	for i, e := range existing {
		existingTokens[i] = tokenize(e)
	}

	scored := make([]*models.ScoredFinding, 0, len(candidates))
	for _, c := range candidates {
		novelty := 1.0
		if len(existingTokens) > 0 {
			candTokens := tokenize(c.Finding)
			maxSim := 0.0
			for _, et := range existingTokens {
				if sim := jaccard(candTokens, et); sim > maxSim {
					maxSim = sim
				}
			}
			novelty = 1.0 - maxSim
		}
		score := c.Confidence * novelty * c.DomainRelevance
		scored = append(scored, models.NewScoredFinding(c.Finding, c.AgentName, c.Domain, score, novelty, c.Confidence, c.DomainRelevance))
	}

	deduped, duplicates := g.dedupe(scored)

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})

	result := &models.RollupResult{}
	for _, f := range duplicates {
		f.Accepted = false
		f.RejectReason = "Duplicate finding"
		result.Rejected = append(result.Rejected, f)
	}
	consumed := 0
	for _, f := range deduped {
		if f.Score < g.MinScore {
			f.Accepted = false
			f.RejectReason = "Below min_score"
			result.Rejected = append(result.Rejected, f)
			continue
		}
		if consumed >= budgetRemaining {
			f.Accepted = false
			f.RejectReason = "Budget exhausted"
			result.Rejected = append(result.Rejected, f)
			continue
		}
		f.Accepted = true
		result.Accepted = append(result.Accepted, f)
		result.TotalScore += f.Score
		consumed++
	}
	result.BudgetConsumed = consumed
	result.BudgetRemaining = budgetRemaining - consumed

	if g.Repo != nil {
		if err := g.Repo.LogResult(sessionID, cascadeID, result); err != nil {
			return nil, err
		}
	}

	if g.Bus != nil {
		event := models.NewEpistemicEvent(models.EventRollupProcessed, sessionID, map[string]any{
			"accepted":        len(result.Accepted),
			"rejected":        len(result.Rejected),
			"acceptance_rate": result.AcceptanceRate(),
		})
		event.CascadeID = cascadeID
		g.Bus.Publish(ctx, event)
	}

	return result, nil
}

// dedupe removes hash duplicates (keeping the highest-scored) then
// near-duplicates by Jaccard similarity ≥ JaccardThreshold (spec.md §4.5).
// Returns the surviving findings plus every finding that lost out to a
// higher-scored duplicate, so callers can report them as rejected.
func (g *Gate) dedupe(findings []*models.ScoredFinding) (kept, duplicates []*models.ScoredFinding) {
	byHash := make(map[string]*models.ScoredFinding)
	order := make([]string, 0, len(findings))
	for _, f := range findings {
		existing, ok := byHash[f.FindingHash]
		if !ok {
			order = append(order, f.FindingHash)
			byHash[f.FindingHash] = f
			continue
		}
		if f.Score > existing.Score {
			duplicates = append(duplicates, existing)
			byHash[f.FindingHash] = f
		} else {
			duplicates = append(duplicates, f)
		}
	}
	hashDeduped := make([]*models.ScoredFinding, 0, len(order))
	for _, h := range order {
		hashDeduped = append(hashDeduped, byHash[h])
	}

	kept = make([]*models.ScoredFinding, 0, len(hashDeduped))
	keptTokens := make([]map[string]bool, 0, len(hashDeduped))
	for _, f := range hashDeduped {
		tokens := tokenize(f.Finding)
		dup := false
		for i, kt := range keptTokens {
			if jaccard(tokens, kt) >= g.JaccardThreshold {
				dup = true
				if f.Score > kept[i].Score {
					duplicates = append(duplicates, kept[i])
					kept[i] = f
					keptTokens[i] = tokens
				} else {
					duplicates = append(duplicates, f)
				}
				break
			}
		}
		if !dup {
			kept = append(kept, f)
			keptTokens = append(keptTokens, tokens)
		}
	}
	return kept, duplicates
}
