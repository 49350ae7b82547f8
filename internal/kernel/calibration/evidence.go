// Package calibration implements the Grounded Calibration Track: parallel
// Bayesian belief updating driven by objective evidence, compared against
// the self-assessed vectors produced by the cascade (spec.md §4.7, grounded
// on original_source/empirica/core/grounded_calibration.py).
package calibration

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/models"
)

// UnscopedArtifactWeight discounts unknowns not linked to any goal when
// computing the artifact evidence source's unknown-resolution ratio;
// findings, dead ends and mistakes are counted unweighted (spec.md §4.7, a
// tunable constant per spec.md §9).
const UnscopedArtifactWeight = 0.3

// testReportCandidates is the fixed, documented search order for a pytest
// -style JSON coverage/pass-rate report. The first file found is used; none
// are merged (spec.md §9 pytest-JSON-precedence resolution).
var testReportCandidates = []string{
	".empirica/test-report.json",
	"test-report.json",
	"report.json",
}

// Collector gathers EvidenceItems from one independent, failure-tolerant
// source. A collector that cannot run (missing repo, no git binary) returns
// a nil slice and a nil error — its absence is recorded by the caller, not
// treated as fatal (spec.md §4.7 "each source independent, failure-tolerant").
type Collector interface {
	Name() string
	Collect(ctx context.Context, sessionID string) ([]*models.EvidenceItem, error)
}

// GoalCollector scores subtask completion ratio and token-estimation
// accuracy (spec.md §4.7).
type GoalCollector struct {
	Goals    *db.GoalRepository
	Subtasks *db.SubtaskRepository
}

func (c *GoalCollector) Name() string { return "goals" }

func (c *GoalCollector) Collect(ctx context.Context, sessionID string) ([]*models.EvidenceItem, error) {
	goals, err := c.Goals.List(sessionID, nil, -1)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, nil
	}

	var completed, total int
	var tokenErrSum, tokenErrCount float64
	for _, g := range goals {
		subtasks, err := c.Subtasks.ListByGoal(g.ID)
		if err != nil {
			continue
		}
		for _, s := range subtasks {
			total++
			if s.Status == models.TaskStatusCompleted {
				completed++
			}
			if s.EstimatedTokens != nil && s.ActualTokens != nil && *s.EstimatedTokens > 0 {
				est := float64(*s.EstimatedTokens)
				act := float64(*s.ActualTokens)
				rel := 1.0 - absF(act-est)/est
				if rel < 0 {
					rel = 0
				}
				tokenErrSum += rel
				tokenErrCount++
			}
		}
	}

	items := make([]*models.EvidenceItem, 0, 2)
	if total > 0 {
		ratio := float64(completed) / float64(total)
		items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "subtask_completion_ratio",
			ratio, ratio, models.QualityObjective,
			[]models.VectorName{models.VectorCompletion, models.VectorDo}))
	}
	if tokenErrCount > 0 {
		acc := tokenErrSum / tokenErrCount
		items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "token_estimation_accuracy",
			acc, acc, models.QualitySemiObjective,
			[]models.VectorName{models.VectorContext, models.VectorState}))
	}
	return items, nil
}

// ArtifactCollector scores unknown resolution, productive-exploration and
// mistake ratios with scope-weighting (spec.md §4.7).
type ArtifactCollector struct {
	Breadcrumbs *db.BreadcrumbRepository
	Mistakes    *db.MistakeRepository
	ProjectID   string
}

func (c *ArtifactCollector) Name() string { return "artifacts" }

func (c *ArtifactCollector) Collect(ctx context.Context, sessionID string) ([]*models.EvidenceItem, error) {
	unknowns, err := c.Breadcrumbs.ListUnknowns(c.ProjectID, sessionID, nil, -1)
	if err != nil {
		return nil, err
	}
	findings, err := c.Breadcrumbs.ListFindings(c.ProjectID, sessionID, -1)
	if err != nil {
		return nil, err
	}
	deadEnds, err := c.Breadcrumbs.ListDeadEnds(c.ProjectID, sessionID, -1)
	if err != nil {
		return nil, err
	}
	mistakes, err := c.Mistakes.List(sessionID, nil, -1)
	if err != nil {
		return nil, err
	}

	var items []*models.EvidenceItem

	if len(unknowns) > 0 {
		var resolvedWeight, totalWeight float64
		for _, u := range unknowns {
			w := scopeWeight(u.GoalID)
			totalWeight += w
			if u.IsResolved {
				resolvedWeight += w
			}
		}
		if totalWeight > 0 {
			ratio := resolvedWeight / totalWeight
			items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "unknown_resolution_ratio",
				ratio, ratio, models.QualityObjective,
				[]models.VectorName{models.VectorClarity, models.VectorKnow}))
		}
	}

	findingsPlusDeadEnds := len(findings) + len(deadEnds)
	if findingsPlusDeadEnds > 0 {
		ratio := float64(len(findings)) / float64(findingsPlusDeadEnds)
		items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "productive_exploration_ratio",
			ratio, ratio, models.QualitySemiObjective,
			[]models.VectorName{models.VectorSignal, models.VectorDo}))
	}

	if denom := len(findings) + len(deadEnds) + len(mistakes); denom > 0 {
		mistakeRatio := float64(len(mistakes)) / float64(denom)
		score := 1.0 - mistakeRatio
		items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "mistake_ratio",
			score, mistakeRatio, models.QualityObjective,
			[]models.VectorName{models.VectorUncertainty, models.VectorChange}))
	}

	return items, nil
}

func scopeWeight(goalID *string) float64 {
	if goalID == nil || *goalID == "" {
		return UnscopedArtifactWeight
	}
	return 1.0
}

// SentinelCollector scores CHECK proceed ratio and investigation efficiency
// from cascade history (spec.md §4.7).
type SentinelCollector struct {
	Cascades *db.CascadeRepository
	Cascade  *models.Cascade
}

func (c *SentinelCollector) Name() string { return "sentinel" }

func (c *SentinelCollector) Collect(ctx context.Context, sessionID string) ([]*models.EvidenceItem, error) {
	if c.Cascade == nil {
		return nil, nil
	}
	var items []*models.EvidenceItem

	rounds := c.Cascade.InvestigationRounds
	efficiency := 1.0 - (float64(rounds-1) / 4.0)
	if efficiency < 0 {
		efficiency = 0
	}
	if efficiency > 1 {
		efficiency = 1
	}
	items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "investigation_efficiency",
		efficiency, float64(rounds), models.QualityObjective,
		[]models.VectorName{models.VectorClarity, models.VectorContext}))

	if c.Cascade.LastCheckDecision != nil {
		proceed := 0.0
		decision := *c.Cascade.LastCheckDecision
		if decision == "proceed" || decision == "proceed_with_caveat" {
			proceed = 1.0
		}
		items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "check_proceed_ratio",
			proceed, proceed, models.QualitySemiObjective,
			[]models.VectorName{models.VectorState, models.VectorUncertainty}))
	}
	return items, nil
}

// TestCollector reads the first test-report JSON found on the fixed
// candidate path list and scores pass rate and coverage (spec.md §4.7/§9).
type TestCollector struct {
	WorkDir string
}

type testReport struct {
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Total    int     `json:"total"`
	Coverage float64 `json:"coverage_percent"`
}

func (c *TestCollector) Name() string { return "tests" }

func (c *TestCollector) Collect(ctx context.Context, sessionID string) ([]*models.EvidenceItem, error) {
	for _, candidate := range testReportCandidates {
		path := filepath.Join(c.WorkDir, candidate)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var report testReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		var items []*models.EvidenceItem
		if report.Total > 0 {
			passRate := float64(report.Passed) / float64(report.Total)
			items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "test_pass_rate",
				passRate, passRate, models.QualityObjective,
				[]models.VectorName{models.VectorDo, models.VectorChange}))
		}
		if report.Coverage > 0 {
			cov := models.Clamp01(report.Coverage / 100.0)
			items = append(items, models.NewEvidenceItem(sessionID, c.Name(), "test_coverage",
				cov, report.Coverage, models.QualityObjective,
				[]models.VectorName{models.VectorCompletion}))
		}
		return items, nil
	}
	return nil, nil
}

// GitCollector counts commits and changed files since session start using
// the git binary via os/exec, matching the Git-Notes store's subprocess
// convention (spec.md §4.7/§4.8).
type GitCollector struct {
	WorkDir   string
	Since     time.Time
	Log       zerolog.Logger
}

func (c *GitCollector) Name() string { return "git" }

func (c *GitCollector) Collect(ctx context.Context, sessionID string) ([]*models.EvidenceItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sinceArg := "--since=" + c.Since.Format(time.RFC3339)
	countOut, err := c.runGit(ctx, "rev-list", "--count", sinceArg, "HEAD")
	if err != nil {
		c.Log.Debug().Err(err).Msg("git evidence collector unavailable")
		return nil, nil
	}
	commitCount, _ := strconv.Atoi(strings.TrimSpace(countOut))

	filesOut, err := c.runGit(ctx, "diff", "--name-only", "HEAD@{"+c.Since.Format(time.RFC3339)+"}", "HEAD")
	filesChanged := 0
	if err == nil {
		for _, line := range strings.Split(strings.TrimSpace(filesOut), "\n") {
			if strings.TrimSpace(line) != "" {
				filesChanged++
			}
		}
	}

	commitScore := models.Clamp01(float64(commitCount) / 10.0)
	filesScore := models.Clamp01(float64(filesChanged) / 20.0)

	return []*models.EvidenceItem{
		models.NewEvidenceItem(sessionID, c.Name(), "commit_activity",
			commitScore, float64(commitCount), models.QualityInferred,
			[]models.VectorName{models.VectorImpact, models.VectorChange}),
		models.NewEvidenceItem(sessionID, c.Name(), "files_changed",
			filesScore, float64(filesChanged), models.QualityInferred,
			[]models.VectorName{models.VectorImpact}),
	}, nil
}

func (c *GitCollector) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.WorkDir
	out, err := cmd.Output()
	return string(out), err
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
