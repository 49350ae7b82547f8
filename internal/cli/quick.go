package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/calibration"
	"github.com/empirica/kernel/internal/models"
)

// ActiveSession stores the current active session info
type ActiveSession struct {
	SessionID     string    `json:"session_id"`
	AIID          string    `json:"ai_id"`
	Objective     string    `json:"objective"`
	StartedAt     time.Time `json:"started_at"`
	ProjectID     string    `json:"project_id,omitempty"`
	CurrentGoalID string    `json:"current_goal_id,omitempty"`
	CascadeID     string    `json:"cascade_id,omitempty"`
}

// getActiveSessionPath returns the path to store active session
func getActiveSessionPath() string {
	// Try project-local first
	if _, err := os.Stat(".memory"); err == nil {
		return ".memory/active-session.json"
	}
	// Fall back to home directory
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memory", "active-session.json")
}

// saveActiveSession saves the current active session
func saveActiveSession(session *ActiveSession) error {
	path := getActiveSessionPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// loadActiveSession loads the current active session
func loadActiveSession() (*ActiveSession, error) {
	path := getActiveSessionPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// clearActiveSession removes the active session file
func clearActiveSession() error {
	path := getActiveSessionPath()
	return os.Remove(path)
}

// requireActiveSession gets the active session or returns an error
func requireActiveSession() (*ActiveSession, error) {
	session, err := loadActiveSession()
	if err != nil {
		return nil, fmt.Errorf("no active session. Run 'memory start \"objective\"' first")
	}
	return session, nil
}

// getOrCreateDefaultProject gets or creates a default project based on current directory
func getOrCreateDefaultProject() (*models.Project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "default"
	}
	projectName := filepath.Base(cwd)

	repo := db.NewProjectRepository(database)

	project, err := repo.GetByName(projectName)
	if err != nil {
		return nil, err
	}
	if project != nil {
		return project, nil
	}

	project = models.NewProject(projectName, nil)
	if err := repo.Create(project); err != nil {
		return nil, err
	}

	return project, nil
}

// deriveVectors maps breadcrumb activity onto the kernel's 13-dimensional
// EpistemicVectors, the self-assessed input SubmitPostflight and the
// Grounded Calibration Track compare against objective evidence (spec.md
// §3/§4.1/§4.7). This replaces a free-standing confidence formula with a
// value the kernel itself consumes.
func deriveVectors(findings []*models.Finding, openUnknowns, resolvedUnknowns []*models.Unknown, deadEnds []*models.DeadEnd, sessionStart time.Time) *models.EpistemicVectors {
	v := models.NewDefaultVectors()

	know := 0.5 + float64(len(findings))*0.1 + float64(len(resolvedUnknowns))*0.15
	v.Know = models.Clamp01(know)

	uncertainty := 0.5 + float64(len(openUnknowns))*0.1 - float64(len(resolvedUnknowns))*0.1
	v.Uncertainty = models.Clamp01(uncertainty)

	if len(findings) > 0 {
		fresh := 0
		for _, f := range findings {
			fileChanged := f.Subject != nil && f.SubjectGitHash != nil && checkFileChanged(*f.Subject, *f.SubjectGitHash)
			if f.GetStalenessStatus(fileChanged) == models.StatusFresh {
				fresh++
			}
		}
		v.Clarity = float64(fresh) / float64(len(findings))
	} else {
		v.Clarity = 0.5
	}

	total := len(findings) + len(openUnknowns) + len(resolvedUnknowns) + len(deadEnds)
	if total > 0 {
		v.Coherence = 1.0 - float64(len(deadEnds))/float64(total)
	} else {
		v.Coherence = 1.0
	}

	totalUnknowns := len(openUnknowns) + len(resolvedUnknowns)
	if totalUnknowns > 0 {
		v.Completion = float64(len(resolvedUnknowns)) / float64(totalUnknowns)
	} else {
		v.Completion = 0.5
	}

	hours := time.Since(sessionStart).Hours()
	lambda := math.Log(2) / 2.0
	engagement := math.Exp(-lambda * hours)
	if engagement < 0.1 {
		engagement = 0.1
	}
	v.Engagement = engagement

	v.Do = v.Know
	v.Context = v.Clarity
	v.Signal = v.Clarity
	v.State = v.Completion
	v.Change = v.Coherence
	v.Impact = v.Completion

	return v
}

// startCmd starts a new session and a bound cascade at PREFLIGHT.
var startCmd = &cobra.Command{
	Use:   "start [objective]",
	Short: "Start a new session",
	Long: `Start a new memory session and a Cascade State Machine run at PREFLIGHT.

The objective describes what you're working on. Memory will return carried-
over knowledge from the project: fresh findings, stale findings needing
verification, dead ends to avoid, and open questions.

Example:
  memory start "Implement user authentication"
  memory start "Fix bug in payment flow"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		objective := args[0]
		aiID, _ := cmd.Flags().GetString("ai-id")
		if aiID == "" {
			aiID = "claude-code"
		}

		project, err := getOrCreateDefaultProject()
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}

		session := models.NewSession(aiID)
		session.ProjectID = &project.ID
		session.Subject = &objective

		sessionRepo := db.NewSessionRepository(database)
		if err := sessionRepo.Create(session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		ctx := context.Background()
		cascade, err := kern.Cascade().StartCascade(ctx, session.SessionID, objective)
		if err != nil {
			return fmt.Errorf("failed to start cascade: %w", err)
		}

		active := &ActiveSession{
			SessionID: session.SessionID,
			AIID:      aiID,
			Objective: objective,
			StartedAt: time.Now(),
			ProjectID: project.ID,
			CascadeID: cascade.CascadeID,
		}
		if err := saveActiveSession(active); err != nil {
			return fmt.Errorf("failed to save active session: %w", err)
		}

		carryOver := projectCarryOver(project.ID)

		if outputText {
			fmt.Printf("Session started: %s\n", objective)
			fmt.Printf("Session: %s  Cascade: %s (PREFLIGHT)\n", session.SessionID, cascade.CascadeID)
			printCarryOver(carryOver)
		} else {
			outputResult(map[string]interface{}{
				"status":        "started",
				"session_id":    session.SessionID,
				"cascade_id":    cascade.CascadeID,
				"cascade_phase": "PREFLIGHT",
				"objective":     objective,
				"carry_over":    carryOver,
			})
		}
		return nil
	},
}

// projectCarryOver gathers a lightweight continuity snapshot from a
// project's breadcrumb history: fresh knowledge, stale findings that need
// re-verification, dead ends to avoid, and open questions.
func projectCarryOver(projectID string) map[string]interface{} {
	bcRepo := db.NewBreadcrumbRepository(database)

	findings, _ := bcRepo.ListFindingsWithStaleness(projectID, "", 20)
	resolved := false
	openUnknowns, _ := bcRepo.ListUnknowns(projectID, "", &resolved, 10)
	deadEnds, _ := bcRepo.ListDeadEnds(projectID, "", 10)

	var knowledge, stale []map[string]interface{}
	for _, f := range findings {
		fileChanged := f.Subject != nil && f.SubjectGitHash != nil && checkFileChanged(*f.Subject, *f.SubjectGitHash)
		status := f.GetStalenessStatus(fileChanged)
		item := map[string]interface{}{"finding": f.Finding, "confidence": f.CalculateConfidence()}
		if status == models.StatusStale {
			item["days_stale"] = int(f.DaysSinceVerified())
			item["file_changed"] = fileChanged
			stale = append(stale, item)
		} else {
			knowledge = append(knowledge, item)
		}
	}

	var openQuestions []string
	for _, u := range openUnknowns {
		openQuestions = append(openQuestions, u.Unknown)
	}

	var deadEndWarnings []map[string]interface{}
	for _, d := range deadEnds {
		deadEndWarnings = append(deadEndWarnings, map[string]interface{}{
			"approach": d.Approach, "why_failed": d.WhyFailed,
		})
	}

	return map[string]interface{}{
		"knowledge":              knowledge,
		"requires_verification":  stale,
		"open_questions":         openQuestions,
		"dead_ends":              deadEndWarnings,
	}
}

func printCarryOver(carryOver map[string]interface{}) {
	if stale, ok := carryOver["requires_verification"].([]map[string]interface{}); ok && len(stale) > 0 {
		fmt.Printf("\n⚠ VERIFY BEFORE USING (%d):\n", len(stale))
		for _, s := range stale {
			fmt.Printf("  • %v\n", s["finding"])
		}
	}
	if deadEnds, ok := carryOver["dead_ends"].([]map[string]interface{}); ok && len(deadEnds) > 0 {
		fmt.Printf("\n✗ DO NOT REPEAT (%d):\n", len(deadEnds))
		for _, d := range deadEnds {
			fmt.Printf("  • %v — %v\n", d["approach"], d["why_failed"])
		}
	}
	if knowledge, ok := carryOver["knowledge"].([]map[string]interface{}); ok && len(knowledge) > 0 {
		fmt.Printf("\n✓ KNOWN (%d):\n", len(knowledge))
		for _, k := range knowledge {
			fmt.Printf("  • %v\n", k["finding"])
		}
	}
	if questions, ok := carryOver["open_questions"].([]string); ok && len(questions) > 0 {
		fmt.Printf("\n? OPEN QUESTIONS (%d):\n", len(questions))
		for _, q := range questions {
			fmt.Printf("  • %s\n", q)
		}
	}
}

// doneCmd ends the current session: derives vectors from breadcrumb
// activity, runs SubmitPostflight and the Grounded Calibration Track
// against the session's real evidence sources, then writes a handoff.
var doneCmd = &cobra.Command{
	Use:   "done [summary]",
	Short: "End the current session",
	Long: `End the current session with a summary of what was accomplished.

This calls the Cascade State Machine's SubmitPostflight and runs the
Grounded Calibration Track's five evidence collectors (goals, artifacts,
sentinel, tests, git) against the session before writing a handoff.

Example:
  memory done "Implemented JWT authentication with refresh tokens"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := args[0]

		active, err := requireActiveSession()
		if err != nil {
			return err
		}

		bcRepo := db.NewBreadcrumbRepository(database)
		findings, _ := bcRepo.ListFindingsWithStaleness(active.ProjectID, active.SessionID, 100)
		resolvedFlag := true
		resolvedUnknowns, _ := bcRepo.ListUnknowns(active.ProjectID, active.SessionID, &resolvedFlag, 100)
		unresolvedFlag := false
		openUnknowns, _ := bcRepo.ListUnknowns(active.ProjectID, active.SessionID, &unresolvedFlag, 100)
		deadEnds, _ := bcRepo.ListDeadEnds(active.ProjectID, active.SessionID, 100)

		vectors := deriveVectors(findings, openUnknowns, resolvedUnknowns, deadEnds, active.StartedAt)

		ctx := context.Background()
		var postflight *models.PostflightReport
		if active.CascadeID != "" {
			postflight, err = kern.Cascade().SubmitPostflight(ctx, active.CascadeID, summary, vectors, summary)
			if err != nil {
				return fmt.Errorf("failed to submit postflight: %w", err)
			}
		}

		workDir, _ := os.Getwd()
		cascadeRepo := db.NewCascadeRepository(database)
		var cascadeModel *models.Cascade
		if active.CascadeID != "" {
			cascadeModel, _ = cascadeRepo.Get(active.CascadeID)
		}

		collectors := []calibration.Collector{
			&calibration.GoalCollector{Goals: db.NewGoalRepository(database), Subtasks: db.NewSubtaskRepository(database)},
			&calibration.ArtifactCollector{Breadcrumbs: bcRepo, Mistakes: db.NewMistakeRepository(database), ProjectID: active.ProjectID},
			&calibration.SentinelCollector{Cascades: cascadeRepo, Cascade: cascadeModel},
			&calibration.TestCollector{WorkDir: workDir},
			&calibration.GitCollector{WorkDir: workDir, Since: active.StartedAt, Log: kern.Log},
		}
		verification, err := kern.Calibration().Run(ctx, active.SessionID, active.AIID, collectors, vectors, "combined")
		if err != nil {
			return fmt.Errorf("failed to run grounded calibration: %w", err)
		}

		handoffRepo := db.NewHandoffRepository(database)
		handoffInput := &models.HandoffCreateInput{
			SessionID:   active.SessionID,
			ProjectID:   active.ProjectID,
			TaskSummary: summary,
		}
		keyFindings := make([]string, 0, len(findings))
		for _, f := range findings {
			keyFindings = append(keyFindings, f.Finding)
		}
		handoffInput.KeyFindings = keyFindings
		remainingUnknowns := make([]string, 0, len(openUnknowns))
		for _, u := range openUnknowns {
			remainingUnknowns = append(remainingUnknowns, u.Unknown)
		}
		handoffInput.RemainingUnknowns = remainingUnknowns
		if _, err := handoffRepo.Create(handoffInput, active.AIID); err != nil {
			return fmt.Errorf("failed to write handoff: %w", err)
		}

		sessionRepo := db.NewSessionRepository(database)
		sessionRepo.End(active.SessionID)
		clearActiveSession()

		duration := time.Since(active.StartedAt)

		if outputText {
			fmt.Printf("Session completed: %s\n", active.Objective)
			fmt.Printf("Duration: %s\n", duration.Round(time.Minute))
			if postflight != nil {
				fmt.Printf("Calibration verdict: %s (gap %.2f)\n", postflight.Verdict, postflight.Gap)
			}
			fmt.Printf("Grounded coverage: %.0f%%  overall calibration: %.0f%%\n",
				verification.GroundedCoverage*100, verification.OverallCalibrationScore*100)
		} else {
			outputResult(map[string]interface{}{
				"status":        "completed",
				"objective":     active.Objective,
				"summary":       summary,
				"duration":      duration.String(),
				"vectors":       vectors,
				"postflight":    postflight,
				"verification":  verification,
				"stats": map[string]interface{}{
					"findings":          len(findings),
					"unknowns_resolved": len(resolvedUnknowns),
					"unknowns_open":     len(openUnknowns),
					"dead_ends":         len(deadEnds),
				},
			})
		}
		return nil
	},
}

// learnedCmd logs a finding/discovery
var learnedCmd = &cobra.Command{
	Use:   "learned [insight]",
	Short: "Log something you learned",
	Long: `Log a finding, discovery, or insight gained during work.

Use --scope to associate the finding with a specific file for staleness
tracking. Findings feed the Grounded Calibration Track's artifact evidence
source (spec.md §4.7).

Example:
  memory learned "Auth uses JWT with 15min expiry"
  memory learned "Database connection pool is set to 10" --scope config/db.go`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		findingText := args[0]
		scope, _ := cmd.Flags().GetString("scope")

		active, err := requireActiveSession()
		if err != nil {
			return err
		}

		finding := models.NewFinding(active.ProjectID, active.SessionID, findingText, 0.5)
		if scope != "" {
			finding.Subject = &scope
			hash := getFileGitHash(scope)
			if hash != "" {
				finding.SubjectGitHash = &hash
			}
		}
		finding.LastVerifiedTimestamp = &finding.CreatedTimestamp

		repo := db.NewBreadcrumbRepository(database)
		if err := repo.CreateFinding(finding); err != nil {
			return fmt.Errorf("failed to log finding: %w", err)
		}

		if !outputText {
			result := map[string]interface{}{"status": "logged", "type": "finding", "finding": findingText}
			if scope != "" {
				result["scope"] = scope
				if finding.SubjectGitHash != nil {
					result["git_hash"] = *finding.SubjectGitHash
				}
			}
			outputResult(result)
		} else {
			fmt.Printf("✓ Learned: %s\n", findingText)
			if scope != "" {
				fmt.Printf("  (scoped to: %s)\n", scope)
			}
		}
		return nil
	},
}

// uncertainCmd logs an unknown/knowledge gap
var uncertainCmd = &cobra.Command{
	Use:   "uncertain [question]",
	Short: "Log something you're uncertain about",
	Long: `Log a question, knowledge gap, or area of uncertainty.

Example:
  memory uncertain "How does token refresh work?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unknownText := args[0]
		scope, _ := cmd.Flags().GetString("scope")

		active, err := requireActiveSession()
		if err != nil {
			return err
		}

		unknown := models.NewUnknown(active.ProjectID, active.SessionID, unknownText, 0.5)
		if scope != "" {
			unknown.Subject = &scope
		}

		repo := db.NewBreadcrumbRepository(database)
		if err := repo.CreateUnknown(unknown); err != nil {
			return fmt.Errorf("failed to log unknown: %w", err)
		}

		if !outputText {
			outputResult(map[string]interface{}{"status": "logged", "type": "unknown", "unknown": unknownText})
		} else {
			fmt.Printf("? Uncertain: %s\n", unknownText)
		}
		return nil
	},
}

// triedCmd logs a failed approach
var triedCmd = &cobra.Command{
	Use:   "tried [approach] [why-failed]",
	Short: "Log a failed approach",
	Long: `Log an approach that was tried but didn't work, to avoid repeating it.

Example:
  memory tried "passport-local" "Too complex for our needs"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		approach := args[0]
		whyFailed := args[1]

		active, err := requireActiveSession()
		if err != nil {
			return err
		}

		deadEnd := models.NewDeadEnd(active.ProjectID, active.SessionID, approach, whyFailed, 0.5)

		repo := db.NewBreadcrumbRepository(database)
		if err := repo.CreateDeadEnd(deadEnd); err != nil {
			return fmt.Errorf("failed to log dead end: %w", err)
		}

		if !outputText {
			outputResult(map[string]interface{}{
				"status": "logged", "type": "dead_end", "approach": approach, "why_failed": whyFailed,
			})
		} else {
			fmt.Printf("✗ Tried: %s → %s\n", approach, whyFailed)
		}
		return nil
	},
}

// statusCmd shows the active session's live dashboard snapshot.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current session status",
	Long:  `Show the active session's System Dashboard snapshot: cascade phase, latest vectors, budget, trust, and counts (SPEC_FULL.md §10).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		active, err := loadActiveSession()
		if err != nil {
			if !outputText {
				outputResult(map[string]interface{}{"status": "no_session", "message": "No active session. Run 'memory start \"objective\"' to begin."})
			} else {
				fmt.Println("No active session. Run 'memory start \"objective\"' to begin.")
			}
			return nil
		}

		snap, err := kern.Dashboard().Snapshot(context.Background(), active.SessionID)
		if err != nil {
			return fmt.Errorf("failed to read dashboard snapshot: %w", err)
		}

		if !outputText {
			outputResult(map[string]interface{}{
				"status":    "active",
				"objective": active.Objective,
				"duration":  time.Since(active.StartedAt).Round(time.Second).String(),
				"snapshot":  snap,
			})
		} else {
			fmt.Printf("Session: %s (%s)\n", active.Objective, time.Since(active.StartedAt).Round(time.Minute))
			fmt.Printf("Cascade phase: %s\n", snap.CascadePhase)
			if snap.LatestVectors != nil {
				fmt.Printf("Overall confidence: %.0f%%\n", snap.LatestVectors.OverallConfidence()*100)
			}
			fmt.Printf("Findings: %d  Unknowns: %d  Dead ends: %d  Mistakes: %d\n",
				snap.FindingCount, snap.UnknownCount, snap.DeadEndCount, snap.MistakeCount)
			if len(snap.Degraded) > 0 {
				fmt.Printf("Degraded subsystems: %s\n", strings.Join(snap.Degraded, ", "))
			}
		}
		return nil
	},
}

// verifyCmd verifies/refreshes a stale finding
var verifyCmd = &cobra.Command{
	Use:   "verify [search-text]",
	Short: "Verify a stale finding",
	Long: `Verify a finding to refresh its confidence timestamp.

Examples:
  memory verify "JWT"                    # Find and verify findings containing "JWT"
  memory verify --id abc123              # Verify by ID
  memory verify "old text" --update "new text"  # Update the finding text`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		findingID, _ := cmd.Flags().GetString("id")
		updateText, _ := cmd.Flags().GetString("update")

		active, err := loadActiveSession()
		projectID := ""
		if err == nil && active != nil {
			projectID = active.ProjectID
		}

		repo := db.NewBreadcrumbRepository(database)

		var targetFinding *models.Finding

		if findingID != "" {
			targetFinding, err = repo.GetFinding(findingID)
			if err != nil {
				return fmt.Errorf("failed to get finding: %w", err)
			}
			if targetFinding == nil {
				return fmt.Errorf("finding not found: %s", findingID)
			}
		} else if len(args) > 0 {
			searchText := args[0]
			findings, err := repo.FindFindingByText(projectID, searchText)
			if err != nil {
				return fmt.Errorf("failed to search findings: %w", err)
			}
			if len(findings) == 0 {
				return fmt.Errorf("no findings found matching: %s", searchText)
			}
			if len(findings) > 1 {
				matches := make([]map[string]interface{}, 0, len(findings))
				for _, f := range findings {
					fileChanged := f.Subject != nil && f.SubjectGitHash != nil && checkFileChanged(*f.Subject, *f.SubjectGitHash)
					matches = append(matches, map[string]interface{}{
						"id": f.ID, "finding": f.Finding,
						"status": string(f.GetStalenessStatus(fileChanged)), "days_old": int(f.DaysSinceVerified()),
					})
				}
				if !outputText {
					outputResult(map[string]interface{}{
						"status": "multiple_matches", "message": "Multiple findings match. Use --id to specify.", "matches": matches,
					})
				} else {
					fmt.Println("Multiple matches found. Use --id to specify:")
					for _, m := range matches {
						fmt.Printf("  %v (id: %v)\n", m["finding"], m["id"])
					}
				}
				return nil
			}
			targetFinding = findings[0]
		} else {
			return fmt.Errorf("provide search text or --id flag")
		}

		var newGitHash *string
		if targetFinding.Subject != nil {
			if hash := getFileGitHash(*targetFinding.Subject); hash != "" {
				newGitHash = &hash
			}
		}

		var newText *string
		if updateText != "" {
			newText = &updateText
		}

		if err := repo.VerifyFinding(targetFinding.ID, newGitHash, newText); err != nil {
			return fmt.Errorf("failed to verify finding: %w", err)
		}

		displayText := targetFinding.Finding
		if newText != nil {
			displayText = *newText
		}

		if !outputText {
			outputResult(map[string]interface{}{
				"status": "verified", "id": targetFinding.ID, "finding": displayText,
				"updated": newText != nil, "git_hash": newGitHash,
			})
		} else {
			fmt.Printf("✓ Verified: %s\n", displayText)
			if newText != nil {
				fmt.Printf("  (updated from: %s)\n", targetFinding.Finding)
			}
		}
		return nil
	},
}

// queryCmd allows querying learnings without starting a session
var queryCmd = &cobra.Command{
	Use:   "query [search]",
	Short: "Query learnings without starting a session",
	Long: `Query the knowledge base to see what has been learned across all sessions.

This command does NOT require an active session.

Examples:
  memory query                    # Show all learnings
  memory query "auth"             # Search for findings containing "auth"
  memory query --unknowns         # Show open questions
  memory query --dead-ends        # Show failed approaches
  memory query --all              # Show everything`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showUnknowns, _ := cmd.Flags().GetBool("unknowns")
		showDeadEnds, _ := cmd.Flags().GetBool("dead-ends")
		showAll, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		searchText := ""
		if len(args) > 0 {
			searchText = args[0]
		}

		project, err := getOrCreateDefaultProject()
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}

		bcRepo := db.NewBreadcrumbRepository(database)

		showFindings := !showUnknowns && !showDeadEnds || showAll
		showUnknownsFlag := showUnknowns || showAll
		showDeadEndsFlag := showDeadEnds || showAll

		result := map[string]interface{}{"project_id": project.ID}

		if showFindings {
			var findings []*models.Finding
			if searchText != "" {
				findings, _ = bcRepo.FindFindingByText(project.ID, searchText)
			} else {
				findings, _ = bcRepo.ListFindingsWithStaleness(project.ID, "", limit)
			}
			findingsList := make([]map[string]interface{}, 0, len(findings))
			for _, f := range findings {
				fileChanged := f.Subject != nil && f.SubjectGitHash != nil && checkFileChanged(*f.Subject, *f.SubjectGitHash)
				item := map[string]interface{}{
					"id": f.ID, "finding": f.Finding,
					"status": string(f.GetStalenessStatus(fileChanged)),
					"confidence": f.CalculateConfidence(), "days_old": int(f.DaysSinceVerified()),
				}
				if f.Subject != nil {
					item["scope"] = *f.Subject
					item["file_changed"] = fileChanged
				}
				findingsList = append(findingsList, item)
			}
			result["findings"] = findingsList
			result["findings_count"] = len(findingsList)
		}

		if showUnknownsFlag {
			resolved := false
			unknowns, _ := bcRepo.ListUnknowns(project.ID, "", &resolved, limit)
			unknownsList := make([]map[string]interface{}, 0, len(unknowns))
			for _, u := range unknowns {
				item := map[string]interface{}{"id": u.ID, "unknown": u.Unknown}
				if u.Subject != nil {
					item["scope"] = *u.Subject
				}
				unknownsList = append(unknownsList, item)
			}
			result["unknowns"] = unknownsList
			result["unknowns_count"] = len(unknownsList)
		}

		if showDeadEndsFlag {
			deadEnds, _ := bcRepo.ListDeadEnds(project.ID, "", limit)
			deadEndsList := make([]map[string]interface{}, 0, len(deadEnds))
			for _, d := range deadEnds {
				item := map[string]interface{}{"id": d.ID, "approach": d.Approach, "why_failed": d.WhyFailed}
				if d.Subject != nil {
					item["scope"] = *d.Subject
				}
				deadEndsList = append(deadEndsList, item)
			}
			result["dead_ends"] = deadEndsList
			result["dead_ends_count"] = len(deadEndsList)
		}

		if !outputText {
			outputResult(result)
			return nil
		}

		fmt.Printf("Knowledge Base: %s\n", project.Name)
		fmt.Println(strings.Repeat("─", 50))
		if findings, ok := result["findings"].([]map[string]interface{}); ok {
			fmt.Printf("\n✓ FINDINGS (%d):\n", len(findings))
			for _, f := range findings {
				fmt.Printf("  • %v\n", f["finding"])
			}
		}
		if unknowns, ok := result["unknowns"].([]map[string]interface{}); ok {
			fmt.Printf("\n? OPEN QUESTIONS (%d):\n", len(unknowns))
			for _, u := range unknowns {
				fmt.Printf("  • %v\n", u["unknown"])
			}
		}
		if deadEnds, ok := result["dead_ends"].([]map[string]interface{}); ok {
			fmt.Printf("\n✗ DEAD ENDS (%d):\n", len(deadEnds))
			for _, d := range deadEnds {
				fmt.Printf("  • %v — %v\n", d["approach"], d["why_failed"])
			}
		}
		return nil
	},
}

// getFileGitHash returns the git blob hash for a file, or "" if unavailable.
func getFileGitHash(filePath string) string {
	cmd := exec.Command("git", "hash-object", filePath)
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// checkFileChanged compares a stored git hash with the current file's hash
func checkFileChanged(filePath string, storedHash string) bool {
	if storedHash == "" || filePath == "" {
		return false
	}
	currentHash := getFileGitHash(filePath)
	if currentHash == "" {
		return false
	}
	return currentHash != storedHash
}

func init() {
	startCmd.Flags().String("ai-id", "claude-code", "AI identifier")

	learnedCmd.Flags().String("scope", "", "File/directory scope for the finding")
	uncertainCmd.Flags().String("scope", "", "File/directory scope for the unknown")

	verifyCmd.Flags().String("id", "", "Finding ID to verify")
	verifyCmd.Flags().String("update", "", "New text to update the finding with")

	queryCmd.Flags().BoolP("unknowns", "u", false, "Show open questions/unknowns")
	queryCmd.Flags().BoolP("dead-ends", "d", false, "Show failed approaches/dead ends")
	queryCmd.Flags().BoolP("all", "a", false, "Show all (findings, unknowns, dead ends)")
	queryCmd.Flags().IntP("limit", "n", 50, "Maximum number of results")

	rootCmd.AddCommand(
		startCmd,
		doneCmd,
		learnedCmd,
		uncertainCmd,
		triedCmd,
		statusCmd,
		verifyCmd,
		queryCmd,
	)
}
