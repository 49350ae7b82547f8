package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/kernel/calibration"
	"github.com/empirica/kernel/internal/kernel/rollup"
	"github.com/empirica/kernel/internal/models"
)

// runCalibrationForSession assembles the five Grounded Calibration Track
// collectors against the current working directory and the given session's
// persisted goals/artifacts, then runs the tracker (spec.md §4.7). Used by
// `calibration verify`; doneCmd builds its own collector set.
func runCalibrationForSession(sessionID, aiID, phase string, selfAssessed *models.EpistemicVectors) (*models.GroundedVerification, error) {
	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	var cascadeModel *models.Cascade
	cascadeRepo := db.NewCascadeRepository(database)
	if sessions := db.NewSessionRepository(database); sessions != nil {
		if s, _ := sessions.Get(sessionID); s != nil {
			cascadeModel, _ = cascadeRepo.GetLatestBySession(s.SessionID)
		}
	}

	collectors := []calibration.Collector{
		&calibration.GoalCollector{Goals: db.NewGoalRepository(database), Subtasks: db.NewSubtaskRepository(database)},
		&calibration.ArtifactCollector{Breadcrumbs: db.NewBreadcrumbRepository(database), Mistakes: db.NewMistakeRepository(database)},
		&calibration.SentinelCollector{Cascades: cascadeRepo, Cascade: cascadeModel},
		&calibration.TestCollector{WorkDir: workDir},
		&calibration.GitCollector{WorkDir: workDir, Since: time.Now().Add(-24 * time.Hour), Log: kern.Log},
	}
	if phase == "" {
		phase = "combined"
	}
	return kern.Calibration().Run(context.Background(), sessionID, aiID, collectors, selfAssessed, phase)
}

// cascadeCmd groups direct Cascade State Machine operations.
var cascadeCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Direct access to the Cascade State Machine",
}

type checkInput struct {
	CascadeID  string   `json:"cascade_id"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence"`
	Gaps       []string `json:"gaps"`
}

var cascadeCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Submit a CHECK cycle to a running cascade",
	Long: `Submit a CHECK cycle: self-assessed confidence and remaining gaps are
weighed against the proceed/caveat/investigate/escalate thresholds
(spec.md §4.1).

Input JSON (file path, or "-" for stdin):
  {"cascade_id": "...", "summary": "...", "confidence": 0.82, "gaps": ["..."]}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		var in checkInput
		if err := readInputJSON(input, &in); err != nil {
			return err
		}
		result, err := kern.Cascade().SubmitCheck(context.Background(), in.CascadeID, in.Summary, in.Confidence, in.Gaps)
		if err != nil {
			return err
		}
		outputResult(result)
		return nil
	},
}

type postflightInput struct {
	CascadeID     string                   `json:"cascade_id"`
	TaskSummary   string                   `json:"task_summary"`
	Vectors       *models.EpistemicVectors `json:"vectors"`
	LearningNotes string                   `json:"learning_notes"`
}

var cascadePostflightCmd = &cobra.Command{
	Use:   "postflight",
	Short: "Submit the POSTFLIGHT report for a cascade",
	Long: `Submit a postflight self-assessment; compares against the cascade's
PREFLIGHT vectors and returns a calibration verdict (spec.md §4.1).

Input JSON:
  {"cascade_id": "...", "task_summary": "...", "vectors": {...}, "learning_notes": "..."}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		var in postflightInput
		if err := readInputJSON(input, &in); err != nil {
			return err
		}
		if in.Vectors == nil {
			in.Vectors = models.NewDefaultVectors()
		}
		result, err := kern.Cascade().SubmitPostflight(context.Background(), in.CascadeID, in.TaskSummary, in.Vectors, in.LearningNotes)
		if err != nil {
			return err
		}
		outputResult(result)
		return nil
	},
}

// budgetCmd groups Context Budget Manager and Attention Budget Allocator operations.
var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Context Budget Manager and Attention Budget Allocator operations",
}

type budgetCreateInput struct {
	SessionID             string                   `json:"session_id"`
	Domains               []string                 `json:"domains"`
	Vectors               *models.EpistemicVectors `json:"vectors"`
	PriorFindingsByDomain map[string]int           `json:"prior_findings_by_domain"`
	DeadEndsByDomain      map[string]int           `json:"dead_ends_by_domain"`
	Total                 int                      `json:"total"`
}

var budgetCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Allocate an attention budget across investigation domains",
	Long: `Allocate an integer findings budget across domains, weighted by uncertainty,
prior findings, and dead ends (spec.md §4.3).

Input JSON:
  {"session_id": "...", "domains": ["auth", "db"], "vectors": {...},
   "prior_findings_by_domain": {"auth": 2}, "dead_ends_by_domain": {}, "total": 2000}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		var in budgetCreateInput
		if err := readInputJSON(input, &in); err != nil {
			return err
		}
		if in.Vectors == nil {
			in.Vectors = models.NewDefaultVectors()
		}
		budget := kern.AttentionBudget(in.SessionID, in.Domains, in.Vectors, in.PriorFindingsByDomain, in.DeadEndsByDomain, in.Total)
		outputResult(budget)
		return nil
	},
}

// orchestrateCmd groups Parallel Orchestrator operations.
var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Plan and regulate parallel sub-agent investigation",
}

type orchestratePlanInput struct {
	SessionID string                   `json:"session_id"`
	CascadeID string                   `json:"cascade_id"`
	Task      string                   `json:"task"`
	Domains   []string                 `json:"domains"`
	MaxAgents int                      `json:"max_agents"`
	Vectors   *models.EpistemicVectors `json:"vectors"`
}

var orchestratePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a round of parallel sub-agent investigation",
	Long: `Build an OrchestrationPlan: domain detection (if domains are omitted),
per-domain budget, and persona/focus allocation (spec.md §4.4).

Input JSON:
  {"session_id": "...", "cascade_id": "...", "task": "...", "domains": [],
   "max_agents": 0, "vectors": {...}}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		var in orchestratePlanInput
		if err := readInputJSON(input, &in); err != nil {
			return err
		}
		if in.Vectors == nil {
			in.Vectors = models.NewDefaultVectors()
		}
		plan, err := kern.Orchestrator().Plan(context.Background(), in.SessionID, in.CascadeID, in.Task, in.Domains, in.MaxAgents, in.Vectors)
		if err != nil {
			return err
		}
		outputResult(plan)
		return nil
	},
}

type orchestrateRegulateInput struct {
	Domain             string                 `json:"domain"`
	Result             *models.RollupResult   `json:"result"`
	Round              int                    `json:"round"`
	RoundsWithoutNovel int                    `json:"rounds_without_novel"`
	Vectors            *models.EpistemicVectors `json:"vectors"`
	PriorFindings      int                    `json:"prior_findings"`
	DeadEnds           int                    `json:"dead_ends"`
}

var orchestrateRegulateCmd = &cobra.Command{
	Use:   "regulate",
	Short: "Decide whether a domain should continue, reallocate, spawn more, or stop",
	Long: `Regulate a single domain's ongoing investigation based on its latest
rollup result and novelty trend (spec.md §4.4).

Input JSON:
  {"domain": "auth", "result": {...rollup result...}, "round": 1,
   "rounds_without_novel": 0, "vectors": {...}, "prior_findings": 3, "dead_ends": 0}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		var in orchestrateRegulateInput
		if err := readInputJSON(input, &in); err != nil {
			return err
		}
		if in.Vectors == nil {
			in.Vectors = models.NewDefaultVectors()
		}
		if in.Result == nil {
			in.Result = &models.RollupResult{}
		}
		decision := kern.Orchestrator().Regulate(in.Domain, in.Result, in.Round, in.RoundsWithoutNovel, in.Vectors, in.PriorFindings, in.DeadEnds)
		outputResult(decision)
		return nil
	},
}

// rollupCmd groups Rollup Gate operations.
var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Score and deduplicate sub-agent findings",
}

type rollupProcessInput struct {
	SessionID       string              `json:"session_id"`
	CascadeID       string              `json:"cascade_id"`
	Candidates      []rollup.Candidate  `json:"candidates"`
	Existing        []string            `json:"existing"`
	BudgetRemaining int                 `json:"budget_remaining"`
}

var rollupProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Score, dedupe, and accept/reject a batch of candidate findings",
	Long: `Run candidate findings through the Rollup Gate: score by confidence and
domain relevance, deduplicate via SHA-256 hash and Jaccard similarity against
existing findings, then accept up to the remaining budget (spec.md §4.5).

Input JSON:
  {"session_id": "...", "cascade_id": "...",
   "candidates": [{"Finding": "...", "AgentName": "...", "Domain": "...",
                   "Confidence": 0.7, "DomainRelevance": 0.8}],
   "existing": ["..."], "budget_remaining": 5}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		var in rollupProcessInput
		if err := readInputJSON(input, &in); err != nil {
			return err
		}
		result, err := kern.Rollup().Process(context.Background(), in.SessionID, in.CascadeID, in.Candidates, in.Existing, in.BudgetRemaining)
		if err != nil {
			return err
		}
		outputResult(result)
		return nil
	},
}

// eventsCmd groups Epistemic Event Bus query operations.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the persisted Epistemic Event Bus",
}

var eventsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query durable events for a session",
	Long:  `Query events recorded by the SQLite durable observer, filtered by session, type, and time (spec.md §4.6).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		eventType, _ := cmd.Flags().GetString("type")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		q := models.EventQuery{SessionID: sessionID, Type: models.EventType(eventType), Limit: limit}
		if since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since (expected RFC3339): %w", err)
			}
			q.Since = t
		}

		events, err := db.NewEventRepository(database).Query(q)
		if err != nil {
			return err
		}
		outputResult(events)
		return nil
	},
}

// calibrationCmd groups Grounded Calibration Track operations.
var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Run and inspect the Grounded Calibration Track",
}

type calibrationVerifyInput struct {
	SessionID    string                   `json:"session_id"`
	AIID         string                   `json:"ai_id"`
	Phase        string                   `json:"phase"`
	SelfAssessed *models.EpistemicVectors `json:"self_assessed"`
}

var calibrationVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the five evidence collectors and compute a GroundedVerification",
	Long: `Run the Grounded Calibration Track against the current working
directory (goals, artifacts, sentinel, test report, git activity) and compare
with a self-assessed vector (spec.md §4.7).

Input JSON:
  {"session_id": "...", "ai_id": "...", "phase": "combined", "self_assessed": {...}}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		var in calibrationVerifyInput
		if err := readInputJSON(input, &in); err != nil {
			return err
		}
		if in.SelfAssessed == nil {
			in.SelfAssessed = models.NewDefaultVectors()
		}

		verification, err := runCalibrationForSession(in.SessionID, in.AIID, in.Phase, in.SelfAssessed)
		if err != nil {
			return err
		}
		outputResult(verification)
		return nil
	},
}

// dashboardCmd groups System Dashboard operations.
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Read the aggregated System Dashboard",
}

var dashboardStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Snapshot a session's dashboard",
	Long:  `Aggregate cascade phase, latest vectors, budget, attention utilization, counts, calibration drift, and trust into one snapshot, degrading gracefully when a subsystem has nothing recorded yet (spec.md §10).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			return fmt.Errorf("--session is required")
		}
		snap, err := kern.Dashboard().Snapshot(context.Background(), sessionID)
		if err != nil {
			return err
		}
		outputResult(snap)
		return nil
	},
}

// trustCmd groups Trust & Sentinel operations.
var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Compute and inspect agent trust/autonomy tier",
}

var trustAssessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Compute a TrustAssessment for an AI identity",
	Long:  `Compute grounded coverage, trajectory direction, check-proceed ratio, and mistake rate into a trust score and AutonomyTier (spec.md §4.8/§11).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		aiID, _ := cmd.Flags().GetString("ai-id")
		if aiID == "" {
			return fmt.Errorf("--ai-id is required")
		}
		sessionIDsStr, _ := cmd.Flags().GetStringSlice("session")

		assessment, err := kern.Sentinel().Compute(context.Background(), aiID, sessionIDsStr)
		if err != nil {
			return err
		}
		outputResult(assessment)
		return nil
	},
}

// notesCmd groups the Git-Notes Store's inter-agent messaging.
var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Send and read inter-agent messages over git notes",
}

type notesSendInput struct {
	Channel   string         `json:"channel"`
	From      models.MessageParty `json:"from"`
	To        models.MessageParty `json:"to"`
	Type      string         `json:"type"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	ReplyTo   string         `json:"reply_to"`
	ThreadID  string         `json:"thread_id"`
	TTLSecs   int            `json:"ttl_secs"`
	Priority  string         `json:"priority"`
	Metadata  map[string]any `json:"metadata"`
}

var notesSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an inter-agent message",
	Long: `Write a message into the shared refs/notes/empirica inbox for another
agent or a broadcast channel (spec.md §4.9).

Input JSON:
  {"channel": "general", "from": {"ai_id": "claude-code"}, "to": {"ai_id": "*"},
   "type": "notice", "subject": "...", "body": "..."}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		var in notesSendInput
		if err := readInputJSON(input, &in); err != nil {
			return err
		}
		msg := &models.InboxMessage{
			MessageID: fmt.Sprintf("msg-%d", time.Now().UnixNano()),
			Channel:   in.Channel,
			From:      in.From,
			To:        in.To,
			Timestamp: time.Now(),
			Type:      in.Type,
			Subject:   in.Subject,
			Body:      in.Body,
			ReplyTo:   in.ReplyTo,
			ThreadID:  in.ThreadID,
			TTLSecs:   in.TTLSecs,
			Priority:  in.Priority,
			Metadata:  in.Metadata,
		}
		if err := kern.Messages().Send(context.Background(), msg); err != nil {
			return err
		}
		outputResult(map[string]interface{}{"status": "sent", "message_id": msg.MessageID})
		return nil
	},
}

var notesInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Read inbox messages for an AI identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetString("channel")
		aiID, _ := cmd.Flags().GetString("ai-id")
		includeExpired, _ := cmd.Flags().GetBool("include-expired")
		limit, _ := cmd.Flags().GetInt("limit")

		messages, err := kern.Messages().GetInbox(context.Background(), channel, models.InboxQuery{
			AIID: aiID, IncludeExpired: includeExpired, Limit: limit,
		})
		if err != nil {
			return err
		}
		outputResult(messages)
		return nil
	},
}

func init() {
	cascadeCheckCmd.Flags().StringP("input", "i", "-", "JSON input file, or - for stdin")
	cascadePostflightCmd.Flags().StringP("input", "i", "-", "JSON input file, or - for stdin")
	cascadeCmd.AddCommand(cascadeCheckCmd, cascadePostflightCmd)

	budgetCreateCmd.Flags().StringP("input", "i", "-", "JSON input file, or - for stdin")
	budgetCmd.AddCommand(budgetCreateCmd)

	orchestratePlanCmd.Flags().StringP("input", "i", "-", "JSON input file, or - for stdin")
	orchestrateRegulateCmd.Flags().StringP("input", "i", "-", "JSON input file, or - for stdin")
	orchestrateCmd.AddCommand(orchestratePlanCmd, orchestrateRegulateCmd)

	rollupProcessCmd.Flags().StringP("input", "i", "-", "JSON input file, or - for stdin")
	rollupCmd.AddCommand(rollupProcessCmd)

	eventsQueryCmd.Flags().String("session", "", "Filter by session ID")
	eventsQueryCmd.Flags().String("type", "", "Filter by event type")
	eventsQueryCmd.Flags().String("since", "", "Filter by RFC3339 timestamp")
	eventsQueryCmd.Flags().Int("limit", 50, "Maximum number of events")
	eventsCmd.AddCommand(eventsQueryCmd)

	calibrationVerifyCmd.Flags().StringP("input", "i", "-", "JSON input file, or - for stdin")
	calibrationCmd.AddCommand(calibrationVerifyCmd)

	dashboardStatusCmd.Flags().String("session", "", "Session ID to snapshot")
	dashboardCmd.AddCommand(dashboardStatusCmd)

	trustAssessCmd.Flags().String("ai-id", "", "AI identity to assess")
	trustAssessCmd.Flags().StringSlice("session", nil, "Session IDs to include")
	trustCmd.AddCommand(trustAssessCmd)

	notesSendCmd.Flags().StringP("input", "i", "-", "JSON input file, or - for stdin")
	notesInboxCmd.Flags().String("channel", "general", "Channel to read")
	notesInboxCmd.Flags().String("ai-id", "", "AI identity to read inbox for")
	notesInboxCmd.Flags().Bool("include-expired", false, "Include TTL-expired messages")
	notesInboxCmd.Flags().Int("limit", 50, "Maximum number of messages")
	notesCmd.AddCommand(notesSendCmd, notesInboxCmd)

	rootCmd.AddCommand(cascadeCmd, budgetCmd, orchestrateCmd, rollupCmd, eventsCmd, calibrationCmd, dashboardCmd, trustCmd, notesCmd)
}
