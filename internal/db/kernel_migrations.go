package db

// Kernel migrations add the tables backing the epistemic kernel subsystems
// (Context Budget Manager, Attention Budget Allocator, Parallel Orchestrator,
// Event Bus, Grounded Calibration Track, Rollup Gate, Trust & Sentinel) on
// top of the session-store tables created in db.go. They follow the same
// const-SQL-string-appended-to-migrate()'s-slice convention as db.go.

const migrationSuggestions = `
CREATE TABLE IF NOT EXISTS suggestions (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    cascade_id TEXT,
    kind TEXT NOT NULL,
    message TEXT NOT NULL,
    accepted BOOLEAN,
    created_timestamp REAL NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

const migrationAttentionBudgets = `
CREATE TABLE IF NOT EXISTS attention_budgets (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    total_budget INTEGER NOT NULL,
    allocated INTEGER DEFAULT 0,
    remaining INTEGER NOT NULL,
    strategy TEXT DEFAULT 'information_gain',
    allocations_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

// migrationContextBudgetState mirrors context_budget.py's persist_state: one
// row per session with the whole item inventory denormalized as a JSON blob,
// following the teacher's *_data JSON-blob-in-column convention.
const migrationContextBudgetState = `
CREATE TABLE IF NOT EXISTS context_budget_state (
    session_id TEXT PRIMARY KEY,
    inventory_json TEXT NOT NULL,
    thresholds_json TEXT NOT NULL,
    page_faults INTEGER DEFAULT 0,
    evictions INTEGER DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

const migrationEpistemicEvents = `
CREATE TABLE IF NOT EXISTS epistemic_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    session_id TEXT NOT NULL,
    cascade_id TEXT,
    domain TEXT,
    data_json TEXT,
    timestamp REAL NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

// migrationGroundedBeliefs holds the Bayesian Gaussian calibration state per
// (session, ai, vector) pair (spec.md §3/§4.7/§6.1): mean/variance replace an
// earlier Beta-prior draft once the Gaussian update formula in spec.md §4.7
// was wired in.
const migrationGroundedBeliefs = `
CREATE TABLE IF NOT EXISTS grounded_beliefs (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    ai_id TEXT NOT NULL,
    vector_name TEXT NOT NULL,
    mean REAL NOT NULL,
    variance REAL NOT NULL,
    evidence_count INTEGER DEFAULT 0,
    last_observation REAL,
    last_observation_source TEXT,
    self_referential_mean REAL,
    divergence REAL,
    phase TEXT NOT NULL DEFAULT 'combined',
    grounded BOOLEAN DEFAULT 1,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

const migrationGroundedVerifications = `
CREATE TABLE IF NOT EXISTS grounded_verifications (
    verification_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    ai_id TEXT NOT NULL,
    self_assessed_vectors_json TEXT,
    grounded_vectors_json TEXT,
    calibration_gaps_json TEXT,
    grounded_coverage REAL,
    overall_calibration_score REAL,
    evidence_count INTEGER DEFAULT 0,
    sources_available_json TEXT,
    sources_failed_json TEXT,
    domain TEXT,
    goal_id TEXT,
    phase TEXT NOT NULL,
    ran_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

const migrationVerificationEvidence = `
CREATE TABLE IF NOT EXISTS verification_evidence (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    belief_id TEXT NOT NULL,
    source TEXT,
    metric_name TEXT,
    normalized_value REAL NOT NULL,
    raw_value REAL,
    quality REAL NOT NULL,
    supports_vectors_json TEXT,
    phase TEXT NOT NULL,
    metadata_json TEXT,
    recorded_at TIMESTAMP NOT NULL,
    FOREIGN KEY (belief_id) REFERENCES grounded_beliefs(id)
);
`

const migrationCalibrationTrajectory = `
CREATE TABLE IF NOT EXISTS calibration_trajectory (
    point_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    ai_id TEXT NOT NULL,
    vector_name TEXT NOT NULL,
    self_assessed REAL NOT NULL,
    grounded REAL,
    gap REAL,
    domain TEXT,
    goal_id TEXT,
    phase TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

const migrationRollupLogs = `
CREATE TABLE IF NOT EXISTS rollup_logs (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    cascade_id TEXT,
    finding_hash TEXT NOT NULL,
    agent_name TEXT,
    domain TEXT,
    score REAL NOT NULL,
    accepted BOOLEAN NOT NULL,
    reject_reason TEXT,
    created_timestamp REAL NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

// migrationTrustAssessments is append-only (one row per Compute call) so the
// Dashboard (SPEC_FULL.md §10) can chart trust trend over time, grounded on
// autonomy/trust_calculator.py's historical assessment log.
const migrationTrustAssessments = `
CREATE TABLE IF NOT EXISTS trust_assessments (
    id TEXT PRIMARY KEY,
    ai_id TEXT NOT NULL,
    score REAL NOT NULL,
    tier TEXT NOT NULL,
    grounded_coverage REAL,
    trajectory_direction REAL,
    check_proceed_ratio REAL,
    mistake_rate REAL,
    computed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trust_assessments_ai_id ON trust_assessments(ai_id, computed_at);
`

// migrationCascadeLastDecision adds the ACT-blocking check-decision column
// to cascades, following the teacher's best-effort ALTER TABLE convention.
const migrationCascadeLastDecision = `
ALTER TABLE cascades ADD COLUMN last_check_decision TEXT;
`

const migrationKernelIndexes = `
CREATE INDEX IF NOT EXISTS idx_attention_budgets_session_id ON attention_budgets(session_id);
CREATE INDEX IF NOT EXISTS idx_epistemic_events_session_id ON epistemic_events(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_epistemic_events_type ON epistemic_events(event_type, timestamp);
CREATE INDEX IF NOT EXISTS idx_grounded_beliefs_session_id ON grounded_beliefs(session_id);
CREATE INDEX IF NOT EXISTS idx_grounded_beliefs_vector ON grounded_beliefs(vector_name);
CREATE INDEX IF NOT EXISTS idx_calibration_trajectory_session_id ON calibration_trajectory(session_id);
CREATE INDEX IF NOT EXISTS idx_rollup_logs_session_id ON rollup_logs(session_id);
`
