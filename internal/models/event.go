package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the Epistemic Event Bus's canonical topics
// (spec.md §4.6, grounded on bus_persistence.py's observed event names).
type EventType string

// The first thirteen constants are exactly spec.md §4.6's closed event
// vocabulary (string values match the spec literally, since they are
// persisted and queried by QueryEvents/QuerySemantic). The remaining
// constants are supplementary, finer-grained topics the kernel also
// publishes for artifact/orchestration bookkeeping the closed set doesn't
// itself name (findings, budgets, handoffs) — additive, never replacing a
// spec event, and documented as a resolved Open Question in DESIGN.md.
const (
	EventSessionStarted           EventType = "session_started"
	EventPhaseTransition          EventType = "phase_transition"
	EventConfidenceDropped        EventType = "confidence_dropped"
	EventCalibrationDriftDetected EventType = "calibration_drift_detected"
	EventMemoryPressure           EventType = "memory_pressure"
	EventContextEvicted           EventType = "context_evicted"
	EventContextInjected          EventType = "context_injected"
	EventPageFault                EventType = "page_fault"
	EventBudgetExhausted          EventType = "budget_exhausted"
	EventGoalCreated              EventType = "goal_created"
	EventGoalCompleted            EventType = "goal_completed"
	EventPostflightComplete       EventType = "postflight_complete"
	EventActionDecided            EventType = "action_decided"

	EventReflexRecorded     EventType = "reflex.recorded"
	EventFindingLogged      EventType = "finding.logged"
	EventUnknownLogged      EventType = "unknown.logged"
	EventDeadEndLogged      EventType = "dead_end.logged"
	EventMistakeLogged      EventType = "mistake.logged"
	EventBudgetCreated      EventType = "budget.created"
	EventOrchestratorPlan   EventType = "orchestrator.plan"
	EventRegulationIssued   EventType = "orchestrator.regulation"
	EventRollupProcessed    EventType = "rollup.processed"
	EventCalibrationUpdated EventType = "calibration.updated"
	EventHandoffCreated     EventType = "handoff.created"

	// Back-compat aliases: the cascade/CBM packages were originally wired
	// against these names before §4.6 alignment; kept equal to their spec
	// counterparts above so existing call sites read naturally.
	EventCascadeStarted     = EventSessionStarted
	EventCascadePhaseChange = EventPhaseTransition
	EventCascadeCompleted   = EventPostflightComplete
	EventDivergenceDetected = EventCalibrationDriftDetected
	EventInjectionRequested = EventContextInjected
	EventEviction           = EventContextEvicted
)

// EpistemicEvent is the single wire format flowing through the Event Bus
// (spec.md §6.3). Data carries type-specific payload fields as a JSON blob,
// mirroring bus_persistence.py's dict-based event dispatch.
type EpistemicEvent struct {
	ID        string         `json:"id" db:"id"`
	Type      EventType      `json:"type" db:"event_type"`
	SessionID string         `json:"session_id" db:"session_id"`
	CascadeID string         `json:"cascade_id,omitempty" db:"cascade_id"`
	Domain    string         `json:"domain,omitempty" db:"domain"`
	Data      map[string]any `json:"data" db:"data_json"`
	Timestamp time.Time      `json:"timestamp" db:"timestamp"`
}

// NewEpistemicEvent stamps an event with a fresh ID and the current time.
func NewEpistemicEvent(eventType EventType, sessionID string, data map[string]any) *EpistemicEvent {
	return &EpistemicEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// EventQuery filters QueryEvents results (spec.md §4.6).
type EventQuery struct {
	SessionID string
	Type      EventType
	Since     time.Time
	Limit     int
}
