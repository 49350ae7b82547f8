// Package errs defines the sentinel error taxonomy shared across every
// kernel subsystem (SPEC_FULL.md §4). Callers compare with errors.Is;
// subsystems wrap one of these with fmt.Errorf("...: %w", errs.ErrX) to add
// context without losing the sentinel.
package errs

import "errors"

var (
	// ErrNoSession is returned when an operation references a session_id
	// that does not exist in the store.
	ErrNoSession = errors.New("no such session")

	// ErrPhaseViolation is returned when a cascade operation is attempted
	// out of order against the PREFLIGHT -> INVESTIGATE <-> CHECK -> ACT ->
	// POSTFLIGHT state machine.
	ErrPhaseViolation = errors.New("cascade phase violation")

	// ErrBudgetExceeded is returned when an attention or context budget has
	// no remaining capacity for the requested operation.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrTimeout is returned when a bounded operation (parallel agent,
	// git subprocess) exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrPersistFailed is returned when a durable write to the session
	// store or git-notes ref fails.
	ErrPersistFailed = errors.New("persistence failed")

	// ErrCapabilityUnavailable is returned when an optional external
	// capability (vector store, git binary) is not configured or
	// unreachable, and the caller requested strict behavior.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrBadInput is returned for malformed or out-of-range caller input.
	ErrBadInput = errors.New("invalid input")
)
