// Package gitnotes implements the Git-Notes Epistemic Store: content
// addressed, git-native persistence of findings, goals and agent messages
// under refs/notes/empirica/... (spec.md §4.8, grounded on
// original_source/empirica/core/git_notes_store.py and message_store.py).
// It shells out to the git binary via os/exec, matching the teacher's
// subprocess-based integrations rather than a go-git dependency — git
// plumbing is the one interface spec.md §4.8 requires ("no git-aware
// client required beyond plumbing").
package gitnotes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/empirica/kernel/internal/kernel/errs"
)

// Namespace is one of the closed set of note namespaces (spec.md §4.8).
type Namespace string

const (
	NamespaceFindings   Namespace = "findings"
	NamespaceUnknowns   Namespace = "unknowns"
	NamespaceDeadEnds   Namespace = "dead_ends"
	NamespaceMistakes   Namespace = "mistakes"
	NamespaceGoals      Namespace = "goals"
	NamespaceTasks      Namespace = "tasks"
	NamespaceHandoff    Namespace = "handoff"
	NamespaceSignatures Namespace = "signatures"
	NamespaceMessages   Namespace = "messages"
)

// refPrefix is the common root for every note ref this store manages.
const refPrefix = "refs/notes/empirica"

// defaultTimeout bounds every git subprocess invocation (spec.md §5).
const defaultTimeout = 30 * time.Second

// Store reads and writes namespaced git notes in a single repository
// working tree.
type Store struct {
	WorkDir string
	Timeout time.Duration
}

// New creates a Store rooted at workDir (the git working tree / repo root).
func New(workDir string) *Store {
	return &Store{WorkDir: workDir, Timeout: defaultTimeout}
}

func (s *Store) timeout() time.Duration {
	if s.Timeout <= 0 {
		return defaultTimeout
	}
	return s.Timeout
}

func (s *Store) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), errs.ErrTimeout)
		}
		return nil, fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), stderr.String(), errs.ErrPersistFailed)
	}
	return stdout.Bytes(), nil
}

func refPath(ns Namespace, id string) string {
	return fmt.Sprintf("%s/%s/%s", refPrefix, ns, id)
}

// Put writes v, JSON-encoded, as a note attached to the namespace/id ref
// (spec.md §4.8 write protocol: `git notes --ref=<ref> add -f -m <payload> HEAD`).
func (s *Store) Put(ctx context.Context, ns Namespace, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode note payload: %w", errs.ErrBadInput)
	}
	ref := refPath(ns, id)
	_, err = s.run(ctx, "notes", "--ref="+ref, "add", "-f", "-m", string(payload), "HEAD")
	return err
}

// AppendLine appends a LABEL: {json} line to the namespace/id ref's note,
// for append-only logs such as cascades (spec.md §4.8: "line-delimited
// append log").
func (s *Store) AppendLine(ctx context.Context, ns Namespace, id, label string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode note line: %w", errs.ErrBadInput)
	}
	ref := refPath(ns, id)
	line := fmt.Sprintf("%s: %s", label, string(payload))

	existing, err := s.readRaw(ctx, ref)
	if err != nil && err != errNoSuchNote {
		return err
	}
	var body string
	if existing != "" {
		body = existing + "\n" + line
	} else {
		body = line
	}
	_, err = s.run(ctx, "notes", "--ref="+ref, "add", "-f", "-m", body, "HEAD")
	return err
}

var errNoSuchNote = fmt.Errorf("no such note: %w", errs.ErrNoSession)

// readRaw reads the note attached to HEAD under a single ref with
// `git notes --ref=<ref> show HEAD`. git notes stores the note blob
// reachable from the ref's tip commit; `git notes show` resolves that blob
// without walking commit/tree manually, so `git cat-file` is not run.
func (s *Store) readRaw(ctx context.Context, ref string) (string, error) {
	out, err := s.run(ctx, "notes", "--ref="+ref, "show", "HEAD")
	if err != nil {
		return "", errNoSuchNote
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Get reads and JSON-decodes the note at namespace/id into v. Returns
// errs.ErrNoSession (wrapped) if no such note exists.
func (s *Store) Get(ctx context.Context, ns Namespace, id string, v any) error {
	raw, err := s.readRaw(ctx, refPath(ns, id))
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode note %s/%s: %w", ns, id, errs.ErrBadInput)
	}
	return nil
}

// GetRaw reads the raw (un-decoded) note body at namespace/id.
func (s *Store) GetRaw(ctx context.Context, ns Namespace, id string) (string, error) {
	return s.readRaw(ctx, refPath(ns, id))
}

// List enumerates every id under a namespace via `git for-each-ref`
// (spec.md §4.8 read protocol step 1).
func (s *Store) List(ctx context.Context, ns Namespace) ([]string, error) {
	pattern := fmt.Sprintf("%s/%s/", refPrefix, ns)
	out, err := s.run(ctx, "for-each-ref", "--format=%(refname)", pattern)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids = append(ids, strings.TrimPrefix(line, pattern))
	}
	return ids, nil
}

// ListNamespace enumerates ids under a nested path, e.g.
// messages/<channel>/ or session/<session_id>/<PHASE>/ (spec.md §4.8's
// deeper ref layouts).
func (s *Store) ListNamespace(ctx context.Context, path string) ([]string, error) {
	pattern := fmt.Sprintf("%s/%s/", refPrefix, strings.Trim(path, "/"))
	out, err := s.run(ctx, "for-each-ref", "--format=%(refname)", pattern)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids = append(ids, strings.TrimPrefix(line, pattern))
	}
	return ids, nil
}

// PutNested writes v under an arbitrary nested ref path (used by messages
// and session/cascade logs whose ref layout is deeper than namespace/id).
func (s *Store) PutNested(ctx context.Context, path string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode note payload: %w", errs.ErrBadInput)
	}
	ref := fmt.Sprintf("%s/%s", refPrefix, strings.Trim(path, "/"))
	_, err = s.run(ctx, "notes", "--ref="+ref, "add", "-f", "-m", string(payload), "HEAD")
	return err
}

// GetNested reads and JSON-decodes the note at an arbitrary nested path.
func (s *Store) GetNested(ctx context.Context, path string, v any) error {
	ref := fmt.Sprintf("%s/%s", refPrefix, strings.Trim(path, "/"))
	raw, err := s.readRaw(ctx, ref)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}
