package gitnotes

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/kernel/errs"
)

// newTestStore initializes a throwaway git repository with a single commit
// so note refs have a HEAD to attach to, matching the write protocol in
// spec.md §4.8. Skips if the git binary isn't on PATH.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	run("commit", "--allow-empty", "-q", "-m", "root")
	return New(dir)
}

type finding struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func TestPutGet_RoundTripsJSONPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := finding{Text: "uses bufio.Scanner", Confidence: 0.8}
	require.NoError(t, store.Put(ctx, NamespaceFindings, "f1", want))

	var got finding
	require.NoError(t, store.Get(ctx, NamespaceFindings, "f1", &got))
	assert.Equal(t, want, got)
}

func TestGet_UnknownIDReturnsNoSessionError(t *testing.T) {
	store := newTestStore(t)
	var out finding
	err := store.Get(context.Background(), NamespaceFindings, "missing", &out)
	assert.ErrorIs(t, err, errs.ErrNoSession)
}

func TestAppendLine_BuildsNewlineDelimitedLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendLine(ctx, NamespaceTasks, "c1", "PREFLIGHT", map[string]any{"ok": true}))
	require.NoError(t, store.AppendLine(ctx, NamespaceTasks, "c1", "CHECK", map[string]any{"ok": false}))

	raw, err := store.GetRaw(ctx, NamespaceTasks, "c1")
	require.NoError(t, err)
	assert.Contains(t, raw, "PREFLIGHT: ")
	assert.Contains(t, raw, "CHECK: ")
	assert.Equal(t, 2, len(splitLines(raw)))
}

func TestList_EnumeratesIDsUnderNamespace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, NamespaceGoals, "g1", finding{Text: "a"}))
	require.NoError(t, store.Put(ctx, NamespaceGoals, "g2", finding{Text: "b"}))

	ids, err := store.List(ctx, NamespaceGoals)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g1", "g2"}, ids)
}

func TestPutNestedGetNested_RoundTripsUnderDeepPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutNested(ctx, "messages/inbox/m1", finding{Text: "hello"}))

	var got finding
	require.NoError(t, store.GetNested(ctx, "messages/inbox/m1", &got))
	assert.Equal(t, "hello", got.Text)

	ids, err := store.ListNamespace(ctx, "messages/inbox")
	require.NoError(t, err)
	assert.Contains(t, ids, "m1")
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
