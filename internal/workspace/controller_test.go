package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilothub/api/internal/genai"
	"pilothub/api/internal/kv"
	"pilothub/api/internal/notify"
	"pilothub/api/internal/projects"
	"pilothub/api/internal/revisions"
	"pilothub/api/internal/snapshot"
)

type fakeStream struct {
	fragments []string
	err       error
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	next := s.fragments[0]
	s.fragments = s.fragments[1:]
	return next, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeAI struct {
	mu        sync.Mutex
	fragments []string
	streamErr error
	openErr   error
	summary   string
	requests  []genai.Request
	// block, when set, is waited on before the stream is returned.
	block chan struct{}
}

func (f *fakeAI) StreamText(ctx context.Context, req genai.Request) (genai.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{fragments: append([]string(nil), f.fragments...), err: f.streamErr}, nil
}

func (f *fakeAI) GenerateText(ctx context.Context, req genai.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.summary, nil
}

type harness struct {
	ctrl  *Controller
	store *kv.MemoryStore
	repo  *projects.Repository
	snaps *snapshot.Store
	feed  *notify.Feed
	ai    *fakeAI
}

func newHarness(t *testing.T, hooks ...SaveHook) *harness {
	t.Helper()
	store := kv.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := projects.New(store, logger)
	snaps := snapshot.New(store)
	feed := notify.NewFeed(100)
	ai := &fakeAI{}
	memory, err := genai.LoadMemory(context.Background(), store, genai.Identity{})
	require.NoError(t, err)

	ctrl := New(Options{
		Repository: repo,
		Snapshots:  snaps,
		AI:         ai,
		Memory:     memory,
		Model:      "test-model",
		Notifier:   feed,
		Logger:     logger,
		AfterSave:  hooks,
	})
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctrl.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	seq := 0
	ctrl.newID = func() string {
		seq++
		return fmt.Sprintf("rev-%d", seq)
	}
	return &harness{ctrl: ctrl, store: store, repo: repo, snaps: snaps, feed: feed, ai: ai}
}

func messages(feed *notify.Feed) []string {
	var out []string
	for _, event := range feed.Drain() {
		out = append(out, event.Message)
	}
	return out
}

func TestNewControllerStartsUntitled(t *testing.T) {
	h := newHarness(t)
	view := h.ctrl.View()
	assert.Equal(t, UntitledName, view.Name)
	assert.False(t, view.Dirty)
	assert.Empty(t, view.Revisions)
	assert.True(t, view.MemoryEnabled)
}

func TestSetEditorMarksDirtyOnChange(t *testing.T) {
	h := newHarness(t)
	h.ctrl.SetEditor("")
	assert.False(t, h.ctrl.View().Dirty)
	h.ctrl.SetEditor("<p>hi</p>")
	assert.True(t, h.ctrl.View().Dirty)
}

func TestSaveRequiresName(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.Save(context.Background())
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestSaveAsCapturesManualEditAndClearsSnapshot(t *testing.T) {
	ctx := context.Background()
	var hooked []string
	h := newHarness(t, func(ctx context.Context, name string, ledger revisions.Ledger) error {
		hooked = append(hooked, fmt.Sprintf("%s:%d", name, ledger.Len()))
		return nil
	})
	h.ctrl.SetEditor("<h1>v1</h1>")
	_, err := h.snaps.Save(ctx, "<h1>v1</h1>")
	require.NoError(t, err)

	result, err := h.ctrl.SaveAs(ctx, "My App.html")
	require.NoError(t, err)
	assert.Equal(t, "My App", result.FinalName)

	view := h.ctrl.View()
	assert.Equal(t, "My App", view.Name)
	assert.False(t, view.Dirty)
	require.Len(t, view.Revisions, 1)
	assert.Equal(t, revisions.DescInitialCreation, view.Revisions[0].Description)

	_, ok, err := h.snaps.Peek(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"My App:1"}, hooked)
	assert.Contains(t, messages(h.feed), "Project 'My App' saved.")

	h.ctrl.SetEditor("<h1>v2</h1>")
	_, err = h.ctrl.Save(ctx)
	require.NoError(t, err)
	_, ledger := h.ctrl.Ledger()
	require.Equal(t, 2, ledger.Len())
	assert.Equal(t, revisions.DescManualEdit, ledger.Revisions[1].Description)

	// Saving again without edits adds nothing.
	_, err = h.ctrl.Save(ctx)
	require.NoError(t, err)
	_, ledger = h.ctrl.Ledger()
	assert.Equal(t, 2, ledger.Len())
}

func TestSaveHookFailureDoesNotFailSave(t *testing.T) {
	h := newHarness(t, func(context.Context, string, revisions.Ledger) error {
		return errors.New("mirror down")
	})
	h.ctrl.SetEditor("x")
	_, err := h.ctrl.SaveAs(context.Background(), "Demo")
	require.NoError(t, err)
	assert.False(t, h.ctrl.View().Dirty)
}

func TestOpenLoadsLatestRevision(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ledger := revisions.Ledger{Revisions: []revisions.Revision{
		{ID: "a", Timestamp: "2025-01-01T00:00:00.000Z", Content: "one", Description: revisions.DescInitialCreation},
		{ID: "b", Timestamp: "2025-01-02T00:00:00.000Z", Content: "two", Description: "AI: more"},
	}}
	_, err := h.repo.SaveLedger(ctx, "Demo", ledger)
	require.NoError(t, err)

	opened, err := h.ctrl.Open(ctx, "Demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo", opened.Name)
	view := h.ctrl.View()
	assert.Equal(t, "two", view.Editor)
	assert.False(t, view.Dirty)
	assert.Len(t, view.Revisions, 2)
}

func TestOpenUnknownProjectNotifies(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, projects.ErrNotFound)
	assert.Equal(t, []string{"Project not found."}, messages(h.feed))
}

func TestNewProjectGuardsUnsavedChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.ctrl.SetEditor("draft")
	assert.ErrorIs(t, h.ctrl.NewProject(ctx, false), ErrUnsavedChanges)
	require.NoError(t, h.ctrl.NewProject(ctx, true))
	view := h.ctrl.View()
	assert.Equal(t, UntitledName, view.Name)
	assert.Empty(t, view.Editor)
	assert.False(t, view.Dirty)
}

func TestDeleteRevisionKeepsOne(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.ctrl.AddRevision("one", revisions.DescManualEdit, true))
	err := h.ctrl.DeleteRevision("rev-1")
	assert.ErrorIs(t, err, revisions.ErrSoleRevision)
	assert.Contains(t, messages(h.feed), "Cannot delete the only revision.")
}

func TestDeleteRevisionFallsBackToLatest(t *testing.T) {
	h := newHarness(t)
	h.ctrl.AddRevision("one", revisions.DescManualEdit, false)
	h.ctrl.AddRevision("two", revisions.DescManualEdit, false)
	h.ctrl.SetEditor("two")

	require.NoError(t, h.ctrl.DeleteRevision("rev-2"))
	view := h.ctrl.View()
	assert.Equal(t, "one", view.Editor)
	assert.True(t, view.Dirty)
	assert.ErrorIs(t, h.ctrl.DeleteRevision("nope"), revisions.ErrNotFound)
}

func TestAddRevisionDeduplicates(t *testing.T) {
	h := newHarness(t)
	assert.True(t, h.ctrl.AddRevision("same", "AI: a very long prompt that goes past forty characters", true))
	assert.False(t, h.ctrl.AddRevision("same", revisions.DescManualEdit, true))
	assert.Equal(t, []string{"Snapshot created: AI: a very long prompt that goes past fo"}, messages(h.feed))
}

func TestRestoreRevisionDirtyUnlessLatest(t *testing.T) {
	h := newHarness(t)
	h.ctrl.AddRevision("one", revisions.DescManualEdit, false)
	h.ctrl.AddRevision("two", revisions.DescManualEdit, false)

	_, err := h.ctrl.RestoreRevision("rev-1")
	require.NoError(t, err)
	view := h.ctrl.View()
	assert.Equal(t, "one", view.Editor)
	assert.True(t, view.Dirty)

	_, err = h.ctrl.RestoreRevision("rev-2")
	require.NoError(t, err)
	assert.False(t, h.ctrl.View().Dirty)

	_, err = h.ctrl.RestoreRevision("ghost")
	assert.ErrorIs(t, err, revisions.ErrNotFound)
}

func TestHistoryFilterAndSelection(t *testing.T) {
	h := newHarness(t)
	h.ctrl.AddRevision("one", revisions.DescManualEdit, false)
	h.ctrl.AddRevision("two", "AI: add button", false)

	visible, selected := h.ctrl.History(revisions.FilterAI, "")
	require.Len(t, visible, 1)
	assert.Nil(t, selected)

	require.NoError(t, h.ctrl.SelectRevision("rev-2"))
	assert.ErrorIs(t, h.ctrl.SelectRevision("rev-1"), revisions.ErrNotFound)
	_, selected = h.ctrl.History(revisions.FilterAI, "")
	require.NotNil(t, selected)
	assert.Equal(t, "rev-2", selected.ID)

	visible, _ = h.ctrl.History(revisions.FilterAll, "button")
	require.Len(t, visible, 1)
	assert.Equal(t, "rev-2", visible[0].ID)
}

func TestSnapshotRestoreAndDismiss(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.snaps.Save(ctx, "<b>crashed</b>")
	require.NoError(t, err)

	snap, ok, err := h.ctrl.PendingSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<b>crashed</b>", snap.Content)

	require.NoError(t, h.ctrl.RestoreSnapshot(ctx))
	view := h.ctrl.View()
	assert.Equal(t, RestoredName, view.Name)
	assert.True(t, view.Dirty)
	require.Len(t, view.Revisions, 1)
	assert.Equal(t, revisions.DescRestoredSnapshot, view.Revisions[0].Description)
	assert.Equal(t, snap.Timestamp, view.Revisions[0].Timestamp)

	_, ok, err = h.ctrl.PendingSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, h.ctrl.RestoreSnapshot(ctx), ErrNoSnapshot)

	_, err = h.ctrl.Save(ctx)
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = h.ctrl.SaveSnapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.DismissSnapshot(ctx))
	_, ok, _ = h.ctrl.PendingSnapshot(ctx)
	assert.False(t, ok)
}

func TestUnload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	warn, err := h.ctrl.Unload(ctx)
	require.NoError(t, err)
	assert.False(t, warn)

	h.ctrl.SetEditor("<p>unsaved</p>")
	warn, err = h.ctrl.Unload(ctx)
	require.NoError(t, err)
	assert.True(t, warn)
	snap, ok, err := h.snaps.Peek(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<p>unsaved</p>", snap.Content)
}

func TestSaveRejectsOversizedProject(t *testing.T) {
	h := newHarness(t)
	big := make([]byte, projects.MaxContentBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	h.ctrl.SetEditor(string(big))
	_, err := h.ctrl.SaveAs(context.Background(), "Huge")
	assert.ErrorIs(t, err, projects.ErrTooLarge)
	assert.Contains(t, messages(h.feed), "Project size exceeds 5MB limit.")
	assert.True(t, h.ctrl.View().Dirty)
}

func TestSaveWithCorruptManifestKeepsWorkspaceDirty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, projects.ManifestKey, "{not json"))

	h.ctrl.SetEditor("<p>draft</p>")
	_, err := h.ctrl.SaveAs(ctx, "Draft")
	assert.ErrorIs(t, err, projects.ErrCorrupt)
	assert.Contains(t, messages(h.feed), "Failed to save project.")

	view := h.ctrl.View()
	assert.True(t, view.Dirty)
	assert.NotEqual(t, "Draft", view.Name)
	_, err = h.store.Get(ctx, projects.ProjectKey("Draft"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}
