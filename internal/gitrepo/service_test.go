package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pilothub/api/internal/revisions"
)

func sampleLedger() revisions.Ledger {
	return revisions.Ledger{Revisions: []revisions.Revision{
		{ID: "r1", Timestamp: "2025-02-01T10:00:00.000Z", Content: "<h1>one</h1>", Description: revisions.DescInitialCreation},
		{ID: "r2", Timestamp: "2025-02-01T10:05:00.000Z", Content: "<h1>two</h1>", Description: "AI: make it two"},
	}}
}

func TestMirrorProjectLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	ctx := context.Background()
	ledger := sampleLedger()

	created, err := svc.MirrorProject(ctx, "My App", ledger)
	if err != nil {
		t.Fatalf("MirrorProject() error = %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 commits, got %d", created)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "My-App", ".git")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	created, err = svc.MirrorProject(ctx, "My App", ledger)
	if err != nil {
		t.Fatalf("MirrorProject() second run error = %v", err)
	}
	if created != 0 {
		t.Fatalf("expected re-mirror to be a no-op, got %d commits", created)
	}

	ledger.Revisions = append(ledger.Revisions, revisions.Revision{
		ID: "r3", Timestamp: "2025-02-01T10:09:00.000Z", Content: "<h1>three</h1>", Description: revisions.DescManualEdit,
	})
	created, err = svc.MirrorProject(ctx, "My App", ledger)
	if err != nil {
		t.Fatalf("MirrorProject() third run error = %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 new commit, got %d", created)
	}

	history, err := svc.History("My App", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}
	if history[0].RevisionID != "r3" || history[0].Message != revisions.DescManualEdit {
		t.Fatalf("unexpected head commit: %+v", history[0])
	}
	want := time.Date(2025, 2, 1, 10, 9, 0, 0, time.UTC)
	if !history[0].CreatedAt.Equal(want) {
		t.Fatalf("commit time = %v, want %v", history[0].CreatedAt, want)
	}

	content, info, err := svc.ContentAt("My App", history[1].Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if content != "<h1>two</h1>" || info.RevisionID != "r2" {
		t.Fatalf("unexpected content at %s: %q %+v", history[1].Hash, content, info)
	}

	limited, err := svc.History("My App", 1)
	if err != nil {
		t.Fatalf("History() limited error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(limited))
	}
}

func TestMirrorIdenticalContentStillCommits(t *testing.T) {
	svc := New(t.TempDir())
	ledger := revisions.Ledger{Revisions: []revisions.Revision{
		{ID: "a", Timestamp: "2025-02-01T10:00:00.000Z", Content: "same", Description: "AI: first"},
		{ID: "b", Timestamp: "2025-02-01T10:01:00.000Z", Content: "other", Description: "AI: second"},
	}}
	if _, err := svc.MirrorProject(context.Background(), "p", ledger); err != nil {
		t.Fatalf("MirrorProject() error = %v", err)
	}
	// "c" carries the same document as HEAD, so its commit changes no files.
	ledger.Revisions = []revisions.Revision{ledger.Revisions[0], {ID: "c", Timestamp: "2025-02-01T10:02:00.000Z", Content: "other", Description: revisions.DescManualEdit}}
	created, err := svc.MirrorProject(context.Background(), "p", ledger)
	if err != nil {
		t.Fatalf("MirrorProject() error = %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 commit, got %d", created)
	}
}

func TestHistoryWithoutRepository(t *testing.T) {
	svc := New(t.TempDir())
	_, err := svc.History("ghost", 10)
	if !errors.Is(err, ErrNoRepository) {
		t.Fatalf("History() error = %v, want ErrNoRepository", err)
	}
}

func TestRemoveProject(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	if _, err := svc.MirrorProject(context.Background(), "gone", sampleLedger()); err != nil {
		t.Fatalf("MirrorProject() error = %v", err)
	}
	if err := svc.RemoveProject("gone"); err != nil {
		t.Fatalf("RemoveProject() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "gone")); !os.IsNotExist(err) {
		t.Fatalf("expected repo removed, stat error = %v", err)
	}
	if err := svc.RemoveProject("never-existed"); err != nil {
		t.Fatalf("RemoveProject() missing repo error = %v", err)
	}
}

func TestConcurrentMirrorSameProject(t *testing.T) {
	svc := New(t.TempDir())
	ledger := sampleLedger()

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := ledger.Clone()
			next.Revisions = append(next.Revisions, revisions.Revision{
				ID:          fmt.Sprintf("w%02d", idx),
				Timestamp:   "2025-02-01T11:00:00.000Z",
				Content:     fmt.Sprintf("<p>%02d</p>", idx),
				Description: revisions.DescManualEdit,
			})
			if _, err := svc.MirrorProject(context.Background(), "shared", next); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("MirrorProject() concurrent error = %v", err)
		}
	}

	history, err := svc.History("shared", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+2 {
		t.Fatalf("expected %d commits, got %d", writers+2, len(history))
	}
}

func TestRepoDirName(t *testing.T) {
	cases := map[string]string{
		"My App": "My-App",
		"a_b-c":  "a_b-c",
		"../etc": "etc",
		"":       "untitled",
		"☃":      "untitled",
	}
	for in, want := range cases {
		if got := repoDirName(in); got != want {
			t.Fatalf("repoDirName(%q) = %q, want %q", in, got, want)
		}
	}
}
