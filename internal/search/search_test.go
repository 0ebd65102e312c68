package search

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pilothub/api/internal/revisions"
)

func testLedger() revisions.Ledger {
	return revisions.Ledger{Revisions: []revisions.Revision{
		{ID: "r1", Timestamp: "2025-01-01T00:00:00.000Z", Content: "<h1>Todo list</h1><script>var hidden = 1;</script>", Description: revisions.DescInitialCreation},
		{ID: "r2", Timestamp: "2025-01-02T00:00:00.000Z", Content: "<h1>Todo list</h1><p>with a dark theme</p>", Description: "AI: add dark theme"},
	}}
}

func TestVisibleText(t *testing.T) {
	got := VisibleText("<html><head><style>h1{color:red}</style></head><body><h1>Hello</h1>\n<p>big   world</p><script>alert(1)</script></body></html>")
	assert.Equal(t, "Hello big world", got)
	assert.Equal(t, "", VisibleText(""))
}

func TestRecordID(t *testing.T) {
	a := RecordID("Demo", "r1")
	assert.Len(t, a, 32)
	assert.Equal(t, a, RecordID("Demo", "r1"))
	assert.NotEqual(t, a, RecordID("Other", "r1"))
}

func TestRecordsFor(t *testing.T) {
	records := RecordsFor("Demo", testLedger())
	require.Len(t, records, 2)
	assert.Equal(t, "manual", records[0].Source)
	assert.Equal(t, "ai", records[1].Source)
	assert.Equal(t, "Todo list", records[0].Text)
	assert.NotContains(t, records[0].Text, "hidden")
}

func TestLocalSearch(t *testing.T) {
	local := NewLocal()
	require.NoError(t, local.IndexRevisions(RecordsFor("Demo", testLedger())))
	require.NoError(t, local.IndexRevisions(RecordsFor("Other", revisions.Ledger{Revisions: []revisions.Revision{
		{ID: "x", Timestamp: "2025-01-03T00:00:00.000Z", Content: "<p>Calculator</p>", Description: revisions.DescManualEdit},
	}})))

	results, total, err := local.Search(Query{Text: "DARK"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "r2", results[0].RevisionID)
	assert.Contains(t, results[0].Snippet, "dark theme")

	results, total, err = local.Search(Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "x", results[0].RevisionID)

	_, total, err = local.Search(Query{Project: "Demo", Source: "ai"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	results, total, err = local.Search(Query{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, results, 1)
	assert.Equal(t, "r2", results[0].RevisionID)

	results, _, err = local.Search(Query{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, local.DeleteProject("Demo"))
	_, total, _ = local.Search(Query{})
	assert.Equal(t, 1, total)
}

func TestLocalReplaceProjectDropsDeletedRevisions(t *testing.T) {
	local := NewLocal()
	ledger := testLedger()
	require.NoError(t, local.ReplaceProject("Demo", RecordsFor("Demo", ledger)))
	ledger.Revisions = ledger.Revisions[1:]
	require.NoError(t, local.ReplaceProject("Demo", RecordsFor("Demo", ledger)))
	_, total, _ := local.Search(Query{Project: "Demo"})
	assert.Equal(t, 1, total)
}

func TestServiceFallsBackToLocal(t *testing.T) {
	svc := NewService(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, svc.IndexProject(context.Background(), "Demo", testLedger()))

	resp := svc.Search(Query{Text: "todo"})
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "todo", resp.Query)

	svc.DeleteProject("Demo")
	resp = svc.Search(Query{Text: "todo"})
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.Total)

	svc.ReindexAll(context.Background(), map[string]revisions.Ledger{"Demo": testLedger()})
	assert.Equal(t, 2, svc.Search(Query{}).Total)
}

func TestSnippetCentersOnTerm(t *testing.T) {
	text := strings.Repeat("a", 200) + " needle " + strings.Repeat("b", 200)
	got := snippet(text, "needle", 40)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.Contains(t, got, "needle")
	assert.Equal(t, "short", snippet("short", "zzz", 40))
}

func TestHitToResult(t *testing.T) {
	hit := meili.Hit{
		"id":          json.RawMessage(`"abc"`),
		"project":     json.RawMessage(`"Demo"`),
		"revisionId":  json.RawMessage(`"r2"`),
		"description": json.RawMessage(`"AI: add dark theme"`),
		"text":        json.RawMessage(`"Todo list with a dark theme"`),
		"_formatted":  json.RawMessage(`{"text":"Todo list with a <mark>dark</mark> theme"}`),
	}
	got := hitToResult(hit)
	assert.Equal(t, "Demo", got.Project)
	assert.Equal(t, "AI: add dark theme", got.Description)
	assert.Equal(t, "Todo list with a <mark>dark</mark> theme", got.Snippet)
}

func TestBuildFilters(t *testing.T) {
	assert.Empty(t, buildFilters(Query{}))
	assert.Equal(t, []string{`project = "My App"`, `source = "ai"`}, buildFilters(Query{Project: "My App", Source: "ai"}))
}
