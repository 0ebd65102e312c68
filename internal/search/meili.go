package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxRevisions = "pilot_revisions"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *slog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the revision index.
// An unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxRevisions,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxRevisions, "error", err)
	}

	index := m.client.Index(idxRevisions)
	filterable := []interface{}{"project", "source"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "index", idxRevisions, "error", err)
	}
	searchable := []string{"description", "text", "project"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxRevisions, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxRevisions,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"description", "text"},
		AttributesToCrop:      []string{"text"},
		CropLength:            32,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := buildFilters(q); len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, res := range resp.Results {
		total += int(res.EstimatedTotalHits)
		for _, hit := range res.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func buildFilters(q Query) []string {
	var filters []string
	if q.Project != "" {
		filters = append(filters, fmt.Sprintf("project = %q", q.Project))
	}
	if q.Source != "" {
		filters = append(filters, fmt.Sprintf("source = %q", q.Source))
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:          decodeString(hit, "id"),
		Project:     decodeString(hit, "project"),
		RevisionID:  decodeString(hit, "revisionId"),
		Description: firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description")),
		Snippet:     firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text")),
		Source:      decodeString(hit, "source"),
		Timestamp:   decodeString(hit, "timestamp"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexRevisions adds or updates revision records.
func (m *Meili) IndexRevisions(records []RevisionRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxRevisions).AddDocuments(records, nil)
	return err
}

// DeleteProject removes every record of a project.
func (m *Meili) DeleteProject(project string) error {
	ids, err := m.projectRecordIDs(project)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := m.client.Index(idxRevisions).DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}
	return nil
}

func (m *Meili) projectRecordIDs(project string) ([]string, error) {
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxRevisions,
			Limit:    1000,
			Filter:   []string{fmt.Sprintf("project = %q", project)},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("meilisearch list project records: %w", err)
	}
	var ids []string
	for _, res := range resp.Results {
		for _, hit := range res.Hits {
			if id := decodeString(hit, "id"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
