package search

import (
	"sort"
	"strings"
	"sync"
)

// Local is an in-process index used when Meilisearch is not configured or
// unreachable. Matching is a case-insensitive substring test.
type Local struct {
	mu      sync.RWMutex
	records map[string]RevisionRecord
}

func NewLocal() *Local {
	return &Local{records: make(map[string]RevisionRecord)}
}

func (l *Local) Healthy() bool { return true }

func (l *Local) IndexRevisions(records []RevisionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range records {
		l.records[record.ID] = record
	}
	return nil
}

func (l *Local) DeleteProject(project string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, record := range l.records {
		if record.Project == project {
			delete(l.records, id)
		}
	}
	return nil
}

// ReplaceProject drops records of project that are no longer in records.
func (l *Local) ReplaceProject(project string, records []RevisionRecord) error {
	keep := make(map[string]struct{}, len(records))
	for _, record := range records {
		keep[record.ID] = struct{}{}
	}
	l.mu.Lock()
	for id, record := range l.records {
		if _, ok := keep[id]; !ok && record.Project == project {
			delete(l.records, id)
		}
	}
	l.mu.Unlock()
	return l.IndexRevisions(records)
}

func (l *Local) Search(q Query) ([]Result, int, error) {
	term := strings.ToLower(strings.TrimSpace(q.Text))
	l.mu.RLock()
	matches := make([]RevisionRecord, 0)
	for _, record := range l.records {
		if q.Project != "" && record.Project != q.Project {
			continue
		}
		if q.Source != "" && record.Source != q.Source {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(record.Description), term) &&
			!strings.Contains(strings.ToLower(record.Text), term) &&
			!strings.Contains(strings.ToLower(record.Project), term) {
			continue
		}
		matches = append(matches, record)
	}
	l.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Timestamp != matches[j].Timestamp {
			return matches[i].Timestamp > matches[j].Timestamp
		}
		return matches[i].ID < matches[j].ID
	})

	total := len(matches)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	results := make([]Result, 0, end-start)
	for _, record := range matches[start:end] {
		results = append(results, Result{
			ID:          record.ID,
			Project:     record.Project,
			RevisionID:  record.RevisionID,
			Description: record.Description,
			Snippet:     snippet(record.Text, term, 160),
			Source:      record.Source,
			Timestamp:   record.Timestamp,
		})
	}
	return results, total, nil
}
