package search

import (
	"context"
	"log/slog"

	"pilothub/api/internal/revisions"
)

// Service is the facade that tries Meilisearch first and falls back to the
// local index. The local index is always kept current.
type Service struct {
	meili  *Meili
	local  *Local
	logger *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, local *Local, logger *slog.Logger) *Service {
	if local == nil {
		local = NewLocal()
	}
	return &Service{meili: meili, local: local, logger: logger}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to local index", "error", err)
	}

	results, total, err := s.local.Search(q)
	if err != nil {
		s.logger.Error("local search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProject indexes every revision of a saved project. Meilisearch is
// updated in the background.
func (s *Service) IndexProject(ctx context.Context, project string, ledger revisions.Ledger) error {
	records := RecordsFor(project, ledger)
	if err := s.local.ReplaceProject(project, records); err != nil {
		return err
	}
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	go func() {
		if err := s.meili.IndexRevisions(records); err != nil {
			s.logger.Warn("index project", "project", project, "error", err)
		}
	}()
	return nil
}

// DeleteProject removes a project from both indexes (Meilisearch fire-and-forget).
func (s *Service) DeleteProject(project string) {
	if err := s.local.DeleteProject(project); err != nil {
		s.logger.Warn("local delete project", "project", project, "error", err)
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteProject(project); err != nil {
			s.logger.Warn("delete project from index", "project", project, "error", err)
		}
	}()
}

// ReindexAll pushes every stored project into the indexes. Used at startup.
func (s *Service) ReindexAll(ctx context.Context, ledgers map[string]revisions.Ledger) {
	var all []RevisionRecord
	for project, ledger := range ledgers {
		records := RecordsFor(project, ledger)
		if err := s.local.ReplaceProject(project, records); err != nil {
			s.logger.Warn("reindex local", "project", project, "error", err)
		}
		all = append(all, records...)
	}
	if s.meili == nil || !s.meili.Healthy() || len(all) == 0 {
		return
	}
	if err := s.meili.IndexRevisions(all); err != nil {
		s.logger.Warn("reindex meilisearch", "error", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
