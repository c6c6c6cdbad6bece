package search

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"jiralite/api/internal/logger"
)

type engine interface {
	Searcher
	Indexer
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	engine   engine
	fallback Searcher
	loader   RecordLoader
	log      *logger.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(m *Meili, pgfts *PgFTS, log *logger.Logger) *Service {
	s := &Service{log: log}
	if pgfts != nil {
		s.fallback = pgfts
		s.loader = pgfts
	}
	if m != nil {
		s.engine = m
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	return s
}

func (s *Service) engineReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if len(q.TeamIDs) == 0 {
		return Response{Results: []Result{}, Query: q.Text}
	}
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn("search engine failed, falling back to postgres", "error", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error("postgres search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexIssue indexes an issue in the background.
func (s *Service) IndexIssue(rec IssueRecord) {
	s.async("index issue", rec.ID, func() error { return s.engine.IndexIssues([]IssueRecord{rec}) })
}

// IndexProject indexes a project in the background.
func (s *Service) IndexProject(rec ProjectRecord) {
	s.async("index project", rec.ID, func() error { return s.engine.IndexProjects([]ProjectRecord{rec}) })
}

// DeleteIssue removes an issue from the index in the background.
func (s *Service) DeleteIssue(id string) {
	s.async("delete issue", id, func() error { return s.engine.DeleteIssue(id) })
}

// DeleteProject removes a project from the index in the background.
func (s *Service) DeleteProject(id string) {
	s.async("delete project", id, func() error { return s.engine.DeleteProject(id) })
}

func (s *Service) async(op, id string, fn func() error) {
	if !s.engineReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := fn(); err != nil {
			s.log.Warn("search "+op+" failed", "id", id, "error", err)
		}
	}()
}

// Wait blocks until background index writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexAllFromPG reads every issue and project from PostgreSQL and pushes
// them to Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) error {
	if !s.engineReady() || s.loader == nil {
		return nil
	}
	issues, projects, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error("search reindex load failed", "error", err)
		return err
	}

	var g errgroup.Group
	if len(issues) > 0 {
		g.Go(func() error { return s.engine.IndexIssues(issues) })
	}
	if len(projects) > 0 {
		g.Go(func() error { return s.engine.IndexProjects(projects) })
	}
	if err := g.Wait(); err != nil {
		s.log.Error("search reindex failed", "error", err)
		return err
	}
	s.log.Info("search reindexed", "issues", len(issues), "projects", len(projects))
	return nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
