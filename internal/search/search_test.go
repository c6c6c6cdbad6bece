package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"jiralite/api/internal/logger"
)

type fakeEngine struct {
	healthy  bool
	searchFn func(q Query) ([]Result, int, error)

	mu       sync.Mutex
	issues   []IssueRecord
	projects []ProjectRecord
	deleted  []string
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(_ context.Context, q Query) ([]Result, int, error) {
	return f.searchFn(q)
}

func (f *fakeEngine) IndexIssues(issues []IssueRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, issues...)
	return nil
}

func (f *fakeEngine) IndexProjects(projects []ProjectRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, projects...)
	return nil
}

func (f *fakeEngine) DeleteIssue(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEngine) DeleteProject(id string) error { return f.DeleteIssue(id) }

type fakeFallback struct {
	calls   int
	results []Result
	err     error
}

func (f *fakeFallback) Healthy() bool { return true }

func (f *fakeFallback) Search(_ context.Context, _ Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

type fakeLoader struct {
	issues   []IssueRecord
	projects []ProjectRecord
}

func (f fakeLoader) LoadAllRecords(context.Context) ([]IssueRecord, []ProjectRecord, error) {
	return f.issues, f.projects, nil
}

func TestSearchFallsBackWhenEngineFails(t *testing.T) {
	engine := &fakeEngine{healthy: true, searchFn: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("boom")
	}}
	fallback := &fakeFallback{results: []Result{{Type: ResultIssue, ID: "i1", Title: "Login bug"}}}
	s := &Service{engine: engine, fallback: fallback, log: logger.NewNop()}

	resp := s.Search(context.Background(), Query{Text: "login", TeamIDs: []string{"t1"}})
	if fallback.calls != 1 {
		t.Fatalf("expected one fallback call, got %d", fallback.calls)
	}
	if resp.Total != 1 || resp.Results[0].ID != "i1" || resp.Query != "login" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSearchSkipsUnhealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: false, searchFn: func(Query) ([]Result, int, error) {
		t.Fatalf("unhealthy engine must not be queried")
		return nil, 0, nil
	}}
	fallback := &fakeFallback{}
	s := &Service{engine: engine, fallback: fallback, log: logger.NewNop()}

	resp := s.Search(context.Background(), Query{Text: "x", TeamIDs: []string{"t1"}})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", resp.Results)
	}
}

func TestSearchWithoutTeamsMatchesNothing(t *testing.T) {
	fallback := &fakeFallback{results: []Result{{ID: "leak"}}}
	s := &Service{fallback: fallback, log: logger.NewNop()}

	resp := s.Search(context.Background(), Query{Text: "x"})
	if fallback.calls != 0 || len(resp.Results) != 0 {
		t.Fatalf("expected no lookup without team scope, got %+v", resp)
	}
}

func TestIndexWritesRunInBackground(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	s := &Service{engine: engine, log: logger.NewNop()}

	s.IndexIssue(IssueRecord{ID: "i1"})
	s.IndexProject(ProjectRecord{ID: "p1"})
	s.DeleteIssue("i2")
	s.Wait()

	if len(engine.issues) != 1 || len(engine.projects) != 1 || len(engine.deleted) != 1 {
		t.Fatalf("unexpected engine state %+v", engine)
	}
}

func TestReindexAllFromPG(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	loader := fakeLoader{
		issues:   []IssueRecord{{ID: "i1"}, {ID: "i2"}},
		projects: []ProjectRecord{{ID: "p1"}},
	}
	s := &Service{engine: engine, loader: loader, log: logger.NewNop()}

	if err := s.ReindexAllFromPG(context.Background()); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if len(engine.issues) != 2 || len(engine.projects) != 1 {
		t.Fatalf("expected all records indexed, got %d issues %d projects", len(engine.issues), len(engine.projects))
	}
}

func TestNewServiceWithoutMeili(t *testing.T) {
	s := NewService(nil, nil, nil)
	if s.engineReady() {
		t.Fatalf("nil meili must not be ready")
	}
	s.IndexIssue(IssueRecord{ID: "i1"})
	if err := s.ReindexAllFromPG(context.Background()); err != nil {
		t.Fatalf("reindex without engine: %v", err)
	}
}

func TestBuildQueryScopesToTeamsAndProject(t *testing.T) {
	sqlText, args := buildQuery(Query{Text: "crash", TeamIDs: []string{"t1"}, ProjectID: "p1"})
	if !strings.Contains(sqlText, "i.search_vector @@ plainto_tsquery('simple', $1)") {
		t.Fatalf("expected search_vector match, got %s", sqlText)
	}
	if !strings.Contains(sqlText, "i.project_id = $3") {
		t.Fatalf("expected project filter, got %s", sqlText)
	}
	if strings.Contains(sqlText, "FROM projects p\n") || strings.Contains(sqlText, "'project'::text") {
		t.Fatalf("project scoped search should not include projects")
	}
	if len(args) != 3 || args[2] != "p1" {
		t.Fatalf("unexpected args %v", args)
	}

	if sqlText, _ := buildQuery(Query{Text: "  ", TeamIDs: []string{"t1"}}); sqlText != "" {
		t.Fatalf("blank text should produce no query")
	}
	sqlText, _ = buildQuery(Query{Text: "x", TeamIDs: []string{"t1"}, FilterType: ResultProject})
	if strings.Contains(sqlText, "'issue'::text") || !strings.Contains(sqlText, "'project'::text") {
		t.Fatalf("type filter not applied: %s", sqlText)
	}
}

func TestBuildFilters(t *testing.T) {
	got := buildFilters(Query{TeamIDs: []string{"a", "b"}, ProjectID: "p"}, ResultIssue)
	want := []string{`teamId IN ["a", "b"]`, `projectId = "p"`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := buildFilters(Query{TeamIDs: []string{"a"}, ProjectID: "p"}, ResultProject); len(got) != 1 {
		t.Fatalf("project index ignores projectId filter, got %v", got)
	}
}
