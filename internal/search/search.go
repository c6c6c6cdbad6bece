package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultIssue   ResultType = "issue"
	ResultProject ResultType = "project"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId,omitempty"`
	TeamID    string     `json:"teamId"`
}

// Query describes a search request. TeamIDs scopes the search to the teams
// the caller belongs to; an empty list matches nothing.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	ProjectID  string
	TeamIDs    []string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexIssues(issues []IssueRecord) error
	IndexProjects(projects []ProjectRecord) error
	DeleteIssue(id string) error
	DeleteProject(id string) error
}

// RecordLoader reads every searchable record from the system of record.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]IssueRecord, []ProjectRecord, error)
}

// IssueRecord is the data we index for an issue.
type IssueRecord struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	TeamID      string `json:"teamId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	StatusID    string `json:"statusId"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	TeamID      string `json:"teamId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
