package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches issues against the generated search_vector column and
// projects by name, both restricted to live rows in the caller's teams.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	sqlText, args := buildQuery(q)
	if sqlText == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+sqlText+") sub", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, team_id
		FROM (%s) sub
		ORDER BY rank DESC, title
		LIMIT %d OFFSET %d`, sqlText, limit, offset)
	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.TeamID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// buildQuery returns the UNION of per-type sub-queries with positional args.
// It returns "" when the query text is blank or nothing is in scope.
func buildQuery(q Query) (string, []any) {
	if strings.TrimSpace(q.Text) == "" || len(q.TeamIDs) == 0 {
		return "", nil
	}
	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text, q.TeamIDs}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultIssue {
		where := "i.deleted_at IS NULL AND p.deleted_at IS NULL AND i.search_vector @@ " + tsQuery + " AND p.team_id = ANY($2::uuid[])"
		if q.ProjectID != "" {
			args = append(args, q.ProjectID)
			where += fmt.Sprintf(" AND i.project_id = $%d", len(args))
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'issue'::text AS type, i.id::text, i.title,
				ts_headline('simple', coalesce(i.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.project_id::text, p.team_id::text,
				ts_rank(i.search_vector, %s) AS rank
			FROM issues i
			JOIN projects p ON p.id = i.project_id
			WHERE %s`, tsQuery, tsQuery, where))
	}
	if (q.FilterType == "" || q.FilterType == ResultProject) && q.ProjectID == "" {
		subQueries = append(subQueries, `
			SELECT 'project'::text AS type, p.id::text, p.name AS title,
				coalesce(p.description, '') AS snippet,
				''::text AS project_id, p.team_id::text,
				ts_rank(to_tsvector('simple', p.name || ' ' || coalesce(p.description, '')), `+tsQuery+`) AS rank
			FROM projects p
			WHERE p.deleted_at IS NULL AND p.team_id = ANY($2::uuid[])
				AND to_tsvector('simple', p.name || ' ' || coalesce(p.description, '')) @@ `+tsQuery)
	}
	if len(subQueries) == 0 {
		return "", nil
	}
	return strings.Join(subQueries, " UNION ALL "), args
}

// LoadAllRecords returns all live issues and projects for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IssueRecord, []ProjectRecord, error) {
	issueRows, err := p.db.QueryContext(ctx, `
		SELECT i.id, i.project_id, p.team_id, i.title, coalesce(i.description, ''), i.priority, i.status_id
		FROM issues i
		JOIN projects p ON p.id = i.project_id
		WHERE i.deleted_at IS NULL AND p.deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load issues: %w", err)
	}
	defer issueRows.Close()

	issues := make([]IssueRecord, 0)
	for issueRows.Next() {
		var r IssueRecord
		if err := issueRows.Scan(&r.ID, &r.ProjectID, &r.TeamID, &r.Title, &r.Description, &r.Priority, &r.StatusID); err != nil {
			return nil, nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, r)
	}
	if err := issueRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate issues: %w", err)
	}

	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, team_id, name, coalesce(description, '')
		FROM projects
		WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var r ProjectRecord
		if err := projectRows.Scan(&r.ID, &r.TeamID, &r.Name, &r.Description); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, r)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}
	return issues, projects, nil
}
