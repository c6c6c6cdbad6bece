package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jiralite/api/internal/aicache"
)

const issueSelect = `
	SELECT i.id, i.project_id, i.title, COALESCE(i.description, ''), i.status_id, ps.name, i.priority,
		i.assignee_id, COALESCE(a.name, ''), i.owner_id, i.due_date, i.position, i.created_at, i.updated_at
	FROM issues i
	JOIN project_statuses ps ON ps.id = i.status_id
	LEFT JOIN users a ON a.id = i.assignee_id
`

func scanIssue(row interface{ Scan(...any) error }) (Issue, error) {
	var it Issue
	err := row.Scan(&it.ID, &it.ProjectID, &it.Title, &it.Description, &it.StatusID, &it.StatusName, &it.Priority,
		&it.AssigneeID, &it.AssigneeName, &it.OwnerID, &it.DueDate, &it.Position, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (s *PostgresStore) CountIssues(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE project_id = $1 AND deleted_at IS NULL`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return n, nil
}

// CreateIssue appends the issue to the end of its column. An empty StatusID
// means the project's first column.
func (s *PostgresStore) CreateIssue(ctx context.Context, it Issue, labelIDs []string) (Issue, error) {
	var id string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if it.StatusID == "" {
			if err := tx.QueryRowContext(ctx, `
				SELECT id FROM project_statuses WHERE project_id = $1 ORDER BY position LIMIT 1
			`, it.ProjectID).Scan(&it.StatusID); err != nil {
				return fmt.Errorf("find first status: %w", err)
			}
		} else if err := checkStatus(ctx, tx, it.ProjectID, it.StatusID); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO issues (project_id, title, description, status_id, priority, assignee_id, owner_id, due_date, position)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8,
				(SELECT COUNT(*) FROM issues WHERE status_id = $4 AND deleted_at IS NULL))
			RETURNING id
		`, it.ProjectID, it.Title, it.Description, it.StatusID, it.Priority, it.AssigneeID, it.OwnerID, it.DueDate).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		return replaceLabels(ctx, tx, id, it.ProjectID, labelIDs)
	})
	if err != nil {
		return Issue{}, err
	}
	return s.GetIssue(ctx, id)
}

func checkStatus(ctx context.Context, tx *sql.Tx, projectID, statusID string) error {
	var ok bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM project_statuses WHERE id = $1 AND project_id = $2)`, statusID, projectID).Scan(&ok)
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}
	if !ok {
		return ErrInvalidStatus
	}
	return nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, issueID string) (Issue, error) {
	it, err := scanIssue(s.db.QueryRowContext(ctx, issueSelect+` WHERE i.id = $1 AND i.deleted_at IS NULL`, issueID))
	if err != nil {
		return Issue{}, err
	}
	labels, err := s.labelsFor(ctx, []string{it.ID})
	if err != nil {
		return Issue{}, err
	}
	it.Labels = labels[it.ID]
	return it, nil
}

func (s *PostgresStore) ListIssues(ctx context.Context, projectID string, f IssueFilter) ([]Issue, error) {
	var (
		where = []string{"i.project_id = $1", "i.deleted_at IS NULL"}
		args  = []any{projectID}
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.StatusID != "" {
		add("i.status_id = $%d", f.StatusID)
	}
	if f.AssigneeID != "" {
		add("i.assignee_id = $%d", f.AssigneeID)
	}
	if f.Priority != "" {
		add("i.priority = $%d", f.Priority)
	}
	if f.Query != "" {
		add("i.title ILIKE '%%' || $%d || '%%'", f.Query)
	}
	if f.IDs != nil {
		add("i.id = ANY($%d::uuid[])", f.IDs)
	}

	rows, err := s.db.QueryContext(ctx, issueSelect+` WHERE `+strings.Join(where, " AND ")+` ORDER BY ps.position, i.position, i.created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	items := make([]Issue, 0)
	ids := make([]string, 0)
	for rows.Next() {
		it, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		items = append(items, it)
		ids = append(ids, it.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}

	labels, err := s.labelsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Labels = labels[items[i].ID]
	}
	return items, nil
}

// ListRecentIssues returns the newest issues of a project, newest first.
func (s *PostgresStore) ListRecentIssues(ctx context.Context, projectID string, limit int) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, issueSelect+`
		WHERE i.project_id = $1 AND i.deleted_at IS NULL
		ORDER BY i.created_at DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent issues: %w", err)
	}
	defer rows.Close()

	items := make([]Issue, 0)
	for rows.Next() {
		it, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) labelsFor(ctx context.Context, issueIDs []string) (map[string][]Label, error) {
	out := map[string][]Label{}
	if len(issueIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT il.issue_id, l.id, l.project_id, l.name, l.color
		FROM issue_labels il
		JOIN project_labels l ON l.id = il.label_id
		WHERE il.issue_id = ANY($1::uuid[])
		ORDER BY l.name
	`, issueIDs)
	if err != nil {
		return nil, fmt.Errorf("list issue labels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var issueID string
		var l Label
		if err := rows.Scan(&issueID, &l.ID, &l.ProjectID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("scan issue label: %w", err)
		}
		out[issueID] = append(out[issueID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issue labels: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetIssueLabels(ctx context.Context, issueID string, labelIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var projectID string
		if err := tx.QueryRowContext(ctx, `SELECT project_id FROM issues WHERE id = $1 AND deleted_at IS NULL`, issueID).Scan(&projectID); err != nil {
			return err
		}
		return replaceLabels(ctx, tx, issueID, projectID, labelIDs)
	})
}

func replaceLabels(ctx context.Context, tx *sql.Tx, issueID, projectID string, labelIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM issue_labels WHERE issue_id = $1`, issueID); err != nil {
		return fmt.Errorf("clear issue labels: %w", err)
	}
	if len(labelIDs) == 0 {
		return nil
	}
	// Labels from other projects are ignored.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO issue_labels (issue_id, label_id)
		SELECT $1, l.id FROM project_labels l
		WHERE l.project_id = $2 AND l.id = ANY($3::uuid[])
		ON CONFLICT DO NOTHING
	`, issueID, projectID, labelIDs); err != nil {
		return fmt.Errorf("insert issue labels: %w", err)
	}
	return nil
}

// UpdateIssue applies the patch, records per-field history and, when the
// description changes, invalidates the artifacts derived from it. All of it
// commits together.
func (s *PostgresStore) UpdateIssue(ctx context.Context, issueID string, patch IssuePatch, actorID string) (Issue, bool, error) {
	descriptionChanged := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanIssue(tx.QueryRowContext(ctx, issueSelect+` WHERE i.id = $1 AND i.deleted_at IS NULL FOR UPDATE OF i`, issueID))
		if err != nil {
			return err
		}

		next := cur
		var history []HistoryEntry
		record := func(field string, oldValue, newValue *string) {
			history = append(history, HistoryEntry{Field: field, OldValue: oldValue, NewValue: newValue})
		}

		if patch.Title != nil && *patch.Title != cur.Title {
			next.Title = *patch.Title
			record("title", &cur.Title, patch.Title)
		}
		if patch.Description != nil && *patch.Description != cur.Description {
			next.Description = *patch.Description
			descriptionChanged = true
		}
		if patch.Priority != nil && *patch.Priority != cur.Priority {
			next.Priority = *patch.Priority
			record("priority", &cur.Priority, patch.Priority)
		}
		if patch.AssigneeID != nil && *patch.AssigneeID != derefString(cur.AssigneeID) {
			next.AssigneeID = nullIfEmpty(*patch.AssigneeID)
			newName := ""
			if next.AssigneeID != nil {
				if err := tx.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, *next.AssigneeID).Scan(&newName); err != nil {
					return fmt.Errorf("lookup assignee: %w", err)
				}
			}
			record("assignee", nullIfEmpty(cur.AssigneeName), nullIfEmpty(newName))
		}
		if patch.DueDate != nil {
			oldDue := formatDate(cur.DueDate)
			if *patch.DueDate != oldDue {
				due, err := parseDate(*patch.DueDate)
				if err != nil {
					return err
				}
				next.DueDate = due
				record("due_date", nullIfEmpty(oldDue), nullIfEmpty(*patch.DueDate))
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE issues
			SET title = $2, description = NULLIF($3, ''), priority = $4, assignee_id = $5, due_date = $6, updated_at = NOW()
			WHERE id = $1
		`, issueID, next.Title, next.Description, next.Priority, next.AssigneeID, next.DueDate); err != nil {
			return fmt.Errorf("update issue: %w", err)
		}
		for _, h := range history {
			if err := insertHistory(ctx, tx, issueID, h.Field, h.OldValue, h.NewValue, actorID); err != nil {
				return err
			}
		}
		if descriptionChanged {
			if err := invalidateArtifacts(ctx, tx, issueID, aicache.Invalidates(aicache.DescriptionChanged)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Issue{}, false, err
	}
	it, err := s.GetIssue(ctx, issueID)
	return it, descriptionChanged, err
}

// SoftDeleteIssue hides the issue and closes the gap it leaves in its column.
func (s *PostgresStore) SoftDeleteIssue(ctx context.Context, issueID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var statusID string
		err := tx.QueryRowContext(ctx, `
			UPDATE issues SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL
			RETURNING status_id
		`, issueID).Scan(&statusID)
		if err != nil {
			return err
		}
		return compactColumn(ctx, tx, statusID)
	})
}

// MoveIssue places the issue at position in statusID and renumbers the
// destination and source columns densely from 0. A column change is recorded
// in the issue history. Everything commits together or not at all.
func (s *PostgresStore) MoveIssue(ctx context.Context, issueID, statusID string, position int, actorID string) (Issue, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var projectID, oldStatusID, oldStatusName string
		err := tx.QueryRowContext(ctx, `
			SELECT i.project_id, i.status_id, ps.name
			FROM issues i
			JOIN project_statuses ps ON ps.id = i.status_id
			WHERE i.id = $1 AND i.deleted_at IS NULL
			FOR UPDATE OF i
		`, issueID).Scan(&projectID, &oldStatusID, &oldStatusName)
		if err != nil {
			return err
		}

		var newStatusName string
		err = tx.QueryRowContext(ctx, `SELECT name FROM project_statuses WHERE id = $1 AND project_id = $2`, statusID, projectID).Scan(&newStatusName)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidStatus
		}
		if err != nil {
			return fmt.Errorf("lookup target status: %w", err)
		}

		dest, err := columnIDs(ctx, tx, statusID, issueID)
		if err != nil {
			return err
		}
		if position < 0 {
			position = 0
		}
		if position > len(dest) {
			position = len(dest)
		}
		dest = append(dest, "")
		copy(dest[position+1:], dest[position:])
		dest[position] = issueID

		if _, err := tx.ExecContext(ctx, `UPDATE issues SET status_id = $2, updated_at = NOW() WHERE id = $1`, issueID, statusID); err != nil {
			return fmt.Errorf("move issue: %w", err)
		}
		if err := renumber(ctx, tx, dest); err != nil {
			return err
		}
		if oldStatusID == statusID {
			return nil
		}
		if err := compactColumn(ctx, tx, oldStatusID); err != nil {
			return err
		}
		return insertHistory(ctx, tx, issueID, "status", &oldStatusName, &newStatusName, actorID)
	})
	if err != nil {
		return Issue{}, err
	}
	return s.GetIssue(ctx, issueID)
}

func columnIDs(ctx context.Context, tx *sql.Tx, statusID, exclude string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM issues
		WHERE status_id = $1 AND deleted_at IS NULL AND id <> $2
		ORDER BY position, created_at
		FOR UPDATE
	`, statusID, exclude)
	if err != nil {
		return nil, fmt.Errorf("list column: %w", err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column: %w", err)
	}
	return ids, nil
}

func renumber(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE issues AS i SET position = v.ord - 1
		FROM unnest($1::uuid[]) WITH ORDINALITY AS v(id, ord)
		WHERE i.id = v.id
	`, ids)
	if err != nil {
		return fmt.Errorf("renumber column: %w", err)
	}
	return nil
}

func compactColumn(ctx context.Context, tx *sql.Tx, statusID string) error {
	ids, err := columnIDs(ctx, tx, statusID, "")
	if err != nil {
		return err
	}
	return renumber(ctx, tx, ids)
}

func insertHistory(ctx context.Context, tx *sql.Tx, issueID, field string, oldValue, newValue *string, actorID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO issue_history (issue_id, field, old_value, new_value, changed_by)
		VALUES ($1, $2, $3, $4, $5)
	`, issueID, field, oldValue, newValue, actorID)
	if err != nil {
		return fmt.Errorf("insert issue history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, issueID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.issue_id, h.field, h.old_value, h.new_value, h.changed_by, u.name, h.changed_at
		FROM issue_history h
		JOIN users u ON u.id = h.changed_by
		WHERE h.issue_id = $1
		ORDER BY h.changed_at DESC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.IssueID, &h.Field, &h.OldValue, &h.NewValue, &h.ChangedBy, &h.ChangedByName, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

// IssueProjectID resolves an issue's project, used for membership checks.
func (s *PostgresStore) IssueProjectID(ctx context.Context, issueID string) (string, error) {
	var projectID string
	err := s.db.QueryRowContext(ctx, `SELECT project_id FROM issues WHERE id = $1 AND deleted_at IS NULL`, issueID).Scan(&projectID)
	if err != nil {
		return "", err
	}
	return projectID, nil
}

func (s *PostgresStore) ProjectStats(ctx context.Context, projectID string) (ProjectStats, error) {
	stats := ProjectStats{ByPriority: map[string]int{"HIGH": 0, "MEDIUM": 0, "LOW": 0}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ps.id, ps.name, ps.color, COUNT(i.id)
		FROM project_statuses ps
		LEFT JOIN issues i ON i.status_id = ps.id AND i.deleted_at IS NULL
		WHERE ps.project_id = $1
		GROUP BY ps.id, ps.name, ps.color, ps.position
		ORDER BY ps.position
	`, projectID)
	if err != nil {
		return ProjectStats{}, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.StatusID, &sc.Name, &sc.Color, &sc.Count); err != nil {
			return ProjectStats{}, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus = append(stats.ByStatus, sc)
		stats.Total += sc.Count
	}
	if err := rows.Err(); err != nil {
		return ProjectStats{}, fmt.Errorf("iterate status counts: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT priority, COUNT(*) FROM issues WHERE project_id = $1 AND deleted_at IS NULL GROUP BY priority
	`, projectID)
	if err != nil {
		return ProjectStats{}, fmt.Errorf("count by priority: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var priority string
		var n int
		if err := prows.Scan(&priority, &n); err != nil {
			return ProjectStats{}, fmt.Errorf("scan priority count: %w", err)
		}
		stats.ByPriority[priority] = n
	}
	if err := prows.Err(); err != nil {
		return ProjectStats{}, fmt.Errorf("iterate priority counts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issues WHERE project_id = $1 AND deleted_at IS NULL AND due_date < CURRENT_DATE
	`, projectID).Scan(&stats.Overdue); err != nil {
		return ProjectStats{}, fmt.Errorf("count overdue: %w", err)
	}
	return stats, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("parse due date: %w", err)
	}
	return &t, nil
}
