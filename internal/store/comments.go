package store

import (
	"context"
	"database/sql"
	"fmt"

	"jiralite/api/internal/aicache"
)

func (s *PostgresStore) ListSubtasks(ctx context.Context, issueID string) ([]Subtask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, title, is_completed, position
		FROM subtasks WHERE issue_id = $1
		ORDER BY position, created_at
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer rows.Close()

	items := make([]Subtask, 0)
	for rows.Next() {
		var st Subtask
		if err := rows.Scan(&st.ID, &st.IssueID, &st.Title, &st.IsCompleted, &st.Position); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		items = append(items, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountSubtasks(ctx context.Context, issueID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subtasks WHERE issue_id = $1`, issueID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subtasks: %w", err)
	}
	return n, nil
}

// CreateSubtask is idempotent on clientToken: a replay returns the row the
// first call created.
func (s *PostgresStore) CreateSubtask(ctx context.Context, st Subtask, clientToken string) (Subtask, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subtasks (issue_id, title, is_completed, position, client_token)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (issue_id, client_token) WHERE client_token IS NOT NULL
		DO UPDATE SET client_token = EXCLUDED.client_token
		RETURNING id, title, is_completed, position
	`, st.IssueID, st.Title, st.IsCompleted, st.Position, clientToken).Scan(&st.ID, &st.Title, &st.IsCompleted, &st.Position)
	if err != nil {
		return Subtask{}, fmt.Errorf("insert subtask: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) UpdateSubtask(ctx context.Context, st Subtask) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subtasks SET title = $3, is_completed = $4, position = $5
		WHERE id = $1 AND issue_id = $2
	`, st.ID, st.IssueID, st.Title, st.IsCompleted, st.Position)
	if err != nil {
		return fmt.Errorf("update subtask: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) DeleteSubtask(ctx context.Context, issueID, subtaskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subtasks WHERE id = $1 AND issue_id = $2`, subtaskID, issueID)
	if err != nil {
		return fmt.Errorf("delete subtask: %w", err)
	}
	return expectRow(res)
}

const commentSelect = `
	SELECT c.id, c.issue_id, c.user_id, u.name, c.content, c.created_at, c.updated_at
	FROM comments c
	JOIN users u ON u.id = c.user_id
`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.IssueID, &c.UserID, &c.UserName, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStore) ListComments(ctx context.Context, issueID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+` WHERE c.issue_id = $1 AND c.deleted_at IS NULL ORDER BY c.created_at`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountComments(ctx context.Context, issueID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE issue_id = $1 AND deleted_at IS NULL`, issueID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	return scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = $1 AND c.deleted_at IS NULL`, commentID))
}

// CreateComment inserts the comment and invalidates the issue's comment
// summary in the same transaction. A replayed clientToken returns the
// original row and invalidates nothing, or ErrCommentDeleted when that row
// has been deleted since.
func (s *PostgresStore) CreateComment(ctx context.Context, c Comment, clientToken string) (Comment, error) {
	var id string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var inserted, deleted bool
		err := tx.QueryRowContext(ctx, `
			INSERT INTO comments (issue_id, user_id, content, client_token)
			VALUES ($1, $2, $3, NULLIF($4, ''))
			ON CONFLICT (issue_id, client_token) WHERE client_token IS NOT NULL
			DO UPDATE SET client_token = EXCLUDED.client_token
			RETURNING id, (xmax = 0), deleted_at IS NOT NULL
		`, c.IssueID, c.UserID, c.Content, clientToken).Scan(&id, &inserted, &deleted)
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		if deleted {
			return ErrCommentDeleted
		}
		if !inserted {
			return nil
		}
		return invalidateArtifacts(ctx, tx, c.IssueID, aicache.Invalidates(aicache.CommentCreated))
	})
	if err != nil {
		return Comment{}, err
	}
	return s.GetComment(ctx, id)
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID, content string) (Comment, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var issueID string
		err := tx.QueryRowContext(ctx, `
			UPDATE comments SET content = $2, updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING issue_id
		`, commentID, content).Scan(&issueID)
		if err != nil {
			return err
		}
		return invalidateArtifacts(ctx, tx, issueID, aicache.Invalidates(aicache.CommentEdited))
	})
	if err != nil {
		return Comment{}, err
	}
	return s.GetComment(ctx, commentID)
}

func (s *PostgresStore) SoftDeleteComment(ctx context.Context, commentID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var issueID string
		err := tx.QueryRowContext(ctx, `
			UPDATE comments SET deleted_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING issue_id
		`, commentID).Scan(&issueID)
		if err != nil {
			return err
		}
		return invalidateArtifacts(ctx, tx, issueID, aicache.Invalidates(aicache.CommentDeleted))
	})
}
