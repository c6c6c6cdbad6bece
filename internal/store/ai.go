package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jiralite/api/internal/aicache"
)

func (s *PostgresStore) ListArtifacts(ctx context.Context, issueID string) ([]aicache.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, type, content, created_at, invalidated_at
		FROM ai_cache WHERE issue_id = $1
		ORDER BY created_at DESC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list ai cache: %w", err)
	}
	defer rows.Close()

	items := make([]aicache.Artifact, 0)
	for rows.Next() {
		var a aicache.Artifact
		var typ string
		if err := rows.Scan(&a.ID, &a.IssueID, &typ, &a.Content, &a.CreatedAt, &a.InvalidatedAt); err != nil {
			return nil, fmt.Errorf("scan ai cache: %w", err)
		}
		a.Type = aicache.ArtifactType(typ)
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ai cache: %w", err)
	}
	return items, nil
}

// ReplaceArtifact invalidates every active artifact of the type and inserts
// the fresh one in one transaction, so at most one stays active. The issue
// row lock serializes concurrent generations for the same issue.
func (s *PostgresStore) ReplaceArtifact(ctx context.Context, issueID string, typ aicache.ArtifactType, content string) (aicache.Artifact, error) {
	a := aicache.Artifact{IssueID: issueID, Type: typ, Content: content}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = $1 FOR UPDATE`, issueID).Scan(&one); err != nil {
			return fmt.Errorf("lock issue: %w", err)
		}
		if err := invalidateArtifacts(ctx, tx, issueID, []aicache.ArtifactType{typ}); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO ai_cache (issue_id, type, content) VALUES ($1, $2, $3)
			RETURNING id, created_at
		`, issueID, string(typ), content).Scan(&a.ID, &a.CreatedAt); err != nil {
			return fmt.Errorf("insert ai cache: %w", err)
		}
		return nil
	})
	if err != nil {
		return aicache.Artifact{}, err
	}
	return a, nil
}

func (s *PostgresStore) InvalidateArtifacts(ctx context.Context, issueID string, types []aicache.ArtifactType) error {
	return invalidateArtifacts(ctx, s.db, issueID, types)
}

func invalidateArtifacts(ctx context.Context, db execer, issueID string, types []aicache.ArtifactType) error {
	if len(types) == 0 {
		return nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	_, err := db.ExecContext(ctx, `
		UPDATE ai_cache SET invalidated_at = NOW()
		WHERE issue_id = $1 AND type = ANY($2::text[]) AND invalidated_at IS NULL
	`, issueID, names)
	if err != nil {
		return fmt.Errorf("invalidate ai cache: %w", err)
	}
	return nil
}

// ConsumeAIQuota checks and increments the user's counter in one statement.
// A window older than window restarts at now with count 1. When the caller is
// at the ceiling the upsert matches no row and ok is false.
func (s *PostgresStore) ConsumeAIQuota(ctx context.Context, userID string, limit int, window time.Duration, now time.Time) (int, time.Time, bool, error) {
	var (
		count int
		start time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ai_rate_limits AS r (user_id, count, window_start)
		VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			count = CASE WHEN r.window_start <= $2::timestamptz - make_interval(secs => $4) THEN 1 ELSE r.count + 1 END,
			window_start = CASE WHEN r.window_start <= $2::timestamptz - make_interval(secs => $4) THEN $2::timestamptz ELSE r.window_start END
		WHERE r.window_start <= $2::timestamptz - make_interval(secs => $4) OR r.count < $3
		RETURNING count, window_start
	`, userID, now, limit, window.Seconds()).Scan(&count, &start)
	if err == nil {
		return count, start, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, false, fmt.Errorf("consume ai quota: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT count, window_start FROM ai_rate_limits WHERE user_id = $1`, userID).Scan(&count, &start); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("read ai quota: %w", err)
	}
	return count, start, false, nil
}
