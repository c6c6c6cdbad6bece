package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultStatuses seed every new project.
var DefaultStatuses = []ProjectStatus{
	{Name: "Backlog", Color: "#6B7280", Position: 0, IsDefault: true},
	{Name: "In Progress", Color: "#3B82F6", Position: 1, IsDefault: true},
	{Name: "Done", Color: "#10B981", Position: 2, IsDefault: true},
}

const projectColumns = `p.id, p.team_id, p.name, COALESCE(p.description, ''), p.owner_id, p.is_archived, p.created_at`

func (s *PostgresStore) CountProjects(ctx context.Context, teamID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE team_id = $1 AND deleted_at IS NULL`, teamID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

// CreateProject inserts the project and its default board columns.
func (s *PostgresStore) CreateProject(ctx context.Context, p Project) (Project, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO projects (team_id, name, description, owner_id)
			VALUES ($1, $2, NULLIF($3, ''), $4)
			RETURNING id, created_at
		`, p.TeamID, p.Name, p.Description, p.OwnerID).Scan(&p.ID, &p.CreatedAt); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		for _, st := range DefaultStatuses {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO project_statuses (project_id, name, color, position, is_default)
				VALUES ($1, $2, $3, $4, TRUE)
			`, p.ID, st.Name, st.Color, st.Position); err != nil {
				return fmt.Errorf("insert default status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, teamID, userID string, includeArchived bool) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`, (f.user_id IS NOT NULL)
		FROM projects p
		LEFT JOIN project_favorites f ON f.project_id = p.id AND f.user_id = $2
		WHERE p.team_id = $1 AND p.deleted_at IS NULL AND ($3 OR NOT p.is_archived)
		ORDER BY (f.user_id IS NOT NULL) DESC, p.created_at DESC
	`, teamID, userID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &p.OwnerID, &p.IsArchived, &p.CreatedAt, &p.IsFavorite); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID, userID string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`, EXISTS(SELECT 1 FROM project_favorites f WHERE f.project_id = p.id AND f.user_id = $2)
		FROM projects p
		WHERE p.id = $1 AND p.deleted_at IS NULL
	`, projectID, userID).Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &p.OwnerID, &p.IsArchived, &p.CreatedAt, &p.IsFavorite)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, projectID, name, description string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = $2, description = NULLIF($3, '')
		WHERE id = $1 AND deleted_at IS NULL
	`, projectID, name, description)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) SetProjectArchived(ctx context.Context, projectID string, archived bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET is_archived = $2 WHERE id = $1 AND deleted_at IS NULL`, projectID, archived)
	if err != nil {
		return fmt.Errorf("archive project: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) SoftDeleteProject(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) SetFavorite(ctx context.Context, projectID, userID string, favorite bool) error {
	var err error
	if favorite {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO project_favorites (project_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, projectID, userID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM project_favorites WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	}
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStatuses(ctx context.Context, projectID string) ([]ProjectStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, color, position, is_default, wip_limit
		FROM project_statuses
		WHERE project_id = $1
		ORDER BY position, name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectStatus, 0)
	for rows.Next() {
		var st ProjectStatus
		var wip sql.NullInt64
		if err := rows.Scan(&st.ID, &st.ProjectID, &st.Name, &st.Color, &st.Position, &st.IsDefault, &wip); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		if wip.Valid {
			limit := int(wip.Int64)
			st.WIPLimit = &limit
		}
		items = append(items, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateStatus(ctx context.Context, st ProjectStatus) (ProjectStatus, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO project_statuses (project_id, name, color, position, wip_limit)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position) + 1, 0) FROM project_statuses WHERE project_id = $1), $4)
		RETURNING id, position
	`, st.ProjectID, st.Name, st.Color, st.WIPLimit).Scan(&st.ID, &st.Position)
	if err != nil {
		return ProjectStatus{}, fmt.Errorf("insert status: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, st ProjectStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE project_statuses SET name = $3, color = $4, wip_limit = $5
		WHERE id = $1 AND project_id = $2
	`, st.ID, st.ProjectID, st.Name, st.Color, st.WIPLimit)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return expectRow(res)
}

// DeleteStatus removes a custom column, moving its issues to the end of the
// project's first default column.
func (s *PostgresStore) DeleteStatus(ctx context.Context, projectID, statusID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var isDefault bool
		err := tx.QueryRowContext(ctx, `
			SELECT is_default FROM project_statuses WHERE id = $1 AND project_id = $2 FOR UPDATE
		`, statusID, projectID).Scan(&isDefault)
		if err != nil {
			return err
		}
		if isDefault {
			return ErrConflict
		}
		var fallback string
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM project_statuses WHERE project_id = $1 AND is_default ORDER BY position LIMIT 1
		`, projectID).Scan(&fallback); err != nil {
			return fmt.Errorf("find fallback status: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE issues i SET status_id = $2, position = base.n + moved.rn - 1, updated_at = NOW()
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY position, created_at) AS rn
				FROM issues WHERE status_id = $1
			) moved,
			(SELECT COUNT(*) AS n FROM issues WHERE status_id = $2 AND deleted_at IS NULL) base
			WHERE i.id = moved.id
		`, statusID, fallback); err != nil {
			return fmt.Errorf("move issues off status: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_statuses WHERE id = $1`, statusID); err != nil {
			return fmt.Errorf("delete status: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) CountCustomStatuses(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_statuses WHERE project_id = $1 AND NOT is_default`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count statuses: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListLabels(ctx context.Context, projectID string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, name, color FROM project_labels WHERE project_id = $1 ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	items := make([]Label, 0)
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountLabels(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_labels WHERE project_id = $1`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count labels: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CreateLabel(ctx context.Context, l Label) (Label, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO project_labels (project_id, name, color) VALUES ($1, $2, $3)
		RETURNING id
	`, l.ProjectID, l.Name, l.Color).Scan(&l.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Label{}, ErrConflict
		}
		return Label{}, fmt.Errorf("insert label: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) DeleteLabel(ctx context.Context, projectID, labelID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM project_labels WHERE id = $1 AND project_id = $2`, labelID, projectID)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return expectRow(res)
}

// ProjectTeamID resolves the owning team, used for membership checks.
func (s *PostgresStore) ProjectTeamID(ctx context.Context, projectID string) (string, error) {
	var teamID string
	err := s.db.QueryRowContext(ctx, `SELECT team_id FROM projects WHERE id = $1 AND deleted_at IS NULL`, projectID).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("lookup project team: %w", err)
	}
	return teamID, nil
}
