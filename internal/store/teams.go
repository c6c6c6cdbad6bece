package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateTeam inserts the team with its creator as OWNER.
func (s *PostgresStore) CreateTeam(ctx context.Context, name, ownerID string) (Team, error) {
	var team Team
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO teams (name, owner_id) VALUES ($1, $2)
			RETURNING id, name, owner_id, created_at
		`, name, ownerID).Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt); err != nil {
			return fmt.Errorf("insert team: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, 'OWNER')
		`, team.ID, ownerID); err != nil {
			return fmt.Errorf("insert team owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return Team{}, err
	}
	team.MyRole = "OWNER"
	return team, nil
}

func (s *PostgresStore) ListTeamsForUser(ctx context.Context, userID string) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.owner_id, tm.role, t.created_at
		FROM teams t
		JOIN team_members tm ON tm.team_id = t.id AND tm.user_id = $1
		WHERE t.deleted_at IS NULL
		ORDER BY t.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	items := make([]Team, 0)
	for rows.Next() {
		var item Team
		if err := rows.Scan(&item.ID, &item.Name, &item.OwnerID, &item.MyRole, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, teamID string) (Team, error) {
	var team Team
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, created_at FROM teams WHERE id = $1 AND deleted_at IS NULL
	`, teamID).Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt)
	if err != nil {
		return Team{}, err
	}
	return team, nil
}

func (s *PostgresStore) RenameTeam(ctx context.Context, teamID, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE teams SET name = $2 WHERE id = $1 AND deleted_at IS NULL`, teamID, name)
	if err != nil {
		return fmt.Errorf("rename team: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) SoftDeleteTeam(ctx context.Context, teamID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE teams SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, teamID)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return expectRow(res)
}

// GetMembership returns sql.ErrNoRows when the user is not in the team.
func (s *PostgresStore) GetMembership(ctx context.Context, teamID, userID string) (TeamMember, error) {
	var m TeamMember
	err := s.db.QueryRowContext(ctx, `
		SELECT tm.id, tm.team_id, tm.user_id, tm.role, tm.joined_at, u.name, u.email
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		JOIN teams t ON t.id = tm.team_id AND t.deleted_at IS NULL
		WHERE tm.team_id = $1 AND tm.user_id = $2
	`, teamID, userID).Scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.JoinedAt, &m.UserName, &m.UserEmail)
	if err != nil {
		return TeamMember{}, err
	}
	return m, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tm.id, tm.team_id, tm.user_id, tm.role, tm.joined_at, u.name, u.email
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = $1
		ORDER BY CASE tm.role WHEN 'OWNER' THEN 0 WHEN 'ADMIN' THEN 1 ELSE 2 END, tm.joined_at
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]TeamMember, 0)
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.JoinedAt, &m.UserName, &m.UserEmail); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateMemberRole(ctx context.Context, teamID, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE team_members SET role = $3 WHERE team_id = $1 AND user_id = $2`, teamID, userID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) RemoveMember(ctx context.Context, teamID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, teamID, email, invitedBy string, expiresAt time.Time) (TeamInvitation, error) {
	var inv TeamInvitation
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// Re-inviting refreshes the pending row instead of stacking duplicates.
		if _, err := tx.ExecContext(ctx, `
			UPDATE team_invitations SET status = 'expired'
			WHERE team_id = $1 AND email = LOWER($2) AND status = 'pending'
		`, teamID, email); err != nil {
			return fmt.Errorf("expire old invitations: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO team_invitations (team_id, email, invited_by, expires_at)
			VALUES ($1, LOWER($2), $3, $4)
			RETURNING id, team_id, email, invited_by, status, expires_at, created_at
		`, teamID, email, invitedBy, expiresAt).Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt); err != nil {
			return fmt.Errorf("insert invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return TeamInvitation{}, err
	}
	return inv, nil
}

func (s *PostgresStore) ListInvitationsForEmail(ctx context.Context, email string) ([]TeamInvitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.team_id, t.name, i.email, i.invited_by, i.status, i.expires_at, i.created_at
		FROM team_invitations i
		JOIN teams t ON t.id = i.team_id AND t.deleted_at IS NULL
		WHERE i.email = LOWER($1) AND i.status = 'pending' AND i.expires_at > NOW()
		ORDER BY i.created_at DESC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	items := make([]TeamInvitation, 0)
	for rows.Next() {
		var inv TeamInvitation
		if err := rows.Scan(&inv.ID, &inv.TeamID, &inv.TeamName, &inv.Email, &inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return items, nil
}

// AcceptInvitation joins the user to the team as MEMBER and logs it.
func (s *PostgresStore) AcceptInvitation(ctx context.Context, invitationID string, user User) (string, error) {
	var teamID string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE team_invitations SET status = 'accepted'
			WHERE id = $1 AND email = LOWER($2) AND status = 'pending' AND expires_at > NOW()
			RETURNING team_id
		`, invitationID, user.Email).Scan(&teamID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidInvite
		}
		if err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, 'MEMBER')
			ON CONFLICT (team_id, user_id) DO NOTHING
		`, teamID, user.ID); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		return insertActivity(ctx, tx, ActivityLog{
			TeamID:     teamID,
			ActorID:    user.ID,
			Action:     ActivityMemberJoined,
			TargetType: "user",
			TargetID:   user.ID,
		})
	})
	return teamID, err
}

func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityLog) error {
	return insertActivity(ctx, s.db, entry)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertActivity(ctx context.Context, db execer, entry ActivityLog) error {
	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO team_activity_logs (team_id, actor_id, action, target_type, target_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.TeamID, entry.ActorID, entry.Action, entry.TargetType, entry.TargetID, []byte(details))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, teamID string, limit, offset int) ([]ActivityLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.team_id, a.actor_id, u.name, a.action, a.target_type, a.target_id, a.details, a.created_at
		FROM team_activity_logs a
		JOIN users u ON u.id = a.actor_id
		WHERE a.team_id = $1
		ORDER BY a.created_at DESC
		LIMIT $2 OFFSET $3
	`, teamID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityLog, 0)
	for rows.Next() {
		var a ActivityLog
		var details []byte
		if err := rows.Scan(&a.ID, &a.TeamID, &a.ActorID, &a.ActorName, &a.Action, &a.TargetType, &a.TargetID, &details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Details = json.RawMessage(details)
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
