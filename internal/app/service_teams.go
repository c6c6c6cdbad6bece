package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"jiralite/api/internal/rbac"
	"jiralite/api/internal/store"
)

const (
	maxTeamNameLength = 50
	invitationTTL     = 7 * 24 * time.Hour
	activityPageSize  = 50
)

func validateTeamName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxTeamNameLength {
		return "", validationError(fmt.Sprintf("team name must be 1-%d characters", maxTeamNameLength))
	}
	return name, nil
}

func (s *Service) CreateTeam(ctx context.Context, session Session, name string) (map[string]any, error) {
	name, err := validateTeamName(name)
	if err != nil {
		return nil, err
	}
	team, err := s.store.CreateTeam(ctx, name, session.UserID)
	if err != nil {
		return nil, err
	}
	team.MyRole = string(rbac.RoleOwner)
	s.activity(ctx, store.ActivityLog{
		TeamID: team.ID, ActorID: session.UserID, Action: store.ActivityTeamCreated,
		TargetType: "team", TargetID: team.ID,
	})
	return teamJSON(team), nil
}

func (s *Service) ListTeams(ctx context.Context, session Session) ([]map[string]any, error) {
	teams, err := s.store.ListTeamsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return mapList(teams, teamJSON), nil
}

func (s *Service) GetTeam(ctx context.Context, session Session, teamID string) (map[string]any, error) {
	member, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	team.MyRole = member.Role
	return teamJSON(team), nil
}

func (s *Service) RenameTeam(ctx context.Context, session Session, teamID, name string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionManageMembers); err != nil {
		return nil, err
	}
	name, err := validateTeamName(name)
	if err != nil {
		return nil, err
	}
	if err := s.store.RenameTeam(ctx, teamID, name); err != nil {
		return nil, err
	}
	s.activity(ctx, store.ActivityLog{
		TeamID: teamID, ActorID: session.UserID, Action: store.ActivityTeamRenamed,
		TargetType: "team", TargetID: teamID, Details: detailsJSON(map[string]any{"name": name}),
	})
	return s.GetTeam(ctx, session, teamID)
}

func (s *Service) DeleteTeam(ctx context.Context, session Session, teamID string) error {
	if _, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionDeleteTeam); err != nil {
		return err
	}
	return s.store.SoftDeleteTeam(ctx, teamID)
}

func (s *Service) ListMembers(ctx context.Context, session Session, teamID string) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return mapList(members, memberJSON), nil
}

// ChangeMemberRole switches a member between ADMIN and MEMBER. Ownership is
// never granted or taken here.
func (s *Service) ChangeMemberRole(ctx context.Context, session Session, teamID, userID, role string) error {
	next, ok := rbac.Parse(role)
	if !ok || next == rbac.RoleOwner {
		return validationError("role must be ADMIN or MEMBER")
	}
	actor, target, err := s.managedPair(ctx, session, teamID, userID)
	if err != nil {
		return err
	}
	// Only someone who outranks the new role may grant it.
	if !rbac.CanManage(actor, next) {
		return errForbidden
	}
	if err := s.store.UpdateMemberRole(ctx, teamID, userID, string(next)); err != nil {
		return err
	}
	s.activity(ctx, store.ActivityLog{
		TeamID: teamID, ActorID: session.UserID, Action: store.ActivityRoleChanged,
		TargetType: "user", TargetID: userID,
		Details: detailsJSON(map[string]any{"from": string(target), "to": string(next)}),
	})
	return nil
}

func (s *Service) KickMember(ctx context.Context, session Session, teamID, userID string) error {
	if _, _, err := s.managedPair(ctx, session, teamID, userID); err != nil {
		return err
	}
	if err := s.store.RemoveMember(ctx, teamID, userID); err != nil {
		return err
	}
	s.activity(ctx, store.ActivityLog{
		TeamID: teamID, ActorID: session.UserID, Action: store.ActivityMemberKicked,
		TargetType: "user", TargetID: userID,
	})
	return nil
}

// managedPair resolves the actor's and target's roles and checks the actor
// outranks the target.
func (s *Service) managedPair(ctx context.Context, session Session, teamID, userID string) (rbac.Role, rbac.Role, error) {
	if userID == session.UserID {
		return "", "", validationError("use leave to remove yourself")
	}
	actor, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionManageMembers)
	if err != nil {
		return "", "", err
	}
	target, err := s.store.GetMembership(ctx, teamID, userID)
	if err != nil {
		return "", "", err
	}
	actorRole, _ := rbac.Parse(actor.Role)
	targetRole, _ := rbac.Parse(target.Role)
	if !rbac.CanManage(actorRole, targetRole) {
		return "", "", errForbidden
	}
	return actorRole, targetRole, nil
}

func (s *Service) LeaveTeam(ctx context.Context, session Session, teamID string) error {
	member, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionRead)
	if err != nil {
		return err
	}
	if member.Role == string(rbac.RoleOwner) {
		return domainError(http.StatusConflict, "OWNER_CANNOT_LEAVE", "The owner cannot leave the team; delete it instead", nil)
	}
	if err := s.store.RemoveMember(ctx, teamID, session.UserID); err != nil {
		return err
	}
	s.activity(ctx, store.ActivityLog{
		TeamID: teamID, ActorID: session.UserID, Action: store.ActivityMemberLeft,
		TargetType: "user", TargetID: session.UserID,
	})
	return nil
}

// Invite records a pending invitation valid for seven days and emails the
// invitee. Existing users also get an in-app notification.
func (s *Service) Invite(ctx context.Context, session Session, teamID, emailAddr string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionInvite); err != nil {
		return nil, err
	}
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, validationError("email is invalid")
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if invitee, err := s.store.GetUserByEmail(ctx, emailAddr); err == nil {
		if _, err := s.store.GetMembership(ctx, teamID, invitee.ID); err == nil {
			return nil, domainError(http.StatusConflict, "ALREADY_MEMBER", "User is already a member of this team", nil)
		}
		s.notify(ctx, store.Notification{
			UserID:  invitee.ID,
			Type:    store.NotificationTeamInvite,
			Title:   "Team invitation",
			Content: session.UserName + " invited you to join " + team.Name,
			Link:    notificationLink(invitationAcceptUI),
		})
	}

	inv, err := s.store.CreateInvitation(ctx, teamID, emailAddr, session.UserID, s.now().Add(invitationTTL))
	if err != nil {
		return nil, err
	}
	inv.TeamName = team.Name

	if s.mailer.IsConfigured() {
		if err := s.mailer.SendInvitationEmail(emailAddr, session.UserName, team.Name, s.cfg.AppURL+invitationAcceptUI); err != nil {
			s.log.Warn("send invitation email failed", "team_id", teamID, "error", err)
		}
	}
	s.activity(ctx, store.ActivityLog{
		TeamID: teamID, ActorID: session.UserID, Action: store.ActivityMemberInvited,
		TargetType: "invitation", TargetID: inv.ID, Details: detailsJSON(map[string]any{"email": emailAddr}),
	})
	return invitationJSON(inv), nil
}

func (s *Service) MyInvitations(ctx context.Context, session Session) ([]map[string]any, error) {
	items, err := s.store.ListInvitationsForEmail(ctx, session.Email)
	if err != nil {
		return nil, err
	}
	return mapList(items, invitationJSON), nil
}

func (s *Service) AcceptInvitation(ctx context.Context, session Session, invitationID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	teamID, err := s.store.AcceptInvitation(ctx, invitationID, user)
	if err != nil {
		return nil, err
	}
	return s.GetTeam(ctx, session, teamID)
}

func (s *Service) ListActivity(ctx context.Context, session Session, teamID string, offset int) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.store.ListActivity(ctx, teamID, activityPageSize, offset)
	if err != nil {
		return nil, err
	}
	return mapList(items, activityJSON), nil
}

func detailsJSON(v map[string]any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
