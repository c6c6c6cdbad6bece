package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"jiralite/api/internal/rbac"
	"jiralite/api/internal/search"
	"jiralite/api/internal/store"
)

const (
	maxProjectsPerTeam   = 15
	maxProjectNameLength = 100
	maxProjectDescLength = 2000
	maxCustomStatuses    = 5
	maxStatusNameLength  = 30
	maxWIPLimit          = 50
	maxLabelsPerProject  = 20
	maxLabelNameLength   = 30
	defaultStatusColor   = "#6B7280"
	defaultLabelColor    = "#3B82F6"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (in ProjectInput) validate() (ProjectInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" || utf8.RuneCountInString(in.Name) > maxProjectNameLength {
		return in, validationError(fmt.Sprintf("project name must be 1-%d characters", maxProjectNameLength))
	}
	if utf8.RuneCountInString(in.Description) > maxProjectDescLength {
		return in, validationError(fmt.Sprintf("description must be at most %d characters", maxProjectDescLength))
	}
	return in, nil
}

type StatusInput struct {
	Name     *string `json:"name"`
	Color    *string `json:"color"`
	WIPLimit *int    `json:"wipLimit"`
	// ClearWIPLimit removes the limit; a nil WIPLimit alone leaves it unchanged.
	ClearWIPLimit bool `json:"clearWipLimit"`
}

type LabelInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Service) CreateProject(ctx context.Context, session Session, teamID string, in ProjectInput) (map[string]any, error) {
	if _, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountProjects(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if count >= maxProjectsPerTeam {
		return nil, limitError(fmt.Sprintf("a team can have at most %d projects", maxProjectsPerTeam), maxProjectsPerTeam)
	}

	project, err := s.store.CreateProject(ctx, store.Project{
		TeamID:      teamID,
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     session.UserID,
	})
	if err != nil {
		return nil, err
	}
	s.indexProject(project)
	s.activity(ctx, store.ActivityLog{
		TeamID: teamID, ActorID: session.UserID, Action: store.ActivityProjectCreated,
		TargetType: "project", TargetID: project.ID, Details: detailsJSON(map[string]any{"name": project.Name}),
	})
	return projectJSON(project), nil
}

func (s *Service) ListProjects(ctx context.Context, session Session, teamID string, includeArchived bool) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, teamID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjects(ctx, teamID, session.UserID, includeArchived)
	if err != nil {
		return nil, err
	}
	return mapList(projects, projectJSON), nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return projectJSON(project), nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID string, in ProjectInput) (map[string]any, error) {
	project, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	in, err = in.validate()
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateProject(ctx, projectID, in.Name, in.Description); err != nil {
		return nil, err
	}
	project.Name, project.Description = in.Name, in.Description
	s.indexProject(project)
	return projectJSON(project), nil
}

// SetArchived toggles read-only mode. Only admins and the owner may do it,
// and an archived project can still be unarchived.
func (s *Service) SetArchived(ctx context.Context, session Session, projectID string, archived bool) (map[string]any, error) {
	project, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, project.TeamID, session.UserID, rbac.ActionInvite); err != nil {
		return nil, err
	}
	if err := s.store.SetProjectArchived(ctx, projectID, archived); err != nil {
		return nil, err
	}
	project.IsArchived = archived
	action := store.ActivityProjectArchived
	if !archived {
		action = store.ActivityProjectUnarchived
	}
	s.activity(ctx, store.ActivityLog{
		TeamID: project.TeamID, ActorID: session.UserID, Action: action,
		TargetType: "project", TargetID: projectID,
	})
	return projectJSON(project), nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) error {
	project, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead)
	if err != nil {
		return err
	}
	member, err := s.requireMember(ctx, project.TeamID, session.UserID, rbac.ActionRead)
	if err != nil {
		return err
	}
	role, _ := rbac.Parse(member.Role)
	if project.OwnerID != session.UserID && !rbac.Can(role, rbac.ActionManageMembers) {
		return errForbidden
	}
	if err := s.store.SoftDeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.search.DeleteProject(projectID)
	s.activity(ctx, store.ActivityLog{
		TeamID: project.TeamID, ActorID: session.UserID, Action: store.ActivityProjectDeleted,
		TargetType: "project", TargetID: projectID, Details: detailsJSON(map[string]any{"name": project.Name}),
	})
	return nil
}

func (s *Service) SetFavorite(ctx context.Context, session Session, projectID string, favorite bool) error {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead); err != nil {
		return err
	}
	return s.store.SetFavorite(ctx, projectID, session.UserID, favorite)
}

func (s *Service) ListStatuses(ctx context.Context, session Session, projectID string) ([]map[string]any, error) {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	statuses, err := s.store.ListStatuses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return mapList(statuses, statusJSON), nil
}

func (s *Service) CreateStatus(ctx context.Context, session Session, projectID string, in StatusInput) (map[string]any, error) {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	st := store.ProjectStatus{ProjectID: projectID, Color: defaultStatusColor}
	if err := applyStatusInput(&st, in); err != nil {
		return nil, err
	}
	if st.Name == "" {
		return nil, validationError(fmt.Sprintf("status name must be 1-%d characters", maxStatusNameLength))
	}
	count, err := s.store.CountCustomStatuses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if count >= maxCustomStatuses {
		return nil, limitError(fmt.Sprintf("a project can have at most %d custom statuses", maxCustomStatuses), maxCustomStatuses)
	}
	created, err := s.store.CreateStatus(ctx, st)
	if err != nil {
		return nil, err
	}
	return statusJSON(created), nil
}

func (s *Service) UpdateStatus(ctx context.Context, session Session, projectID, statusID string, in StatusInput) (map[string]any, error) {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	statuses, err := s.store.ListStatuses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var current *store.ProjectStatus
	for i := range statuses {
		if statuses[i].ID == statusID {
			current = &statuses[i]
			break
		}
	}
	if current == nil {
		return nil, sql.ErrNoRows
	}
	if err := applyStatusInput(current, in); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, *current); err != nil {
		return nil, err
	}
	return statusJSON(*current), nil
}

// DeleteStatus moves the column's issues to the first default status. The
// three default statuses cannot be deleted.
func (s *Service) DeleteStatus(ctx context.Context, session Session, projectID, statusID string) error {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionWrite); err != nil {
		return err
	}
	err := s.store.DeleteStatus(ctx, projectID, statusID)
	if errors.Is(err, store.ErrConflict) {
		return domainError(http.StatusConflict, "DEFAULT_STATUS", "Default statuses cannot be deleted", nil)
	}
	return err
}

func applyStatusInput(st *store.ProjectStatus, in StatusInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || utf8.RuneCountInString(name) > maxStatusNameLength {
			return validationError(fmt.Sprintf("status name must be 1-%d characters", maxStatusNameLength))
		}
		st.Name = name
	}
	if in.Color != nil {
		if !hexColor.MatchString(*in.Color) {
			return validationError("color must be a #RRGGBB hex value")
		}
		st.Color = *in.Color
	}
	switch {
	case in.ClearWIPLimit:
		st.WIPLimit = nil
	case in.WIPLimit != nil:
		if *in.WIPLimit < 1 || *in.WIPLimit > maxWIPLimit {
			return validationError(fmt.Sprintf("WIP limit must be between 1 and %d", maxWIPLimit))
		}
		limit := *in.WIPLimit
		st.WIPLimit = &limit
	}
	return nil
}

func (s *Service) ListLabels(ctx context.Context, session Session, projectID string) ([]map[string]any, error) {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	labels, err := s.store.ListLabels(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return mapList(labels, labelJSON), nil
}

func (s *Service) CreateLabel(ctx context.Context, session Session, projectID string, in LabelInput) (map[string]any, error) {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxLabelNameLength {
		return nil, validationError(fmt.Sprintf("label name must be 1-%d characters", maxLabelNameLength))
	}
	color := in.Color
	if color == "" {
		color = defaultLabelColor
	}
	if !hexColor.MatchString(color) {
		return nil, validationError("color must be a #RRGGBB hex value")
	}
	count, err := s.store.CountLabels(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if count >= maxLabelsPerProject {
		return nil, limitError(fmt.Sprintf("a project can have at most %d labels", maxLabelsPerProject), maxLabelsPerProject)
	}
	label, err := s.store.CreateLabel(ctx, store.Label{ProjectID: projectID, Name: name, Color: color})
	if errors.Is(err, store.ErrConflict) {
		return nil, domainError(http.StatusConflict, "LABEL_EXISTS", "A label with this name already exists", nil)
	}
	if err != nil {
		return nil, err
	}
	return labelJSON(label), nil
}

func (s *Service) DeleteLabel(ctx context.Context, session Session, projectID, labelID string) error {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionWrite); err != nil {
		return err
	}
	return s.store.DeleteLabel(ctx, projectID, labelID)
}

// Board returns the columns and cards the drag-and-drop client renders.
func (s *Service) Board(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	statuses, err := s.store.ListStatuses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	issues, err := s.store.ListIssues(ctx, projectID, store.IssueFilter{})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"project":  projectJSON(project),
		"archived": project.IsArchived,
		"statuses": mapList(statuses, statusJSON),
		"issues":   mapList(issues, issueJSON),
	}, nil
}

func (s *Service) indexProject(p store.Project) {
	s.search.IndexProject(search.ProjectRecord{
		ID:          p.ID,
		TeamID:      p.TeamID,
		Name:        p.Name,
		Description: p.Description,
	})
}
