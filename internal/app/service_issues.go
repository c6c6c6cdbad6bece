package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"jiralite/api/internal/rbac"
	"jiralite/api/internal/search"
	"jiralite/api/internal/store"
)

const (
	maxIssuesPerProject  = 200
	maxIssueTitleLength  = 200
	maxIssueDescLength   = 5000
	maxLabelsPerIssue    = 5
	defaultIssuePriority = "MEDIUM"
	defaultSearchLimit   = 20
	maxSearchLimit       = 50
)

var issuePriorities = map[string]bool{"HIGH": true, "MEDIUM": true, "LOW": true}

type IssueInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StatusID    string   `json:"statusId"`
	Priority    string   `json:"priority"`
	AssigneeID  string   `json:"assigneeId"`
	DueDate     string   `json:"dueDate"`
	LabelIDs    []string `json:"labelIds"`
}

// IssueUpdate is a partial update; nil fields are left alone and an empty
// assignee or due date clears it.
type IssueUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	AssigneeID  *string `json:"assigneeId"`
	DueDate     *string `json:"dueDate"`
}

type IssueListFilter struct {
	StatusID   string
	AssigneeID string
	Priority   string
	Query      string
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxIssueTitleLength {
		return "", validationError(fmt.Sprintf("title must be 1-%d characters", maxIssueTitleLength))
	}
	return title, nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > maxIssueDescLength {
		return validationError(fmt.Sprintf("description must be at most %d characters", maxIssueDescLength))
	}
	return nil
}

func validatePriority(p string) error {
	if !issuePriorities[p] {
		return validationError("priority must be HIGH, MEDIUM, or LOW")
	}
	return nil
}

func validateDueDate(raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, raw); err != nil {
		return validationError("dueDate must be YYYY-MM-DD")
	}
	return nil
}

func (s *Service) validateAssignee(ctx context.Context, teamID, assigneeID string) error {
	if assigneeID == "" {
		return nil
	}
	_, err := s.store.GetMembership(ctx, teamID, assigneeID)
	if errors.Is(err, sql.ErrNoRows) {
		return validationError("assignee must be a member of the team")
	}
	return err
}

func (s *Service) CreateIssue(ctx context.Context, session Session, projectID string, in IssueInput) (map[string]any, error) {
	project, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = defaultIssuePriority
	}
	if err := validatePriority(in.Priority); err != nil {
		return nil, err
	}
	if err := validateDueDate(in.DueDate); err != nil {
		return nil, err
	}
	if len(in.LabelIDs) > maxLabelsPerIssue {
		return nil, limitError(fmt.Sprintf("an issue can have at most %d labels", maxLabelsPerIssue), maxLabelsPerIssue)
	}
	if err := s.validateAssignee(ctx, project.TeamID, in.AssigneeID); err != nil {
		return nil, err
	}
	count, err := s.store.CountIssues(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if count >= maxIssuesPerProject {
		return nil, limitError(fmt.Sprintf("a project can have at most %d issues", maxIssuesPerProject), maxIssuesPerProject)
	}

	draft := store.Issue{
		ProjectID:   projectID,
		Title:       title,
		Description: in.Description,
		StatusID:    in.StatusID,
		Priority:    in.Priority,
		OwnerID:     session.UserID,
	}
	if in.AssigneeID != "" {
		draft.AssigneeID = &in.AssigneeID
	}
	if in.DueDate != "" {
		due, _ := time.Parse(dateLayout, in.DueDate)
		draft.DueDate = &due
	}
	issue, err := s.store.CreateIssue(ctx, draft, in.LabelIDs)
	if err != nil {
		return nil, err
	}
	s.indexIssue(project, issue)
	s.notifyAssignee(ctx, session, issue)
	return issueJSON(issue), nil
}

func (s *Service) ListIssues(ctx context.Context, session Session, projectID string, f IssueListFilter) ([]map[string]any, error) {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	issues, err := s.store.ListIssues(ctx, projectID, store.IssueFilter{
		StatusID:   f.StatusID,
		AssigneeID: f.AssigneeID,
		Priority:   f.Priority,
		Query:      strings.TrimSpace(f.Query),
	})
	if err != nil {
		return nil, err
	}
	return mapList(issues, issueJSON), nil
}

func (s *Service) GetIssue(ctx context.Context, session Session, issueID string) (map[string]any, error) {
	issue, project, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	payload := issueJSON(issue)
	payload["archived"] = project.IsArchived
	return payload, nil
}

func (s *Service) UpdateIssue(ctx context.Context, session Session, issueID string, in IssueUpdate) (map[string]any, error) {
	before, project, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	patch := store.IssuePatch{Description: in.Description, Priority: in.Priority, AssigneeID: in.AssigneeID, DueDate: in.DueDate}
	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if in.Description != nil {
		if err := validateDescription(*in.Description); err != nil {
			return nil, err
		}
	}
	if in.Priority != nil {
		if err := validatePriority(*in.Priority); err != nil {
			return nil, err
		}
	}
	if in.DueDate != nil {
		if err := validateDueDate(*in.DueDate); err != nil {
			return nil, err
		}
	}
	if in.AssigneeID != nil {
		if err := s.validateAssignee(ctx, project.TeamID, *in.AssigneeID); err != nil {
			return nil, err
		}
	}

	issue, descriptionChanged, err := s.store.UpdateIssue(ctx, issueID, patch, session.UserID)
	if err != nil {
		return nil, err
	}
	if descriptionChanged {
		s.log.Debug("description changed, ai artifacts invalidated", "issue_id", issueID)
	}
	s.indexIssue(project, issue)
	if derefString(issue.AssigneeID) != derefString(before.AssigneeID) {
		s.notifyAssignee(ctx, session, issue)
	}
	return issueJSON(issue), nil
}

func (s *Service) DeleteIssue(ctx context.Context, session Session, issueID string) error {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionWrite); err != nil {
		return err
	}
	if err := s.store.SoftDeleteIssue(ctx, issueID); err != nil {
		return err
	}
	s.search.DeleteIssue(issueID)
	return nil
}

// MoveIssue places the issue at position in the status column. Both the
// source and destination columns are renumbered densely by the store.
func (s *Service) MoveIssue(ctx context.Context, session Session, issueID, statusID string, position int) (map[string]any, error) {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if strings.TrimSpace(statusID) == "" {
		return nil, validationError("statusId is required")
	}
	if position < 0 {
		position = 0
	}
	issue, err := s.store.MoveIssue(ctx, issueID, statusID, position, session.UserID)
	if err != nil {
		return nil, err
	}
	return issueJSON(issue), nil
}

func (s *Service) IssueHistory(ctx context.Context, session Session, issueID string) ([]map[string]any, error) {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return mapList(entries, historyJSON), nil
}

func (s *Service) SetIssueLabels(ctx context.Context, session Session, issueID string, labelIDs []string) (map[string]any, error) {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if len(labelIDs) > maxLabelsPerIssue {
		return nil, limitError(fmt.Sprintf("an issue can have at most %d labels", maxLabelsPerIssue), maxLabelsPerIssue)
	}
	if err := s.store.SetIssueLabels(ctx, issueID, labelIDs); err != nil {
		return nil, err
	}
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return issueJSON(issue), nil
}

// Search is scoped to the caller's teams, and to one project when projectID
// is set.
func (s *Service) Search(ctx context.Context, session Session, text, filterType, projectID string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{Results: []search.Result{}}, nil
	}
	switch search.ResultType(filterType) {
	case "", search.ResultIssue, search.ResultProject:
	default:
		return search.Response{}, validationError("type must be issue or project")
	}
	if projectID != "" {
		if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead); err != nil {
			return search.Response{}, err
		}
	}
	teamIDs, err := s.teamIDsFor(ctx, session.UserID)
	if err != nil {
		return search.Response{}, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		ProjectID:  projectID,
		TeamIDs:    teamIDs,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

func (s *Service) indexIssue(project store.Project, it store.Issue) {
	s.search.IndexIssue(search.IssueRecord{
		ID:          it.ID,
		ProjectID:   it.ProjectID,
		TeamID:      project.TeamID,
		Title:       it.Title,
		Description: it.Description,
		Priority:    it.Priority,
		StatusID:    it.StatusID,
	})
}

func (s *Service) notifyAssignee(ctx context.Context, session Session, it store.Issue) {
	if it.AssigneeID == nil || *it.AssigneeID == session.UserID {
		return
	}
	s.notify(ctx, store.Notification{
		UserID:  *it.AssigneeID,
		Type:    store.NotificationIssueAssigned,
		Title:   "Issue assigned",
		Content: session.UserName + " assigned you to " + it.Title,
		Link:    issueLink(it),
	})
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
