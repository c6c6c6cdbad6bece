package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"jiralite/api/internal/rbac"
	"jiralite/api/internal/store"
)

const (
	maxSubtasksPerIssue   = 20
	maxSubtaskTitleLength = 200
	maxCommentLength      = 1000
	commentPreviewLength  = 80
)

type SubtaskInput struct {
	Title       string `json:"title"`
	ClientToken string `json:"clientToken"`
}

type SubtaskUpdate struct {
	Title       *string `json:"title"`
	IsCompleted *bool   `json:"isCompleted"`
	Position    *int    `json:"position"`
}

type CommentInput struct {
	Content     string `json:"content"`
	ClientToken string `json:"clientToken"`
}

func validateSubtaskTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxSubtaskTitleLength {
		return "", validationError(fmt.Sprintf("subtask title must be 1-%d characters", maxSubtaskTitleLength))
	}
	return title, nil
}

func validateComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxCommentLength {
		return "", validationError(fmt.Sprintf("comment must be 1-%d characters", maxCommentLength))
	}
	return content, nil
}

func (s *Service) ListSubtasks(ctx context.Context, session Session, issueID string) ([]map[string]any, error) {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	items, err := s.store.ListSubtasks(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return mapList(items, subtaskJSON), nil
}

// CreateSubtask appends at the end of the list. A repeated clientToken
// returns the subtask the first request created.
func (s *Service) CreateSubtask(ctx context.Context, session Session, issueID string, in SubtaskInput) (map[string]any, error) {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title, err := validateSubtaskTitle(in.Title)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountSubtasks(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if count >= maxSubtasksPerIssue {
		return nil, limitError(fmt.Sprintf("an issue can have at most %d subtasks", maxSubtasksPerIssue), maxSubtasksPerIssue)
	}
	st, err := s.store.CreateSubtask(ctx, store.Subtask{IssueID: issueID, Title: title, Position: count}, in.ClientToken)
	if err != nil {
		return nil, err
	}
	st.IssueID = issueID
	return subtaskJSON(st), nil
}

func (s *Service) UpdateSubtask(ctx context.Context, session Session, issueID, subtaskID string, in SubtaskUpdate) (map[string]any, error) {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	items, err := s.store.ListSubtasks(ctx, issueID)
	if err != nil {
		return nil, err
	}
	var st *store.Subtask
	for i := range items {
		if items[i].ID == subtaskID {
			st = &items[i]
			break
		}
	}
	if st == nil {
		return nil, notFound("Subtask not found")
	}
	if in.Title != nil {
		title, err := validateSubtaskTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		st.Title = title
	}
	if in.IsCompleted != nil {
		st.IsCompleted = *in.IsCompleted
	}
	if in.Position != nil {
		if *in.Position < 0 {
			return nil, validationError("position must not be negative")
		}
		st.Position = *in.Position
	}
	if err := s.store.UpdateSubtask(ctx, *st); err != nil {
		return nil, err
	}
	return subtaskJSON(*st), nil
}

func (s *Service) DeleteSubtask(ctx context.Context, session Session, issueID, subtaskID string) error {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionWrite); err != nil {
		return err
	}
	return s.store.DeleteSubtask(ctx, issueID, subtaskID)
}

func (s *Service) ListComments(ctx context.Context, session Session, issueID string) ([]map[string]any, error) {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	items, err := s.store.ListComments(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return mapList(items, commentJSON), nil
}

// CreateComment stores the comment; the store invalidates the issue's
// comment summary in the same transaction.
func (s *Service) CreateComment(ctx context.Context, session Session, issueID string, in CommentInput) (map[string]any, error) {
	issue, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	content, err := validateComment(in.Content)
	if err != nil {
		return nil, err
	}
	c, err := s.store.CreateComment(ctx, store.Comment{IssueID: issueID, UserID: session.UserID, Content: content}, in.ClientToken)
	if err != nil {
		return nil, err
	}
	s.notifyCommented(ctx, session, issue, content)
	return commentJSON(c), nil
}

func (s *Service) UpdateComment(ctx context.Context, session Session, commentID, content string) (map[string]any, error) {
	if _, err := s.ownComment(ctx, session, commentID); err != nil {
		return nil, err
	}
	content, err := validateComment(content)
	if err != nil {
		return nil, err
	}
	c, err := s.store.UpdateComment(ctx, commentID, content)
	if err != nil {
		return nil, err
	}
	return commentJSON(c), nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, commentID string) error {
	if _, err := s.ownComment(ctx, session, commentID); err != nil {
		return err
	}
	return s.store.SoftDeleteComment(ctx, commentID)
}

// ownComment allows only the author to edit or delete, and only while the
// project is writable.
func (s *Service) ownComment(ctx context.Context, session Session, commentID string) (store.Comment, error) {
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, err
	}
	if _, _, err := s.issueAccess(ctx, c.IssueID, session.UserID, rbac.ActionWrite); err != nil {
		return store.Comment{}, err
	}
	if c.UserID != session.UserID {
		return store.Comment{}, errForbidden
	}
	return c, nil
}

func (s *Service) notifyCommented(ctx context.Context, session Session, issue store.Issue, content string) {
	preview := content
	if utf8.RuneCountInString(preview) > commentPreviewLength {
		preview = string([]rune(preview)[:commentPreviewLength]) + "..."
	}
	recipients := []string{issue.OwnerID}
	if issue.AssigneeID != nil && *issue.AssigneeID != issue.OwnerID {
		recipients = append(recipients, *issue.AssigneeID)
	}
	for _, userID := range recipients {
		if userID == "" || userID == session.UserID {
			continue
		}
		s.notify(ctx, store.Notification{
			UserID:  userID,
			Type:    store.NotificationCommentAdded,
			Title:   session.UserName + " commented on " + issue.Title,
			Content: preview,
			Link:    issueLink(issue),
		})
	}
}
