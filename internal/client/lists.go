package client

import (
	"context"
	"net/http"
	"time"

	"jiralite/api/internal/aicache"
	"jiralite/api/internal/notify"
	"jiralite/api/internal/reconcile"
)

// Comment positions are local list order; the server orders by creation.
type Comment struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issueId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Position  int       `json:"-"`
}

func (c Comment) RecordID() string { return c.ID }

func (c Comment) WithID(id string) Comment {
	c.ID = id
	return c
}

func (c Comment) RecordPosition() int { return c.Position }

func (c Comment) WithPosition(position int) Comment {
	c.Position = position
	return c
}

type Subtask struct {
	ID          string `json:"id"`
	IssueID     string `json:"issueId"`
	Title       string `json:"title"`
	IsCompleted bool   `json:"isCompleted"`
	Position    int    `json:"position"`
}

func (s Subtask) RecordID() string { return s.ID }

func (s Subtask) WithID(id string) Subtask {
	s.ID = id
	return s
}

func (s Subtask) RecordPosition() int { return s.Position }

func (s Subtask) WithPosition(position int) Subtask {
	s.Position = position
	return s
}

// CommentRemote persists an issue's comments. The temporary id is sent as
// the client token so a retried create is not stored twice.
type CommentRemote struct {
	client  *Client
	issueID string
}

func (c *Client) Comments(issueID string) *CommentRemote {
	return &CommentRemote{client: c, issueID: issueID}
}

func (r *CommentRemote) Create(ctx context.Context, draft Comment, token string) (Comment, error) {
	var out Comment
	err := r.client.do(ctx, http.MethodPost, "/api/issues/"+r.issueID+"/comments", map[string]string{
		"content":     draft.Content,
		"clientToken": token,
	}, &out)
	if err != nil {
		return Comment{}, err
	}
	out.Position = draft.Position
	return out, nil
}

func (r *CommentRemote) Update(ctx context.Context, _, after Comment) error {
	return r.client.do(ctx, http.MethodPut, "/api/comments/"+after.ID, map[string]string{"content": after.Content}, nil)
}

func (r *CommentRemote) Delete(ctx context.Context, item Comment) error {
	return r.client.do(ctx, http.MethodDelete, "/api/comments/"+item.ID, nil, nil)
}

func (r *CommentRemote) List(ctx context.Context) ([]Comment, error) {
	var out struct {
		Comments []Comment `json:"comments"`
	}
	if err := r.client.do(ctx, http.MethodGet, "/api/issues/"+r.issueID+"/comments", nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Comments {
		out.Comments[i].Position = i
	}
	return out.Comments, nil
}

type SubtaskRemote struct {
	client  *Client
	issueID string
}

func (c *Client) Subtasks(issueID string) *SubtaskRemote {
	return &SubtaskRemote{client: c, issueID: issueID}
}

func (r *SubtaskRemote) Create(ctx context.Context, draft Subtask, token string) (Subtask, error) {
	var out Subtask
	err := r.client.do(ctx, http.MethodPost, "/api/issues/"+r.issueID+"/subtasks", map[string]string{
		"title":       draft.Title,
		"clientToken": token,
	}, &out)
	if err != nil {
		return Subtask{}, err
	}
	return out, nil
}

// Update sends only the fields that changed.
func (r *SubtaskRemote) Update(ctx context.Context, before, after Subtask) error {
	patch := map[string]any{}
	if before.Title != after.Title {
		patch["title"] = after.Title
	}
	if before.IsCompleted != after.IsCompleted {
		patch["isCompleted"] = after.IsCompleted
	}
	if before.Position != after.Position {
		patch["position"] = after.Position
	}
	if len(patch) == 0 {
		return nil
	}
	return r.client.do(ctx, http.MethodPut, "/api/issues/"+r.issueID+"/subtasks/"+after.ID, patch, nil)
}

func (r *SubtaskRemote) Delete(ctx context.Context, item Subtask) error {
	return r.client.do(ctx, http.MethodDelete, "/api/issues/"+r.issueID+"/subtasks/"+item.ID, nil, nil)
}

func (r *SubtaskRemote) List(ctx context.Context) ([]Subtask, error) {
	var out struct {
		Subtasks []Subtask `json:"subtasks"`
	}
	if err := r.client.do(ctx, http.MethodGet, "/api/issues/"+r.issueID+"/subtasks", nil, &out); err != nil {
		return nil, err
	}
	return out.Subtasks, nil
}

var commentMutations = map[reconcile.Op]aicache.Mutation{
	reconcile.OpAdd:    aicache.CommentCreated,
	reconcile.OpEdit:   aicache.CommentEdited,
	reconcile.OpDelete: aicache.CommentDeleted,
}

// NewCommentList builds the optimistic comment list for an issue. Each
// committed change drops the issue's cached comment summary from cache.
func (c *Client) NewCommentList(issueID string, cache *aicache.Cache, notifier notify.Notifier) *reconcile.List[Comment] {
	return reconcile.New[Comment](c.Comments(issueID), nil, reconcile.Options[Comment]{
		Notifier: notifier,
		Messages: &reconcile.Messages{
			Added:        "Comment added",
			AddFailed:    "Failed to add comment",
			Edited:       "Comment updated",
			EditFailed:   "Failed to update comment",
			Deleted:      "Comment deleted",
			DeleteFailed: "Failed to delete comment",
			ToggleFailed: "Failed to update comment",
			LoadFailed:   "Could not load comments",
		},
		OnCommitted: func(op reconcile.Op, _ Comment) {
			if m, ok := commentMutations[op]; ok && cache != nil {
				cache.Apply(issueID, m)
			}
		},
	})
}

func (c *Client) NewSubtaskList(issueID string, notifier notify.Notifier) *reconcile.List[Subtask] {
	return reconcile.New[Subtask](c.Subtasks(issueID), nil, reconcile.Options[Subtask]{
		Notifier: notifier,
		Messages: &reconcile.Messages{
			Added:        "Subtask added",
			AddFailed:    "Failed to add subtask",
			Edited:       "Subtask updated",
			EditFailed:   "Failed to update subtask",
			Deleted:      "Subtask deleted",
			DeleteFailed: "Failed to delete subtask",
			ToggleFailed: "Failed to change subtask status",
			LoadFailed:   "Could not load subtasks",
		},
		Flip: func(s Subtask) Subtask {
			s.IsCompleted = !s.IsCompleted
			return s
		},
	})
}
