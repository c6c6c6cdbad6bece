package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"jiralite/api/internal/aicache"
)

// AI fronts the issue AI endpoints with a local artifact cache. Preconditions
// are checked before any request so hopeless calls never leave the process.
type AI struct {
	client *Client
	cache  *aicache.Cache
}

func (c *Client) AI(cache *aicache.Cache) *AI {
	if cache == nil {
		cache = aicache.NewCache()
	}
	return &AI{client: c, cache: cache}
}

func (a *AI) Cache() *aicache.Cache {
	return a.cache
}

type artifactWire struct {
	ID            string     `json:"id"`
	IssueID       string     `json:"issueId"`
	Type          string     `json:"type"`
	Content       string     `json:"content"`
	CreatedAt     time.Time  `json:"createdAt"`
	InvalidatedAt *time.Time `json:"invalidatedAt"`
}

func (w artifactWire) artifact() aicache.Artifact {
	return aicache.Artifact{
		ID:            w.ID,
		IssueID:       w.IssueID,
		Type:          aicache.ArtifactType(w.Type),
		Content:       w.Content,
		CreatedAt:     w.CreatedAt,
		InvalidatedAt: w.InvalidatedAt,
	}
}

type artifactView struct {
	State    string        `json:"state"`
	Artifact *artifactWire `json:"artifact"`
	Cached   bool          `json:"cached"`
}

// Artifact returns the active artifact of typ for the issue, generating it
// when neither the local cache nor the server has one. commentCount only
// matters for comment summaries.
func (a *AI) Artifact(ctx context.Context, issue Issue, commentCount int, typ aicache.ArtifactType, force bool) (aicache.Artifact, error) {
	if !force {
		if cached, ok := a.cache.Get(issue.ID, typ); ok {
			return cached, nil
		}
	}
	in := aicache.Input{Description: issue.Description, CommentCount: commentCount}
	if err := a.client.policy.Check(typ, in); err != nil {
		return aicache.Artifact{}, err
	}

	var view artifactView
	err := a.client.do(ctx, http.MethodPost, "/api/issues/"+issue.ID+"/ai/"+string(typ), map[string]bool{"force": force}, &view)
	if err != nil {
		return aicache.Artifact{}, translateAIError(err)
	}
	if view.Artifact == nil {
		return aicache.Artifact{}, errors.New("ai response carried no artifact")
	}
	artifact := view.Artifact.artifact()
	a.cache.Put(artifact)
	return artifact, nil
}

// Sync makes the cache agree with the server for every artifact type of the
// issue and reports each type's state. A pair the server no longer holds as
// active is never served from the cache afterwards.
func (a *AI) Sync(ctx context.Context, issueID string) (map[aicache.ArtifactType]aicache.State, error) {
	var payload map[string]artifactView
	if err := a.client.do(ctx, http.MethodGet, "/api/issues/"+issueID+"/ai", nil, &payload); err != nil {
		return nil, err
	}
	out := make(map[aicache.ArtifactType]aicache.State, len(aicache.AllTypes))
	for _, typ := range aicache.AllTypes {
		view, ok := payload[string(typ)]
		if !ok {
			a.cache.Remove(issueID, typ)
			out[typ] = aicache.Absent
			continue
		}
		switch view.State {
		case "active":
			if view.Artifact == nil {
				a.cache.Remove(issueID, typ)
				out[typ] = aicache.Absent
				continue
			}
			a.cache.Put(view.Artifact.artifact())
			out[typ] = aicache.Active
		case "invalidated":
			if view.Artifact != nil {
				a.cache.Put(view.Artifact.artifact())
			}
			a.cache.Invalidate(issueID, typ)
			out[typ] = aicache.Invalidated
		default:
			a.cache.Remove(issueID, typ)
			out[typ] = aicache.Absent
		}
	}
	return out, nil
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (a *AI) SuggestLabels(ctx context.Context, issue Issue) ([]Label, error) {
	if err := a.client.policy.CheckText(issue.Description); err != nil {
		return nil, err
	}
	var out struct {
		Labels []Label `json:"labels"`
	}
	if err := a.client.do(ctx, http.MethodPost, "/api/issues/"+issue.ID+"/ai/labels", nil, &out); err != nil {
		return nil, translateAIError(err)
	}
	return out.Labels, nil
}

type Duplicate struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Similarity string `json:"similarity"`
}

func (a *AI) FindDuplicates(ctx context.Context, projectID, title, excludeIssueID string) ([]Duplicate, error) {
	var out struct {
		Duplicates []Duplicate `json:"duplicates"`
	}
	err := a.client.do(ctx, http.MethodPost, "/api/projects/"+projectID+"/ai/duplicates", map[string]string{
		"title":          title,
		"excludeIssueId": excludeIssueID,
	}, &out)
	if err != nil {
		return nil, translateAIError(err)
	}
	return out.Duplicates, nil
}

// translateAIError turns the server's 429 and 422 envelopes back into the
// typed aicache errors.
func translateAIError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case "RATE_LIMITED":
		secs, _ := apiErr.Details["retryAfterSeconds"].(float64)
		return &aicache.RateLimitError{RetryAfter: time.Duration(secs) * time.Second}
	case "AI_PRECONDITION":
		typ, _ := apiErr.Details["type"].(string)
		return &aicache.PreconditionError{Type: aicache.ArtifactType(typ), Message: apiErr.Message}
	}
	return err
}
