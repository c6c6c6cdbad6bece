package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"jiralite/api/internal/ai"
	"jiralite/api/internal/aicache"
	"jiralite/api/internal/rbac"
	"jiralite/api/internal/store"
)

// AIArtifacts reports, per artifact type, the state and the artifact shown to
// users. Invalidated rows are kept as history but never displayed.
func (s *Service) AIArtifacts(ctx context.Context, session Session, issueID string) (map[string]any, error) {
	if _, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	rows, err := s.store.ListArtifacts(ctx, issueID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(aicache.AllTypes))
	for _, typ := range aicache.AllTypes {
		out[string(typ)] = artifactView(rowsOfType(rows, typ))
	}
	return out, nil
}

// GenerateArtifact returns the active artifact of typ, generating one when
// none is active or force is set. Preconditions and the per-user rate limit
// are checked before the model is called.
func (s *Service) GenerateArtifact(ctx context.Context, session Session, issueID string, typ aicache.ArtifactType, force bool) (map[string]any, error) {
	issue, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}

	if !force {
		rows, err := s.store.ListArtifacts(ctx, issueID)
		if err != nil {
			return nil, err
		}
		if current, ok := aicache.Current(rowsOfType(rows, typ)); ok {
			view := artifactView([]aicache.Artifact{current})
			view["cached"] = true
			return view, nil
		}
	}

	in := aicache.Input{Description: issue.Description}
	var comments []store.Comment
	if typ == aicache.CommentSummary {
		comments, err = s.store.ListComments(ctx, issueID)
		if err != nil {
			return nil, err
		}
		in.CommentCount = len(comments)
	}
	if err := s.policy.Check(typ, in); err != nil {
		return nil, err
	}
	if err := s.consumeQuota(ctx, session.UserID); err != nil {
		return nil, err
	}

	var content string
	switch typ {
	case aicache.Summary:
		content, err = s.assistant.Summarize(ctx, issue.Description)
	case aicache.Suggestion:
		content, err = s.assistant.Suggest(ctx, issue.Title, issue.Description)
	case aicache.CommentSummary:
		texts := make([]string, 0, len(comments))
		for _, c := range comments {
			texts = append(texts, c.UserName+": "+c.Content)
		}
		content, err = s.assistant.SummarizeComments(ctx, texts)
	}
	if err != nil {
		return nil, s.generationError(issueID, typ, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, domainError(http.StatusBadGateway, "AI_EMPTY_RESPONSE", "The AI service returned an empty response", nil)
	}

	artifact, err := s.store.ReplaceArtifact(ctx, issueID, typ, content)
	if err != nil {
		return nil, err
	}
	s.log.Info("ai artifact generated", "issue_id", issueID, "type", string(typ), "user_id", session.UserID)
	view := artifactView([]aicache.Artifact{artifact})
	view["cached"] = false
	return view, nil
}

// SuggestLabels picks up to three of the project's labels. It is never
// cached; every call reaches the model.
func (s *Service) SuggestLabels(ctx context.Context, session Session, issueID string) ([]map[string]any, error) {
	issue, _, err := s.issueAccess(ctx, issueID, session.UserID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckText(issue.Description); err != nil {
		return nil, err
	}
	labels, err := s.store.ListLabels(ctx, issue.ProjectID)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return []map[string]any{}, nil
	}
	if err := s.consumeQuota(ctx, session.UserID); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(labels))
	byName := make(map[string]store.Label, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
		byName[l.Name] = l
	}
	picked, err := s.assistant.SuggestLabels(ctx, issue.Title, issue.Description, names)
	if err != nil {
		return nil, s.generationError(issueID, "labels", err)
	}
	out := make([]map[string]any, 0, len(picked))
	for _, name := range picked {
		if l, ok := byName[name]; ok {
			out = append(out, labelJSON(l))
		}
	}
	return out, nil
}

// FindDuplicates compares title against the project's most recent issues.
// Only a bounded window is scanned; a failed model call yields no matches.
func (s *Service) FindDuplicates(ctx context.Context, session Session, projectID, title, excludeIssueID string) ([]ai.Duplicate, error) {
	if _, err := s.projectAccess(ctx, projectID, session.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationError("title is required")
	}
	scan := s.cfg.DuplicateScanWindow
	if scan <= 0 {
		scan = aicache.DuplicateScanWindow
	}
	recent, err := s.store.ListRecentIssues(ctx, projectID, scan)
	if err != nil {
		return nil, err
	}
	limit := s.cfg.DuplicateCandidateMax
	if limit <= 0 {
		limit = aicache.DuplicateCandidateMax
	}
	candidates := make([]ai.Candidate, 0, limit)
	for _, it := range recent {
		if it.ID == excludeIssueID {
			continue
		}
		candidates = append(candidates, ai.Candidate{ID: it.ID, Title: it.Title, Description: it.Description})
		if len(candidates) == limit {
			break
		}
	}
	if len(candidates) == 0 {
		return []ai.Duplicate{}, nil
	}
	if err := s.consumeQuota(ctx, session.UserID); err != nil {
		return nil, err
	}
	return s.assistant.FindDuplicates(ctx, title, candidates), nil
}

func (s *Service) consumeQuota(ctx context.Context, userID string) error {
	decision, err := s.limiter.Consume(ctx, userID)
	if err != nil {
		return err
	}
	return decision.Err()
}

func (s *Service) generationError(issueID string, typ aicache.ArtifactType, err error) error {
	s.log.Warn("ai generation failed", "issue_id", issueID, "type", string(typ), "error", err)
	if errors.Is(err, ai.ErrNotConfigured) {
		return domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI features are not configured on this server", nil)
	}
	return domainError(http.StatusBadGateway, "AI_FAILED", "The AI service could not complete the request", nil)
}

func rowsOfType(rows []aicache.Artifact, typ aicache.ArtifactType) []aicache.Artifact {
	out := make([]aicache.Artifact, 0, len(rows))
	for _, r := range rows {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func artifactView(rows []aicache.Artifact) map[string]any {
	view := map[string]any{"state": aicache.StateOf(rows).String(), "artifact": nil}
	if current, ok := aicache.Current(rows); ok {
		view["artifact"] = artifactJSON(current)
	}
	return view
}
