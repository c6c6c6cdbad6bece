package app

import (
	"net/http"

	"jiralite/api/internal/aicache"
)

func (s *HTTPServer) handleIssue(w http.ResponseWriter, r *http.Request, sess Session, issueID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			issue, err := s.service.GetIssue(ctx, sess, issueID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, issue)
		case http.MethodPut:
			var body IssueUpdate
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			issue, err := s.service.UpdateIssue(ctx, sess, issueID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, issue)
		case http.MethodDelete:
			if err := s.service.DeleteIssue(ctx, sess, issueID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			methodNotAllowed(w)
		}
		return
	}

	switch rest[0] {
	case "move":
		if r.Method != http.MethodPost || len(rest) != 1 {
			methodNotAllowed(w)
			return
		}
		var body struct {
			StatusID string `json:"statusId"`
			Position int    `json:"position"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		issue, err := s.service.MoveIssue(ctx, sess, issueID, body.StatusID, body.Position)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, issue)
	case "history":
		if r.Method != http.MethodGet || len(rest) != 1 {
			methodNotAllowed(w)
			return
		}
		entries, err := s.service.IssueHistory(ctx, sess, issueID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": entries})
	case "labels":
		if r.Method != http.MethodPut || len(rest) != 1 {
			methodNotAllowed(w)
			return
		}
		var body struct {
			LabelIDs []string `json:"labelIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		issue, err := s.service.SetIssueLabels(ctx, sess, issueID, body.LabelIDs)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, issue)
	case "subtasks":
		s.handleIssueSubtasks(w, r, sess, issueID, rest[1:])
	case "comments":
		if len(rest) != 1 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleIssueComments(w, r, sess, issueID)
	case "ai":
		s.handleIssueAI(w, r, sess, issueID, rest[1:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleIssueSubtasks(w http.ResponseWriter, r *http.Request, sess Session, issueID string, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := s.service.ListSubtasks(ctx, sess, issueID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"subtasks": items})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body SubtaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateSubtask(ctx, sess, issueID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body SubtaskUpdate
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.UpdateSubtask(ctx, sess, issueID, rest[0], body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteSubtask(ctx, sess, issueID, rest[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleIssueComments(w http.ResponseWriter, r *http.Request, sess Session, issueID string) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.service.ListComments(r.Context(), sess, issueID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": items})
	case http.MethodPost:
		var body CommentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateComment(r.Context(), sess, issueID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleComment(w http.ResponseWriter, r *http.Request, sess Session, commentID string) {
	switch r.Method {
	case http.MethodPut:
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.UpdateComment(r.Context(), sess, commentID, body.Content)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		if err := s.service.DeleteComment(r.Context(), sess, commentID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleIssueAI(w http.ResponseWriter, r *http.Request, sess Session, issueID string, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		artifacts, err := s.service.AIArtifacts(ctx, sess, issueID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, artifacts)
	case len(rest) == 1 && rest[0] == "labels" && r.Method == http.MethodPost:
		labels, err := s.service.SuggestLabels(ctx, sess, issueID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
	case len(rest) == 1 && r.Method == http.MethodPost:
		typ, err := aicache.ParseType(rest[0])
		if err != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Unknown AI artifact type", nil)
			return
		}
		var body struct {
			Force bool `json:"force"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.GenerateArtifact(ctx, sess, issueID, typ, body.Force)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}
