package app

import (
	"fmt"
	"net/http"
	"strings"

	"jiralite/api/internal/export"
)

func (s *HTTPServer) handleProject(w http.ResponseWriter, r *http.Request, sess Session, projectID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.service.GetProject(ctx, sess, projectID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, project)
		case http.MethodPut:
			var body ProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.UpdateProject(ctx, sess, projectID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, project)
		case http.MethodDelete:
			if err := s.service.DeleteProject(ctx, sess, projectID); err != nil {
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
	case "archive", "unarchive":
		if r.Method != http.MethodPost || len(rest) != 1 {
			methodNotAllowed(w)
			return
		}
		project, err := s.service.SetArchived(ctx, sess, projectID, rest[0] == "archive")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case "favorite":
		if len(rest) != 1 || (r.Method != http.MethodPut && r.Method != http.MethodDelete) {
			methodNotAllowed(w)
			return
		}
		favorite := r.Method == http.MethodPut
		if err := s.service.SetFavorite(ctx, sess, projectID, favorite); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"isFavorite": favorite})
	case "statuses":
		s.handleProjectStatuses(w, r, sess, projectID, rest[1:])
	case "labels":
		s.handleProjectLabels(w, r, sess, projectID, rest[1:])
	case "issues":
		if len(rest) != 1 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleProjectIssues(w, r, sess, projectID)
	case "board":
		if r.Method != http.MethodGet || len(rest) != 1 {
			methodNotAllowed(w)
			return
		}
		board, err := s.service.Board(ctx, sess, projectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, board)
	case "dashboard":
		if r.Method != http.MethodGet || len(rest) != 1 {
			methodNotAllowed(w)
			return
		}
		dashboard, err := s.service.Dashboard(ctx, sess, projectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dashboard)
	case "export":
		if r.Method != http.MethodPost || len(rest) != 1 {
			methodNotAllowed(w)
			return
		}
		s.handleProjectExport(w, r, sess, projectID)
	case "ai":
		if len(rest) != 2 || rest[1] != "duplicates" || r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		var body struct {
			Title          string `json:"title"`
			ExcludeIssueID string `json:"excludeIssueId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		dupes, err := s.service.FindDuplicates(ctx, sess, projectID, body.Title, body.ExcludeIssueID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"duplicates": dupes})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleProjectStatuses(w http.ResponseWriter, r *http.Request, sess Session, projectID string, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		statuses, err := s.service.ListStatuses(ctx, sess, projectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body StatusInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		status, err := s.service.CreateStatus(ctx, sess, projectID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, status)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body StatusInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		status, err := s.service.UpdateStatus(ctx, sess, projectID, rest[0], body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteStatus(ctx, sess, projectID, rest[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleProjectLabels(w http.ResponseWriter, r *http.Request, sess Session, projectID string, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		labels, err := s.service.ListLabels(ctx, sess, projectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body LabelInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		label, err := s.service.CreateLabel(ctx, sess, projectID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, label)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteLabel(ctx, sess, projectID, rest[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleProjectIssues(w http.ResponseWriter, r *http.Request, sess Session, projectID string) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		issues, err := s.service.ListIssues(r.Context(), sess, projectID, IssueListFilter{
			StatusID:   q.Get("statusId"),
			AssigneeID: q.Get("assigneeId"),
			Priority:   strings.ToUpper(q.Get("priority")),
			Query:      q.Get("q"),
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
	case http.MethodPost:
		var body IssueInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		issue, err := s.service.CreateIssue(r.Context(), sess, projectID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, issue)
	default:
		methodNotAllowed(w)
	}
}

// handleProjectExport writes the rendered report as a download instead of
// the usual JSON envelope.
func (s *HTTPServer) handleProjectExport(w http.ResponseWriter, r *http.Request, sess Session, projectID string) {
	var body struct {
		Format string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	format := export.Format(strings.ToLower(strings.TrimSpace(body.Format)))
	if format == "" {
		format = export.FormatPDF
	}
	result, err := s.service.ExportProject(r.Context(), sess, projectID, format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
