package app

import (
	"net/http"
)

func (s *HTTPServer) handleTeams(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			teams, err := s.service.ListTeams(ctx, sess)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			team, err := s.service.CreateTeam(ctx, sess, body.Name)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, team)
		default:
			methodNotAllowed(w)
		}
		return
	}

	teamID := rest[0]
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			team, err := s.service.GetTeam(ctx, sess, teamID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, team)
		case http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			team, err := s.service.RenameTeam(ctx, sess, teamID, body.Name)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, team)
		case http.MethodDelete:
			if err := s.service.DeleteTeam(ctx, sess, teamID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			methodNotAllowed(w)
		}
		return
	}

	switch rest[1] {
	case "members":
		s.handleTeamMembers(w, r, sess, teamID, rest[2:])
	case "leave":
		if r.Method != http.MethodPost || len(rest) != 2 {
			methodNotAllowed(w)
			return
		}
		if err := s.service.LeaveTeam(ctx, sess, teamID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "invitations":
		if r.Method != http.MethodPost || len(rest) != 2 {
			methodNotAllowed(w)
			return
		}
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		inv, err := s.service.Invite(ctx, sess, teamID, body.Email)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, inv)
	case "activity":
		if r.Method != http.MethodGet || len(rest) != 2 {
			methodNotAllowed(w)
			return
		}
		items, err := s.service.ListActivity(ctx, sess, teamID, queryInt(r, "offset", 0))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": items})
	case "projects":
		if len(rest) != 2 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.handleTeamProjects(w, r, sess, teamID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTeamMembers(w http.ResponseWriter, r *http.Request, sess Session, teamID string, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		members, err := s.service.ListMembers(ctx, sess, teamID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ChangeMemberRole(ctx, sess, teamID, rest[0], body.Role); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.KickMember(ctx, sess, teamID, rest[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTeamProjects(w http.ResponseWriter, r *http.Request, sess Session, teamID string) {
	switch r.Method {
	case http.MethodGet:
		includeArchived := r.URL.Query().Get("includeArchived") == "true"
		projects, err := s.service.ListProjects(r.Context(), sess, teamID, includeArchived)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		var body ProjectInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		project, err := s.service.CreateProject(r.Context(), sess, teamID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, project)
	default:
		methodNotAllowed(w)
	}
}
