package app

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			profile, err := s.service.Profile(r.Context(), sess.UserID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, profile)
		case http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			profile, err := s.service.UpdateProfile(r.Context(), sess.UserID, body.Name)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, profile)
		default:
			methodNotAllowed(w)
		}
	case len(rest) == 1 && rest[0] == "password" && r.Method == http.MethodPost:
		var body struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ChangePassword(r.Context(), sess.UserID, body.CurrentPassword, body.NewPassword); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case len(rest) == 1 && rest[0] == "avatar":
		switch r.Method {
		case http.MethodPut:
			s.handleAvatarUpload(w, r, sess)
		case http.MethodDelete:
			profile, err := s.service.DeleteAvatar(r.Context(), sess.UserID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, profile)
		default:
			methodNotAllowed(w)
		}
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleAvatarUpload takes the image as the raw request body.
func (s *HTTPServer) handleAvatarUpload(w http.ResponseWriter, r *http.Request, sess Session) {
	contentType := strings.TrimSpace(strings.Split(r.Header.Get("Content-Type"), ";")[0])
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAvatarBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Avatar must be at most 5MB", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read upload", nil)
		return
	}
	profile, err := s.service.UploadAvatar(r.Context(), sess.UserID, contentType, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		unreadOnly := r.URL.Query().Get("unread") == "true"
		payload, err := s.service.ListNotifications(r.Context(), sess.UserID, unreadOnly)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && rest[0] == "read-all" && r.Method == http.MethodPost:
		n, err := s.service.MarkAllNotificationsRead(r.Context(), sess.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": n})
	case len(rest) == 2 && rest[1] == "read" && r.Method == http.MethodPost:
		if err := s.service.MarkNotificationRead(r.Context(), sess.UserID, rest[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleInvitations(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := s.service.MyInvitations(r.Context(), sess)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invitations": items})
	case len(rest) == 2 && rest[1] == "accept" && r.Method == http.MethodPost:
		team, err := s.service.AcceptInvitation(r.Context(), sess, rest[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, team)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, sess Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	resp, err := s.service.Search(
		r.Context(),
		sess,
		q.Get("q"),
		q.Get("type"),
		q.Get("projectId"),
		queryInt(r, "limit", 0),
		queryInt(r, "offset", 0),
	)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
