package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"jiralite/api/internal/aicache"
	"jiralite/api/internal/auth"
	"jiralite/api/internal/authpw"
	"jiralite/api/internal/export"
	"jiralite/api/internal/objectstore"
	"jiralite/api/internal/session"
	"jiralite/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func limitError(message string, limit int) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "LIMIT_REACHED", message, map[string]any{"limit": limit})
}

var (
	errForbidden       = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errProjectArchived = domainError(http.StatusConflict, "PROJECT_ARCHIVED", "Project is archived", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var rateErr *aicache.RateLimitError
	if errors.As(err, &rateErr) {
		return http.StatusTooManyRequests, "RATE_LIMITED", rateErr.Error(), map[string]any{
			"retryAfterSeconds": rateErr.RetryAfterSeconds(),
		}
	}
	var preErr *aicache.PreconditionError
	if errors.As(err, &preErr) {
		return http.StatusUnprocessableEntity, "AI_PRECONDITION", preErr.Message, map[string]any{
			"type": string(preErr.Type),
		}
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidToken), errors.Is(err, store.ErrEmailNotVerify):
		return http.StatusBadRequest, "INVALID_TOKEN", "Token is invalid or expired", nil
	case errors.Is(err, store.ErrInvalidStatus):
		return http.StatusUnprocessableEntity, "INVALID_STATUS", "Status does not belong to this project", nil
	case errors.Is(err, store.ErrInvalidInvite):
		return http.StatusGone, "INVITATION_INVALID", "Invitation is invalid or expired", nil
	case errors.Is(err, store.ErrCommentDeleted):
		return http.StatusConflict, "COMMENT_DELETED", "Comment was deleted", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Already exists", nil
	case errors.Is(err, objectstore.ErrExists):
		return http.StatusConflict, "CONFLICT", "Object already exists", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'pdf' or 'html'", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
