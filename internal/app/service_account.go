package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"jiralite/api/internal/authpw"
	"jiralite/api/internal/store"
)

const (
	maxAvatarBytes     = 5 << 20
	maxNotifications   = 50
	avatarPathPrefix   = "avatars/"
	invitationAcceptUI = "/invitations"
)

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SignUpResult carries the dev verification token when no mailer is set up.
type SignUpResult struct {
	UserID            string
	VerificationToken string
	EmailSent         bool
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (SignUpResult, error) {
	resp, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return SignUpResult{}, err
	}
	result := SignUpResult{UserID: resp.UserID, VerificationToken: resp.VerificationToken}
	if s.mailer.IsConfigured() {
		link := s.cfg.AppURL + "/verify-email?token=" + url.QueryEscape(resp.VerificationToken)
		if err := s.mailer.SendVerificationEmail(strings.ToLower(strings.TrimSpace(req.Email)), req.Name, link); err != nil {
			s.log.Warn("send verification email failed", "user_id", resp.UserID, "error", err)
		} else {
			result.EmailSent = true
		}
	}
	return result, nil
}

func (s *Service) ResendVerification(ctx context.Context, emailAddr string) (string, error) {
	token, err := s.auth.ResendVerification(ctx, emailAddr)
	if err != nil || token == "" {
		return "", err
	}
	if s.mailer.IsConfigured() {
		link := s.cfg.AppURL + "/verify-email?token=" + url.QueryEscape(token)
		if err := s.mailer.SendVerificationEmail(strings.TrimSpace(emailAddr), "", link); err != nil {
			s.log.Warn("resend verification email failed", "error", err)
		}
	}
	return token, nil
}

// SignIn returns a session, or an EMAIL_NOT_VERIFIED error once the password
// matched an unverified account.
func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	resp, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Session{}, err
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
	}
	return s.issueSession(ctx, resp.User)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	return s.auth.VerifyEmail(ctx, token)
}

func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (string, error) {
	token, err := s.auth.RequestPasswordReset(ctx, emailAddr)
	if err != nil || token == "" {
		return "", err
	}
	if s.mailer.IsConfigured() {
		link := s.cfg.AppURL + "/reset-password?token=" + url.QueryEscape(token)
		if err := s.mailer.SendPasswordResetEmail(strings.TrimSpace(emailAddr), "", link); err != nil {
			s.log.Warn("send reset email failed", "error", err)
		}
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	return s.auth.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: password})
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	return s.auth.ChangePassword(ctx, userID, current, next)
}

func (s *Service) Profile(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userJSON(user), nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > authpw.MaxNameLength {
		return nil, validationError(fmt.Sprintf("name must be 1-%d characters", authpw.MaxNameLength))
	}
	if err := s.store.UpdateUserName(ctx, userID, name); err != nil {
		return nil, err
	}
	return s.Profile(ctx, userID)
}

// UploadAvatar stores the image under a fresh path and points the profile at
// it. The previous object is removed afterwards; a failed removal only logs.
func (s *Service) UploadAvatar(ctx context.Context, userID, contentType string, data []byte) (map[string]any, error) {
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return nil, validationError("avatar must be a png, jpeg, gif, or webp image")
	}
	if len(data) == 0 || len(data) > maxAvatarBytes {
		return nil, validationError("avatar must be between 1 byte and 5 MB")
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s%s/%d%s", avatarPathPrefix, userID, s.now().UnixNano(), ext)
	if err := s.objects.Upload(ctx, path, data, contentType, true); err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	publicURL := s.objects.PublicURL(path)
	if err := s.store.UpdateUserAvatar(ctx, userID, &publicURL); err != nil {
		return nil, err
	}
	s.removeAvatar(ctx, user.ProfileImage)
	return s.Profile(ctx, userID)
}

func (s *Service) DeleteAvatar(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateUserAvatar(ctx, userID, nil); err != nil {
		return nil, err
	}
	s.removeAvatar(ctx, user.ProfileImage)
	return s.Profile(ctx, userID)
}

func (s *Service) removeAvatar(ctx context.Context, publicURL *string) {
	if publicURL == nil {
		return
	}
	base := s.objects.PublicURL("")
	if !strings.HasPrefix(*publicURL, base) {
		return
	}
	path := strings.TrimPrefix(*publicURL, base)
	if !strings.HasPrefix(path, avatarPathPrefix) {
		return
	}
	if err := s.objects.Remove(ctx, path); err != nil {
		s.log.Warn("remove old avatar failed", "path", path, "error", err)
	}
}

func (s *Service) ListNotifications(ctx context.Context, userID string, unreadOnly bool) (map[string]any, error) {
	items, err := s.store.ListNotifications(ctx, userID, unreadOnly, maxNotifications)
	if err != nil {
		return nil, err
	}
	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	return map[string]any{
		"notifications": mapList(items, notificationJSON),
		"unreadCount":   unread,
	}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, userID, notificationID)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

func notificationLink(path string) *string {
	return &path
}

func issueLink(it store.Issue) *string {
	return notificationLink("/projects/" + it.ProjectID + "/issues/" + it.ID)
}
