package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"jiralite/api/internal/ai"
	"jiralite/api/internal/aicache"
	"jiralite/api/internal/auth"
	"jiralite/api/internal/authpw"
	"jiralite/api/internal/config"
	"jiralite/api/internal/email"
	"jiralite/api/internal/logger"
	"jiralite/api/internal/objectstore"
	"jiralite/api/internal/ratelimit"
	"jiralite/api/internal/rbac"
	"jiralite/api/internal/search"
	"jiralite/api/internal/store"
	"jiralite/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	authpw.UserStore
	Ping(ctx context.Context) error
	UpdateUserName(ctx context.Context, userID, name string) error
	UpdateUserAvatar(ctx context.Context, userID string, url *string) error

	CreateTeam(ctx context.Context, name, ownerID string) (store.Team, error)
	ListTeamsForUser(ctx context.Context, userID string) ([]store.Team, error)
	GetTeam(ctx context.Context, teamID string) (store.Team, error)
	RenameTeam(ctx context.Context, teamID, name string) error
	SoftDeleteTeam(ctx context.Context, teamID string) error
	GetMembership(ctx context.Context, teamID, userID string) (store.TeamMember, error)
	ListMembers(ctx context.Context, teamID string) ([]store.TeamMember, error)
	UpdateMemberRole(ctx context.Context, teamID, userID, role string) error
	RemoveMember(ctx context.Context, teamID, userID string) error
	CreateInvitation(ctx context.Context, teamID, email, invitedBy string, expiresAt time.Time) (store.TeamInvitation, error)
	ListInvitationsForEmail(ctx context.Context, email string) ([]store.TeamInvitation, error)
	AcceptInvitation(ctx context.Context, invitationID string, user store.User) (string, error)
	InsertActivity(ctx context.Context, entry store.ActivityLog) error
	ListActivity(ctx context.Context, teamID string, limit, offset int) ([]store.ActivityLog, error)

	CountProjects(ctx context.Context, teamID string) (int, error)
	CreateProject(ctx context.Context, p store.Project) (store.Project, error)
	ListProjects(ctx context.Context, teamID, userID string, includeArchived bool) ([]store.Project, error)
	GetProject(ctx context.Context, projectID, userID string) (store.Project, error)
	UpdateProject(ctx context.Context, projectID, name, description string) error
	SetProjectArchived(ctx context.Context, projectID string, archived bool) error
	SoftDeleteProject(ctx context.Context, projectID string) error
	SetFavorite(ctx context.Context, projectID, userID string, favorite bool) error
	ListStatuses(ctx context.Context, projectID string) ([]store.ProjectStatus, error)
	CreateStatus(ctx context.Context, st store.ProjectStatus) (store.ProjectStatus, error)
	UpdateStatus(ctx context.Context, st store.ProjectStatus) error
	DeleteStatus(ctx context.Context, projectID, statusID string) error
	CountCustomStatuses(ctx context.Context, projectID string) (int, error)
	ListLabels(ctx context.Context, projectID string) ([]store.Label, error)
	CountLabels(ctx context.Context, projectID string) (int, error)
	CreateLabel(ctx context.Context, l store.Label) (store.Label, error)
	DeleteLabel(ctx context.Context, projectID, labelID string) error
	ProjectStats(ctx context.Context, projectID string) (store.ProjectStats, error)

	CountIssues(ctx context.Context, projectID string) (int, error)
	CreateIssue(ctx context.Context, it store.Issue, labelIDs []string) (store.Issue, error)
	GetIssue(ctx context.Context, issueID string) (store.Issue, error)
	ListIssues(ctx context.Context, projectID string, f store.IssueFilter) ([]store.Issue, error)
	ListRecentIssues(ctx context.Context, projectID string, limit int) ([]store.Issue, error)
	SetIssueLabels(ctx context.Context, issueID string, labelIDs []string) error
	UpdateIssue(ctx context.Context, issueID string, patch store.IssuePatch, actorID string) (store.Issue, bool, error)
	SoftDeleteIssue(ctx context.Context, issueID string) error
	MoveIssue(ctx context.Context, issueID, statusID string, position int, actorID string) (store.Issue, error)
	ListHistory(ctx context.Context, issueID string) ([]store.HistoryEntry, error)

	ListSubtasks(ctx context.Context, issueID string) ([]store.Subtask, error)
	CountSubtasks(ctx context.Context, issueID string) (int, error)
	CreateSubtask(ctx context.Context, st store.Subtask, clientToken string) (store.Subtask, error)
	UpdateSubtask(ctx context.Context, st store.Subtask) error
	DeleteSubtask(ctx context.Context, issueID, subtaskID string) error

	ListComments(ctx context.Context, issueID string) ([]store.Comment, error)
	CountComments(ctx context.Context, issueID string) (int, error)
	GetComment(ctx context.Context, commentID string) (store.Comment, error)
	CreateComment(ctx context.Context, c store.Comment, clientToken string) (store.Comment, error)
	UpdateComment(ctx context.Context, commentID, content string) (store.Comment, error)
	SoftDeleteComment(ctx context.Context, commentID string) error

	ListArtifacts(ctx context.Context, issueID string) ([]aicache.Artifact, error)
	ReplaceArtifact(ctx context.Context, issueID string, typ aicache.ArtifactType, content string) (aicache.Artifact, error)

	CreateNotification(ctx context.Context, n store.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// SessionStore keeps refresh sessions and the access-token denylist. Both the
// Postgres store and the Redis session store implement it.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type Mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendInvitationEmail(to, inviterName, teamName, acceptURL string) error
}

// Indexer is the part of the search service the write paths use.
type Indexer interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexIssue(rec search.IssueRecord)
	IndexProject(rec search.ProjectRecord)
	DeleteIssue(id string)
	DeleteProject(id string)
}

// Dependencies are the optional collaborators. Nil fields get a working
// local default so the API runs with only Postgres.
type Dependencies struct {
	Sessions  SessionStore
	Mailer    Mailer
	Search    Indexer
	Objects   objectstore.Store
	Generator ai.Generator
	Limiter   ratelimit.Limiter
	Log       *logger.Logger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  SessionStore
	auth      *authpw.Service
	mailer    Mailer
	search    Indexer
	objects   objectstore.Store
	assistant *ai.Assistant
	limiter   ratelimit.Limiter
	policy    aicache.Policy
	log       *logger.Logger
	now       func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Dependencies) *Service {
	return newService(cfg, dataStore, deps)
}

func newService(cfg config.Config, data dataStore, deps Dependencies) *Service {
	s := &Service{
		cfg:      cfg,
		store:    data,
		sessions: deps.Sessions,
		auth:     authpw.NewService(data),
		mailer:   deps.Mailer,
		search:   deps.Search,
		objects:  deps.Objects,
		limiter:  deps.Limiter,
		log:      deps.Log,
		now:      time.Now,
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.sessions == nil {
		if ss, ok := data.(SessionStore); ok {
			s.sessions = ss
		}
	}
	if s.mailer == nil {
		s.mailer = email.NewService(email.Config{})
	}
	if s.search == nil {
		s.search = search.NewService(nil, nil, s.log)
	}
	if s.objects == nil {
		s.objects = objectstore.NewMemory(cfg.AppURL + "/avatars")
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Unlimited{}
	}
	gen := deps.Generator
	if gen == nil {
		gen = ai.Disabled{}
	}
	s.assistant = ai.NewAssistant(gen, cfg.DuplicateCandidateMax)
	s.policy = PolicyFromConfig(cfg)
	return s
}

// PolicyFromConfig overlays the configured AI thresholds on the defaults.
// Zero or negative settings keep the default, so the limiter ceiling built
// from it is always positive.
func PolicyFromConfig(cfg config.Config) aicache.Policy {
	p := aicache.DefaultPolicy()
	if cfg.AIMinDescriptionLen > 0 {
		p.MinDescriptionLength = cfg.AIMinDescriptionLen
	}
	if cfg.AIMinCommentsForSumm > 0 {
		p.MinCommentsForSummary = cfg.AIMinCommentsForSumm
	}
	if cfg.AIRateLimitPerMinute > 0 {
		p.RateLimitPerMinute = cfg.AIRateLimitPerMinute
	}
	return p
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Policy() aicache.Policy {
	return s.policy
}

func (s *Service) EmailConfigured() bool {
	return s.mailer.IsConfigured()
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.Name,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken("rft", 32)
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.log.Warn("revoke access token failed", "error", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Warn("revoke refresh session failed", "error", err)
		}
	}
	return nil
}

// requireMember loads the caller's membership and checks the role allows
// action. Non-members get a 404 so team ids cannot be probed.
func (s *Service) requireMember(ctx context.Context, teamID, userID string, action rbac.Action) (store.TeamMember, error) {
	member, err := s.store.GetMembership(ctx, teamID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TeamMember{}, notFound("Team not found")
	}
	if err != nil {
		return store.TeamMember{}, err
	}
	role, _ := rbac.Parse(member.Role)
	if !rbac.Can(role, action) {
		return store.TeamMember{}, errForbidden
	}
	return member, nil
}

// projectAccess checks membership in the project's team. Writes to an
// archived project are rejected.
func (s *Service) projectAccess(ctx context.Context, projectID, userID string, action rbac.Action) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Project{}, notFound("Project not found")
	}
	if err != nil {
		return store.Project{}, err
	}
	if _, err := s.requireMember(ctx, project.TeamID, userID, action); err != nil {
		return store.Project{}, err
	}
	if action != rbac.ActionRead && project.IsArchived {
		return store.Project{}, errProjectArchived
	}
	return project, nil
}

func (s *Service) issueAccess(ctx context.Context, issueID, userID string, action rbac.Action) (store.Issue, store.Project, error) {
	issue, err := s.store.GetIssue(ctx, issueID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Issue{}, store.Project{}, notFound("Issue not found")
	}
	if err != nil {
		return store.Issue{}, store.Project{}, err
	}
	project, err := s.projectAccess(ctx, issue.ProjectID, userID, action)
	if err != nil {
		return store.Issue{}, store.Project{}, err
	}
	return issue, project, nil
}

func (s *Service) teamIDsFor(ctx context.Context, userID string) ([]string, error) {
	teams, err := s.store.ListTeamsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(teams))
	for _, t := range teams {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// notify stores an in-app notification. Failures are logged, never returned.
func (s *Service) notify(ctx context.Context, n store.Notification) {
	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.log.Warn("create notification failed", "type", n.Type, "user_id", n.UserID, "error", err)
	}
}

func (s *Service) activity(ctx context.Context, entry store.ActivityLog) {
	if err := s.store.InsertActivity(ctx, entry); err != nil {
		s.log.Warn("insert activity failed", "action", entry.Action, "team_id", entry.TeamID, "error", err)
	}
}
