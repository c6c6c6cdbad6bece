package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"jiralite/api/internal/aicache"
	"jiralite/api/internal/config"
	"jiralite/api/internal/ratelimit"
	"jiralite/api/internal/store"
)

// fakeStore keeps just enough state in memory for the service paths under
// test. Methods it does not override panic through the nil embedded
// interface, which flags an unexpected store call immediately.
type fakeStore struct {
	dataStore

	mu            sync.Mutex
	seq           int
	users         map[string]store.User
	members       map[string]store.TeamMember
	teams         map[string]store.Team
	projects      map[string]store.Project
	issues        map[string]store.Issue
	comments      []store.Comment
	commentTokens map[string]string
	artifacts     []aicache.Artifact
	notifications []store.Notification
	activity      []store.ActivityLog

	pingFn       func(context.Context) error
	countIssueFn func(context.Context, string) (int, error)
	moveIssueFn  func(context.Context, string, string, int, string) (store.Issue, error)
	// createCommentFn runs before the in-memory create; a non-nil error
	// short-circuits it.
	createCommentFn func(context.Context, store.Comment, string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]store.User{},
		members:       map[string]store.TeamMember{},
		teams:         map[string]store.Team{},
		projects:      map[string]store.Project{},
		issues:        map[string]store.Issue{},
		commentTokens: map[string]string{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return store.User{}, store.ErrConflict
		}
	}
	user.ID = f.nextID("user")
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.VerificationToken != "" && u.VerificationToken == token {
			u.IsEmailVerified = true
			u.VerificationToken = ""
			f.users[id] = u
			return nil
		}
	}
	return store.ErrEmailNotVerify
}

func (f *fakeStore) GetMembership(_ context.Context, teamID, userID string) (store.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[teamID+"/"+userID]
	if !ok {
		return store.TeamMember{}, sql.ErrNoRows
	}
	return m, nil
}

func (f *fakeStore) ListTeamsForUser(_ context.Context, userID string) ([]store.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Team
	for _, m := range f.members {
		if m.UserID == userID {
			out = append(out, f.teams[m.TeamID])
		}
	}
	return out, nil
}

func (f *fakeStore) GetProject(_ context.Context, projectID, _ string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetIssue(_ context.Context, issueID string) (store.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.issues[issueID]
	if !ok {
		return store.Issue{}, sql.ErrNoRows
	}
	return it, nil
}

func (f *fakeStore) CountIssues(ctx context.Context, projectID string) (int, error) {
	if f.countIssueFn != nil {
		return f.countIssueFn(ctx, projectID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.issues {
		if it.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateIssue(_ context.Context, it store.Issue, _ []string) (store.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it.ID = f.nextID("issue")
	if it.StatusID == "" {
		it.StatusID = "status-backlog"
	}
	f.issues[it.ID] = it
	return it, nil
}

func (f *fakeStore) ListRecentIssues(_ context.Context, projectID string, limit int) ([]store.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Issue
	for _, it := range f.issues {
		if it.ProjectID == projectID && len(out) < limit {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeStore) MoveIssue(ctx context.Context, issueID, statusID string, position int, actorID string) (store.Issue, error) {
	if f.moveIssueFn != nil {
		return f.moveIssueFn(ctx, issueID, statusID, position, actorID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.issues[issueID]
	it.StatusID = statusID
	it.Position = position
	f.issues[issueID] = it
	return it, nil
}

func (f *fakeStore) GetTeam(_ context.Context, teamID string) (store.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.teams[teamID]
	if !ok {
		return store.Team{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) ListStatuses(_ context.Context, projectID string) ([]store.ProjectStatus, error) {
	return []store.ProjectStatus{
		{ID: "status-backlog", ProjectID: projectID, Name: "Backlog", Color: "#6B7280", Position: 0, IsDefault: true},
		{ID: "status-done", ProjectID: projectID, Name: "Done", Color: "#10B981", Position: 1, IsDefault: true},
	}, nil
}

func (f *fakeStore) ListIssues(_ context.Context, projectID string, _ store.IssueFilter) ([]store.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Issue
	for _, it := range f.issues {
		if it.ProjectID == projectID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListComments(_ context.Context, issueID string) ([]store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Comment
	for _, c := range f.comments {
		if c.IssueID == issueID {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateComment replays by client token and invalidates the comment summary
// only for a fresh insert, as the Postgres store does.
func (f *fakeStore) CreateComment(ctx context.Context, c store.Comment, clientToken string) (store.Comment, error) {
	if f.createCommentFn != nil {
		if err := f.createCommentFn(ctx, c, clientToken); err != nil {
			return store.Comment{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if clientToken != "" {
		if id, ok := f.commentTokens[clientToken]; ok {
			for _, existing := range f.comments {
				if existing.ID == id {
					return existing, nil
				}
			}
		}
	}
	c.ID = f.nextID("comment")
	c.UserName = f.users[c.UserID].Name
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.comments = append(f.comments, c)
	if clientToken != "" {
		f.commentTokens[clientToken] = c.ID
	}
	f.invalidateLocked(c.IssueID, aicache.Invalidates(aicache.CommentCreated))
	return c, nil
}

func (f *fakeStore) invalidateLocked(issueID string, types []aicache.ArtifactType) {
	now := time.Now()
	for i, a := range f.artifacts {
		if a.IssueID != issueID || a.InvalidatedAt != nil {
			continue
		}
		for _, typ := range types {
			if a.Type == typ {
				f.artifacts[i].InvalidatedAt = &now
			}
		}
	}
}

func (f *fakeStore) ListArtifacts(_ context.Context, issueID string) ([]aicache.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []aicache.Artifact
	for _, a := range f.artifacts {
		if a.IssueID == issueID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceArtifact(_ context.Context, issueID string, typ aicache.ArtifactType, content string) (aicache.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidateLocked(issueID, []aicache.ArtifactType{typ})
	a := aicache.Artifact{
		ID:        f.nextID("artifact"),
		IssueID:   issueID,
		Type:      typ,
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.artifacts = append(f.artifacts, a)
	return a, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n store.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) InsertActivity(_ context.Context, entry store.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, entry)
	return nil
}

func (f *fakeStore) addUser(id, name string) store.User {
	u := store.User{ID: id, Name: name, Email: id + "@example.com", IsEmailVerified: true}
	f.users[id] = u
	return u
}

func (f *fakeStore) addMember(teamID, userID, role string) {
	f.members[teamID+"/"+userID] = store.TeamMember{TeamID: teamID, UserID: userID, Role: role, UserName: f.users[userID].Name}
}

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	mu      sync.Mutex
	refresh map[string]string
	revoked map[string]bool
	users   func(string) (store.User, error)
}

func newFakeSessions(users func(string) (store.User, error)) *fakeSessions {
	return &fakeSessions{refresh: map[string]string{}, revoked: map[string]bool{}, users: users}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	userID, ok := f.refresh[tokenHash]
	f.mu.Unlock()
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users(userID)
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeSessions) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeSessions) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

// countingGenerator records every prompt it is asked to complete.
type countingGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
}

func (g *countingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *countingGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeLimiter allows the first limit calls per user and rejects the rest.
type fakeLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
	retry  time.Duration
}

func (l *fakeLimiter) Consume(_ context.Context, userID string) (ratelimit.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[userID]++
	n := l.counts[userID]
	if n > l.limit {
		return ratelimit.Decision{Allowed: false, Count: n, Limit: l.limit, RetryAfter: l.retry}, nil
	}
	return ratelimit.Decision{Allowed: true, Count: n, Limit: l.limit}, nil
}

const (
	testTeamID    = "team-1"
	testProjectID = "project-1"
	testIssueID   = "issue-1"
	ownerID       = "owner"
	memberID      = "member"
	outsiderID    = "outsider"
)

type testWorld struct {
	store    *fakeStore
	sessions *fakeSessions
	gen      *countingGenerator
	svc      *Service
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:            "test-secret",
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           24 * time.Hour,
		AppURL:               "http://localhost:5173",
		AIMinDescriptionLen:  10,
		AIMinCommentsForSumm: 5,
		AIRateLimitPerMinute: 10,
	}
}

// newTestWorld seeds one team with an owner and a member, one project and
// one issue with a long enough description for every artifact type.
func newTestWorld(limiter ratelimit.Limiter) *testWorld {
	fs := newFakeStore()
	fs.addUser(ownerID, "Olivia")
	fs.addUser(memberID, "Mika")
	fs.addUser(outsiderID, "Otto")
	fs.teams[testTeamID] = store.Team{ID: testTeamID, Name: "Core", OwnerID: ownerID}
	fs.addMember(testTeamID, ownerID, "OWNER")
	fs.addMember(testTeamID, memberID, "MEMBER")
	fs.projects[testProjectID] = store.Project{ID: testProjectID, TeamID: testTeamID, Name: "Tracker", OwnerID: ownerID}
	fs.issues[testIssueID] = store.Issue{
		ID:          testIssueID,
		ProjectID:   testProjectID,
		Title:       "Login fails on Safari",
		Description: "Users on Safari 17 see a blank page after submitting the login form.",
		StatusID:    "status-backlog",
		Priority:    "HIGH",
		OwnerID:     ownerID,
	}

	sessions := newFakeSessions(func(id string) (store.User, error) {
		return fs.GetUserByID(context.Background(), id)
	})
	gen := &countingGenerator{reply: "A concise summary."}
	svc := newService(testConfig(), fs, Dependencies{
		Sessions:  sessions,
		Generator: gen,
		Limiter:   limiter,
	})
	return &testWorld{store: fs, sessions: sessions, gen: gen, svc: svc}
}

func (w *testWorld) session(userID string) Session {
	u := w.store.users[userID]
	return Session{UserID: u.ID, UserName: u.Name, Email: u.Email}
}

func (w *testWorld) bearer(userID string) string {
	sess, err := w.svc.CreateSession(context.Background(), userID)
	if err != nil {
		panic(err)
	}
	return "Bearer " + sess.Token
}

func (w *testWorld) addComments(n int) {
	for i := 0; i < n; i++ {
		_, err := w.store.CreateComment(context.Background(), store.Comment{
			IssueID: testIssueID,
			UserID:  memberID,
			Content: fmt.Sprintf("comment %d", i+1),
		}, "")
		if err != nil {
			panic(err)
		}
	}
}

func expectStatus(err error, status int) error {
	got, code, _, _ := mapError(err)
	if got != status {
		return fmt.Errorf("expected status %d, got %d (%s): %v", status, got, code, err)
	}
	return nil
}

var errBoom = errors.New("boom")
