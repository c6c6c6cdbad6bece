package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"jiralite/api/internal/aicache"
)

type fixture struct {
	store    *PostgresStore
	user     User
	project  Project
	statuses []ProjectStatus
}

// openTestStore migrates a clean schema. Skips unless
// JIRALITE_TEST_DATABASE_URL points at a disposable database.
func openTestStore(t *testing.T) fixture {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("JIRALITE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("JIRALITE_TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn, Pool{MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	s := NewPostgresStore(db)
	user, err := s.CreateUser(ctx, User{Email: "Ada@Example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	team, err := s.CreateTeam(ctx, "Core", user.ID)
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	project, err := s.CreateProject(ctx, Project{TeamID: team.ID, Name: "Board", OwnerID: user.ID})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	statuses, err := s.ListStatuses(ctx, project.ID)
	if err != nil {
		t.Fatalf("list statuses: %v", err)
	}
	if len(statuses) != 3 || statuses[0].Name != "Backlog" || statuses[2].Name != "Done" {
		t.Fatalf("expected default statuses, got %+v", statuses)
	}
	return fixture{store: s, user: user, project: project, statuses: statuses}
}

func (f fixture) issue(t *testing.T, title, statusID string) Issue {
	t.Helper()
	it, err := f.store.CreateIssue(context.Background(), Issue{
		ProjectID: f.project.ID, Title: title, StatusID: statusID, Priority: "MEDIUM", OwnerID: f.user.ID,
	}, nil)
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	return it
}

func columnOrder(t *testing.T, s *PostgresStore, projectID, statusID string) ([]string, []int) {
	t.Helper()
	items, err := s.ListIssues(context.Background(), projectID, IssueFilter{StatusID: statusID})
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	titles := make([]string, 0, len(items))
	positions := make([]int, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
		positions = append(positions, it.Position)
	}
	return titles, positions
}

func TestMoveIssueRenumbersBothColumnsAndRecordsHistory(t *testing.T) {
	f := openTestStore(t)
	ctx := context.Background()
	backlog, done := f.statuses[0].ID, f.statuses[2].ID

	a := f.issue(t, "a", backlog)
	f.issue(t, "b", backlog)
	f.issue(t, "c", backlog)
	f.issue(t, "x", done)

	moved, err := f.store.MoveIssue(ctx, a.ID, done, 0, f.user.ID)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.StatusID != done || moved.Position != 0 {
		t.Fatalf("unexpected moved issue %+v", moved)
	}

	titles, positions := columnOrder(t, f.store, f.project.ID, done)
	if strings.Join(titles, ",") != "a,x" || positions[0] != 0 || positions[1] != 1 {
		t.Fatalf("done column: %v %v", titles, positions)
	}
	titles, positions = columnOrder(t, f.store, f.project.ID, backlog)
	if strings.Join(titles, ",") != "b,c" || positions[0] != 0 || positions[1] != 1 {
		t.Fatalf("backlog column: %v %v", titles, positions)
	}

	history, err := f.store.ListHistory(ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Field != "status" || *history[0].OldValue != "Backlog" || *history[0].NewValue != "Done" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestMoveIssueRejectsForeignStatus(t *testing.T) {
	f := openTestStore(t)
	ctx := context.Background()
	it := f.issue(t, "a", "")
	other, err := f.store.CreateProject(ctx, Project{TeamID: f.project.TeamID, Name: "Other", OwnerID: f.user.ID})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	statuses, _ := f.store.ListStatuses(ctx, other.ID)
	if _, err := f.store.MoveIssue(ctx, it.ID, statuses[1].ID, 0, f.user.ID); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestReplaceArtifactKeepsOneActive(t *testing.T) {
	f := openTestStore(t)
	ctx := context.Background()
	it := f.issue(t, "a", "")

	for _, content := range []string{"first", "second"} {
		if _, err := f.store.ReplaceArtifact(ctx, it.ID, aicache.Summary, content); err != nil {
			t.Fatalf("replace: %v", err)
		}
	}
	rows, err := f.store.ListArtifacts(ctx, it.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	current, ok := aicache.Current(rows)
	if len(rows) != 2 || !ok || current.Content != "second" {
		t.Fatalf("expected one active of two rows, got %+v", rows)
	}

	desc := "a much longer description"
	if _, changed, err := f.store.UpdateIssue(ctx, it.ID, IssuePatch{Description: &desc}, f.user.ID); err != nil || !changed {
		t.Fatalf("update: changed=%v err=%v", changed, err)
	}
	rows, _ = f.store.ListArtifacts(ctx, it.ID)
	if aicache.StateOf(rows) != aicache.Invalidated {
		t.Fatalf("description change should invalidate the summary")
	}
}

func TestConcurrentReplaceArtifactLeavesOneActive(t *testing.T) {
	f := openTestStore(t)
	ctx := context.Background()
	it := f.issue(t, "a", "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.store.ReplaceArtifact(ctx, it.ID, aicache.Suggestion, "take "+string(rune('a'+i))); err != nil {
				t.Errorf("replace: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := f.store.ListArtifacts(ctx, it.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	active := 0
	for _, r := range rows {
		if r.IsActive() {
			active++
		}
	}
	if len(rows) != 8 || active != 1 {
		t.Fatalf("expected 8 rows with exactly one active, got %d rows, %d active", len(rows), active)
	}
}

func TestCreateCommentInvalidatesCommentSummaryOnce(t *testing.T) {
	f := openTestStore(t)
	ctx := context.Background()
	it := f.issue(t, "a", "")

	first, err := f.store.CreateComment(ctx, Comment{IssueID: it.ID, UserID: f.user.ID, Content: "hi"}, "tmp_1")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := f.store.ReplaceArtifact(ctx, it.ID, aicache.CommentSummary, "summary"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	replay, err := f.store.CreateComment(ctx, Comment{IssueID: it.ID, UserID: f.user.ID, Content: "hi"}, "tmp_1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("replayed token should return the original comment")
	}
	rows, _ := f.store.ListArtifacts(ctx, it.ID)
	if aicache.StateOf(rows) != aicache.Active {
		t.Fatalf("a replay must not invalidate anything")
	}

	if _, err := f.store.CreateComment(ctx, Comment{IssueID: it.ID, UserID: f.user.ID, Content: "LGTM"}, ""); err != nil {
		t.Fatalf("comment: %v", err)
	}
	rows, _ = f.store.ListArtifacts(ctx, it.ID)
	if aicache.StateOf(rows) != aicache.Invalidated {
		t.Fatalf("new comment should invalidate the comment summary")
	}
}

func TestReplayOfDeletedCommentIsConflict(t *testing.T) {
	f := openTestStore(t)
	ctx := context.Background()
	it := f.issue(t, "a", "")

	c, err := f.store.CreateComment(ctx, Comment{IssueID: it.ID, UserID: f.user.ID, Content: "hi"}, "tmp_9")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if err := f.store.SoftDeleteComment(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = f.store.CreateComment(ctx, Comment{IssueID: it.ID, UserID: f.user.ID, Content: "hi"}, "tmp_9")
	if !errors.Is(err, ErrCommentDeleted) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrCommentDeleted, got %v", err)
	}
}

func TestConsumeAIQuotaIsAtomic(t *testing.T) {
	f := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, ok, err := f.store.ConsumeAIQuota(ctx, f.user.ID, 10, time.Minute, now)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("expected 10 allowed, got %d", allowed)
	}

	count, start, ok, err := f.store.ConsumeAIQuota(ctx, f.user.ID, 10, time.Minute, now.Add(61*time.Second))
	if err != nil || !ok || count != 1 || start.Before(now.Add(60*time.Second)) {
		t.Fatalf("expected a fresh window, got count=%d start=%s ok=%v err=%v", count, start, ok, err)
	}
}
