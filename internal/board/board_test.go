package board

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"jiralite/api/internal/notify"
)

type fakeRemote struct {
	moves   []Location
	moveFn  func(ctx context.Context, issueID, statusID string, position int) error
	loadFn  func(ctx context.Context) (Snapshot, error)
	loadHit int
}

func (f *fakeRemote) MoveIssue(ctx context.Context, issueID, statusID string, position int) error {
	f.moves = append(f.moves, Location{StatusID: statusID, Index: position})
	if f.moveFn != nil {
		return f.moveFn(ctx, issueID, statusID, position)
	}
	return nil
}

func (f *fakeRemote) LoadBoard(ctx context.Context) (Snapshot, error) {
	f.loadHit++
	if f.loadFn != nil {
		return f.loadFn(ctx)
	}
	return Snapshot{}, errors.New("no snapshot")
}

func intPtr(v int) *int { return &v }

func sampleSnapshot() Snapshot {
	return Snapshot{
		Statuses: []Status{
			{ID: "backlog", Name: "Backlog", Position: 0},
			{ID: "progress", Name: "In Progress", Position: 1, WIPLimit: intPtr(1)},
			{ID: "done", Name: "Done", Position: 2},
		},
		Cards: []Card{
			{ID: "i1", StatusID: "backlog", Position: 0},
			{ID: "i2", StatusID: "backlog", Position: 1},
			{ID: "i3", StatusID: "backlog", Position: 2},
			{ID: "i4", StatusID: "done", Position: 0},
			{ID: "i5", StatusID: "done", Position: 1},
		},
	}
}

func columnIDs(b *Board, statusID string) []string {
	for _, col := range b.Columns() {
		if col.Status.ID != statusID {
			continue
		}
		ids := make([]string, 0, len(col.Cards))
		for _, c := range col.Cards {
			ids = append(ids, c.ID)
		}
		return ids
	}
	return nil
}

func positions(b *Board, statusID string) []int {
	for _, col := range b.Columns() {
		if col.Status.ID != statusID {
			continue
		}
		out := make([]int, 0, len(col.Cards))
		for _, c := range col.Cards {
			out = append(out, c.Position)
		}
		return out
	}
	return nil
}

func TestDropWithoutDestinationIsNoop(t *testing.T) {
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), nil)
	before := b.Cards()
	if err := b.Drop(context.Background(), "i1", Location{StatusID: "backlog", Index: 0}, nil); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if len(remote.moves) != 0 {
		t.Fatalf("expected no remote call, got %v", remote.moves)
	}
	if diff := cmp.Diff(before, b.Cards()); diff != "" {
		t.Fatalf("board changed (-want +got):\n%s", diff)
	}
}

func TestDropOntoSameSlotIsNoop(t *testing.T) {
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), nil)
	before := b.Cards()
	loc := Location{StatusID: "backlog", Index: 1}
	if err := b.Drop(context.Background(), "i2", loc, &loc); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if len(remote.moves) != 0 || remote.loadHit != 0 {
		t.Fatalf("expected no remote traffic, got moves=%v loads=%d", remote.moves, remote.loadHit)
	}
	if diff := cmp.Diff(before, b.Cards()); diff != "" {
		t.Fatalf("board changed (-want +got):\n%s", diff)
	}
}

func TestDropPastOwnColumnEndWhenAlreadyLastIsNoop(t *testing.T) {
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), nil)
	before := b.Cards()
	err := b.Drop(context.Background(), "i3", Location{StatusID: "backlog", Index: 2}, &Location{StatusID: "backlog", Index: 99})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if len(remote.moves) != 0 || remote.loadHit != 0 {
		t.Fatalf("expected no remote traffic, got moves=%v loads=%d", remote.moves, remote.loadHit)
	}
	if diff := cmp.Diff(before, b.Cards()); diff != "" {
		t.Fatalf("board changed (-want +got):\n%s", diff)
	}
}

func TestDropReadsSourceFromBoard(t *testing.T) {
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), nil)

	// from carries no status but the card already sits at backlog/1.
	err := b.Drop(context.Background(), "i2", Location{}, &Location{StatusID: "backlog", Index: 1})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if len(remote.moves) != 0 {
		t.Fatalf("expected no move for unchanged slot, got %v", remote.moves)
	}

	err = b.Drop(context.Background(), "i2", Location{}, &Location{StatusID: "done", Index: 0})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if diff := cmp.Diff([]string{"i1", "i3"}, columnIDs(b, "backlog")); diff != "" {
		t.Fatalf("source column (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1}, positions(b, "backlog")); diff != "" {
		t.Fatalf("source positions (-want +got):\n%s", diff)
	}
}

func TestDropOnArchivedBoardIsNoop(t *testing.T) {
	snap := sampleSnapshot()
	snap.Archived = true
	remote := &fakeRemote{}
	b := New(remote, snap, nil)
	err := b.Drop(context.Background(), "i1", Location{StatusID: "backlog"}, &Location{StatusID: "done"})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if len(remote.moves) != 0 {
		t.Fatalf("archived board must not move cards")
	}
}

func TestCrossColumnDropRenumbersBothColumns(t *testing.T) {
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), nil)
	err := b.Drop(context.Background(), "i2", Location{StatusID: "backlog", Index: 1}, &Location{StatusID: "done", Index: 1})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if diff := cmp.Diff([]string{"i4", "i2", "i5"}, columnIDs(b, "done")); diff != "" {
		t.Fatalf("done column (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, positions(b, "done")); diff != "" {
		t.Fatalf("done positions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"i1", "i3"}, columnIDs(b, "backlog")); diff != "" {
		t.Fatalf("backlog column (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1}, positions(b, "backlog")); diff != "" {
		t.Fatalf("backlog positions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Location{{StatusID: "done", Index: 1}}, remote.moves); diff != "" {
		t.Fatalf("expected exactly one move (-want +got):\n%s", diff)
	}
}

func TestSameColumnReorder(t *testing.T) {
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), nil)
	err := b.Drop(context.Background(), "i1", Location{StatusID: "backlog", Index: 0}, &Location{StatusID: "backlog", Index: 2})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if diff := cmp.Diff([]string{"i2", "i3", "i1"}, columnIDs(b, "backlog")); diff != "" {
		t.Fatalf("backlog column (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, positions(b, "backlog")); diff != "" {
		t.Fatalf("backlog positions (-want +got):\n%s", diff)
	}
}

func TestDropClampsIndexPastColumnEnd(t *testing.T) {
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), nil)
	err := b.Drop(context.Background(), "i1", Location{StatusID: "backlog"}, &Location{StatusID: "progress", Index: 9})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if diff := cmp.Diff([]Location{{StatusID: "progress", Index: 0}}, remote.moves); diff != "" {
		t.Fatalf("unexpected move (-want +got):\n%s", diff)
	}
}

func TestFailedMoveRestoresPreDragBoard(t *testing.T) {
	rec := &notify.Recorder{}
	remote := &fakeRemote{
		moveFn: func(context.Context, string, string, int) error { return errors.New("server rejected move") },
	}
	b := New(remote, sampleSnapshot(), rec)
	before := b.Cards()

	err := b.Drop(context.Background(), "i1", Location{StatusID: "backlog", Index: 0}, &Location{StatusID: "done", Index: 0})
	if err == nil {
		t.Fatalf("expected error")
	}
	if diff := cmp.Diff(before, b.Cards()); diff != "" {
		t.Fatalf("board not restored (-want +got):\n%s", diff)
	}
	ids := columnIDs(b, "backlog")
	if len(ids) == 0 || ids[0] != "i1" {
		t.Fatalf("expected i1 back at backlog index 0, got %v", ids)
	}
	if rec.Count(notify.LevelError) != 1 {
		t.Fatalf("expected exactly one error signal, got %+v", rec.Signals())
	}
	if remote.loadHit != 0 {
		t.Fatalf("failed move must not re-sync")
	}
}

func TestSuccessfulMoveResyncs(t *testing.T) {
	server := sampleSnapshot()
	server.Cards[0] = Card{ID: "i1", StatusID: "done", Position: 2, Title: "from server"}
	remote := &fakeRemote{loadFn: func(context.Context) (Snapshot, error) { return server, nil }}
	b := New(remote, sampleSnapshot(), nil)

	err := b.Drop(context.Background(), "i1", Location{StatusID: "backlog"}, &Location{StatusID: "done", Index: 2})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if remote.loadHit != 1 {
		t.Fatalf("expected one re-sync, got %d", remote.loadHit)
	}
	if diff := cmp.Diff(server.Cards, b.Cards()); diff != "" {
		t.Fatalf("board not re-synced (-want +got):\n%s", diff)
	}
}

func TestResyncFailureKeepsOptimisticState(t *testing.T) {
	rec := &notify.Recorder{}
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), rec)
	err := b.Drop(context.Background(), "i3", Location{StatusID: "backlog", Index: 2}, &Location{StatusID: "done", Index: 0})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if diff := cmp.Diff([]string{"i3", "i4", "i5"}, columnIDs(b, "done")); diff != "" {
		t.Fatalf("done column (-want +got):\n%s", diff)
	}
	if rec.Count(notify.LevelError) != 0 {
		t.Fatalf("committed move must not signal an error")
	}
}

func TestOverLimitIsAdvisory(t *testing.T) {
	remote := &fakeRemote{}
	b := New(remote, sampleSnapshot(), nil)
	for _, id := range []string{"i1", "i2"} {
		if err := b.Drop(context.Background(), id, Location{StatusID: "backlog"}, &Location{StatusID: "progress"}); err != nil {
			t.Fatalf("drop %s: %v", id, err)
		}
	}
	var progress Column
	for _, col := range b.Columns() {
		if col.Status.ID == "progress" {
			progress = col
		}
	}
	if len(progress.Cards) != 2 || !progress.OverLimit() {
		t.Fatalf("expected column over its limit but populated, got %+v", progress)
	}
	if (Column{Status: Status{ID: "x"}}).OverLimit() {
		t.Fatalf("column without a limit is never over it")
	}
}

func TestLoadFailureEmptiesBoard(t *testing.T) {
	rec := &notify.Recorder{}
	b := New(&fakeRemote{}, sampleSnapshot(), rec)
	if err := b.Load(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(b.Cards()) != 0 || len(b.Columns()) != 0 {
		t.Fatalf("expected empty board")
	}
	if rec.Count(notify.LevelError) != 1 {
		t.Fatalf("expected one error signal")
	}
}
