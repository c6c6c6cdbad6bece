// Package board holds a project's kanban columns and applies drag-and-drop
// moves optimistically, restoring the pre-drag layout if the server rejects
// the move.
package board

import (
	"context"
	"sort"
	"sync"

	"jiralite/api/internal/notify"
)

type Card struct {
	ID         string
	Title      string
	StatusID   string
	Position   int
	Priority   string
	AssigneeID string
	DueDate    string
}

type Status struct {
	ID       string
	Name     string
	Color    string
	Position int
	WIPLimit *int
}

// Location addresses a slot in a column.
type Location struct {
	StatusID string
	Index    int
}

// Snapshot is the server view of a board.
type Snapshot struct {
	Archived bool
	Statuses []Status
	Cards    []Card
}

type Remote interface {
	MoveIssue(ctx context.Context, issueID, statusID string, position int) error
	LoadBoard(ctx context.Context) (Snapshot, error)
}

type Column struct {
	Status Status
	Cards  []Card
}

// OverLimit is advisory only. Moves into a full column are never blocked.
func (c Column) OverLimit() bool {
	return c.Status.WIPLimit != nil && len(c.Cards) > *c.Status.WIPLimit
}

const moveFailedMessage = "Failed to move issue"

type Board struct {
	mu       sync.Mutex
	archived bool
	statuses []Status
	cards    []Card
	remote   Remote
	notifier notify.Notifier
}

func New(remote Remote, snap Snapshot, notifier notify.Notifier) *Board {
	b := &Board{remote: remote, notifier: notifier}
	b.replaceLocked(snap)
	return b
}

// Load replaces the board with the server's. A failed read leaves the board
// empty and signals.
func (b *Board) Load(ctx context.Context) error {
	snap, err := b.remote.LoadBoard(ctx)
	if err != nil {
		b.mu.Lock()
		b.replaceLocked(Snapshot{})
		b.mu.Unlock()
		notify.Error(b.notifier, "Could not load board", err)
		return err
	}
	b.mu.Lock()
	b.replaceLocked(snap)
	b.mu.Unlock()
	return nil
}

func (b *Board) Archived() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.archived
}

func (b *Board) Cards() []Card {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Card(nil), b.cards...)
}

// Columns groups cards by status, both ordered by position.
func (b *Board) Columns() []Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	cols := make([]Column, 0, len(b.statuses))
	for _, status := range b.statuses {
		cols = append(cols, Column{Status: status, Cards: b.columnLocked(status.ID, "")})
	}
	return cols
}

// Drop moves card from one slot to another. It is a no-op without a
// destination, when the clamped destination is the card's current slot, or
// when the project is archived. The source slot is read from the board;
// from is only what the caller last rendered. Exactly one move call reaches
// the remote.
func (b *Board) Drop(ctx context.Context, cardID string, from Location, to *Location) error {
	if to == nil {
		return nil
	}

	b.mu.Lock()
	current, ok := b.locateLocked(cardID)
	if b.archived || !ok {
		b.mu.Unlock()
		return nil
	}
	target := Location{StatusID: to.StatusID, Index: clampIndex(to.Index, len(b.columnLocked(to.StatusID, cardID)))}
	if target == current {
		b.mu.Unlock()
		return nil
	}
	snapshot := append([]Card(nil), b.cards...)
	position := b.applyMoveLocked(cardID, current.StatusID, target)
	b.mu.Unlock()

	if err := b.remote.MoveIssue(ctx, cardID, target.StatusID, position); err != nil {
		b.mu.Lock()
		b.cards = snapshot
		b.mu.Unlock()
		notify.Error(b.notifier, moveFailedMessage, err)
		return err
	}

	snap, err := b.remote.LoadBoard(ctx)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	b.replaceLocked(snap)
	b.mu.Unlock()
	return nil
}

// applyMoveLocked places the card in the destination column and renumbers
// the destination and source columns densely. It returns the card's final
// position.
func (b *Board) applyMoveLocked(cardID, fromStatusID string, to Location) int {
	card := b.cards[b.indexLocked(cardID)]
	dest := b.columnLocked(to.StatusID, cardID)
	index := clampIndex(to.Index, len(dest))
	card.StatusID = to.StatusID
	dest = append(dest, Card{})
	copy(dest[index+1:], dest[index:])
	dest[index] = card

	updated := make(map[string]Card, len(b.cards))
	for i := range dest {
		dest[i].Position = i
		updated[dest[i].ID] = dest[i]
	}
	if fromStatusID != to.StatusID {
		for i, c := range b.columnLocked(fromStatusID, cardID) {
			c.Position = i
			updated[c.ID] = c
		}
	}
	for i, c := range b.cards {
		if u, ok := updated[c.ID]; ok {
			b.cards[i] = u
		}
	}
	return index
}

func (b *Board) columnLocked(statusID, exclude string) []Card {
	var out []Card
	for _, c := range b.cards {
		if c.StatusID == statusID && c.ID != exclude {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// locateLocked reports the card's status and its index within that column.
func (b *Board) locateLocked(cardID string) (Location, bool) {
	i := b.indexLocked(cardID)
	if i < 0 {
		return Location{}, false
	}
	statusID := b.cards[i].StatusID
	for idx, c := range b.columnLocked(statusID, "") {
		if c.ID == cardID {
			return Location{StatusID: statusID, Index: idx}, true
		}
	}
	return Location{}, false
}

func clampIndex(index, n int) int {
	if index < 0 {
		return 0
	}
	if index > n {
		return n
	}
	return index
}

func (b *Board) indexLocked(cardID string) int {
	for i, c := range b.cards {
		if c.ID == cardID {
			return i
		}
	}
	return -1
}

func (b *Board) replaceLocked(snap Snapshot) {
	b.archived = snap.Archived
	b.statuses = append([]Status(nil), snap.Statuses...)
	sort.SliceStable(b.statuses, func(i, j int) bool { return b.statuses[i].Position < b.statuses[j].Position })
	b.cards = append([]Card(nil), snap.Cards...)
}
