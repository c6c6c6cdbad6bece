// Package reconcile keeps a component-local ordered collection that applies
// mutations immediately and then confirms or undoes them once the remote
// write resolves.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"jiralite/api/internal/notify"
)

// Record is implemented by value types held in a List. The With* methods
// return modified copies; they must not mutate the receiver.
type Record[T any] interface {
	RecordID() string
	WithID(id string) T
	RecordPosition() int
	WithPosition(position int) T
}

// Remote is the persistence side of a List.
//
// Create receives the provisional record and its temporary id, which servers
// may use as an idempotency token. Returning a record with a non-empty id lets
// the list splice it in place; returning the zero value makes the list
// re-derive the whole collection through List.
type Remote[T any] interface {
	Create(ctx context.Context, draft T, token string) (T, error)
	Update(ctx context.Context, before, after T) error
	Delete(ctx context.Context, item T) error
	List(ctx context.Context) ([]T, error)
}

type Op string

const (
	OpAdd    Op = "add"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
	OpToggle Op = "toggle"
)

type Messages struct {
	Added        string
	AddFailed    string
	Edited       string
	EditFailed   string
	Deleted      string
	DeleteFailed string
	ToggleFailed string
	LoadFailed   string
}

func defaultMessages() Messages {
	return Messages{
		Added:        "Created",
		AddFailed:    "Create failed",
		Edited:       "Updated",
		EditFailed:   "Update failed",
		Deleted:      "Deleted",
		DeleteFailed: "Delete failed",
		ToggleFailed: "Status change failed",
		LoadFailed:   "Could not load items",
	}
}

type Options[T any] struct {
	Notifier notify.Notifier
	Messages *Messages
	// Flip flips the record's boolean field for Toggle.
	Flip func(T) T
	// OnCommitted runs after a remote write succeeded.
	OnCommitted func(op Op, item T)
}

var ErrToggleUnsupported = errors.New("reconcile: list has no toggle field")

type List[T Record[T]] struct {
	mu     sync.Mutex
	items  []T
	remote Remote[T]
	opts   Options[T]
	msgs   Messages
}

func New[T Record[T]](remote Remote[T], initial []T, opts Options[T]) *List[T] {
	msgs := defaultMessages()
	if opts.Messages != nil {
		msgs = *opts.Messages
	}
	items := make([]T, len(initial))
	copy(items, initial)
	return &List[T]{items: items, remote: remote, opts: opts, msgs: msgs}
}

// Items returns a copy of the current ordered collection.
func (l *List[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Load replaces the collection with the remote's. A failed read leaves the
// list empty rather than stale.
func (l *List[T]) Load(ctx context.Context) error {
	items, err := l.remote.List(ctx)
	l.mu.Lock()
	if err != nil {
		l.items = nil
	} else {
		l.items = append([]T(nil), items...)
	}
	l.mu.Unlock()
	if err != nil {
		notify.Error(l.opts.Notifier, l.msgs.LoadFailed, err)
	}
	return err
}

// Add appends a provisional copy of draft under a temporary id, then creates
// it remotely. The provisional position sorts after every existing record.
// On failure the provisional record is removed again.
func (l *List[T]) Add(ctx context.Context, draft T) (T, error) {
	tempID := NewTempID()

	l.mu.Lock()
	provisional := draft.WithID(tempID).WithPosition(l.nextPositionLocked())
	l.items = append(l.items, provisional)
	l.mu.Unlock()

	created, err := l.remote.Create(ctx, provisional, tempID)
	if err != nil {
		l.mu.Lock()
		l.removeLocked(tempID)
		l.mu.Unlock()
		notify.Error(l.opts.Notifier, l.msgs.AddFailed, err)
		var zero T
		return zero, err
	}

	if !l.splice(tempID, created) {
		l.resync(ctx)
	}
	notify.Success(l.opts.Notifier, l.msgs.Added)
	l.committed(OpAdd, created)
	return created, nil
}

// Edit applies mutate to the record with id. Provisional records are skipped
// without error since there is no server row to update yet.
func (l *List[T]) Edit(ctx context.Context, id string, mutate func(T) T) error {
	return l.update(ctx, OpEdit, id, mutate, l.msgs.Edited, l.msgs.EditFailed)
}

// Toggle flips the list's boolean field on the record with id.
func (l *List[T]) Toggle(ctx context.Context, id string) error {
	if l.opts.Flip == nil {
		return ErrToggleUnsupported
	}
	return l.update(ctx, OpToggle, id, l.opts.Flip, "", l.msgs.ToggleFailed)
}

// Delete removes the record with id. Provisional records are only dropped
// locally.
func (l *List[T]) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 {
		l.mu.Unlock()
		return nil
	}
	if IsTemporary(id) {
		l.removeLocked(id)
		l.mu.Unlock()
		return nil
	}
	snapshot := l.items[idx]
	l.removeLocked(id)
	l.mu.Unlock()

	if err := l.remote.Delete(ctx, snapshot); err != nil {
		l.mu.Lock()
		l.reinsertLocked(idx, snapshot)
		l.mu.Unlock()
		notify.Error(l.opts.Notifier, l.msgs.DeleteFailed, err)
		return err
	}
	notify.Success(l.opts.Notifier, l.msgs.Deleted)
	l.committed(OpDelete, snapshot)
	return nil
}

func (l *List[T]) update(ctx context.Context, op Op, id string, mutate func(T) T, okMsg, failMsg string) error {
	if IsTemporary(id) {
		return nil
	}

	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 {
		l.mu.Unlock()
		return nil
	}
	snapshot := l.items[idx]
	next := mutate(snapshot).WithID(id)
	l.items[idx] = next
	l.mu.Unlock()

	if err := l.remote.Update(ctx, snapshot, next); err != nil {
		l.mu.Lock()
		if i := l.indexLocked(id); i >= 0 {
			l.items[i] = snapshot
		}
		l.mu.Unlock()
		notify.Error(l.opts.Notifier, failMsg, err)
		return err
	}
	if okMsg != "" {
		notify.Success(l.opts.Notifier, okMsg)
	}
	l.committed(op, next)
	return nil
}

// splice swaps the provisional record for the server's copy. It reports false
// when there is nothing usable to splice.
func (l *List[T]) splice(tempID string, created T) bool {
	if created.RecordID() == "" || IsTemporary(created.RecordID()) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexLocked(tempID)
	if idx < 0 {
		return false
	}
	l.items[idx] = created
	return true
}

// resync re-derives the collection after a create. If the read fails the
// optimistic state stays; the write itself already succeeded.
func (l *List[T]) resync(ctx context.Context) {
	items, err := l.remote.List(ctx)
	if err != nil {
		return
	}
	l.mu.Lock()
	l.items = append([]T(nil), items...)
	l.mu.Unlock()
}

func (l *List[T]) committed(op Op, item T) {
	if l.opts.OnCommitted != nil {
		l.opts.OnCommitted(op, item)
	}
}

func (l *List[T]) indexLocked(id string) int {
	for i, item := range l.items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}

func (l *List[T]) removeLocked(id string) {
	idx := l.indexLocked(id)
	if idx < 0 {
		return
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
}

// reinsertLocked puts item back at the index it was removed from, so a failed
// delete leaves the collection exactly as it was.
func (l *List[T]) reinsertLocked(idx int, item T) {
	if idx > len(l.items) {
		idx = len(l.items)
	}
	l.items = append(l.items, item)
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = item
}

func (l *List[T]) nextPositionLocked() int {
	next := 0
	for _, item := range l.items {
		if p := item.RecordPosition(); p >= next {
			next = p + 1
		}
	}
	return next
}
