// Package notify is the user-visible signal channel: transient success and
// error messages emitted after every mutation attempt.
package notify

import (
	"fmt"
	"io"
	"sync"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Signal struct {
	Level   Level
	Message string
	Err     error
}

type Notifier interface {
	Notify(Signal)
}

func Success(n Notifier, message string) {
	if n == nil {
		return
	}
	n.Notify(Signal{Level: LevelSuccess, Message: message})
}

func Error(n Notifier, message string, err error) {
	if n == nil {
		return
	}
	n.Notify(Signal{Level: LevelError, Message: message, Err: err})
}

// Writer prints signals as single lines, e.g. to a terminal's stderr.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Notify(sig Signal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch sig.Level {
	case LevelSuccess:
		fmt.Fprintf(w.out, "ok: %s\n", sig.Message)
	case LevelError:
		if sig.Err != nil {
			fmt.Fprintf(w.out, "error: %s (%v)\n", sig.Message, sig.Err)
			return
		}
		fmt.Fprintf(w.out, "error: %s\n", sig.Message)
	}
}

// Recorder keeps every signal in memory.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *Recorder) Notify(sig Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

// Count returns how many signals of the given level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sig := range r.signals {
		if sig.Level == level {
			n++
		}
	}
	return n
}
