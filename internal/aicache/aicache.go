// Package aicache decides when generated AI artifacts attached to an issue
// are current, when a mutation invalidates them, and whether a new generation
// may be requested at all.
package aicache

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactType is closed. Every switch over it lists all three values.
type ArtifactType string

const (
	Summary        ArtifactType = "summary"
	Suggestion     ArtifactType = "suggestion"
	CommentSummary ArtifactType = "comment_summary"
)

var AllTypes = []ArtifactType{Summary, Suggestion, CommentSummary}

func ParseType(raw string) (ArtifactType, error) {
	switch ArtifactType(strings.TrimSpace(raw)) {
	case Summary:
		return Summary, nil
	case Suggestion:
		return Suggestion, nil
	case CommentSummary:
		return CommentSummary, nil
	default:
		return "", fmt.Errorf("unknown artifact type %q", raw)
	}
}

// Source is the input an artifact is derived from.
func (t ArtifactType) Source() string {
	switch t {
	case Summary, Suggestion:
		return "description"
	case CommentSummary:
		return "comments"
	default:
		return ""
	}
}

type State int

const (
	Absent State = iota
	Active
	Invalidated
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Invalidated:
		return "invalidated"
	default:
		return "absent"
	}
}

// Artifact is one stored generation.
type Artifact struct {
	ID            string
	IssueID       string
	Type          ArtifactType
	Content       string
	CreatedAt     time.Time
	InvalidatedAt *time.Time
}

func (a Artifact) IsActive() bool {
	return a.InvalidatedAt == nil
}

// StateOf derives the cache state of one (issue, type) pair from its rows.
func StateOf(rows []Artifact) State {
	if len(rows) == 0 {
		return Absent
	}
	for _, row := range rows {
		if row.IsActive() {
			return Active
		}
	}
	return Invalidated
}

// Current returns the newest active artifact, if any.
func Current(rows []Artifact) (Artifact, bool) {
	var best Artifact
	found := false
	for _, row := range rows {
		if !row.IsActive() {
			continue
		}
		if !found || row.CreatedAt.After(best.CreatedAt) {
			best = row
			found = true
		}
	}
	return best, found
}

// Mutation is a write to issue-derived data.
type Mutation string

const (
	DescriptionChanged Mutation = "description_changed"
	CommentCreated     Mutation = "comment_created"
	CommentEdited      Mutation = "comment_edited"
	CommentDeleted     Mutation = "comment_deleted"
)

// Invalidates lists the artifact types a mutation makes stale.
func Invalidates(m Mutation) []ArtifactType {
	switch m {
	case DescriptionChanged:
		return []ArtifactType{Summary, Suggestion}
	case CommentCreated, CommentEdited, CommentDeleted:
		return []ArtifactType{CommentSummary}
	default:
		return nil
	}
}
