package aicache

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStateOf(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		rows []Artifact
		want State
	}{
		{name: "no rows", want: Absent},
		{name: "one active", rows: []Artifact{{ID: "a"}}, want: Active},
		{name: "only invalidated", rows: []Artifact{{ID: "a", InvalidatedAt: &now}}, want: Invalidated},
		{name: "invalidated then regenerated", rows: []Artifact{{ID: "a", InvalidatedAt: &now}, {ID: "b"}}, want: Active},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StateOf(tc.rows); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestCurrentPicksNewestActive(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gone := base.Add(time.Hour)
	rows := []Artifact{
		{ID: "old", CreatedAt: base},
		{ID: "stale", CreatedAt: base.Add(2 * time.Hour), InvalidatedAt: &gone},
		{ID: "new", CreatedAt: base.Add(time.Minute)},
	}
	got, ok := Current(rows)
	if !ok || got.ID != "new" {
		t.Fatalf("expected newest active artifact, got %+v (%v)", got, ok)
	}
	if _, ok := Current(rows[1:2]); ok {
		t.Fatalf("invalidated rows are never current")
	}
}

func TestInvalidationTriggers(t *testing.T) {
	if diff := cmp.Diff([]ArtifactType{Summary, Suggestion}, Invalidates(DescriptionChanged)); diff != "" {
		t.Fatalf("description change (-want +got):\n%s", diff)
	}
	for _, m := range []Mutation{CommentCreated, CommentEdited, CommentDeleted} {
		if diff := cmp.Diff([]ArtifactType{CommentSummary}, Invalidates(m)); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", m, diff)
		}
	}
	if Invalidates(Mutation("title_changed")) != nil {
		t.Fatalf("unrelated mutations invalidate nothing")
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range AllTypes {
		got, err := ParseType(string(typ))
		if err != nil || got != typ {
			t.Fatalf("parse %q: %v %v", typ, got, err)
		}
	}
	if _, err := ParseType("haiku"); err == nil {
		t.Fatalf("expected unknown type to fail")
	}
}

func TestDescriptionPreconditionIsStrict(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		desc string
		ok   bool
	}{
		{"", false},
		{"short", false},
		{"0123456789", false},
		{"0123456789!", true},
	}
	for _, tc := range cases {
		for _, typ := range []ArtifactType{Summary, Suggestion} {
			err := p.Check(typ, Input{Description: tc.desc})
			if tc.ok && err != nil {
				t.Fatalf("%s %q: unexpected error %v", typ, tc.desc, err)
			}
			if !tc.ok && !errors.Is(err, ErrPrecondition) {
				t.Fatalf("%s %q: expected precondition error, got %v", typ, tc.desc, err)
			}
		}
	}
}

func TestCommentPrecondition(t *testing.T) {
	p := DefaultPolicy()
	if err := p.Check(CommentSummary, Input{CommentCount: 4}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected 4 comments to be rejected, got %v", err)
	}
	if err := p.Check(CommentSummary, Input{CommentCount: 5}); err != nil {
		t.Fatalf("expected 5 comments to pass, got %v", err)
	}
	var pe *PreconditionError
	err := p.Check(CommentSummary, Input{CommentCount: 0})
	if !errors.As(err, &pe) || pe.Type != CommentSummary {
		t.Fatalf("expected typed precondition error, got %v", err)
	}
}

func TestRetryAfterSecondsBounds(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		-time.Second:            1,
		200 * time.Millisecond:  1,
		1500 * time.Millisecond: 2,
		59 * time.Second:        59,
		60 * time.Second:        60,
		5 * time.Minute:         60,
	}
	for in, want := range cases {
		if got := RetryAfterSeconds(in); got != want {
			t.Fatalf("RetryAfterSeconds(%s) = %d, want %d", in, got, want)
		}
	}
	err := &RateLimitError{RetryAfter: 42 * time.Second}
	if !errors.Is(err, ErrRateLimited) || err.Error() != "rate limit exceeded, retry after 42 seconds" {
		t.Fatalf("unexpected rate limit error %q", err.Error())
	}
}

func TestCacheApplyInvalidatesOnlyAffectedTypes(t *testing.T) {
	c := NewCache()
	c.Put(Artifact{ID: "s", IssueID: "iss", Type: Summary, Content: "sum"})
	c.Put(Artifact{ID: "g", IssueID: "iss", Type: Suggestion, Content: "sug"})
	c.Put(Artifact{ID: "c", IssueID: "iss", Type: CommentSummary, Content: "cs"})

	c.Apply("iss", CommentCreated)
	if c.State("iss", CommentSummary) != Invalidated {
		t.Fatalf("comment summary should be invalidated")
	}
	if _, ok := c.Get("iss", CommentSummary); ok {
		t.Fatalf("invalidated artifacts are not served")
	}
	if c.State("iss", Summary) != Active || c.State("iss", Suggestion) != Active {
		t.Fatalf("description artifacts must survive a comment change")
	}

	c.Apply("iss", DescriptionChanged)
	if c.State("iss", Summary) != Invalidated || c.State("iss", Suggestion) != Invalidated {
		t.Fatalf("description change must invalidate summary and suggestion")
	}
	if c.State("other", Summary) != Absent {
		t.Fatalf("unknown issue should be absent")
	}
}

func TestCacheInvalidateAndRemove(t *testing.T) {
	c := NewCache()
	c.Put(Artifact{ID: "s", IssueID: "iss", Type: Summary, Content: "sum"})
	c.Put(Artifact{ID: "g", IssueID: "iss", Type: Suggestion, Content: "sug"})

	c.Invalidate("iss", Summary)
	if _, ok := c.Get("iss", Summary); ok {
		t.Fatalf("invalidated summary must not be served")
	}
	if got := c.State("iss", Summary); got != Invalidated {
		t.Fatalf("summary state = %v, want invalidated", got)
	}

	c.Remove("iss", Suggestion)
	if got := c.State("iss", Suggestion); got != Absent {
		t.Fatalf("suggestion state = %v, want absent", got)
	}

	c.Invalidate("iss", CommentSummary)
	if got := c.State("iss", CommentSummary); got != Absent {
		t.Fatalf("invalidating a missing pair should leave it absent, got %v", got)
	}
}
