package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestParseLabelsFiltersToExisting(t *testing.T) {
	existing := []string{"bug", "frontend", "backend"}
	require.Equal(t, []string{"bug", "backend"}, ParseLabels(" bug , urgent,backend, bug", existing))
	require.Empty(t, ParseLabels("none", existing))
	require.Empty(t, ParseLabels("None", existing))
	require.Empty(t, ParseLabels("   ", existing))
	require.Empty(t, ParseLabels("Bug", existing), "matching is exact")
}

func TestParseDuplicatesIsLenient(t *testing.T) {
	candidates := []Candidate{{ID: "a1", Title: "Login fails"}, {ID: "b2", Title: "Crash on save"}}

	got := ParseDuplicates("Sure! Here you go:\n```json\n[{\"id\":\"a1\",\"similarity\":\"high\"},{\"id\":\"zz\",\"similarity\":\"medium\"}]\n```", candidates)
	require.Equal(t, []Duplicate{{ID: "a1", Title: "Login fails", Similarity: "high"}}, got)

	require.Empty(t, ParseDuplicates("no array here", candidates))
	require.Empty(t, ParseDuplicates("[not json]", candidates))
	require.Empty(t, ParseDuplicates("[]", candidates))
	require.NotNil(t, ParseDuplicates("", candidates))
}

func TestFindDuplicatesOffersAtMostThirtyCandidates(t *testing.T) {
	gen := &fakeGenerator{reply: `[{"id":"c29","similarity":"medium"},{"id":"c40","similarity":"high"}]`}
	a := NewAssistant(gen, 30)

	var candidates []Candidate
	for i := 0; i < 50; i++ {
		candidates = append(candidates, Candidate{ID: fmt.Sprintf("c%d", i), Title: fmt.Sprintf("issue %d", i)})
	}
	got := a.FindDuplicates(context.Background(), "new issue", candidates)

	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0], "30. [c29] issue 29")
	require.NotContains(t, gen.prompts[0], "[c30]")
	// c40 was never offered, so it cannot come back.
	require.Equal(t, []Duplicate{{ID: "c29", Title: "issue 29", Similarity: "medium"}}, got)
}

func TestFindDuplicatesDegradesOnError(t *testing.T) {
	a := NewAssistant(&fakeGenerator{err: errors.New("quota")}, 0)
	got := a.FindDuplicates(context.Background(), "t", []Candidate{{ID: "x", Title: "y"}})
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestFindDuplicatesSkipsCallWithoutCandidates(t *testing.T) {
	gen := &fakeGenerator{}
	got := NewAssistant(gen, 30).FindDuplicates(context.Background(), "t", nil)
	require.Empty(t, got)
	require.Empty(t, gen.prompts)
}

func TestSuggestLabelsPromptsWithExistingNames(t *testing.T) {
	gen := &fakeGenerator{reply: "frontend, design"}
	got, err := NewAssistant(gen, 30).SuggestLabels(context.Background(), "Button misaligned", "", []string{"frontend", "bug"})
	require.NoError(t, err)
	require.Equal(t, []string{"frontend"}, got)
	require.Contains(t, gen.prompts[0], "Existing labels: frontend, bug")
	require.Contains(t, gen.prompts[0], "Issue description: none")
}

func TestSuggestLabelsPropagatesTransportErrors(t *testing.T) {
	_, err := NewAssistant(&fakeGenerator{err: ErrNotConfigured}, 30).SuggestLabels(context.Background(), "t", "d", []string{"bug"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSummarizeCommentsJoinsWithSeparator(t *testing.T) {
	gen := &fakeGenerator{reply: "  They agreed to ship.  \n"}
	out, err := NewAssistant(gen, 30).SummarizeComments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Equal(t, "They agreed to ship.", out)
	require.True(t, strings.Contains(gen.prompts[0], "one\n\n---\n\ntwo"))
}

func TestDisabledGenerator(t *testing.T) {
	_, err := Disabled{}.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewGeminiGenerator(context.Background(), "", "")
	require.ErrorIs(t, err, ErrNotConfigured)
}
