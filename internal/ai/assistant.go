package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Candidate is an existing issue offered to duplicate detection.
type Candidate struct {
	ID          string
	Title       string
	Description string
}

// Duplicate is a candidate the model judged similar.
type Duplicate struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Similarity string `json:"similarity"`
}

// Assistant builds prompts and parses completions. Parsing is lenient:
// malformed output yields an empty result instead of an error.
type Assistant struct {
	gen           Generator
	maxCandidates int
}

func NewAssistant(gen Generator, maxCandidates int) *Assistant {
	if maxCandidates <= 0 {
		maxCandidates = 30
	}
	return &Assistant{gen: gen, maxCandidates: maxCandidates}
}

func (a *Assistant) Summarize(ctx context.Context, description string) (string, error) {
	prompt := fmt.Sprintf(`You are the assistant of an issue tracker. Summarize the following issue description in 2-4 concise sentences.

Issue description:
%s

Summary:`, description)
	return a.generate(ctx, prompt)
}

func (a *Assistant) Suggest(ctx context.Context, title, description string) (string, error) {
	prompt := fmt.Sprintf(`You are an experienced software engineer. Propose a concrete approach and the steps needed to resolve this issue.

Issue title: %s
Issue description: %s

Approach:`, title, description)
	return a.generate(ctx, prompt)
}

func (a *Assistant) SummarizeComments(ctx context.Context, comments []string) (string, error) {
	prompt := fmt.Sprintf(`You are the assistant of an issue tracker. Summarize the discussion in the following comments in 3-5 sentences and list any decisions that were made.

Comments:
%s

Summary:`, strings.Join(comments, "\n\n---\n\n"))
	return a.generate(ctx, prompt)
}

// SuggestLabels returns at most three names from existing.
func (a *Assistant) SuggestLabels(ctx context.Context, title, description string, existing []string) ([]string, error) {
	if len(existing) == 0 {
		return []string{}, nil
	}
	if description == "" {
		description = "none"
	}
	prompt := fmt.Sprintf(`Pick up to 3 labels for this issue from the existing label list. Answer with label names only, separated by commas. If no label fits, answer "none".

Existing labels: %s
Issue title: %s
Issue description: %s

Labels:`, strings.Join(existing, ", "), title, description)

	raw, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseLabels(raw, existing), nil
}

// FindDuplicates asks which of the candidates resemble title. Only the first
// maxCandidates are offered. Any failure, including a transport error,
// degrades to an empty list.
func (a *Assistant) FindDuplicates(ctx context.Context, title string, candidates []Candidate) []Duplicate {
	if len(candidates) == 0 {
		return []Duplicate{}
	}
	if len(candidates) > a.maxCandidates {
		candidates = candidates[:a.maxCandidates]
	}

	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. [%s] %s\n", i+1, c.ID, c.Title)
	}
	prompt := fmt.Sprintf(`Find existing issues similar to the new issue. Answer with a JSON array of the similar issues' ids and similarity ("high" or "medium"). Select at most 3. If nothing is similar, answer with an empty array [].
Example: [{"id": "abc123", "similarity": "high"}]

New issue title: %s

Existing issues:
%s
JSON:`, title, list.String())

	raw, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return []Duplicate{}
	}
	return ParseDuplicates(raw, candidates)
}

func (a *Assistant) generate(ctx context.Context, prompt string) (string, error) {
	out, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ParseLabels keeps the comma-separated names that exactly match an existing
// label, dropping repeats.
func ParseLabels(raw string, existing []string) []string {
	raw = strings.TrimSpace(raw)
	out := []string{}
	if raw == "" || strings.EqualFold(raw, "none") {
		return out
	}
	known := make(map[string]bool, len(existing))
	for _, name := range existing {
		known[name] = true
	}
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if !known[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

var jsonArray = regexp.MustCompile(`\[[\s\S]*\]`)

// ParseDuplicates extracts the first JSON array from raw and keeps entries
// whose id is one of the candidates.
func ParseDuplicates(raw string, candidates []Candidate) []Duplicate {
	out := []Duplicate{}
	match := jsonArray.FindString(raw)
	if match == "" {
		return out
	}
	var parsed []struct {
		ID         string `json:"id"`
		Similarity string `json:"similarity"`
	}
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return out
	}
	titles := make(map[string]string, len(candidates))
	for _, c := range candidates {
		titles[c.ID] = c.Title
	}
	for _, p := range parsed {
		title, ok := titles[p.ID]
		if !ok || title == "" {
			continue
		}
		out = append(out, Duplicate{ID: p.ID, Title: title, Similarity: p.Similarity})
	}
	return out
}
