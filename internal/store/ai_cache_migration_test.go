package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAICacheMigrationEnforcesSingleActiveArtifact(t *testing.T) {
	migrationPath := filepath.Join("..", "..", "db", "migrations", "0002_ai_cache.up.sql")
	sqlBytes, err := os.ReadFile(migrationPath)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	expectedSnippets := []string{
		"CREATE UNIQUE INDEX ai_cache_active_idx ON ai_cache(issue_id, type) WHERE invalidated_at IS NULL",
		"CHECK (type IN ('summary', 'suggestion', 'comment_summary'))",
		"CREATE TABLE ai_rate_limits",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
}

func TestDueDateRoundTrip(t *testing.T) {
	due, err := parseDate("2024-06-30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := formatDate(due); got != "2024-06-30" {
		t.Fatalf("expected 2024-06-30, got %q", got)
	}
	if due, err := parseDate(""); err != nil || due != nil {
		t.Fatalf("empty date should clear, got %v %v", due, err)
	}
	if _, err := parseDate("30/06/2024"); err == nil {
		t.Fatalf("expected parse error")
	}
	if formatDate(nil) != "" {
		t.Fatalf("nil date formats empty")
	}
}
