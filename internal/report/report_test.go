package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/agentdojo/internal/schema"
)

var reportTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func result(id string, status schema.Status, score float64) schema.QuestResult {
	return schema.QuestResult{
		ID:      id,
		Initial: &schema.ChallengeResult{Status: status, Score: score},
	}
}

func TestGenerateAllPass(t *testing.T) {
	results := []schema.QuestResult{
		result("q1", schema.StatusPass, 100),
		result("q2", schema.StatusPass, 100),
		result("q3", schema.StatusPass, 100),
	}
	out := Generate("core", results, false, reportTime)
	if !strings.Contains(out, "Grade: S") {
		t.Error("all-pass suite must grade S")
	}
	if !strings.Contains(out, "100%") {
		t.Error("missing perfect pass rate")
	}
	if !strings.Contains(out, "Suite: core   |   2026-03-14 09:30") {
		t.Error("missing suite header")
	}
	if strings.Contains(out, "Variant recovery rate") {
		t.Error("forge rows must not appear without forge")
	}
}

func TestGenerateAllFail(t *testing.T) {
	results := []schema.QuestResult{
		result("q1", schema.StatusFail, 0),
		result("q2", schema.StatusFail, 0),
	}
	out := Generate("core", results, false, reportTime)
	if !strings.Contains(out, "Grade: F") {
		t.Error("all-fail suite must grade F")
	}
	if !strings.Contains(out, "❌ 2") {
		t.Error("missing fail count")
	}
}

func TestGenerateForgeRecovery(t *testing.T) {
	recovered := result("q1", schema.StatusFail, 33)
	recovered.VariantPass = true
	recovered.PatchesCreated = 1
	recovered.PostLearning = &schema.ChallengeResult{Status: schema.StatusPass, Score: 100}

	stuck := result("q2", schema.StatusFail, 0)
	stuck.PostLearning = &schema.ChallengeResult{Status: schema.StatusFail, Score: 50}
	stuck.PatchesCreated = 1

	results := []schema.QuestResult{recovered, stuck, result("q3", schema.StatusPass, 100)}
	out := Generate("core", results, true, reportTime)

	if !strings.Contains(out, "recovered on variant") {
		t.Error("missing recovery marker")
	}
	if !strings.Contains(out, "variant also failed") {
		t.Error("missing failed-variant marker")
	}
	if !strings.Contains(out, "Variant recovery rate:") || !strings.Contains(out, "Resilience score:") {
		t.Error("missing forge score rows")
	}
	if !strings.Contains(out, "Guardrail patches applied:  2") {
		t.Errorf("missing patch count:\n%s", out)
	}
	if !strings.Contains(out, "🔁 1 / 2") {
		t.Error("missing variants-won summary")
	}
	// 1 pass * 100 + 1 variant win * 60 over 3 quests = 53.3 → grade F..C range check
	if !strings.Contains(out, "Grade: C") {
		t.Errorf("resilience grade wrong:\n%s", out)
	}
}

func TestGenerateSkipExcludedFromPrimaryRate(t *testing.T) {
	results := []schema.QuestResult{
		result("q1", schema.StatusPass, 100),
		result("q2", schema.StatusSkip, 0),
	}
	out := Generate("core", results, false, reportTime)
	if !strings.Contains(out, "SKIP") {
		t.Error("missing skip marker")
	}
	if !strings.Contains(out, "Skipped:") {
		t.Error("missing skipped summary row")
	}
	// One pass out of one non-skipped quest is a perfect primary rate.
	if !strings.Contains(out, "Grade: S") {
		t.Errorf("skips must not drag the primary rate:\n%s", out)
	}
}

func TestGenerateEmptySuite(t *testing.T) {
	out := Generate("core", nil, false, reportTime)
	if !strings.Contains(out, "Total quests:") || !strings.Contains(out, "Grade: F") {
		t.Errorf("empty suite report malformed:\n%s", out)
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, "[████████████████████] 100%"},
		{0, "[░░░░░░░░░░░░░░░░░░░░] 0%"},
		{50, "[██████████░░░░░░░░░░] 50%"},
	}
	for _, tt := range tests {
		if got := bar(tt.score); got != tt.want {
			t.Errorf("bar(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, "S"}, {99.9, "A"}, {80, "A"}, {79, "B"}, {60, "B"},
		{59, "C"}, {40, "C"}, {39, "D"}, {20, "D"}, {19, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := grade(tt.score); got != tt.want {
			t.Errorf("grade(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestSaveWrapsInCodeFence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.md")
	if err := Save("report body", path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "```\nreport body\n```\n" {
		t.Errorf("saved = %q", data)
	}
}
