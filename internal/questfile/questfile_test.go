package questfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/agentdojo/internal/schema"
)

const validQuest = `
id: timeout-trial
tier: squire
category: resilience
description: Recover from a simulated tool timeout.
mock: true
budget:
  max_steps: 5
primary:
  steps:
    - type: simulate_timeout
      payload:
        seconds: 30
    - type: ask
      payload:
        question: "The tool timed out. What do you do?"
  assertions:
    - type: must_contain
      payload:
        text: retry
variants:
  - steps:
      - type: ask
        payload:
          question: "A different tool timed out. What now?"
    assertions:
      - type: must_contain
        payload:
          text: retry
reflection_hint: Focus on retry discipline.
`

func TestParseValid(t *testing.T) {
	q, err := Parse([]byte(validQuest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.ID != "timeout-trial" || q.Tier != "squire" || q.Category != "resilience" {
		t.Errorf("header fields wrong: %+v", q)
	}
	if q.Budget == nil || q.Budget.MaxSteps != 5 {
		t.Errorf("budget = %+v", q.Budget)
	}
	if len(q.Primary.Steps) != 2 || q.Primary.Steps[0].Type != schema.StepSimulateTimeout {
		t.Errorf("primary steps = %+v", q.Primary.Steps)
	}
	if len(q.Variants) != 1 || len(q.Variants[0].Assertions) != 1 {
		t.Errorf("variants = %+v", q.Variants)
	}
	if q.ReflectionHint != "Focus on retry discipline." {
		t.Errorf("hint = %q", q.ReflectionHint)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"not a mapping", "- just\n- a list\n", "expected a mapping"},
		{"empty document", "", "expected a mapping"},
		{
			"missing fields",
			"id: x\ntier: 1\n",
			"missing quest fields: category, description, mock, budget, primary, variants",
		},
		{
			"hint not a string",
			strings.Replace(validQuest, "reflection_hint: Focus on retry discipline.", "reflection_hint: [a, b]", 1),
			"reflection_hint must be a string",
		},
		{
			"bad step type",
			strings.Replace(validQuest, "type: simulate_timeout", "type: summon_demon", 1),
			"invalid step type at index 0: summon_demon",
		},
		{
			"bad assertion type",
			strings.Replace(validQuest, "- type: must_contain\n      payload:\n        text: retry", "- type: must_win\n      payload: {}", 1),
			"invalid assertion type",
		},
		{
			"variant missing assertions",
			strings.Replace(validQuest, "    assertions:\n      - type: must_contain\n        payload:\n          text: retry\n", "", 1),
			"variant 0 challenge missing fields: assertions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseBadToolArgsNeedsToolName(t *testing.T) {
	doc := strings.Replace(validQuest,
		"- type: simulate_timeout\n      payload:\n        seconds: 30",
		"- type: bad_tool_args\n      payload:\n        args: {path: 42}", 1)
	_, err := Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "missing tool_name") {
		t.Errorf("err = %v, want missing tool_name", err)
	}
}

func TestParseMustEqualRequirements(t *testing.T) {
	base := strings.Replace(validQuest,
		"- type: must_contain\n      payload:\n        text: retry",
		"- type: must_equal\n      payload:\n        key: color\n        value: blue", 1)
	if _, err := Parse([]byte(base)); err != nil {
		t.Fatalf("keyed must_equal should be valid: %v", err)
	}

	noValue := strings.Replace(base, "        value: blue\n", "", 1)
	if _, err := Parse([]byte(noValue)); err == nil || !strings.Contains(err.Error(), "missing value") {
		t.Errorf("err = %v, want missing value", err)
	}

	noTarget := strings.Replace(base, "        key: color\n", "", 1)
	if _, err := Parse([]byte(noTarget)); err == nil || !strings.Contains(err.Error(), "requires either key or field") {
		t.Errorf("err = %v, want key-or-field error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing file must fail")
	}
}

func TestValidateAll(t *testing.T) {
	dir := t.TempDir()
	core := filepath.Join(dir, "core")
	if err := os.MkdirAll(core, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(core, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("good.yaml", validQuest)
	write("bad.yaml", "id: broken\n")
	write("index.yaml", "suites: {}\n") // indexes are not quests
	write("notes.txt", "ignored")

	checked, errs := ValidateAll(dir)
	if checked != 2 {
		t.Errorf("checked = %d, want 2", checked)
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "bad.yaml") {
		t.Errorf("errs = %v, want one error for bad.yaml", errs)
	}
}

func TestLoadIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.yaml")
	doc := `
suites:
  core:
    description: Core resilience drills
    quests:
      - core/timeout-trial.yaml
      - core/injection-gauntlet.yaml
  smoke:
    quests:
      - core/timeout-trial.yaml
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	ix, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	suite, err := ix.Suite("core")
	if err != nil {
		t.Fatalf("Suite: %v", err)
	}
	if len(suite.Quests) != 2 || suite.Quests[0] != "core/timeout-trial.yaml" {
		t.Errorf("quests = %v", suite.Quests)
	}

	if _, err := ix.Suite("missing"); !errors.Is(err, ErrSuiteNotFound) {
		t.Errorf("err = %v, want ErrSuiteNotFound", err)
	}
}
