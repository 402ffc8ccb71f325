// Package questfile loads and validates quest definitions and suite
// indexes from YAML files on disk.
package questfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/agentdojo/internal/schema"
)

// ErrSuiteNotFound is returned when a suite index does not define the
// requested suite name.
var ErrSuiteNotFound = errors.New("suite not found")

var requiredQuestFields = []string{
	"id", "tier", "category", "description",
	"mock", "budget", "primary", "variants",
}

var requiredChallengeFields = []string{"steps", "assertions"}

var validStepTypes = map[schema.StepType]bool{
	schema.StepSimulateTimeout: true,
	schema.StepInjectText:      true,
	schema.StepBadToolArgs:     true,
	schema.StepSetFact:         true,
	schema.StepAsk:             true,
}

var validAssertionTypes = map[schema.AssertionType]bool{
	schema.AssertMustContain:    true,
	schema.AssertMustNotContain: true,
	schema.AssertMustEqual:      true,
	schema.AssertBudgetOK:       true,
}

// Load reads a quest file, validates it, and returns the parsed quest.
func Load(path string) (*schema.Quest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quest file: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes a single quest document.
func Parse(data []byte) (*schema.Quest, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse quest: %w", err)
	}
	if raw == nil {
		return nil, errors.New("invalid quest format: expected a mapping")
	}

	var missing []string
	for _, f := range requiredQuestFields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing quest fields: %s", strings.Join(missing, ", "))
	}

	questID := "unknown"
	if id, ok := raw["id"].(string); ok {
		questID = id
	}

	if hint, ok := raw["reflection_hint"]; ok {
		if _, isStr := hint.(string); !isStr {
			return nil, fmt.Errorf("quest %s: reflection_hint must be a string", questID)
		}
	}

	var q schema.Quest
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("quest %s: decode: %w", questID, err)
	}

	if err := validateChallengeDef(rawMap(raw["primary"]), &q.Primary, questID, "primary"); err != nil {
		return nil, err
	}
	variants, ok := raw["variants"].([]any)
	if raw["variants"] != nil && !ok {
		return nil, fmt.Errorf("quest %s: variants must be a list", questID)
	}
	for i := range q.Variants {
		var rawVariant map[string]any
		if i < len(variants) {
			rawVariant = rawMap(variants[i])
		}
		name := fmt.Sprintf("variant %d", i)
		if err := validateChallengeDef(rawVariant, &q.Variants[i], questID, name); err != nil {
			return nil, err
		}
	}

	return &q, nil
}

func rawMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func validateChallengeDef(raw map[string]any, def *schema.ChallengeDefinition, questID, name string) error {
	if raw == nil {
		return fmt.Errorf("quest %s: invalid %s challenge definition: expected a mapping", questID, name)
	}
	var missing []string
	for _, f := range requiredChallengeFields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("quest %s: %s challenge missing fields: %s", questID, name, strings.Join(missing, ", "))
	}

	for i, step := range def.Steps {
		if !validStepTypes[step.Type] {
			return fmt.Errorf("quest %s: %s challenge, invalid step type at index %d: %s", questID, name, i, step.Type)
		}
		if step.Type == schema.StepBadToolArgs && step.Payload.ToolName == "" {
			return fmt.Errorf("quest %s: %s challenge, step bad_tool_args at index %d missing tool_name", questID, name, i)
		}
	}

	for i, a := range def.Assertions {
		if !validAssertionTypes[a.Type] {
			return fmt.Errorf("quest %s: %s challenge, invalid assertion type at index %d: %s", questID, name, i, a.Type)
		}
		if a.Type == schema.AssertMustEqual {
			if a.Payload.Value == nil {
				return fmt.Errorf("quest %s: %s challenge, assertion must_equal at index %d missing value", questID, name, i)
			}
			if a.Payload.Key == "" && a.Payload.Field == "" {
				return fmt.Errorf("quest %s: %s challenge, assertion must_equal at index %d requires either key or field", questID, name, i)
			}
		}
	}
	return nil
}

// ValidateAll walks a challenges directory and validates every quest
// file in it, skipping suite indexes. It returns one error per invalid
// file.
func ValidateAll(challengesDir string) (checked int, errs []error) {
	walkErr := filepath.WalkDir(challengesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") || d.Name() == "index.yaml" {
			return nil
		}
		checked++
		if _, lerr := Load(path); lerr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), lerr))
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return checked, errs
}

// Suite is a named group of quest files inside a suite index.
type Suite struct {
	Description string   `yaml:"description,omitempty"`
	Quests      []string `yaml:"quests"`
}

// Index is the top-level challenges/index.yaml document.
type Index struct {
	Suites map[string]Suite `yaml:"suites"`
}

// LoadIndex reads a suite index file.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite index: %w", err)
	}
	var ix Index
	if err := yaml.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("parse suite index: %w", err)
	}
	return &ix, nil
}

// Suite returns the named suite from the index.
func (ix *Index) Suite(name string) (*Suite, error) {
	s, ok := ix.Suites[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSuiteNotFound, name)
	}
	return &s, nil
}
