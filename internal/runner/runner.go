// Package runner orchestrates quest execution: primary attempts, forge
// reflection, sandboxed patch application, and variant verification.
package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshills/agentdojo/internal/challenge"
	"github.com/dshills/agentdojo/internal/forge"
	"github.com/dshills/agentdojo/internal/guardrail"
	"github.com/dshills/agentdojo/internal/questfile"
	"github.com/dshills/agentdojo/internal/reflection"
	"github.com/dshills/agentdojo/internal/report"
	"github.com/dshills/agentdojo/internal/sandbox"
	"github.com/dshills/agentdojo/internal/schema"
)

const (
	contractFile  = "DOJO_PROMPT.md"
	soulFile      = "SOUL.md"
	patchesDir    = "patches"
	skillsDir     = "skills_generated"
	reportsDir    = "reports"
	challengesDir = "challenges"
)

// Options configures a Runner.
type Options struct {
	NonInteractive bool
	Forge          bool
	Budget         *forge.Budget
	In             io.Reader
	Out            io.Writer
}

// Runner drives quests end to end against a base directory.
type Runner struct {
	baseDir        string
	nonInteractive bool
	forge          bool

	facts      map[string]any
	engine     *challenge.Engine
	reflection *reflection.Engine
	budget     *forge.Budget
	box        *sandbox.Sandbox
	store      *guardrail.Store

	contractPath string
	patchesPath  string
	skillsPath   string
	reportsPath  string

	out io.Writer
	now func() time.Time
}

// New builds a Runner rooted at baseDir. In forge mode the guardrail
// store and patch directories are bootstrapped immediately.
func New(baseDir string, opts Options) (*Runner, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	budget := opts.Budget
	if budget == nil {
		budget = forge.NewBudget()
	}

	soulPath := filepath.Join(baseDir, soulFile)
	r := &Runner{
		baseDir:        baseDir,
		nonInteractive: opts.NonInteractive,
		forge:          opts.Forge,
		facts:          map[string]any{},
		reflection:     reflection.NewEngine(),
		budget:         budget,
		box:            sandbox.New(baseDir, []string{soulFile}, []string{patchesDir, skillsDir}),
		store:          &guardrail.Store{Path: soulPath},
		contractPath:   filepath.Join(baseDir, contractFile),
		patchesPath:    filepath.Join(baseDir, patchesDir),
		skillsPath:     filepath.Join(baseDir, skillsDir),
		reportsPath:    filepath.Join(baseDir, reportsDir),
		out:            out,
		now:            time.Now,
	}
	r.engine = &challenge.Engine{
		NonInteractive: opts.NonInteractive,
		ShowGuardrails: opts.Forge,
		In:             opts.In,
		Out:            out,
	}

	if r.forge {
		if err := os.MkdirAll(r.patchesPath, 0o755); err != nil {
			return nil, fmt.Errorf("runner: create patches dir: %w", err)
		}
		if err := os.MkdirAll(r.skillsPath, 0o755); err != nil {
			return nil, fmt.Errorf("runner: create skills dir: %w", err)
		}
		if err := r.store.Bootstrap(); err != nil {
			return nil, fmt.Errorf("runner: bootstrap guardrail store: %w", err)
		}
	}
	return r, nil
}

// RegisterAnswerHandler connects an agent LLM to the quest answer loop.
// Without it, ask steps read from stdin and noninteractive runs skip.
func (r *Runner) RegisterAnswerHandler(h challenge.AnswerHandler) {
	r.engine.Answer = h
}

// RegisterReflectionHandler connects an agent LLM to the forge
// reflection loop. The harness never calls any LLM directly.
func (r *Runner) RegisterReflectionHandler(h reflection.Handler) {
	r.reflection.RegisterHandler(h)
}

// ContractContent returns the DOJO_PROMPT.md contents, or "" when the
// file does not exist.
func (r *Runner) ContractContent() string {
	data, err := os.ReadFile(r.contractPath)
	if err != nil {
		return ""
	}
	return string(data)
}

// GuardrailContent returns the current SOUL.md contents.
func (r *Runner) GuardrailContent() string {
	return r.store.Content()
}

func (r *Runner) runChallenge(quest *schema.Quest, def schema.ChallengeDefinition, attempt schema.AttemptKind) *schema.ChallengeResult {
	return r.engine.Run(challenge.RunInput{
		QuestID:    quest.ID,
		Def:        def,
		Budget:     quest.Budget,
		Attempt:    attempt,
		Facts:      r.facts,
		Guardrails: r.GuardrailContent(),
		Contract:   r.ContractContent(),
	})
}

// RunQuest executes one quest file: the primary challenge, then in forge
// mode reflection, patch application, and a variant attempt.
func (r *Runner) RunQuest(questPath string) (*schema.QuestResult, error) {
	quest, err := questfile.Load(questPath)
	if err != nil {
		return nil, fmt.Errorf("runner: load quest: %w", err)
	}

	fmt.Fprintf(r.out, "\n--- Quest: %s ---\n", quest.ID)
	fmt.Fprintf(r.out, "Description: %s\n", quest.Description)

	// set_fact state must not bleed between quests.
	r.facts = map[string]any{}

	results := &schema.QuestResult{ID: quest.ID}

	fmt.Fprintf(r.out, "\n[Running Primary Challenge for %s]\n", quest.ID)
	initial := r.runChallenge(quest, quest.Primary, schema.AttemptPrimary)
	results.Initial = initial
	fmt.Fprintf(r.out, "[Result] %s %s (score: %.0f%%)\n", statusSymbol(initial.Status), initial.Status, initial.Score)

	if initial.Status != schema.StatusFail || !r.forge {
		return results, nil
	}

	if !r.reflection.IsConfigured() {
		fmt.Fprintln(r.out, "\n[Forge] No reflection handler registered.")
		fmt.Fprintln(r.out, "[Forge] Call RegisterReflectionHandler to enable Forge reflection.")
		return results, nil
	}

	fmt.Fprintln(r.out, "\n[Forge] Primary challenge failed. Initiating reflection...")
	if err := r.budget.CheckSuiteTime(); err != nil {
		fmt.Fprintf(r.out, "[Forge] Budget limit: %v\n", err)
		return results, nil
	}
	if err := r.budget.CheckReflectionCount(); err != nil {
		fmt.Fprintf(r.out, "[Forge] Budget limit: %v\n", err)
		return results, nil
	}

	request := r.reflection.BuildRequest(quest, initial.FailedAssertions, initial.AgentResponse,
		r.GuardrailContent(), r.ContractContent())

	resp, err := r.budget.CallWithTimeout(forge.Handler(r.reflection.Handler()), request)
	if err != nil {
		if errors.Is(err, forge.ErrReflectionTimeout) {
			fmt.Fprintf(r.out, "[Forge] %v\n", err)
		} else {
			fmt.Fprintf(r.out, "[Forge] Reflection handler failed: %v\n", err)
		}
		return results, nil
	}
	r.budget.RecordReflection()

	if resp == nil {
		fmt.Fprintln(r.out, "[Forge] Reflection handler returned no response.")
		return results, nil
	}

	if err := reflection.ValidateResponse(resp); err != nil {
		fmt.Fprintf(r.out, "[Forge] Reflection response rejected: %v\n", err)
		fmt.Fprintln(r.out, "[Forge] Quest marked as failed. Patch not applied.")
		return results, nil
	}

	fmt.Fprintf(r.out, "[Forge] Failure reason: %s\n", resp.FailureReason)
	fmt.Fprintf(r.out, "[Forge] Confidence: %v\n", resp.Confidence)

	if err := r.applyPatch(quest.ID, resp, initial.AgentResponse, initial.FailedAssertions); err != nil {
		return nil, err
	}
	results.PatchesCreated = 1
	fmt.Fprintln(r.out, "[Forge] Patch applied to SOUL.md. Attempting variant challenge...")

	if len(quest.Variants) > 0 {
		// Reflection and its variant are one atomic learning cycle.
		// Splitting them with a suite-time check would leave SOUL.md
		// patched but generalization permanently unverifiable, so the
		// suite budget gates new reflections, not this variant.
		fmt.Fprintf(r.out, "\n[Running Variant Challenge for %s]\n", quest.ID)
		post := r.runChallenge(quest, quest.Variants[0], schema.AttemptVariant)
		results.PostLearning = post
		if post.Status == schema.StatusPass {
			results.VariantPass = true
			fmt.Fprintln(r.out, "[Forge] ✅ Variant passed — generalization confirmed.")
		} else {
			fmt.Fprintln(r.out, "[Forge] ❌ Variant failed — patch did not generalize.")
		}
	}

	return results, nil
}

// applyPatch deduplicates and appends the guardrail patch to SOUL.md,
// writes an audit record under patches/, and applies sandboxed skill
// file operations.
func (r *Runner) applyPatch(questID string, resp *schema.ReflectionResponse, agentResponse string, failedAssertions []schema.Assertion) error {
	safeID := guardrail.SanitizeQuestID(questID)

	var kept, skipped int
	if resp.GuardrailPatch != "" {
		fr := guardrail.FilterNew(resp.GuardrailPatch, r.store.Content(), safeID)
		kept, skipped = fr.Kept, fr.Skipped
		if fr.Filtered != "" {
			if err := r.store.AppendPatch(safeID, fr.Filtered); err != nil {
				return fmt.Errorf("runner: append guardrail patch: %w", err)
			}
			fmt.Fprintf(r.out, "[Forge/Dedup] Wrote %d new guardrail(s), skipped %d duplicate(s) for '%s'.\n",
				kept, skipped, safeID)
		} else {
			fmt.Fprintf(r.out, "[Forge/Dedup] All %d guardrail(s) for '%s' already present in SOUL.md — nothing written.\n",
				skipped, safeID)
		}
	}

	failedJSON, err := json.MarshalIndent(failedAssertions, "", "  ")
	if err != nil {
		return fmt.Errorf("runner: marshal failed assertions: %w", err)
	}

	// The record filename is built entirely from the sanitized id and a
	// timestamp. The original full patch is always recorded for audit,
	// even when every block was deduplicated away.
	timestamp := r.now().Format("20060102-150405")
	recordPath := filepath.Join(r.patchesPath, fmt.Sprintf("%s-%s.md", safeID, timestamp))
	var rec []byte
	rec = fmt.Appendf(rec, "# Patch Record: %s\n\n", safeID)
	rec = fmt.Appendf(rec, "## Failure Reason\n%s\n\n", resp.FailureReason)
	rec = fmt.Appendf(rec, "## Failed Assertions\n%s\n\n", failedJSON)
	rec = fmt.Appendf(rec, "## Agent Response\n%s\n\n", agentResponse)
	rec = fmt.Appendf(rec, "## Guardrail Patch (original)\n%s\n", resp.GuardrailPatch)
	rec = fmt.Appendf(rec, "## Dedup Result\nnew=%d skipped=%d\n", kept, skipped)
	rec = fmt.Appendf(rec, "## Confidence\n%v\n", resp.Confidence)
	if err := os.WriteFile(recordPath, rec, 0o644); err != nil {
		return fmt.Errorf("runner: write patch record: %w", err)
	}

	for _, op := range resp.SkillPatch.CreateFiles {
		if op.Path == "" || !r.box.IsSafe(op.Path) {
			if op.Path != "" {
				log.Warn().Str("path", op.Path).Msg("skill create outside sandbox, skipped")
			}
			continue
		}
		full := r.box.Resolve(op.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("runner: create skill dir: %w", err)
		}
		if err := os.WriteFile(full, []byte(op.Content), 0o644); err != nil {
			return fmt.Errorf("runner: write skill file: %w", err)
		}
	}

	for _, op := range resp.SkillPatch.ModifyFiles {
		if op.Path == "" || !r.box.IsSafe(op.Path) {
			if op.Path != "" {
				log.Warn().Str("path", op.Path).Msg("skill modify outside sandbox, skipped")
			}
			continue
		}
		f, err := os.OpenFile(r.box.Resolve(op.Path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("runner: open skill file: %w", err)
		}
		if _, err := f.WriteString(op.Append); err != nil {
			f.Close()
			return fmt.Errorf("runner: append skill file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("runner: close skill file: %w", err)
		}
	}

	return nil
}

// RunSuite executes every quest in the named suite and renders the
// session report. The report is optionally saved under reports/.
func (r *Runner) RunSuite(suiteName string, saveReport bool) ([]schema.QuestResult, error) {
	index, err := questfile.LoadIndex(filepath.Join(r.baseDir, challengesDir, "index.yaml"))
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	suite, err := index.Suite(suiteName)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	banner := ""
	if r.forge {
		banner = " (FORGE MODE)"
	}
	fmt.Fprintf(r.out, "====================================================\n")
	fmt.Fprintf(r.out, "   DojoTesuto — Suite: %s%s\n", suiteName, banner)
	fmt.Fprintf(r.out, "====================================================\n")

	if r.forge {
		r.budget.StartSuite()
	}

	var results []schema.QuestResult
	for _, rel := range suite.Quests {
		questResult, err := r.RunQuest(filepath.Join(r.baseDir, challengesDir, rel))
		if err != nil {
			return nil, err
		}
		results = append(results, *questResult)
	}

	text := report.Generate(suiteName, results, r.forge, r.now())
	fmt.Fprintf(r.out, "\n%s\n\n", text)
	if r.forge {
		fmt.Fprintf(r.out, "%s\n", r.budget.Summary())
	}

	if saveReport {
		if err := os.MkdirAll(r.reportsPath, 0o755); err != nil {
			return nil, fmt.Errorf("runner: create reports dir: %w", err)
		}
		path := filepath.Join(r.reportsPath, fmt.Sprintf("%s-%s.md", suiteName, r.now().Format("20060102-150405")))
		if err := report.Save(text, path); err != nil {
			return nil, fmt.Errorf("runner: save report: %w", err)
		}
		fmt.Fprintf(r.out, "Report saved to: %s\n\n", path)
	}

	return results, nil
}

func statusSymbol(s schema.Status) string {
	switch s {
	case schema.StatusPass:
		return "✅"
	case schema.StatusFail:
		return "❌"
	case schema.StatusSkip:
		return "⏭️"
	default:
		return "?"
	}
}
