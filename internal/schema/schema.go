// Package schema defines all canonical data types for the agentdojo harness.
package schema

// Status represents the outcome of a single challenge run.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
)

// StepType identifies the kind of a quest step. The set is closed; the
// challenge engine switches exhaustively over it.
type StepType string

const (
	StepSimulateTimeout StepType = "simulate_timeout"
	StepInjectText      StepType = "inject_text"
	StepBadToolArgs     StepType = "bad_tool_args"
	StepSetFact         StepType = "set_fact"
	StepAsk             StepType = "ask"
)

// AssertionType identifies the kind of a quest assertion.
type AssertionType string

const (
	AssertMustContain    AssertionType = "must_contain"
	AssertMustNotContain AssertionType = "must_not_contain"
	AssertMustEqual      AssertionType = "must_equal"
	AssertBudgetOK       AssertionType = "budget_ok"

	// AssertBudgetExceeded never appears in quest files. It marks the
	// synthetic failed assertion injected when a run exceeded its budget
	// without declaring a budget_ok check.
	AssertBudgetExceeded AssertionType = "budget_exceeded"
)

// AttemptKind distinguishes a primary challenge run from a variant re-run.
type AttemptKind string

const (
	AttemptPrimary AttemptKind = "primary"
	AttemptVariant AttemptKind = "variant"
)

// StepPayload carries the parameters of a step. Which fields are meaningful
// depends on the step type; unused fields stay at their zero values.
type StepPayload struct {
	Seconds  float64        `yaml:"seconds,omitempty" json:"seconds,omitempty"`
	Source   string         `yaml:"source,omitempty" json:"source,omitempty"`
	Text     string         `yaml:"text,omitempty" json:"text,omitempty"`
	ToolName string         `yaml:"tool_name,omitempty" json:"tool_name,omitempty"`
	Args     map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
	Key      string         `yaml:"key,omitempty" json:"key,omitempty"`
	Value    any            `yaml:"value,omitempty" json:"value,omitempty"`
	Question string         `yaml:"question,omitempty" json:"question,omitempty"`
}

// Step is one scripted action replayed by the challenge engine.
type Step struct {
	Type    StepType    `yaml:"type" json:"type"`
	Payload StepPayload `yaml:"payload" json:"payload"`
}

// AssertionPayload carries the parameters of an assertion. must_equal with a
// non-empty Key addresses session facts; with only Field it addresses the raw
// execution-context field. The two modes are never conflated.
type AssertionPayload struct {
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Text  string `yaml:"text,omitempty" json:"text,omitempty"`
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Assertion is one post-playback check graded against the execution context.
type Assertion struct {
	Type    AssertionType    `yaml:"type" json:"type"`
	Payload AssertionPayload `yaml:"payload" json:"payload"`
	// Details is set only on the synthetic assertion injected when a budget
	// was exceeded without a declared budget_ok check.
	Details string `yaml:"-" json:"details,omitempty"`
}

// ChallengeDefinition is an ordered script of steps plus the assertions that
// grade the resulting execution context. Pure data; replayed, never mutated.
type ChallengeDefinition struct {
	Steps      []Step      `yaml:"steps" json:"steps"`
	Assertions []Assertion `yaml:"assertions" json:"assertions"`
}

// Budget bounds the execution of any of a quest's challenge definitions.
// Zero values mean unlimited. The budget lives at the quest root only; a
// challenge definition never carries its own.
type Budget struct {
	MaxSteps   int     `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	MaxSeconds float64 `yaml:"max_seconds,omitempty" json:"max_seconds,omitempty"`
	MaxTokens  int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// Quest is one scripted test scenario. Immutable once loaded.
type Quest struct {
	ID             string                `yaml:"id" json:"id"`
	Tier           string                `yaml:"tier" json:"tier"`
	Category       string                `yaml:"category" json:"category"`
	Description    string                `yaml:"description" json:"description"`
	Mock           bool                  `yaml:"mock" json:"mock"`
	Budget         *Budget               `yaml:"budget" json:"budget"`
	Primary        ChallengeDefinition   `yaml:"primary" json:"primary"`
	Variants       []ChallengeDefinition `yaml:"variants" json:"variants"`
	ReflectionHint string                `yaml:"reflection_hint,omitempty" json:"reflection_hint,omitempty"`
}

// ChallengeResult is the graded outcome of one challenge run.
type ChallengeResult struct {
	Status           Status      `json:"status"`
	Score            float64     `json:"score"`
	FailedAssertions []Assertion `json:"failed_assertions"`
	AgentResponse    string      `json:"agent_response"`
	SkipReason       string      `json:"skip_reason,omitempty"`
}

// QuestResult aggregates one quest's primary run and, in forge mode, the
// post-learning variant run.
//
// Invariant: VariantPass is true only when PostLearning is non-nil with
// status PASS, forge mode was active, a reflection handler was registered,
// and a patch was applied.
type QuestResult struct {
	ID             string           `json:"id"`
	Initial        *ChallengeResult `json:"initial"`
	PostLearning   *ChallengeResult `json:"post_learning"`
	VariantPass    bool             `json:"variant_pass"`
	PatchesCreated int              `json:"patches_created"`
}

// AnswerRequest is the payload delivered to a registered answer handler when
// an ask step suspends.
type AnswerRequest struct {
	Question       string         `json:"question"`
	Guardrails     string         `json:"guardrails"`
	Contract       string         `json:"contract"`
	QuestID        string         `json:"quest_id"`
	Attempt        AttemptKind    `json:"attempt"`
	InjectedText   string         `json:"injected_text,omitempty"`
	InjectedSource string         `json:"injected_source,omitempty"`
	Facts          map[string]any `json:"facts"`
}

// ReflectionRequest packages a quest failure for the agent's own reasoning
// process. The harness never calls a model itself.
type ReflectionRequest struct {
	QuestID           string      `json:"quest_id"`
	QuestDescription  string      `json:"quest_description"`
	QuestCategory     string      `json:"quest_category"`
	Contract          string      `json:"contract"`
	CurrentGuardrails string      `json:"current_guardrails"`
	FailedAssertions  []Assertion `json:"failed_assertions"`
	AgentResponse     string      `json:"agent_response"`
	SystemPrompt      string      `json:"_system_prompt"`
	Schemas           Schemas     `json:"_schemas"`
	ReflectionHint    string      `json:"reflection_hint,omitempty"`
}

// Schemas carries the two protocol schema documents embedded in every
// reflection request, so a handler can relay them verbatim to its model.
type Schemas struct {
	Request  string `json:"request"`
	Response string `json:"response"`
}

// FileCreate is a sandboxed create-file operation proposed by a reflection.
type FileCreate struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileModify is a sandboxed append-file operation proposed by a reflection.
type FileModify struct {
	Path   string `json:"path"`
	Append string `json:"append"`
}

// SkillPatch groups the file operations proposed by a reflection.
type SkillPatch struct {
	CreateFiles []FileCreate `json:"create_files"`
	ModifyFiles []FileModify `json:"modify_files"`
}

// ReflectionResponse is the structure a reflection handler must return.
// It is untrusted until it passes reflection.ValidateResponse.
type ReflectionResponse struct {
	FailureReason  string     `json:"failure_reason"`
	GuardrailPatch string     `json:"guardrail_patch"`
	SkillPatch     SkillPatch `json:"skill_patch"`
	Confidence     float64    `json:"confidence"`
}
