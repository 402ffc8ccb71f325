package reflection

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dshills/agentdojo/internal/schema"
)

// Handler is the reflection-handler contract. The handler is fully opaque to
// the harness — how it produces a response is its own business.
type Handler func(*schema.ReflectionRequest) (*schema.ReflectionResponse, error)

// Engine brokers the reflection protocol: it assembles requests and
// delegates execution to whatever handler the integrator registers,
// typically the agent's own LLM pipeline.
type Engine struct {
	handler Handler
}

// NewEngine returns an Engine with no handler registered.
func NewEngine() *Engine {
	return &Engine{}
}

// RegisterHandler connects the agent's reasoning process to the forge loop.
func (e *Engine) RegisterHandler(h Handler) {
	e.handler = h
}

// IsConfigured reports whether a handler is registered.
func (e *Engine) IsConfigured() bool {
	return e.handler != nil
}

// Handler returns the registered handler, for callers that wrap the call
// with their own resource governance.
func (e *Engine) Handler() Handler {
	return e.handler
}

// BuildRequest assembles a structured reflection request. The hint field is
// included only when the quest author supplied one.
func (e *Engine) BuildRequest(
	quest *schema.Quest,
	failedAssertions []schema.Assertion,
	agentResponse, currentGuardrails, contract string,
) *schema.ReflectionRequest {
	req := &schema.ReflectionRequest{
		QuestID:           quest.ID,
		QuestDescription:  quest.Description,
		QuestCategory:     quest.Category,
		Contract:          contract,
		CurrentGuardrails: currentGuardrails,
		FailedAssertions:  failedAssertions,
		AgentResponse:     agentResponse,
		SystemPrompt:      SystemPrompt,
		Schemas: schema.Schemas{
			Request:  RequestSchema,
			Response: ResponseSchema,
		},
	}
	if hint := strings.TrimSpace(quest.ReflectionHint); hint != "" {
		req.ReflectionHint = hint
	}
	return req
}

// Reflect emits a request and returns the handler's response. It returns nil
// when no handler is registered or the handler fails; the caller treats nil
// as "no reflection available" and moves on. Callers that need a per-call
// timeout should use forge.Budget.CallWithTimeout with Handler() instead.
func (e *Engine) Reflect(
	quest *schema.Quest,
	failedAssertions []schema.Assertion,
	agentResponse, currentGuardrails, contract string,
) *schema.ReflectionResponse {
	if !e.IsConfigured() {
		log.Warn().Msg("forge: no reflection handler registered; register one to enable forge reflection")
		return nil
	}
	resp, err := e.handler(e.BuildRequest(quest, failedAssertions, agentResponse, currentGuardrails, contract))
	if err != nil {
		log.Warn().Err(err).Msg("forge: reflection handler failed")
		return nil
	}
	if resp == nil {
		log.Warn().Msg("forge: reflection handler returned no structured response")
		return nil
	}
	return resp
}
