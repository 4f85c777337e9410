// Package orchestrator drives the model-↔-skills loop for one user turn:
// it calls the model, dispatches any tool calls it requests to the skill
// executor, feeds results back as tool-role messages, and repeats until the
// model answers in plain text or the iteration cap is reached.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegisrun/aegis/internal/modelclient"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

// refusalNudge is appended as a user message the one time a refusal is
// detected on iteration 0 before any skill has been called.
const refusalNudge = "You have a web_search tool available. Please use it now to find a " +
	"current answer rather than relying on training data."

// maxIterationsPrefix is prepended to the final answer when the loop
// exhausts its iteration budget without the model producing a plain-text
// reply on its own.
const maxIterationsPrefix = "[max iterations reached]\n"

// Stats summarizes one Run call for the caller (logging, /chat response
// metadata).
type Stats struct {
	Iterations   int
	SkillsCalled []string
}

// Orchestrator holds the three long-lived collaborators a turn needs: the
// model provider, the skill catalog it may call into, and the executor that
// runs the full per-call gate pipeline.
type Orchestrator struct {
	provider      modelclient.Provider
	catalog       *skill.Catalog
	executor      *skill.Executor
	policyEngine  *policy.Engine
	maxIterations int
}

// New constructs an Orchestrator. maxIterations <= 0 defaults to 10.
func New(provider modelclient.Provider, catalog *skill.Catalog, executor *skill.Executor, policyEngine *policy.Engine, maxIterations int) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Orchestrator{
		provider:      provider,
		catalog:       catalog,
		executor:      executor,
		policyEngine:  policyEngine,
		maxIterations: maxIterations,
	}
}

// Run drives one user turn to completion. messages is the conversation so
// far; system and model are passed straight to the provider on every call.
// autoApprove and userID are threaded straight through to the executor.
//
// Run returns the final assistant-facing text, the full updated message
// list including the tool turns (the caller must not persist these to
// long-lived chat history — they exist only to ground this answer), and
// run statistics.
func (o *Orchestrator) Run(ctx context.Context, messages []modelclient.Message, system, model string, autoApprove bool, userID string) (string, []modelclient.Message, Stats, error) {
	tools := o.toolSchemas()

	if len(tools) == 0 {
		resp, err := o.provider.Complete(ctx, modelclient.CompletionRequest{Model: model, System: system, Messages: messages})
		if err != nil {
			return "", messages, Stats{}, err
		}
		messages = append(messages, modelclient.Message{Role: "assistant", Content: resp.Text})
		return resp.Text, messages, Stats{Iterations: 0, SkillsCalled: nil}, nil
	}

	callCounts := make(map[string]int)
	var skillsCalled []string
	nudged := false

	for iter := 0; iter < o.maxIterations; iter++ {
		resp, err := o.provider.Complete(ctx, modelclient.CompletionRequest{
			Model: model, System: system, Messages: messages, Tools: tools,
		})
		if err != nil {
			return "", messages, Stats{Iterations: iter, SkillsCalled: skillsCalled}, err
		}

		if len(resp.ToolCalls) == 0 {
			if iter == 0 && len(skillsCalled) == 0 && !nudged && matchesRefusal(o.policyEngine, resp.Text) {
				nudged = true
				messages = append(messages, modelclient.Message{Role: "assistant", Content: resp.Text})
				messages = append(messages, modelclient.Message{Role: "user", Content: refusalNudge})
				continue
			}
			messages = append(messages, modelclient.Message{Role: "assistant", Content: resp.Text})
			return resp.Text, messages, Stats{Iterations: iter, SkillsCalled: skillsCalled}, nil
		}

		messages = append(messages, modelclient.Message{Role: "assistant", ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			result := o.dispatch(ctx, call, callCounts, autoApprove, userID, &skillsCalled)
			messages = append(messages, modelclient.Message{Role: "tool", Content: result, ToolCallID: call.ID})
		}
	}

	messages = append(messages, modelclient.Message{
		Role:    "user",
		Content: "Iteration limit reached. Provide your best conclusion based on what you know so far.",
	})
	resp, err := o.provider.Complete(ctx, modelclient.CompletionRequest{Model: model, System: system, Messages: messages})
	if err != nil {
		return "", messages, Stats{Iterations: o.maxIterations, SkillsCalled: skillsCalled}, err
	}
	final := maxIterationsPrefix + resp.Text
	messages = append(messages, modelclient.Message{Role: "assistant", Content: final})
	return final, messages, Stats{Iterations: o.maxIterations, SkillsCalled: skillsCalled}, nil
}

// dispatch resolves one tool call to a skill invocation, honoring the
// unknown-skill and per-turn-cap refusals before ever reaching the
// executor, and the "reserve on enter, release on fail" accounting once it
// does.
func (o *Orchestrator) dispatch(ctx context.Context, call modelclient.ToolCall, callCounts map[string]int, autoApprove bool, userID string, skillsCalled *[]string) string {
	s, ok := o.catalog.Get(call.Name)
	if !ok {
		return fmt.Sprintf("[%s] Unknown skill — not registered.", call.Name)
	}

	meta := s.Metadata()
	if meta.MaxCallsPerTurn > 0 && callCounts[meta.Name] >= meta.MaxCallsPerTurn {
		return fmt.Sprintf("[%s] Per-turn call limit (%d) reached — try a different approach.", meta.Name, meta.MaxCallsPerTurn)
	}

	params := parseArguments(call.Arguments)

	callCounts[meta.Name]++
	result, err := o.executor.Run(ctx, s, params, autoApprove, userID)
	if err != nil {
		callCounts[meta.Name]--
	}

	*skillsCalled = append(*skillsCalled, meta.Name)
	return result
}

// parseArguments accepts either a JSON object or a JSON-encoded string
// wrapping one (some models double-encode tool arguments); a parse failure
// of either falls back to an empty object rather than aborting the call.
func parseArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		var nested map[string]any
		if err := json.Unmarshal([]byte(encoded), &nested); err == nil {
			return nested
		}
	}

	return map[string]any{}
}

func matchesRefusal(policyEngine *policy.Engine, text string) bool {
	for _, re := range policyEngine.RefusalPatterns() {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// toolSchemas builds the model-facing tool list from the catalog. An empty
// catalog yields a nil slice, which Run treats as the no-skills fast path.
func (o *Orchestrator) toolSchemas() []modelclient.ToolSchema {
	metas := o.catalog.List()
	if len(metas) == 0 {
		return nil
	}
	schemas := make([]modelclient.ToolSchema, len(metas))
	for i, m := range metas {
		schemas[i] = modelclient.ToolSchema{Name: m.Name, Description: m.Description, Parameters: m.Parameters}
	}
	return schemas
}
