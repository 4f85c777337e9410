package skill

import (
	"context"
	"fmt"
	"time"

	"github.com/aegisrun/aegis/internal/approval"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/trace"
)

// Executor runs one skill invocation through the entire gate pipeline and
// returns a single human-readable string. It never raises — every failure
// mode produces a diagnostic string the model can read, per the skill
// catalog's contract.
type Executor struct {
	policyEngine *policy.Engine
	approvals    *approval.Manager
	tracer       *trace.Tracer
	validator    *SchemaValidator
}

// NewExecutor constructs an Executor from the policy engine and approval
// manager singletons, the tracer, and a schema validator.
func NewExecutor(policyEngine *policy.Engine, approvals *approval.Manager, tracer *trace.Tracer, validator *SchemaValidator) *Executor {
	return &Executor{policyEngine: policyEngine, approvals: approvals, tracer: tracer, validator: validator}
}

// Run executes s with params on behalf of userID. autoApprove skips the
// approval gate even when the skill requires it (used for local/CLI
// channels per the onboarding model). The returned string always re-enters
// model context directly, whatever the outcome.
//
// The returned error is non-nil only when Execute or Sanitize itself
// faulted — a transport/programming error, not a policy denial. Rate
// limiting, invalid parameters, and a denied approval are all still "the
// executor worked correctly and reported a refusal": they come back as
// (message, nil). The orchestrator uses the distinction to decide whether a
// per-turn call slot should be released on failure.
func (e *Executor) Run(ctx context.Context, s Skill, params map[string]any, autoApprove bool, userID string) (string, error) {
	meta := s.Metadata()
	name := meta.Name
	status := "error"
	start := time.Now()

	defer func() {
		e.tracer.LogSkillCall(ctx, name, params, status, float64(time.Since(start).Milliseconds()))
	}()

	// 1. Rate limit
	if !e.policyEngine.CheckRateLimit(ctx, meta.RateLimitKey) {
		status = "rate_limited"
		return fmt.Sprintf("[%s] Rate limit reached — try again later.", name), nil
	}

	// Schema validation, ahead of the skill's own Validate.
	if e.validator != nil {
		if ok, reason := e.validator.Validate(meta, params); !ok {
			return fmt.Sprintf("[%s] Invalid parameters: %s", name, reason), nil
		}
	}

	// 2. Validate
	if ok, reason := s.Validate(params); !ok {
		return fmt.Sprintf("[%s] Invalid parameters: %s", name, reason), nil
	}

	// 3. Approval gate. Most skills declare a fixed requirement in their
	// Metadata; a few (file_write, url_fetch) gate per-call against a zone
	// or method rule that can only be known once params are in hand — those
	// implement DynamicApproval in addition to Skill.
	needsApproval := meta.RequiresApproval
	if dyn, ok := s.(DynamicApproval); ok {
		needsApproval = dyn.RequiresApprovalFor(params)
	}

	if needsApproval && !autoApprove {
		approvalID, err := e.approvals.Create(ctx, "skill:"+name, "external", string(meta.RiskLevel),
			fmt.Sprintf("Execute skill '%s' for user %s", name, userID), name, "")
		if err != nil {
			return fmt.Sprintf("[%s] Approval error: %s", name, err), nil
		}
		resolution := e.approvals.Wait(ctx, approvalID, 0)
		if resolution != approval.StatusApproved {
			return fmt.Sprintf("[%s] Skill execution was not approved.", name), nil
		}
	}

	// 4. Execute, with the caller's identity injected after validation so it
	// cannot interfere with parameter checks.
	execParams := make(map[string]any, len(params)+1)
	for k, v := range params {
		execParams[k] = v
	}
	execParams[UserIDParam] = userID

	result, err := s.Execute(ctx, execParams)
	if err != nil {
		return fmt.Sprintf("[%s] Execution error: %s", name, err), err
	}

	// 5. Sanitize
	sanitized, err := s.Sanitize(result)
	if err != nil {
		return fmt.Sprintf("[%s] Output sanitization error: %s", name, err), err
	}

	status = "success"
	return sanitized, nil
}
