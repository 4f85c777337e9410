// Package skill implements the skill catalog and executor: a named,
// side-effectful operation exposed to the model, and the full
// rate-limit → validate → approve → execute → sanitize → trace pipeline
// that runs one invocation of it.
package skill

import (
	"context"
	"encoding/json"

	"github.com/aegisrun/aegis/internal/policy"
)

// UserIDParam is the reserved params key the executor injects the caller's
// user identity under before calling Execute, for user-scoped skills like
// remember/recall.
const UserIDParam = "_user_id"

// Metadata describes a skill for policy-engine inspection and for the
// model-facing tool schema.
type Metadata struct {
	Name             string
	Description      string
	Parameters       json.RawMessage // JSON-schema
	RiskLevel        policy.RiskLevel
	RateLimitKey     string
	RequiresApproval bool
	MaxCallsPerTurn  int
}

// Skill is the capability contract every built-in and future skill
// implements. Every skill returns a plain string from Sanitize — no "Any"
// hop — so the executor never needs a tagged-union result type.
type Skill interface {
	Metadata() Metadata
	Validate(params map[string]any) (ok bool, reason string)
	Execute(ctx context.Context, params map[string]any) (any, error)
	Sanitize(result any) (string, error)
}

// DynamicApproval is implemented by skills whose approval requirement
// depends on the call's parameters rather than being fixed in Metadata —
// e.g. file_write asks the policy engine which zone the target path
// resolves into, url_fetch asks it which rule applies to the HTTP method.
// The executor consults this in preference to Metadata().RequiresApproval
// when a skill implements it.
type DynamicApproval interface {
	RequiresApprovalFor(params map[string]any) bool
}
