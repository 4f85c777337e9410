package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegisrun/aegis/internal/memory"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

const rememberParamsSchema = `{
	"type": "object",
	"properties": {
		"content": {"type": "string", "description": "The fact or observation to remember (max 1000 chars)."},
		"type": {"type": "string", "enum": ["fact", "observation", "preference"], "description": "Category of memory."}
	},
	"required": ["content"]
}`

const maxRememberChars = 1000

var validMemoryTypes = map[string]bool{"fact": true, "observation": true, "preference": true}

// Remember stores a fact, observation, or preference to long-term memory,
// scoped to the calling user. Content is sanitized and checked for
// prompt-injection patterns before it is ever persisted.
type Remember struct {
	store memory.Store
}

// NewRemember constructs a Remember skill backed by store.
func NewRemember(store memory.Store) *Remember {
	return &Remember{store: store}
}

func (s *Remember) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "remember",
		Description: "Store a fact, observation, or preference to long-term memory. Use this to " +
			"remember important details about the user or conversation that should persist across " +
			"sessions.",
		Parameters:       json.RawMessage(rememberParamsSchema),
		RiskLevel:        policy.RiskLow,
		RateLimitKey:     "remember",
		RequiresApproval: false,
		MaxCallsPerTurn:  5,
	}
}

func (s *Remember) Validate(params map[string]any) (bool, string) {
	content, ok := params["content"].(string)
	if !ok || content == "" {
		return false, "parameter 'content' must be a non-empty string"
	}
	if len(content) > maxRememberChars {
		return false, fmt.Sprintf("parameter 'content' must be under %d characters", maxRememberChars)
	}

	memoryType := "fact"
	if t, present := params["type"]; present {
		s, ok := t.(string)
		if !ok {
			return false, "parameter 'type' must be a string"
		}
		memoryType = s
	}
	if !validMemoryTypes[memoryType] {
		return false, "parameter 'type' must be one of: fact, observation, preference"
	}

	if _, err := skill.SanitizeMemory(content); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (s *Remember) Execute(ctx context.Context, params map[string]any) (any, error) {
	content := params["content"].(string)
	memoryType, _ := params["type"].(string)
	if memoryType == "" {
		memoryType = "fact"
	}
	userID, _ := params[skill.UserIDParam].(string)

	cleaned, err := skill.SanitizeMemory(content)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Add(ctx, memory.Entry{
		UserID:  userID,
		Type:    memoryType,
		Content: cleaned,
		Source:  "agent",
	})
	if err != nil {
		return nil, err
	}
	return rememberResult{ID: id, Type: memoryType, Content: cleaned}, nil
}

type rememberResult struct {
	ID      string
	Type    string
	Content string
}

func (s *Remember) Sanitize(result any) (string, error) {
	r, ok := result.(rememberResult)
	if !ok {
		return fmt.Sprintf("%v", result), nil
	}
	content := r.Content
	if len(content) > 100 {
		content = content[:100]
	}
	return fmt.Sprintf("Stored %s: %s", r.Type, content), nil
}
