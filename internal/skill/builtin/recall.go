package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aegisrun/aegis/internal/memory"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

const recallParamsSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "What to search for in memory (max 500 chars)."},
		"n_results": {"type": "integer", "description": "Number of results to return (1-10, default 5)."}
	},
	"required": ["query"]
}`

// Recall performs semantic search over long-term agent memory, scoped to
// the calling user.
type Recall struct {
	store memory.Store
}

// NewRecall constructs a Recall skill backed by store.
func NewRecall(store memory.Store) *Recall {
	return &Recall{store: store}
}

func (s *Recall) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "recall",
		Description: "Search long-term memory for stored facts, observations, or preferences. Use " +
			"this to retrieve information remembered from previous conversations.",
		Parameters:       json.RawMessage(recallParamsSchema),
		RiskLevel:        policy.RiskLow,
		RateLimitKey:     "recall",
		RequiresApproval: false,
		MaxCallsPerTurn:  5,
	}
}

func (s *Recall) Validate(params map[string]any) (bool, string) {
	query, ok := params["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return false, "parameter 'query' must be a non-empty string"
	}
	if len(query) > 500 {
		return false, "parameter 'query' must be under 500 characters"
	}

	if n, present := params["n_results"]; present {
		nf, ok := n.(float64)
		if !ok || nf != float64(int(nf)) {
			return false, "parameter 'n_results' must be an integer"
		}
		if nf < 1 || nf > 10 {
			return false, "parameter 'n_results' must be between 1 and 10"
		}
	}
	return true, ""
}

func (s *Recall) Execute(ctx context.Context, params map[string]any) (any, error) {
	query := params["query"].(string)
	userID, _ := params[skill.UserIDParam].(string)

	n := 5
	if nr, present := params["n_results"]; present {
		if nf, ok := nr.(float64); ok {
			n = int(nf)
		}
	}

	results, err := s.store.Search(ctx, userID, query, n)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	formatted := make([]recallEntry, 0, len(results))
	for _, r := range results {
		formatted = append(formatted, recallEntry{
			Type:    r.Entry.Type,
			Age:     formatAge(now.Sub(r.Entry.Timestamp)),
			Content: r.Entry.Content,
		})
	}
	return formatted, nil
}

type recallEntry struct {
	Type    string
	Age     string
	Content string
}

func (s *Recall) Sanitize(result any) (string, error) {
	entries, ok := result.([]recallEntry)
	if !ok {
		return fmt.Sprintf("%v", result), nil
	}
	if len(entries) == 0 {
		return "No memories found.", nil
	}
	var lines []string
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. [%s, %s] %s", i+1, e.Type, e.Age, e.Content))
	}
	return strings.Join(lines, "\n"), nil
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dw", int(d.Hours()/(24*7)))
	default:
		return fmt.Sprintf("%dmo", int(d.Hours()/(24*30)))
	}
}
