package builtin

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aegisrun/aegis/internal/memory"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

// ragNamespace is the shared, cross-user memory.Store "user" that rag_search
// and rag_ingest write into — a knowledge base is intentionally not scoped
// to one caller the way remember/recall memories are.
const ragNamespace = "_rag"

const ragSearchParamsSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "The search query to find relevant documents."}
	},
	"required": ["query"]
}`

const (
	ragSearchMaxOutputChars = 2000
	ragSearchNResults       = 3
)

// RagSearch searches the local knowledge base populated by rag_ingest.
type RagSearch struct {
	store memory.Store
}

// NewRagSearch constructs a RagSearch skill backed by store.
func NewRagSearch(store memory.Store) *RagSearch {
	return &RagSearch{store: store}
}

func (s *RagSearch) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "rag_search",
		Description: "Search the local knowledge base for documents relevant to a query. Use this " +
			"when you need to look up information from uploaded or indexed documents.",
		Parameters:       json.RawMessage(ragSearchParamsSchema),
		RiskLevel:        policy.RiskLow,
		RateLimitKey:     "rag_search",
		RequiresApproval: false,
		MaxCallsPerTurn:  5,
	}
}

func (s *RagSearch) Validate(params map[string]any) (bool, string) {
	query, ok := params["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return false, "parameter 'query' must be a non-empty string"
	}
	if len(query) > 1000 {
		return false, "parameter 'query' must be under 1000 characters"
	}
	return true, ""
}

func (s *RagSearch) Execute(ctx context.Context, params map[string]any) (any, error) {
	query := params["query"].(string)
	results, err := s.store.Search(ctx, ragNamespace, query, ragSearchNResults)
	if err != nil {
		return nil, err
	}
	docs := make([]string, 0, len(results))
	for _, r := range results {
		docs = append(docs, r.Entry.Content)
	}
	return docs, nil
}

func (s *RagSearch) Sanitize(result any) (string, error) {
	docs, ok := result.([]string)
	if !ok || len(docs) == 0 {
		return "No relevant documents found.", nil
	}
	joined := strings.Join(docs, "\n\n")
	if len(joined) > ragSearchMaxOutputChars {
		joined = joined[:ragSearchMaxOutputChars] + "\n[truncated]"
	}
	return joined, nil
}
