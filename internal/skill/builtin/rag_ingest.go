package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aegisrun/aegis/internal/memory"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

const ragIngestParamsSchema = `{
	"type": "object",
	"properties": {
		"text": {"type": "string", "description": "The text content to add to the knowledge base."},
		"source": {"type": "string", "description": "Optional label for where this content came from."}
	},
	"required": ["text"]
}`

const (
	ragIngestMaxTextChars = 50000
	ragChunkSize          = 800
	ragChunkOverlap       = 100
)

// RagIngest chunks text and stores each chunk in the shared knowledge base
// that rag_search later queries, composing pdf_parse-style extraction
// (the caller typically feeds this the output of pdf_parse or file_read)
// with remember-style storage.
type RagIngest struct {
	store memory.Store
}

// NewRagIngest constructs a RagIngest skill backed by store.
func NewRagIngest(store memory.Store) *RagIngest {
	return &RagIngest{store: store}
}

func (s *RagIngest) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "rag_ingest",
		Description: "Add text content to the local knowledge base so it can be retrieved later " +
			"via rag_search. Use this to store facts, documents, or notes that should persist " +
			"across conversations.",
		Parameters:       json.RawMessage(ragIngestParamsSchema),
		RiskLevel:        policy.RiskLow,
		RateLimitKey:     "rag_ingest",
		RequiresApproval: false,
		MaxCallsPerTurn:  5,
	}
}

func (s *RagIngest) Validate(params map[string]any) (bool, string) {
	text, ok := params["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return false, "parameter 'text' must be a non-empty string"
	}
	if len(text) > ragIngestMaxTextChars {
		return false, fmt.Sprintf("parameter 'text' must be under %d characters", ragIngestMaxTextChars)
	}
	if src, present := params["source"]; present {
		if _, ok := src.(string); !ok {
			return false, "parameter 'source' must be a string"
		}
	}
	return true, ""
}

func (s *RagIngest) Execute(ctx context.Context, params map[string]any) (any, error) {
	text := params["text"].(string)
	source, _ := params["source"].(string)
	if source == "" {
		source = "agent"
	}

	chunks := chunkText(text, ragChunkSize, ragChunkOverlap)
	for _, chunk := range chunks {
		if _, err := s.store.Add(ctx, memory.Entry{
			UserID:  ragNamespace,
			Type:    "document",
			Content: chunk,
			Source:  source,
		}); err != nil {
			return nil, err
		}
	}
	return ragIngestResult{ChunksAdded: len(chunks), Source: source}, nil
}

type ragIngestResult struct {
	ChunksAdded int
	Source      string
}

func (s *RagIngest) Sanitize(result any) (string, error) {
	r, ok := result.(ragIngestResult)
	if !ok {
		return fmt.Sprintf("%v", result), nil
	}
	return fmt.Sprintf("Added %d chunk(s) to knowledge base (source: %s).", r.ChunksAdded, r.Source), nil
}

// chunkText splits text into overlapping fixed-size chunks.
func chunkText(text string, size, overlap int) []string {
	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
		start = end - overlap
	}
	return chunks
}
