// Package builtin implements the agent's default skill catalog: web search,
// zone-gated file I/O, long-term memory, document retrieval, and generic
// URL fetch.
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

const webSearchParamsSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "The web search query."}
	},
	"required": ["query"]
}`

// suspiciousContentPattern strips HTML, script/data URIs, and basic
// prompt-injection phrasing from web content before it re-enters model
// context — the same pattern the teacher's original search and fetch
// skills both reuse.
var suspiciousContentPattern = regexp.MustCompile(
	`(?i)<[^>]+>|javascript:|data:|ignore\s+previous|system\s+prompt|disregard\s+instructions`,
)

const tavilySearchURL = "https://api.tavily.com/search"

// WebSearch queries the Tavily REST API for live web results. The API key
// is fetched from the environment at Execute time via GetSecret — it is
// never visible to the model or logged.
type WebSearch struct {
	httpClient *http.Client
}

// NewWebSearch constructs a WebSearch skill with a bounded-timeout client.
func NewWebSearch() *WebSearch {
	return &WebSearch{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (s *WebSearch) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "web_search",
		Description: "Search the web for real-time information. Call this tool when asked about: " +
			"current events, breaking news, sports scores or results, stock prices, weather, recently " +
			"released software or products, or any fact that may have changed since training. Do not " +
			"answer from training data for these topics — search instead.",
		Parameters:       json.RawMessage(webSearchParamsSchema),
		RiskLevel:        policy.RiskLow,
		RateLimitKey:     "web_search",
		RequiresApproval: false,
		MaxCallsPerTurn:  3,
	}
}

func (s *WebSearch) Validate(params map[string]any) (bool, string) {
	query, ok := params["query"].(string)
	if !ok {
		return false, "parameter 'query' must be a string"
	}
	if strings.TrimSpace(query) == "" {
		return false, "parameter 'query' must not be empty"
	}
	if len(query) > 500 {
		return false, "parameter 'query' must be under 500 characters"
	}
	return true, ""
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

const maxSearchResults = 5

func (s *WebSearch) Execute(ctx context.Context, params map[string]any) (any, error) {
	query := params["query"].(string)

	apiKey, err := skill.GetSecret("TAVILY_API_KEY")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:      apiKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  maxSearchResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilySearchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search returned status %d", resp.StatusCode)
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Results, nil
}

func (s *WebSearch) Sanitize(result any) (string, error) {
	results, ok := result.([]tavilyResult)
	if !ok || len(results) == 0 {
		return "No search results found.", nil
	}

	var snippets []string
	for _, r := range results {
		title := suspiciousContentPattern.ReplaceAllString(strings.TrimSpace(r.Title), "")
		content := suspiciousContentPattern.ReplaceAllString(strings.TrimSpace(r.Content), "")

		snippet := content
		if title != "" {
			snippet = fmt.Sprintf("**%s**\n%s", title, content)
		}
		if len(snippet) > 1000 {
			snippet = snippet[:1000] + " [truncated]"
		}
		if strings.TrimSpace(snippet) != "" {
			snippets = append(snippets, snippet)
		}
	}

	if len(snippets) == 0 {
		return "No usable search results found.", nil
	}
	return strings.Join(snippets, "\n\n---\n\n"), nil
}
