package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

const urlFetchParamsSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "The full URL to fetch (must be http or https)."},
		"method": {"type": "string", "enum": ["GET", "POST"], "description": "HTTP method (default GET)."}
	},
	"required": ["url"]
}`

const (
	urlFetchMaxResponseBytes = 1 << 20 // 1 MiB
	urlFetchMaxOutputChars   = 5000
)

var collapseBlankLinesPattern = regexp.MustCompile(`\n{3,}`)

// UrlFetch fetches a URL through the policy engine's HTTP access gate,
// which applies the SSRF guard and denied-URL patterns ahead of the
// per-method rule. Non-GET calls may require owner approval depending on
// that rule, so UrlFetch implements DynamicApproval.
type UrlFetch struct {
	policyEngine *policy.Engine
	httpClient   *http.Client
}

// NewUrlFetch constructs a UrlFetch skill bound to engine.
func NewUrlFetch(engine *policy.Engine) *UrlFetch {
	return &UrlFetch{policyEngine: engine, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

func (s *UrlFetch) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "url_fetch",
		Description: "Fetch the text content of a web page or URL. Use this to read a specific " +
			"page when you have its URL, such as documentation, articles, or public data. Only " +
			"http and https URLs are supported.",
		Parameters:       json.RawMessage(urlFetchParamsSchema),
		RiskLevel:        policy.RiskLow,
		RateLimitKey:     "url_fetch",
		RequiresApproval: false,
		MaxCallsPerTurn:  3,
	}
}

func (s *UrlFetch) RequiresApprovalFor(params map[string]any) bool {
	rawURL, method, ok := urlFetchParams(params)
	if !ok {
		return false
	}
	return s.policyEngine.CheckHTTPAccess(rawURL, method).Decision == policy.DecisionRequiresApproval
}

func (s *UrlFetch) Validate(params map[string]any) (bool, string) {
	rawURL, method, ok := urlFetchParams(params)
	if !ok {
		return false, "parameter 'url' must be a non-empty string"
	}
	if len(rawURL) > 2048 {
		return false, "parameter 'url' must be under 2048 characters"
	}

	result := s.policyEngine.CheckHTTPAccess(rawURL, method)
	if result.Decision == policy.DecisionDeny {
		return false, result.Reason
	}
	return true, ""
}

func urlFetchParams(params map[string]any) (rawURL, method string, ok bool) {
	u, present := params["url"].(string)
	if !present || strings.TrimSpace(u) == "" {
		return "", "", false
	}
	method = "GET"
	if m, present := params["method"].(string); present && m != "" {
		method = strings.ToUpper(m)
	}
	return u, method, true
}

func (s *UrlFetch) Execute(ctx context.Context, params map[string]any) (any, error) {
	rawURL, method, _ := urlFetchParams(params)

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aegis-agent/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, urlFetchMaxResponseBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return fetchResult{URL: rawURL, Content: string(body), StatusCode: resp.StatusCode}, nil
}

type fetchResult struct {
	URL        string
	Content    string
	StatusCode int
}

func (s *UrlFetch) Sanitize(result any) (string, error) {
	r, ok := result.(fetchResult)
	if !ok {
		return fmt.Sprintf("%v", result), nil
	}

	content := suspiciousContentPattern.ReplaceAllString(r.Content, "")
	content = collapseBlankLinesPattern.ReplaceAllString(content, "\n\n")
	content = strings.TrimSpace(content)
	if len(content) > urlFetchMaxOutputChars {
		content = content[:urlFetchMaxOutputChars] + "\n[truncated]"
	}

	return fmt.Sprintf("[%s] (HTTP %d)\n\n%s", r.URL, r.StatusCode, content), nil
}
