package policy

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultRefusalPatterns is used when the policy document does not override
// orchestrator.refusal_patterns. It mirrors the empirical refusal-phrase set
// the orchestrator watches for on iteration 0.
var defaultRefusalPatterns = []string{
	`(?i)don.t have real.time`,
	`(?i)real.time capabilities`,
	`(?i)real.time access`,
	`(?i)training data`,
	`(?i)knowledge cutoff`,
	`(?i)can.t access the internet`,
	`(?i)cannot access the internet`,
	`(?i)no internet access`,
	`(?i)not able to browse`,
	`(?i)cannot browse`,
	`(?i)don.t have access to current`,
}

// ZoneConfig holds the per-zone rules and filesystem root for one of the
// sandbox/identity/system zones.
type ZoneConfig struct {
	Path    string `yaml:"path"`
	Read    string `yaml:"read"`
	Write   string `yaml:"write"`
	Execute string `yaml:"execute"`
}

func (z ZoneConfig) rule(action ActionType) string {
	switch action {
	case ActionRead:
		return orDefault(z.Read, "deny")
	case ActionWrite:
		return orDefault(z.Write, "deny")
	case ActionExecute:
		return orDefault(z.Execute, "deny")
	default:
		return "deny"
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// ZonesConfig groups the three configurable zones. External is not
// path-based and has no entry here.
type ZonesConfig struct {
	Sandbox  ZoneConfig `yaml:"sandbox"`
	Identity ZoneConfig `yaml:"identity"`
	System   ZoneConfig `yaml:"system"`
}

// RateLimitConfig is one bucket's admission parameters.
type RateLimitConfig struct {
	MaxCalls      int `yaml:"max_calls"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the configured window as a time.Duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// ExternalAccessConfig governs outbound HTTP: per-method rules plus a list
// of denied URL regexes checked before the method rule.
type ExternalAccessConfig struct {
	HTTPGet          string   `yaml:"http_get"`
	HTTPPost         string   `yaml:"http_post"`
	HTTPPut          string   `yaml:"http_put"`
	HTTPDelete       string   `yaml:"http_delete"`
	DeniedURLPattern []string `yaml:"denied_url_patterns"`
}

func (c ExternalAccessConfig) ruleFor(method string) string {
	switch method {
	case "GET":
		return orDefault(c.HTTPGet, "allow")
	case "POST":
		return orDefault(c.HTTPPost, "requires_approval")
	case "PUT":
		return orDefault(c.HTTPPut, "requires_approval")
	case "DELETE":
		return orDefault(c.HTTPDelete, "requires_approval")
	default:
		return "requires_approval"
	}
}

// OrchestratorConfig holds orchestrator-facing policy: currently just the
// reloadable refusal-nudge regex set.
type OrchestratorConfig struct {
	RefusalPatterns []string `yaml:"refusal_patterns"`
}

// Config is the decoded policy document — everything here is hot-reloadable
// except the compiled-in hard shell deny-list, which never appears in this
// struct.
type Config struct {
	Zones          ZonesConfig                `yaml:"zones"`
	RateLimits     map[string]RateLimitConfig `yaml:"rate_limits"`
	ExternalAccess ExternalAccessConfig       `yaml:"external_access"`
	Orchestrator   OrchestratorConfig         `yaml:"orchestrator"`

	deniedURLPatterns  []*regexp.Regexp
	refusalPatterns    []*regexp.Regexp
}

func (c *Config) zoneRules(zone Zone) (ZoneConfig, bool) {
	switch zone {
	case ZoneSandbox:
		return c.Zones.Sandbox, true
	case ZoneIdentity:
		return c.Zones.Identity, true
	case ZoneSystem:
		return c.Zones.System, true
	default:
		return ZoneConfig{}, false
	}
}

func (c *Config) rateLimitFor(bucket string) RateLimitConfig {
	if rl, ok := c.RateLimits[bucket]; ok {
		return rl
	}
	if rl, ok := c.RateLimits["default"]; ok {
		return rl
	}
	return RateLimitConfig{MaxCalls: 30, WindowSeconds: 60}
}

func (c *Config) compiledDeniedURLPatterns() []*regexp.Regexp {
	return c.deniedURLPatterns
}

func (c *Config) compiledRefusalPatterns() []*regexp.Regexp {
	return c.refusalPatterns
}

// loadConfig reads path (resolving $include directives, expanding
// environment variables) and compiles every regex field once so hot path
// checks never recompile. Any error here is fatal at startup and, on
// reload, causes the caller to keep the prior Config.
func loadConfig(path string) (*Config, error) {
	raw, err := loadRawRecursive(path, map[string]bool{})
	if err != nil {
		return nil, err
	}

	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize merged config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("parse merged config: %w", err)
	}

	patterns := cfg.ExternalAccess.DeniedURLPattern
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile denied_url_pattern %q: %w", p, err)
		}
		cfg.deniedURLPatterns = append(cfg.deniedURLPatterns, re)
	}

	refusal := cfg.Orchestrator.RefusalPatterns
	if len(refusal) == 0 {
		refusal = defaultRefusalPatterns
	}
	for _, p := range refusal {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile refusal_pattern %q: %w", p, err)
		}
		cfg.refusalPatterns = append(cfg.refusalPatterns, re)
	}

	return &cfg, nil
}

const includeKey = "$include"

// loadRawRecursive loads path into a merged raw map, resolving $include
// directives with cycle detection and expanding environment variables —
// the same mechanics the application config loader uses.
func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	if len(includes) > 0 {
		baseDir := filepath.Dir(absPath)
		for _, inc := range includes {
			if strings.TrimSpace(inc) == "" {
				continue
			}
			incPath := inc
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(baseDir, incPath)
			}
			incRaw, err := loadRawRecursive(incPath, seen)
			if err != nil {
				return nil, err
			}
			merged = mergeMaps(merged, incRaw)
		}
	}

	return mergeMaps(merged, raw), nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	val, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	switch typed := val.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}
