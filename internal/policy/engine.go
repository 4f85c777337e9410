package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// Engine is the central policy engine — enforces zone rules, the hard
// deny-list, HTTP access rules, and rate limits. One Engine is constructed
// at startup and held by reference; its configuration may be swapped
// atomically by Reload, but the Engine value itself never moves.
type Engine struct {
	configPath string
	limiter    RateLimiter
	resolver   *zoneResolver

	cfg atomic.Pointer[Config]
}

// NewEngine loads configPath and constructs an Engine. Per the fail-closed
// contract, any error reading or parsing the initial document is fatal —
// the caller should not start the server on a non-nil error.
func NewEngine(configPath string, limiter RateLimiter) (*Engine, error) {
	e := &Engine{configPath: configPath, limiter: limiter, resolver: newZoneResolver()}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("policy: load config: %w", err)
	}
	if err := e.applyConfig(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) applyConfig(cfg *Config) error {
	if err := e.resolver.setZones(cfg.Zones.Sandbox.Path, cfg.Zones.Identity.Path, cfg.Zones.System.Path); err != nil {
		return err
	}
	e.cfg.Store(cfg)
	return nil
}

// Reload re-reads the policy document. A parse failure leaves the prior
// configuration in place and is returned to the caller (typically surfaced
// as a 500 on POST /policy/reload) — the hard deny-list is unaffected
// either way since it is never part of Config.
func (e *Engine) Reload() error {
	cfg, err := loadConfig(e.configPath)
	if err != nil {
		return fmt.Errorf("policy: reload: keeping prior config: %w", err)
	}
	return e.applyConfig(cfg)
}

func (e *Engine) config() *Config {
	return e.cfg.Load()
}

// ResolveZone maps an absolute or relative path to its Zone.
func (e *Engine) ResolveZone(path string) Zone {
	return e.resolver.resolve(path)
}

// CheckFileAccess enforces the per-zone rule for action against path.
func (e *Engine) CheckFileAccess(path string, action ActionType) Result {
	zone := e.ResolveZone(path)

	if zone == ZoneUnknown {
		return Result{
			Decision:  DecisionDeny,
			Zone:      zone,
			Action:    action,
			Reason:    fmt.Sprintf("path %s is outside all known zones", path),
			RiskLevel: RiskHigh,
		}
	}

	cfg := e.config()
	zoneCfg, ok := cfg.zoneRules(zone)
	if !ok {
		return Result{
			Decision:  DecisionDeny,
			Zone:      zone,
			Action:    action,
			Reason:    fmt.Sprintf("no config for zone %s", zone),
			RiskLevel: RiskHigh,
		}
	}

	rule := zoneCfg.rule(action)
	decision := decisionFromRule(rule)

	risk := RiskLow
	switch decision {
	case DecisionRequiresApproval:
		risk = RiskMedium
	case DecisionDeny:
		risk = RiskHigh
	}

	return Result{
		Decision:  decision,
		Zone:      zone,
		Action:    action,
		Reason:    fmt.Sprintf("%s in %s zone: %s", action, zone, rule),
		RiskLevel: risk,
	}
}

// CheckShellCommand matches command against the hard-coded, non-reloadable
// deny-list first. The engine performs no further syntactic analysis.
func (e *Engine) CheckShellCommand(command string) Result {
	if denied, pattern := isDeniedCommand(command); denied {
		return Result{
			Decision:  DecisionDeny,
			Zone:      ZoneSystem,
			Action:    ActionShell,
			Reason:    "command matches deny pattern: " + pattern,
			RiskLevel: RiskCritical,
		}
	}
	return Result{
		Decision:  DecisionAllow,
		Zone:      ZoneSandbox,
		Action:    ActionShell,
		Reason:    "command not on deny list",
		RiskLevel: RiskLow,
	}
}

// CheckHTTPAccess applies the SSRF hardening prerequisite gate, then the
// configured denied-URL patterns, then the per-method rule.
func (e *Engine) CheckHTTPAccess(rawURL, method string) Result {
	method = strings.ToUpper(method)
	action := methodToAction(method)

	if err := ValidatePublicHostnameFromURL(rawURL); err != nil {
		return Result{
			Decision:  DecisionDeny,
			Zone:      ZoneExternal,
			Action:    action,
			Reason:    "blocked by SSRF guard: " + err.Error(),
			RiskLevel: RiskCritical,
		}
	}

	cfg := e.config()
	for _, pat := range cfg.compiledDeniedURLPatterns() {
		if pat.MatchString(rawURL) {
			return Result{
				Decision:  DecisionDeny,
				Zone:      ZoneExternal,
				Action:    action,
				Reason:    "URL matches denied pattern: " + pat.String(),
				RiskLevel: RiskCritical,
			}
		}
	}

	rule := cfg.ExternalAccess.ruleFor(method)
	decision := decisionFromRule(rule)
	risk := RiskLow
	if decision != DecisionAllow {
		risk = RiskMedium
	}

	return Result{
		Decision:  decision,
		Zone:      ZoneExternal,
		Action:    action,
		Reason:    fmt.Sprintf("HTTP %s: %s", method, rule),
		RiskLevel: risk,
	}
}

// CheckRateLimit reports whether a call against bucket is within its
// configured window, recording the admission as a side effect when true.
func (e *Engine) CheckRateLimit(ctx context.Context, bucket string) bool {
	cfg := e.config()
	limit := cfg.rateLimitFor(bucket)
	return e.limiter.Allow(ctx, bucket, limit.MaxCalls, limit.Window())
}

// RefusalPatterns returns the reloadable refusal-nudge regex set, compiling
// the configured default if the policy document does not override it.
func (e *Engine) RefusalPatterns() []*regexp.Regexp {
	return e.config().compiledRefusalPatterns()
}
