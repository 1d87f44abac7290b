// Package guard implements tool-call admission checks: workspace allowlist
// resolution, the mutating-tool dedupe heuristic, and workspace hints. All
// state lives on the injected Guard value; there is no package-level cache.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// WildcardWorkspace is the allowlist fallback key.
	WildcardWorkspace = "*"

	// OverrideKey is the tool-input flag that bypasses duplicate suppression.
	OverrideKey = "confirm_duplicate"

	DefaultDedupeWindow  = 60 * time.Minute
	DefaultCacheCapacity = 1500
)

// Tools the reasoning phase always needs, allowed in every workspace and
// never deduplicated.
var alwaysAllowed = map[string]bool{
	"registry.search_tools": true,
	"registry.execute_tool": true,
	"clock.now":             true,
}

// DefaultDedupePatterns matches mutating, likely-duplicatable tool names.
// Deployments tune this list through Config rather than editing code.
var DefaultDedupePatterns = []string{
	`(^|[._])create[._](ticket|issue|task|bug|pr|pull_request|page|message)`,
	`(^|[._])(ticket|issue|task|bug|pr|pull_request)[._]create`,
	`(^|[._])file[._](bug|ticket|issue)`,
	`(^|[._])send[._](message|email)`,
}

type Config struct {
	// Allowlists maps workspace id to entries: exact tool/integration names
	// or prefix patterns ending in "*". The WildcardWorkspace key is the
	// fallback; a workspace with no entries at all is unrestricted.
	Allowlists map[string][]string

	// Hints maps workspace id to free-text tool guidance injected into the
	// executor system prompt.
	Hints map[string]string

	DedupeWindow   time.Duration
	DedupeWindows  map[string]time.Duration
	DedupePatterns []string
	CacheCapacity  int

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
}

type Guard struct {
	cfg      Config
	patterns []*regexp.Regexp
	cache    *DedupeCache
}

func New(cfg Config) (*Guard, error) {
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = DefaultDedupeWindow
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	raw := cfg.DedupePatterns
	if len(raw) == 0 {
		raw = DefaultDedupePatterns
	}
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile dedupe pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &Guard{
		cfg:      cfg,
		patterns: patterns,
		cache:    NewDedupeCache(cfg.CacheCapacity, cfg.Now),
	}, nil
}

// ResolveAllowlist returns the workspace's entries, falling back to the
// wildcard workspace, else nil (meaning unrestricted).
func (g *Guard) ResolveAllowlist(workspaceID string) []string {
	if entries, ok := g.cfg.Allowlists[workspaceID]; ok && len(entries) > 0 {
		return entries
	}
	if entries, ok := g.cfg.Allowlists[WildcardWorkspace]; ok && len(entries) > 0 {
		return entries
	}
	return nil
}

// IsToolAllowed checks toolName and integrationID against the workspace
// allowlist. Registry and clock tools pass regardless of workspace.
func (g *Guard) IsToolAllowed(workspaceID, toolName, integrationID string) Decision {
	if alwaysAllowed[toolName] {
		return Decision{Allowed: true}
	}

	entries := g.ResolveAllowlist(workspaceID)
	if workspaceID == "" || len(entries) == 0 {
		return Decision{Allowed: true}
	}

	for _, entry := range entries {
		if entryMatches(entry, toolName) || entryMatches(entry, integrationID) {
			return Decision{Allowed: true}
		}
	}

	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("tool %q (integration %q) is not on the allowlist for workspace %q", toolName, integrationID, workspaceID),
	}
}

func entryMatches(entry, name string) bool {
	entry = strings.TrimSpace(entry)
	if entry == "" || name == "" {
		return false
	}
	if prefix, ok := strings.CutSuffix(entry, "*"); ok {
		return len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix)
	}
	return strings.EqualFold(entry, name)
}

// ShouldDedupe reports whether toolName looks like a mutating action worth
// duplicate suppression. Always-allowed tools are exempt.
func (g *Guard) ShouldDedupe(toolName string) bool {
	if alwaysAllowed[toolName] {
		return false
	}
	lower := strings.ToLower(toolName)
	for _, re := range g.patterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether an identical call (same workspace, tool, and
// canonicalized input) was accepted within the dedupe window. The first call
// records a timestamp and returns false; repeats within the window return
// true without refreshing it. The OverrideKey input flag forces acceptance
// and refreshes the timestamp.
func (g *Guard) IsDuplicate(workspaceID, toolName string, input map[string]any) (bool, error) {
	override := overrideRequested(input)
	key, err := DedupeKey(workspaceID, toolName, input)
	if err != nil {
		return false, err
	}

	window := g.windowFor(workspaceID)
	if override {
		g.cache.Touch(key, window)
		return false, nil
	}
	return g.cache.Seen(key, window), nil
}

// Hint returns the workspace's tool guidance, empty when unconfigured.
func (g *Guard) Hint(workspaceID string) string {
	return strings.TrimSpace(g.cfg.Hints[workspaceID])
}

// AllowlistSummary renders the effective allowlist for prompt embedding.
func (g *Guard) AllowlistSummary(workspaceID string) string {
	entries := g.ResolveAllowlist(workspaceID)
	if len(entries) == 0 {
		return "all tools are allowed"
	}
	return "allowed tools: " + strings.Join(entries, ", ")
}

func (g *Guard) windowFor(workspaceID string) time.Duration {
	if w, ok := g.cfg.DedupeWindows[workspaceID]; ok && w > 0 {
		return w
	}
	return g.cfg.DedupeWindow
}

func overrideRequested(input map[string]any) bool {
	v, ok := input[OverrideKey]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
