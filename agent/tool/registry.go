// Package tool is the catalog of callable tools. A small hot set stays in
// the executor's context; everything else is discovered through search and
// invoked through the registry tools.
package tool

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

// DefaultHotPromotionThreshold is how many recorded uses promote a cold tool
// into the hot set.
const DefaultHotPromotionThreshold = 5

type Config struct {
	// HotTools are always loaded into the executor context.
	HotTools []string
	// HotPromotionThreshold promotes frequently used cold tools. Zero uses
	// the default; negative disables promotion.
	HotPromotionThreshold int
}

type Registry struct {
	mu        sync.RWMutex
	tools     map[string]contractx.Tool
	hot       map[string]bool
	usage     map[string]int
	threshold int
}

var _ contractx.ToolRegistry = (*Registry)(nil)

func NewRegistry(cfg Config) *Registry {
	threshold := cfg.HotPromotionThreshold
	if threshold == 0 {
		threshold = DefaultHotPromotionThreshold
	}
	r := &Registry{
		tools:     make(map[string]contractx.Tool),
		hot:       make(map[string]bool),
		usage:     make(map[string]int),
		threshold: threshold,
	}
	for _, name := range cfg.HotTools {
		r.hot[name] = true
	}
	return r
}

// Register adds a tool to the catalog. Names are unique.
func (r *Registry) Register(t contractx.Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tool name is empty")
	}
	if t.Run == nil {
		return fmt.Errorf("tool %q has no run function", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// MustRegister panics on registration failure. Wiring-time only.
func (r *Registry) MustRegister(t contractx.Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// MarkHot pins a tool into the hot set.
func (r *Registry) MarkHot(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hot[name] = true
}

func (r *Registry) HotTools() map[string]contractx.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]contractx.Tool, len(r.hot))
	for name := range r.hot {
		if t, ok := r.tools[name]; ok {
			out[name] = t
		}
	}
	return out
}

func (r *Registry) Tool(name string) (contractx.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Metadata(name string) (contractx.ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return contractx.ToolMetadata{}, false
	}
	meta := contractx.ToolMetadata{IntegrationID: t.IntegrationID, Info: t.Info}
	if t.Info != nil {
		meta.Description = t.Info.Desc
	}
	return meta, true
}

// RecordUsage counts an execution and promotes the tool into the hot set
// once it crosses the threshold.
func (r *Registry) RecordUsage(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	r.usage[name]++
	if r.threshold > 0 && !r.hot[name] && r.usage[name] >= r.threshold {
		r.hot[name] = true
	}
}

// Search scores tools by query-token overlap with name and description.
// Name hits weigh double. Results come back best first.
func (r *Registry) Search(query string, limit int) []contractx.ToolSummary {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	r.mu.RLock()
	type scored struct {
		summary contractx.ToolSummary
		score   int
	}
	matches := make([]scored, 0, len(r.tools))
	for name, t := range r.tools {
		desc := ""
		if t.Info != nil {
			desc = t.Info.Desc
		}
		score := scoreTokens(tokens, name, desc)
		if score == 0 {
			continue
		}
		matches = append(matches, scored{
			summary: contractx.ToolSummary{Name: name, IntegrationID: t.IntegrationID, Description: desc},
			score:   score,
		})
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].summary.Name < matches[j].summary.Name
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]contractx.ToolSummary, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.summary)
	}
	return out
}

func scoreTokens(tokens []string, name, desc string) int {
	name = strings.ToLower(name)
	desc = strings.ToLower(desc)
	score := 0
	for _, tok := range tokens {
		if strings.Contains(name, tok) {
			score += 2
		}
		if strings.Contains(desc, tok) {
			score++
		}
	}
	return score
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
