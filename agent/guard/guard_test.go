package guard

import (
	"fmt"
	"testing"
	"time"
)

func TestAllowlistWildcardPrefix(t *testing.T) {
	t.Parallel()

	g, err := New(Config{
		Allowlists: map[string][]string{
			"ws-1": {"salesforce_*"},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if d := g.IsToolAllowed("ws-1", "salesforce_get_deal", "salesforce"); !d.Allowed {
		t.Fatalf("salesforce_get_deal should be allowed: %+v", d)
	}
	if d := g.IsToolAllowed("ws-1", "github_search_issues", "github"); d.Allowed {
		t.Fatal("github_search_issues should be denied")
	} else if d.Reason == "" {
		t.Fatal("denial must carry a reason")
	}

	// Empty allowlist means unrestricted.
	if d := g.IsToolAllowed("ws-2", "github_search_issues", "github"); !d.Allowed {
		t.Fatalf("workspace without entries should allow everything: %+v", d)
	}
}

func TestAllowlistIntegrationAndWildcardWorkspaceFallback(t *testing.T) {
	t.Parallel()

	g, err := New(Config{
		Allowlists: map[string][]string{
			"*": {"github"},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if d := g.IsToolAllowed("ws-1", "github_search_issues", "github"); !d.Allowed {
		t.Fatalf("integration id match via wildcard workspace should allow: %+v", d)
	}
	if d := g.IsToolAllowed("ws-1", "jira_create_ticket", "jira"); d.Allowed {
		t.Fatal("unlisted integration should be denied")
	}
}

func TestAlwaysAllowedTools(t *testing.T) {
	t.Parallel()

	g, err := New(Config{
		Allowlists: map[string][]string{
			"ws-1": {"salesforce_*"},
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, name := range []string{"registry.search_tools", "registry.execute_tool", "clock.now"} {
		if d := g.IsToolAllowed("ws-1", name, ""); !d.Allowed {
			t.Fatalf("%s must be allowed in every workspace", name)
		}
		if g.ShouldDedupe(name) {
			t.Fatalf("%s must never dedupe", name)
		}
	}
}

func TestShouldDedupePatterns(t *testing.T) {
	t.Parallel()

	g, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cases := []struct {
		tool string
		want bool
	}{
		{"tracker.create_issue", true},
		{"jira_create_ticket", true},
		{"linear.issue_create", true},
		{"slack.send_message", true},
		{"tracker.get_issue", false},
		{"tracker.search_issues", false},
		{"kb.search", false},
	}
	for _, tc := range cases {
		if got := g.ShouldDedupe(tc.tool); got != tc.want {
			t.Fatalf("ShouldDedupe(%q) = %v, want %v", tc.tool, got, tc.want)
		}
	}
}

func TestDedupeWindow(t *testing.T) {
	t.Parallel()

	current := time.Unix(1_700_000_000, 0)
	g, err := New(Config{
		DedupeWindow: 60 * time.Minute,
		Now:          func() time.Time { return current },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	input := map[string]any{"title": "bug X", "project": "ENG"}

	dup, err := g.IsDuplicate("ws-1", "tracker.create_issue", input)
	if err != nil || dup {
		t.Fatalf("first call: dup=%v err=%v, want not-duplicate", dup, err)
	}

	current = current.Add(10 * time.Minute)
	dup, err = g.IsDuplicate("ws-1", "tracker.create_issue", input)
	if err != nil || !dup {
		t.Fatalf("second call inside window: dup=%v err=%v, want duplicate", dup, err)
	}

	current = current.Add(61 * time.Minute)
	dup, err = g.IsDuplicate("ws-1", "tracker.create_issue", input)
	if err != nil || dup {
		t.Fatalf("call after window: dup=%v err=%v, want not-duplicate", dup, err)
	}
}

func TestDedupeCanonicalizationIgnoresKeyOrder(t *testing.T) {
	t.Parallel()

	k1, err := DedupeKey("ws-1", "tracker.create_issue", map[string]any{
		"title": "bug", "labels": []any{"a", "b"}, "nested": map[string]any{"x": 1, "y": 2},
	})
	if err != nil {
		t.Fatalf("DedupeKey() error = %v", err)
	}
	k2, err := DedupeKey("ws-1", "tracker.create_issue", map[string]any{
		"nested": map[string]any{"y": 2, "x": 1}, "labels": []any{"a", "b"}, "title": "bug",
	})
	if err != nil {
		t.Fatalf("DedupeKey() error = %v", err)
	}
	if k1 != k2 {
		t.Fatal("key order must not change the hash")
	}

	k3, err := DedupeKey("ws-1", "tracker.create_issue", map[string]any{
		"title": "bug", "labels": []any{"b", "a"}, "nested": map[string]any{"x": 1, "y": 2},
	})
	if err != nil {
		t.Fatalf("DedupeKey() error = %v", err)
	}
	if k1 == k3 {
		t.Fatal("array order must change the hash")
	}
}

func TestDedupeOverrideFlag(t *testing.T) {
	t.Parallel()

	current := time.Unix(1_700_000_000, 0)
	g, err := New(Config{Now: func() time.Time { return current }})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	input := map[string]any{"title": "bug X"}
	if dup, _ := g.IsDuplicate("ws-1", "tracker.create_issue", input); dup {
		t.Fatal("first call should pass")
	}

	forced := map[string]any{"title": "bug X", OverrideKey: true}
	if dup, _ := g.IsDuplicate("ws-1", "tracker.create_issue", forced); dup {
		t.Fatal("override flag must bypass duplicate suppression")
	}

	// The forced call hashes like the original, so a plain retry still trips.
	if dup, _ := g.IsDuplicate("ws-1", "tracker.create_issue", input); !dup {
		t.Fatal("plain retry after override should still be a duplicate")
	}
}

func TestDedupeCacheEviction(t *testing.T) {
	t.Parallel()

	current := time.Unix(1_700_000_000, 0)
	cache := NewDedupeCache(10, func() time.Time { return current })
	window := time.Hour

	for i := 0; i < 10; i++ {
		cache.Seen(fmt.Sprintf("old-%d", i), window)
	}
	current = current.Add(2 * time.Hour)
	cache.Seen("fresh", window)

	if n := cache.Len(); n > 10 {
		t.Fatalf("expected eviction to keep cache at or under capacity, len=%d", n)
	}
	if cache.Seen("fresh", window) != true {
		t.Fatal("fresh entry must survive eviction")
	}
}

func TestDedupeSeparateWorkspaces(t *testing.T) {
	t.Parallel()

	g, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	input := map[string]any{"title": "bug"}
	if dup, _ := g.IsDuplicate("ws-1", "tracker.create_issue", input); dup {
		t.Fatal("ws-1 first call should pass")
	}
	if dup, _ := g.IsDuplicate("ws-2", "tracker.create_issue", input); dup {
		t.Fatal("same input in another workspace is not a duplicate")
	}
}
