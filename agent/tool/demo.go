package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

// Issue is one record in the demo tracker.
type Issue struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Assignee string `json:"assignee,omitempty"`
}

// Tracker is an in-memory issue tracker backing the tracker.* demo tools.
type Tracker struct {
	mu     sync.Mutex
	issues map[string]*Issue
	nextID int
}

func NewTracker(seed ...Issue) *Tracker {
	tr := &Tracker{issues: make(map[string]*Issue), nextID: 1000}
	for i := range seed {
		issue := seed[i]
		tr.issues[issue.Key] = &issue
	}
	return tr
}

// Get returns a copy of the issue with the given key.
func (tr *Tracker) Get(key string) (Issue, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	issue, ok := tr.issues[key]
	if !ok {
		return Issue{}, false
	}
	return *issue, true
}

func (tr *Tracker) search(query string) []Issue {
	query = strings.ToLower(query)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	var out []Issue
	for _, issue := range tr.issues {
		if query == "" ||
			strings.Contains(strings.ToLower(issue.Title), query) ||
			strings.Contains(strings.ToLower(issue.Key), query) {
			out = append(out, *issue)
		}
	}
	return out
}

func (tr *Tracker) close(key string) (Issue, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	issue, ok := tr.issues[key]
	if !ok {
		return Issue{}, false
	}
	issue.Status = "closed"
	return *issue, true
}

func (tr *Tracker) create(title string) Issue {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.nextID++
	issue := &Issue{Key: fmt.Sprintf("ENG-%d", tr.nextID), Title: title, Status: "open"}
	tr.issues[issue.Key] = issue
	return *issue
}

// RegisterTracker installs the tracker.* demo tools backed by tr.
func RegisterTracker(r *Registry, tr *Tracker) error {
	const integration = "tracker"
	tools := []contractx.Tool{
		{
			Name:          "tracker.get_issue",
			IntegrationID: integration,
			Info: &schema.ToolInfo{
				Name: "tracker.get_issue",
				Desc: "Look up one tracker issue by key, e.g. ENG-123.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"key": {Type: schema.String, Desc: "Issue key", Required: true},
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				key, _ := args["key"].(string)
				issue, ok := tr.Get(key)
				if !ok {
					return nil, fmt.Errorf("issue %q not found", key)
				}
				return issue, nil
			},
		},
		{
			Name:          "tracker.search_issues",
			IntegrationID: integration,
			Info: &schema.ToolInfo{
				Name: "tracker.search_issues",
				Desc: "Search tracker issues by keyword over title and key.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"query": {Type: schema.String, Desc: "Search keywords", Required: true},
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				query, _ := args["query"].(string)
				return map[string]any{"issues": tr.search(query)}, nil
			},
		},
		{
			Name:          "tracker.close_issue",
			IntegrationID: integration,
			Info: &schema.ToolInfo{
				Name: "tracker.close_issue",
				Desc: "Close a tracker issue by key.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"key": {Type: schema.String, Desc: "Issue key", Required: true},
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				key, _ := args["key"].(string)
				issue, ok := tr.close(key)
				if !ok {
					return nil, fmt.Errorf("issue %q not found", key)
				}
				return issue, nil
			},
		},
		{
			Name:          "tracker.create_issue",
			IntegrationID: integration,
			Info: &schema.ToolInfo{
				Name: "tracker.create_issue",
				Desc: "Create a new tracker issue with the given title.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"title": {Type: schema.String, Desc: "Issue title", Required: true},
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				title, _ := args["title"].(string)
				if strings.TrimSpace(title) == "" {
					return nil, fmt.Errorf("title is required")
				}
				return tr.create(title), nil
			},
		},
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Snippet is one knowledge-base document for kb.search.
type Snippet struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// RegisterKnowledgeBase installs kb.search over a static snippet list.
func RegisterKnowledgeBase(r *Registry, snippets []Snippet) error {
	return r.Register(contractx.Tool{
		Name:          "kb.search",
		IntegrationID: "kb",
		Info: &schema.ToolInfo{
			Name: "kb.search",
			Desc: "Search the internal knowledge base and return matching snippets.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Search keywords", Required: true},
			}),
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			query := strings.ToLower(fmt.Sprint(args["query"]))
			var out []Snippet
			for _, s := range snippets {
				if strings.Contains(strings.ToLower(s.Title), query) ||
					strings.Contains(strings.ToLower(s.Body), query) {
					out = append(out, s)
				}
			}
			return map[string]any{"snippets": out}, nil
		},
	})
}
