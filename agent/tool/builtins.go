package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

// Builtin tool names. These are exempt from workspace allowlists.
const (
	ToolClockNow     = "clock.now"
	ToolSearchTools  = "registry.search_tools"
	ToolExecuteTool  = "registry.execute_tool"
	builtinIntegrate = "builtin"
)

// RegisterBuiltins installs the always-available tools: the clock and the
// registry discovery pair. They land in the hot set.
func RegisterBuiltins(r *Registry, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}

	builtins := []contractx.Tool{
		{
			Name:          ToolClockNow,
			IntegrationID: builtinIntegrate,
			Info: &schema.ToolInfo{
				Name: ToolClockNow,
				Desc: "Return the current date and time in UTC (RFC 3339).",
			},
			Run: func(ctx context.Context, _ map[string]any) (any, error) {
				return map[string]any{"now": now().UTC().Format(time.RFC3339)}, nil
			},
		},
		{
			Name:          ToolSearchTools,
			IntegrationID: builtinIntegrate,
			Info: &schema.ToolInfo{
				Name: ToolSearchTools,
				Desc: "Search the tool catalog by keyword and return matching tool names with descriptions.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"query": {Type: schema.String, Desc: "Keywords describing the needed capability", Required: true},
					"limit": {Type: schema.Integer, Desc: "Maximum results, default 5"},
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				query, _ := args["query"].(string)
				limit := 0
				if f, ok := args["limit"].(float64); ok {
					limit = int(f)
				}
				return map[string]any{"tools": r.Search(query, limit)}, nil
			},
		},
		{
			Name:          ToolExecuteTool,
			IntegrationID: builtinIntegrate,
			Info: &schema.ToolInfo{
				Name: ToolExecuteTool,
				Desc: "Execute a catalog tool by name with a JSON object of arguments. Use registry.search_tools first to find the name.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"tool": {Type: schema.String, Desc: "Exact tool name from the catalog", Required: true},
					"args": {Type: schema.Object, Desc: "Arguments for the target tool"},
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				name, _ := args["tool"].(string)
				target, ok := r.Tool(name)
				if !ok {
					return nil, fmt.Errorf("unknown tool %q", name)
				}
				inner, _ := args["args"].(map[string]any)
				return target.Run(ctx, inner)
			},
		},
	}

	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
		r.MarkHot(t.Name)
	}
	return nil
}

// UnwrapExecute extracts the target tool name and arguments from a
// registry.execute_tool invocation so guardrails run against the real tool.
func UnwrapExecute(args map[string]any) (name string, inner map[string]any, ok bool) {
	name, _ = args["tool"].(string)
	if name == "" {
		return "", nil, false
	}
	inner, _ = args["args"].(map[string]any)
	if inner == nil {
		inner = map[string]any{}
	}
	return name, inner, true
}
