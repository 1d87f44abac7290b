package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/haasonsaas/adept/agent/contract"
	guardx "github.com/haasonsaas/adept/agent/guard"
	handoffx "github.com/haasonsaas/adept/agent/handoff"
	toolx "github.com/haasonsaas/adept/agent/tool"
)

// runExecutor drives the tool-calling loop. It returns the model's final
// text; when the step budget runs out the last content goes to the parser
// as-is and the repair/fallback path takes over.
func (s *Service) runExecutor(ctx context.Context, req Request) (string, error) {
	msgs := make([]*schema.Message, 0, len(req.History)+2)
	msgs = append(msgs, schema.SystemMessage(s.executorSystemPrompt(req.Caller.WorkspaceID)))
	msgs = append(msgs, req.History...)
	msgs = append(msgs, schema.UserMessage(req.UserMessage))

	lastContent := ""
	for step := 0; step < s.maxSteps; step++ {
		resp, err := s.executorModel.Generate(ctx, msgs)
		if err != nil {
			return "", fmt.Errorf("%w: executor generate: %v", contractx.ErrModelInvoke, err)
		}
		if resp == nil {
			return "", fmt.Errorf("%w: executor returned nil message", contractx.ErrSchemaViolation)
		}
		lastContent = resp.Content

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		msgs = append(msgs, resp)
		msgs = append(msgs, s.runToolCalls(ctx, req.Caller, resp.ToolCalls)...)
	}

	log.Warn().Int("max_steps", s.maxSteps).Msg("executor step budget exhausted")
	return lastContent, nil
}

// runToolCalls executes one reasoning step's tool calls. Calls within a step
// are independent and run concurrently; results keep the request order.
func (s *Service) runToolCalls(ctx context.Context, caller contractx.CallerContext, calls []schema.ToolCall) []*schema.Message {
	results := make([]*schema.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call schema.ToolCall) {
			defer wg.Done()
			content := s.interceptToolCall(ctx, caller, call)
			results[i] = schema.ToolMessage(content, call.ID)
		}(i, call)
	}
	wg.Wait()
	return results
}

// interceptToolCall runs the admission chain and, when it passes, the tool
// itself: allowlist, duplicate suppression, rate limit, approval gate, then
// audit-execute-audit with usage and outcome telemetry. Rejections come back
// as structured tool-error payloads, never as request failures.
func (s *Service) interceptToolCall(ctx context.Context, caller contractx.CallerContext, call schema.ToolCall) string {
	name := strings.TrimSpace(call.Function.Name)
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return toolErrorJSON(contractx.ToolError{
				Type:    contractx.ToolErrorExecution,
				Message: fmt.Sprintf("arguments for %s are not a JSON object: %v", name, err),
				Hint:    "retry the call with a valid JSON object",
			})
		}
	}

	// The registry execute tool is a thin router; guardrails apply to the
	// tool it targets.
	if name == toolx.ToolExecuteTool {
		inner, innerArgs, ok := toolx.UnwrapExecute(args)
		if !ok {
			return toolErrorJSON(contractx.ToolError{
				Type:    contractx.ToolErrorExecution,
				Message: "registry.execute_tool requires a \"tool\" argument",
				Hint:    "call registry.search_tools to find the exact tool name first",
			})
		}
		name, args = inner, innerArgs
	}

	target, ok := s.registry.Tool(name)
	if !ok {
		return toolErrorJSON(contractx.ToolError{
			Type:    contractx.ToolErrorExecution,
			Message: fmt.Sprintf("tool %q is not in the catalog", name),
			Hint:    "call registry.search_tools to find available tools",
		})
	}
	integrationID := target.IntegrationID

	if d := s.guard.IsToolAllowed(caller.WorkspaceID, name, integrationID); !d.Allowed {
		return toolErrorJSON(contractx.ToolError{
			Type:    contractx.ToolErrorNotAllowed,
			Message: d.Reason,
			Hint:    "pick a tool from the workspace allowlist",
		})
	}

	if s.guard.ShouldDedupe(name) {
		dup, err := s.guard.IsDuplicate(caller.WorkspaceID, name, args)
		if err != nil {
			return toolErrorJSON(contractx.ToolError{
				Type:    contractx.ToolErrorExecution,
				Message: fmt.Sprintf("duplicate check failed: %v", err),
			})
		}
		if dup {
			return toolErrorJSON(contractx.ToolError{
				Type:    contractx.ToolErrorDuplicate,
				Message: fmt.Sprintf("an identical %s call was already accepted recently", name),
				Hint:    fmt.Sprintf("if the user explicitly wants it again, retry with %q set to true", guardx.OverrideKey),
			})
		}
	}

	if s.limiter != nil {
		decision, err := s.limiter.Check(ctx, name, caller.UserID)
		if err != nil {
			return toolErrorJSON(contractx.ToolError{
				Type:    contractx.ToolErrorExecution,
				Message: fmt.Sprintf("rate limit check failed: %v", err),
			})
		}
		if !decision.Allowed {
			s.logToolResult(ctx, s.auditEntry(caller, name, integrationID, args, "rate_limited", decision.Reason, 0))
			return toolErrorJSON(contractx.ToolError{
				Type:         contractx.ToolErrorRateLimited,
				Message:      decision.Reason,
				Hint:         "wait before calling this tool again",
				RetryAfterMS: decision.RetryAfter.Milliseconds(),
			})
		}
	}

	if s.approvals != nil && s.approvals.RequiresApproval(name, integrationID, args) {
		ticket, err := s.approvals.RequestApproval(ctx, "tool_call", name, integrationID, args, caller)
		if err != nil {
			return toolErrorJSON(contractx.ToolError{
				Type:    contractx.ToolErrorExecution,
				Message: fmt.Sprintf("approval request failed: %v", err),
			})
		}
		return toolErrorJSON(contractx.ToolError{
			Type:       contractx.ToolErrorApprovalPending,
			Message:    fmt.Sprintf("%s needs human approval before it can run", name),
			Hint:       "tell the user the action is waiting on approval; do not retry",
			ApprovalID: ticket.ID,
		})
	}

	s.logToolCall(ctx, s.auditEntry(caller, name, integrationID, args, "", "", 0))
	s.notify(ctx, fmt.Sprintf("Running %s…", name))

	start := s.now()
	out, runErr := target.Run(ctx, args)
	duration := s.now().Sub(start)

	if runErr != nil {
		s.logToolResult(ctx, s.auditEntry(caller, name, integrationID, args, "error", runErr.Error(), duration))
		s.registry.RecordUsage(name)
		s.recordOutcome(name, integrationID, false, duration, runErr)
		return toolErrorJSON(contractx.ToolError{
			Type:    contractx.ToolErrorExecution,
			Message: fmt.Sprintf("%s failed: %v", name, runErr),
		})
	}

	s.logToolResult(ctx, s.auditEntry(caller, name, integrationID, args, "success", "", duration))
	s.registry.RecordUsage(name)
	s.recordOutcome(name, integrationID, true, duration, nil)
	if s.limiter != nil {
		if err := s.limiter.Record(ctx, name, caller.UserID); err != nil {
			log.Warn().Err(err).Str("tool", name).Msg("rate limit record failed")
		}
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprint(out)
	}
	return string(payload)
}

func (s *Service) auditEntry(caller contractx.CallerContext, tool, integrationID string, args map[string]any, outcome, errText string, duration time.Duration) contractx.AuditEntry {
	return contractx.AuditEntry{
		Timestamp:     s.now().UTC(),
		UserID:        caller.UserID,
		WorkspaceID:   caller.WorkspaceID,
		SessionID:     caller.SessionID,
		Tool:          tool,
		IntegrationID: integrationID,
		Inputs:        args,
		Outcome:       outcome,
		Error:         errText,
		Duration:      duration,
	}
}

// executorSystemPrompt embeds the workspace's tool hints and allowlist
// summary into the base prompt.
func (s *Service) executorSystemPrompt(workspaceID string) string {
	var b strings.Builder
	b.WriteString(s.prompts.Executor)
	b.WriteString("\n\nWorkspace tool policy: ")
	b.WriteString(s.guard.AllowlistSummary(workspaceID))
	if hint := s.guard.Hint(workspaceID); hint != "" {
		b.WriteString("\nWorkspace tool hints: ")
		b.WriteString(hint)
	}
	return b.String()
}

// repairHandoff reformats malformed executor output through the repair model
// and falls back to the deterministic blocked handoff when that fails too.
func (s *Service) repairHandoff(ctx context.Context, in *pipelineState) *pipelineState {
	repairModel := s.models.Repair()
	msg, err := repairModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(s.prompts.Repair),
		schema.UserMessage(in.RawOutput),
	})
	if err == nil && msg != nil {
		res := handoffx.Parse(msg.Content)
		if res.OK {
			in.Handoff = res.Handoff
			in.Repaired = true
			return in
		}
		in.ParseErrors = append(in.ParseErrors, res.Errors...)
		in.Missing = mergeUnique(in.Missing, res.MissingFields)
	} else if err != nil {
		in.ParseErrors = append(in.ParseErrors, fmt.Sprintf("repair generate: %v", err))
	}

	causes := in.ParseErrors
	if len(causes) == 0 {
		causes = []string{"executor output could not be parsed"}
	}
	in.Handoff = handoffx.Fallback(causes...)
	in.Fallback = true
	in.Missing = mergeUnique(in.Missing, []string{handoffx.MissingFormatField})
	return in
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, v := range base {
		seen[v] = true
	}
	for _, v := range extra {
		if !seen[v] {
			base = append(base, v)
			seen[v] = true
		}
	}
	return base
}

func toolErrorJSON(te contractx.ToolError) string {
	payload, err := json.Marshal(te)
	if err != nil {
		return fmt.Sprintf(`{"error_type":%q,"message":"tool error"}`, te.Type)
	}
	return string(payload)
}
