package contract

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Models exposes one chat model per reasoning phase.
type Models interface {
	Executor() model.ToolCallingChatModel
	Presenter() model.BaseChatModel
	Repair() model.BaseChatModel
}

// ToolRegistry is the tool catalog: hot tools stay loaded, the rest are
// discovered through Search and executed through the registry tools.
type ToolRegistry interface {
	HotTools() map[string]Tool
	Tool(name string) (Tool, bool)
	Metadata(name string) (ToolMetadata, bool)
	RecordUsage(name string)
	Search(query string, limit int) []ToolSummary
}

// ToolMetadata is the registry-side description of a tool, including the
// schema the model sees.
type ToolMetadata struct {
	IntegrationID string
	Description   string
	Info          *schema.ToolInfo
}

// RateLimiter gates tool calls per (user, tool). Check must be free of side
// effects; Record consumes quota after the tool actually ran.
type RateLimiter interface {
	Check(ctx context.Context, tool, userID string) (RateDecision, error)
	Record(ctx context.Context, tool, userID string) error
}

// ApprovalGates decides which tool calls need a human sign-off and creates
// pending records. Creating a record must not execute the tool.
type ApprovalGates interface {
	RequiresApproval(tool, integrationID string, inputs map[string]any) bool
	RequestApproval(ctx context.Context, kind, tool, integrationID string, inputs map[string]any, caller CallerContext) (ApprovalTicket, error)
}

// AuditLog is append-only. Implementations must swallow their own failures;
// auditing never blocks tool execution.
type AuditLog interface {
	LogToolCall(ctx context.Context, entry AuditEntry)
	LogToolResult(ctx context.Context, entry AuditEntry)
}

// OutcomeMonitor records per-tool outcomes and handoff quality.
// Fire-and-forget from the pipeline's perspective.
type OutcomeMonitor interface {
	RecordOutcome(tool, integrationID string, success bool, duration time.Duration, err error)
	RecordHandoff(report HandoffReport)
}

// StatusNotifier delivers short human-readable progress strings to the chat
// surface while tools run.
type StatusNotifier func(ctx context.Context, message string)
