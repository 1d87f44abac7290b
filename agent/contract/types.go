package contract

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Phase names the two reasoning phases of the pipeline.
type Phase string

const (
	PhaseExecutor  Phase = "executor"
	PhasePresenter Phase = "presenter"
	PhaseRepair    Phase = "repair"
)

// HandoffStatus drives presenter behavior. Unset or unparseable status
// defaults to blocked.
type HandoffStatus string

const (
	StatusDone      HandoffStatus = "done"
	StatusNeedsInfo HandoffStatus = "needs_info"
	StatusBlocked   HandoffStatus = "blocked"
	StatusPlanning  HandoffStatus = "planning"
)

// ValidStatus reports whether s is one of the four protocol statuses.
func ValidStatus(s HandoffStatus) bool {
	switch s {
	case StatusDone, StatusNeedsInfo, StatusBlocked, StatusPlanning:
		return true
	}
	return false
}

// Handoff is the structured summary the executor phase emits and the
// presenter phase consumes. Constructed fresh per request, never persisted.
type Handoff struct {
	Status       HandoffStatus `json:"status"`
	Plan         []string      `json:"plan"`
	Actions      []string      `json:"actions"`
	Data         []string      `json:"data"`
	Errors       []string      `json:"errors"`
	Verification []string      `json:"verification"`
	Missing      []string      `json:"missing"`
	FollowUp     string        `json:"follow_up,omitempty"`
	Draft        string        `json:"draft,omitempty"`

	// Raw retains the unparsed executor output for diagnostics.
	Raw string `json:"-"`
}

// CallerContext identifies who is driving a request. Resolved once per tool
// call before any guardrail check.
type CallerContext struct {
	UserID      string
	WorkspaceID string
	ChannelID   string
	SessionID   string
}

// ToolErrorType is the machine-usable classification of a guardrail
// rejection or execution failure surfaced to the reasoning phase.
type ToolErrorType string

const (
	ToolErrorNotAllowed      ToolErrorType = "not_allowed"
	ToolErrorDuplicate       ToolErrorType = "duplicate_action"
	ToolErrorRateLimited     ToolErrorType = "rate_limited"
	ToolErrorApprovalPending ToolErrorType = "approval_pending"
	ToolErrorExecution       ToolErrorType = "execution_failed"
)

// ToolError is the structured in-band error value returned to the model in
// place of a tool result. Guardrail rejections never throw.
type ToolError struct {
	Type         ToolErrorType `json:"error_type"`
	Message      string        `json:"message"`
	Hint         string        `json:"hint,omitempty"`
	RetryAfterMS int64         `json:"retry_after_ms,omitempty"`
	ApprovalID   string        `json:"approval_id,omitempty"`
}

// Tool is one callable unit: eino metadata for the model plus the underlying
// operation.
type Tool struct {
	Name          string
	IntegrationID string
	Info          *schema.ToolInfo
	Run           func(ctx context.Context, args map[string]any) (any, error)
}

// ToolSummary is the search-result shape returned by registry search.
type ToolSummary struct {
	Name          string `json:"name"`
	IntegrationID string `json:"integration_id"`
	Description   string `json:"description"`
}

// RateDecision is the side-effect-free answer from a rate limit check.
type RateDecision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// ApprovalTicket points at a pending approval record.
type ApprovalTicket struct {
	ID string
}

// ApprovalRecord is a pending human approval for a gated tool call. The
// underlying tool is never executed while the record is pending.
type ApprovalRecord struct {
	ID            string         `json:"id"`
	Kind          string         `json:"kind"`
	Tool          string         `json:"tool"`
	IntegrationID string         `json:"integration_id"`
	Inputs        map[string]any `json:"inputs,omitempty"`
	UserID        string         `json:"user_id"`
	WorkspaceID   string         `json:"workspace_id"`
	SessionID     string         `json:"session_id"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AuditEntry is one append-only audit record, written call-then-result.
type AuditEntry struct {
	Timestamp     time.Time      `json:"timestamp"`
	UserID        string         `json:"user_id"`
	WorkspaceID   string         `json:"workspace_id"`
	SessionID     string         `json:"session_id"`
	Tool          string         `json:"tool"`
	IntegrationID string         `json:"integration_id"`
	Inputs        map[string]any `json:"inputs,omitempty"`
	Outcome       string         `json:"outcome,omitempty"`
	Error         string         `json:"error,omitempty"`
	Duration      time.Duration  `json:"duration,omitempty"`
}

// HandoffReport is the per-request handoff-quality telemetry.
type HandoffReport struct {
	Parsed        bool
	Repaired      bool
	Fallback      bool
	Status        HandoffStatus
	MissingFields []string
	ParseErrors   []string
}
