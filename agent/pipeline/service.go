// Package pipeline runs one request through the two reasoning phases: the
// executor works the task with guarded tools and emits a handoff, the
// presenter turns that handoff into the user-visible reply. The handoff is
// the only data contract between the phases.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/haasonsaas/adept/agent/contract"
	guardx "github.com/haasonsaas/adept/agent/guard"
	promptx "github.com/haasonsaas/adept/agent/prompt"
)

// DefaultMaxSteps caps the executor's tool-calling rounds per request.
const DefaultMaxSteps = 8

// Request is one user turn.
type Request struct {
	UserMessage string
	History     []*schema.Message
	Caller      contractx.CallerContext
}

// Reply is the pipeline's final output plus the handoff diagnostics behind it.
type Reply struct {
	Text    string
	Handoff contractx.Handoff
	Report  contractx.HandoffReport
}

// Deps are the pipeline's collaborators. Models, Registry, and Guard are
// required; the rest default to no-ops.
type Deps struct {
	Models    contractx.Models
	Registry  contractx.ToolRegistry
	Guard     *guardx.Guard
	Limiter   contractx.RateLimiter
	Approvals contractx.ApprovalGates
	Audit     contractx.AuditLog
	Monitor   contractx.OutcomeMonitor
	Notify    contractx.StatusNotifier
	Prompts   promptx.PromptSet

	// MaxSteps bounds tool-calling rounds; zero uses the default.
	MaxSteps int
}

type Service struct {
	models    contractx.Models
	registry  contractx.ToolRegistry
	guard     *guardx.Guard
	limiter   contractx.RateLimiter
	approvals contractx.ApprovalGates
	audit     contractx.AuditLog
	monitor   contractx.OutcomeMonitor
	notify    contractx.StatusNotifier
	prompts   promptx.PromptSet
	maxSteps  int
	now       func() time.Time

	executorModel model.ToolCallingChatModel
	runner        compose.Runnable[Request, Reply]
}

func New(ctx context.Context, deps Deps) (*Service, error) {
	if deps.Models == nil {
		return nil, fmt.Errorf("%w: models are required", contractx.ErrValidation)
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("%w: tool registry is required", contractx.ErrValidation)
	}
	if deps.Guard == nil {
		return nil, fmt.Errorf("%w: guard is required", contractx.ErrValidation)
	}
	if deps.Prompts.Executor == "" || deps.Prompts.Presenter == "" || deps.Prompts.Repair == "" {
		return nil, fmt.Errorf("%w: executor, presenter, and repair prompts are required", contractx.ErrPromptMissing)
	}

	maxSteps := deps.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	s := &Service{
		models:    deps.Models,
		registry:  deps.Registry,
		guard:     deps.Guard,
		limiter:   deps.Limiter,
		approvals: deps.Approvals,
		audit:     deps.Audit,
		monitor:   deps.Monitor,
		notify:    deps.Notify,
		prompts:   deps.Prompts,
		maxSteps:  maxSteps,
		now:       time.Now,
	}
	if s.notify == nil {
		s.notify = func(context.Context, string) {}
	}

	infos := s.toolInfos()
	executorModel, err := deps.Models.Executor().WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("%w: bind executor tools: %v", contractx.ErrModelInvoke, err)
	}
	s.executorModel = executorModel

	runner, err := compilePipelineGraph(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("%w: compile pipeline graph: %v", contractx.ErrModelInvoke, err)
	}
	s.runner = runner

	return s, nil
}

// Respond runs the full pipeline for one user turn.
func (s *Service) Respond(ctx context.Context, req Request) (Reply, error) {
	return s.runner.Invoke(ctx, req)
}

// toolInfos exposes the hot set to the executor model. Cold tools stay
// reachable through the registry search/execute pair.
func (s *Service) toolInfos() []*schema.ToolInfo {
	hot := s.registry.HotTools()
	infos := make([]*schema.ToolInfo, 0, len(hot))
	for name, t := range hot {
		if t.Info == nil {
			log.Warn().Str("tool", name).Msg("hot tool has no schema, skipping")
			continue
		}
		infos = append(infos, t.Info)
	}
	return infos
}

func (s *Service) logToolCall(ctx context.Context, entry contractx.AuditEntry) {
	if s.audit != nil {
		s.audit.LogToolCall(ctx, entry)
	}
}

func (s *Service) logToolResult(ctx context.Context, entry contractx.AuditEntry) {
	if s.audit != nil {
		s.audit.LogToolResult(ctx, entry)
	}
}

func (s *Service) recordOutcome(tool, integrationID string, success bool, duration time.Duration, err error) {
	if s.monitor != nil {
		s.monitor.RecordOutcome(tool, integrationID, success, duration, err)
	}
}
