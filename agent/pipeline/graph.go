package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/haasonsaas/adept/agent/contract"
	handoffx "github.com/haasonsaas/adept/agent/handoff"
)

// pipelineState flows through the graph: Executing -> parse -> (repair) ->
// present.
type pipelineState struct {
	Req         Request
	RawOutput   string
	Handoff     contractx.Handoff
	ParseErrors []string
	Missing     []string
	ParsedOK    bool
	Repaired    bool
	Fallback    bool
}

func compilePipelineGraph(ctx context.Context, s *Service) (compose.Runnable[Request, Reply], error) {
	graph := compose.NewGraph[Request, Reply]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, req Request) (*pipelineState, error) {
			if strings.TrimSpace(req.UserMessage) == "" {
				return nil, fmt.Errorf("%w: user message is empty", contractx.ErrValidation)
			}
			return &pipelineState{Req: req}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add validate node: %w", err)
	}

	if err := graph.AddLambdaNode("run_executor",
		compose.InvokableLambda(func(ctx context.Context, in *pipelineState) (*pipelineState, error) {
			raw, err := s.runExecutor(ctx, in.Req)
			if err != nil {
				return nil, err
			}
			in.RawOutput = raw
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add executor node: %w", err)
	}

	if err := graph.AddLambdaNode("parse_handoff",
		compose.InvokableLambda(func(ctx context.Context, in *pipelineState) (*pipelineState, error) {
			res := handoffx.Parse(in.RawOutput)
			in.Handoff = res.Handoff
			in.ParsedOK = res.OK
			in.ParseErrors = res.Errors
			in.Missing = res.MissingFields
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add parse node: %w", err)
	}

	if err := graph.AddLambdaNode("repair_handoff",
		compose.InvokableLambda(func(ctx context.Context, in *pipelineState) (*pipelineState, error) {
			return s.repairHandoff(ctx, in), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add repair node: %w", err)
	}

	if err := graph.AddLambdaNode("run_presenter",
		compose.InvokableLambda(func(ctx context.Context, in *pipelineState) (Reply, error) {
			report := contractx.HandoffReport{
				Parsed:        in.ParsedOK || in.Repaired,
				Repaired:      in.Repaired,
				Fallback:      in.Fallback,
				Status:        in.Handoff.Status,
				MissingFields: in.Missing,
				ParseErrors:   in.ParseErrors,
			}
			if s.monitor != nil {
				s.monitor.RecordHandoff(report)
			}

			text, err := s.present(ctx, in.Req, in.Handoff)
			if err != nil {
				return Reply{}, err
			}
			return Reply{Text: text, Handoff: in.Handoff, Report: report}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add presenter node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *pipelineState) (string, error) {
			if in.ParsedOK {
				return "run_presenter", nil
			}
			return "repair_handoff", nil
		},
		map[string]bool{
			"run_presenter":  true,
			"repair_handoff": true,
		},
	)

	if err := graph.AddEdge(compose.START, "validate_request"); err != nil {
		return nil, fmt.Errorf("add edge start->validate: %w", err)
	}
	if err := graph.AddEdge("validate_request", "run_executor"); err != nil {
		return nil, fmt.Errorf("add edge validate->executor: %w", err)
	}
	if err := graph.AddEdge("run_executor", "parse_handoff"); err != nil {
		return nil, fmt.Errorf("add edge executor->parse: %w", err)
	}
	if err := graph.AddBranch("parse_handoff", branch); err != nil {
		return nil, fmt.Errorf("add parse branch: %w", err)
	}
	if err := graph.AddEdge("repair_handoff", "run_presenter"); err != nil {
		return nil, fmt.Errorf("add edge repair->presenter: %w", err)
	}
	if err := graph.AddEdge("run_presenter", compose.END); err != nil {
		return nil, fmt.Errorf("add edge presenter->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("pipeline.request_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile request graph: %w", err)
	}
	return runner, nil
}
