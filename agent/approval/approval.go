// Package approval gates risky tool calls behind a pending human sign-off.
// Creating a gate never executes the underlying tool.
package approval

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

// StatusPending is the only status this core ever writes; resolution happens
// out of band.
const StatusPending = "pending"

// DefaultGatePatterns matches tool names whose effects warrant a human in
// the loop. Deployments tune the list through Config.
var DefaultGatePatterns = []string{
	`(^|[._])(delete|remove|destroy|drop)[._]?`,
	`(^|[._])merge[._](pr|pull_request|branch)`,
	`(^|[._])deploy[._]?`,
}

type Config struct {
	// GatePatterns are tool-name regexes that require approval. Empty uses
	// the defaults; a single "-" entry disables gating entirely.
	GatePatterns []string
}

// Store persists pending approval records.
type Store interface {
	Put(ctx context.Context, rec contractx.ApprovalRecord) error
	Get(ctx context.Context, id string) (contractx.ApprovalRecord, bool, error)
}

type Gates struct {
	patterns []*regexp.Regexp
	store    Store
	now      func() time.Time
	newID    func() string
}

var _ contractx.ApprovalGates = (*Gates)(nil)

func New(cfg Config, store Store) (*Gates, error) {
	if store == nil {
		store = NewMemoryStore()
	}

	raw := cfg.GatePatterns
	if len(raw) == 0 {
		raw = DefaultGatePatterns
	}
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		if p == "-" {
			patterns = nil
			break
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile approval gate pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &Gates{
		patterns: patterns,
		store:    store,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}, nil
}

// RequiresApproval matches tool name and integration id against the gate
// patterns.
func (g *Gates) RequiresApproval(tool, integrationID string, inputs map[string]any) bool {
	tool = strings.ToLower(tool)
	integrationID = strings.ToLower(integrationID)
	for _, re := range g.patterns {
		if re.MatchString(tool) || (integrationID != "" && re.MatchString(integrationID)) {
			return true
		}
	}
	return false
}

// RequestApproval persists a pending record and returns its ticket. The
// caller is responsible for rejecting the tool call afterwards.
func (g *Gates) RequestApproval(ctx context.Context, kind, tool, integrationID string, inputs map[string]any, caller contractx.CallerContext) (contractx.ApprovalTicket, error) {
	rec := contractx.ApprovalRecord{
		ID:            g.newID(),
		Kind:          kind,
		Tool:          tool,
		IntegrationID: integrationID,
		Inputs:        inputs,
		UserID:        caller.UserID,
		WorkspaceID:   caller.WorkspaceID,
		SessionID:     caller.SessionID,
		Status:        StatusPending,
		CreatedAt:     g.now().UTC(),
	}
	if err := g.store.Put(ctx, rec); err != nil {
		return contractx.ApprovalTicket{}, fmt.Errorf("persist approval record: %w", err)
	}
	return contractx.ApprovalTicket{ID: rec.ID}, nil
}
