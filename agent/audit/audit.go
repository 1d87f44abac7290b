// Package audit records every tool call and its result. The log is
// append-only and auditing failures never block tool execution.
package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

// Logger writes audit entries to the structured log. It is the default sink
// when no database is configured.
type Logger struct {
	log zerolog.Logger
}

var _ contractx.AuditLog = (*Logger)(nil)

// Option customizes Logger.
type Option func(*Logger)

// WithLogger overrides the destination logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Logger) {
		a.log = l
	}
}

func NewLogger(opts ...Option) *Logger {
	a := &Logger{log: log.Logger}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

func (a *Logger) LogToolCall(ctx context.Context, entry contractx.AuditEntry) {
	a.event(entry).Msg("tool call")
}

func (a *Logger) LogToolResult(ctx context.Context, entry contractx.AuditEntry) {
	a.event(entry).Msg("tool result")
}

func (a *Logger) event(entry contractx.AuditEntry) *zerolog.Event {
	ev := a.log.Info().
		Time("ts", entry.Timestamp).
		Str("user_id", entry.UserID).
		Str("workspace_id", entry.WorkspaceID).
		Str("session_id", entry.SessionID).
		Str("tool", entry.Tool).
		Str("integration_id", entry.IntegrationID)
	if len(entry.Inputs) > 0 {
		ev = ev.Interface("inputs", entry.Inputs)
	}
	if entry.Outcome != "" {
		ev = ev.Str("outcome", entry.Outcome)
	}
	if entry.Error != "" {
		ev = ev.Str("error", entry.Error)
	}
	if entry.Duration > 0 {
		ev = ev.Dur("duration", entry.Duration)
	}
	return ev
}

// Multi fans one entry out to several sinks, e.g. log plus database.
type Multi []contractx.AuditLog

var _ contractx.AuditLog = (Multi)(nil)

func (m Multi) LogToolCall(ctx context.Context, entry contractx.AuditEntry) {
	for _, sink := range m {
		sink.LogToolCall(ctx, entry)
	}
}

func (m Multi) LogToolResult(ctx context.Context, entry contractx.AuditEntry) {
	for _, sink := range m {
		sink.LogToolResult(ctx, entry)
	}
}
