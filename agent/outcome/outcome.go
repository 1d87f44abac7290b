// Package outcome aggregates per-tool execution results and handoff quality.
// The pipeline reports fire-and-forget; dashboards read snapshots.
package outcome

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

// ToolStats is the aggregate for one tool.
type ToolStats struct {
	IntegrationID string
	Successes     int64
	Failures      int64
	TotalDuration time.Duration
	LastError     string
	ErrorKinds    map[string]int64
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// HandoffStats counts handoff parse quality across requests.
type HandoffStats struct {
	Parsed   int64
	Repaired int64
	Fallback int64
	ByStatus map[contractx.HandoffStatus]int64
}

type Monitor struct {
	mu       sync.Mutex
	tools    map[string]*ToolStats
	handoffs HandoffStats
	log      zerolog.Logger
}

var _ contractx.OutcomeMonitor = (*Monitor)(nil)

// Option customizes Monitor.
type Option func(*Monitor)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

func New(opts ...Option) *Monitor {
	m := &Monitor{
		tools:    make(map[string]*ToolStats),
		handoffs: HandoffStats{ByStatus: make(map[contractx.HandoffStatus]int64)},
		log:      log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Monitor) RecordOutcome(tool, integrationID string, success bool, duration time.Duration, err error) {
	m.mu.Lock()
	stats, ok := m.tools[tool]
	if !ok {
		stats = &ToolStats{IntegrationID: integrationID}
		m.tools[tool] = stats
	}
	if success {
		stats.Successes++
	} else {
		stats.Failures++
		if err != nil {
			stats.LastError = err.Error()
			if stats.ErrorKinds == nil {
				stats.ErrorKinds = make(map[string]int64)
			}
			stats.ErrorKinds[errorKind(err)]++
		}
	}
	stats.TotalDuration += duration
	m.mu.Unlock()

	ev := m.log.Debug().
		Str("tool", tool).
		Str("integration_id", integrationID).
		Bool("success", success).
		Dur("duration", duration)
	if err != nil {
		ev = ev.Str("error", err.Error())
	}
	ev.Msg("tool outcome")
}

func (m *Monitor) RecordHandoff(report contractx.HandoffReport) {
	m.mu.Lock()
	if report.Parsed {
		m.handoffs.Parsed++
	}
	if report.Repaired {
		m.handoffs.Repaired++
	}
	if report.Fallback {
		m.handoffs.Fallback++
	}
	if report.Status != "" {
		m.handoffs.ByStatus[report.Status]++
	}
	m.mu.Unlock()

	m.log.Debug().
		Bool("parsed", report.Parsed).
		Bool("repaired", report.Repaired).
		Bool("fallback", report.Fallback).
		Str("status", string(report.Status)).
		Strs("missing_fields", report.MissingFields).
		Msg("handoff telemetry")
}

// ToolSnapshot returns a copy of the aggregate for one tool.
func (m *Monitor) ToolSnapshot(tool string) (ToolStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.tools[tool]
	if !ok {
		return ToolStats{}, false
	}
	out := *stats
	if stats.ErrorKinds != nil {
		out.ErrorKinds = make(map[string]int64, len(stats.ErrorKinds))
		for k, v := range stats.ErrorKinds {
			out.ErrorKinds[k] = v
		}
	}
	return out, true
}

// HandoffSnapshot returns a copy of the handoff quality counters.
func (m *Monitor) HandoffSnapshot() HandoffStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := HandoffStats{
		Parsed:   m.handoffs.Parsed,
		Repaired: m.handoffs.Repaired,
		Fallback: m.handoffs.Fallback,
		ByStatus: make(map[contractx.HandoffStatus]int64, len(m.handoffs.ByStatus)),
	}
	for k, v := range m.handoffs.ByStatus {
		out.ByStatus[k] = v
	}
	return out
}
