package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

func TestLoggerWritesStructuredEntries(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewLogger(WithLogger(zerolog.New(&buf)))

	entry := contractx.AuditEntry{
		Timestamp:     time.Unix(1_700_000_000, 0).UTC(),
		UserID:        "user-1",
		WorkspaceID:   "ws-1",
		SessionID:     "sess-1",
		Tool:          "tracker.close_issue",
		IntegrationID: "tracker",
		Inputs:        map[string]any{"issue": "ENG-123"},
	}
	sink.LogToolCall(context.Background(), entry)

	entry.Outcome = "success"
	entry.Duration = 120 * time.Millisecond
	sink.LogToolResult(context.Background(), entry)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}

	var call map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &call); err != nil {
		t.Fatalf("unmarshal call line: %v", err)
	}
	if call["tool"] != "tracker.close_issue" || call["user_id"] != "user-1" {
		t.Fatalf("call line fields wrong: %v", call)
	}
	if call["message"] != "tool call" {
		t.Fatalf("call message = %v", call["message"])
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &result); err != nil {
		t.Fatalf("unmarshal result line: %v", err)
	}
	if result["outcome"] != "success" {
		t.Fatalf("result outcome = %v", result["outcome"])
	}
}

type countingSink struct {
	calls, results int
}

func (c *countingSink) LogToolCall(context.Context, contractx.AuditEntry)   { c.calls++ }
func (c *countingSink) LogToolResult(context.Context, contractx.AuditEntry) { c.results++ }

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	a := &countingSink{}
	b := &countingSink{}
	m := Multi{a, b}

	m.LogToolCall(context.Background(), contractx.AuditEntry{Tool: "kb.search"})
	m.LogToolResult(context.Background(), contractx.AuditEntry{Tool: "kb.search"})

	if a.calls != 1 || b.calls != 1 || a.results != 1 || b.results != 1 {
		t.Fatalf("fan-out miscounted: a=%+v b=%+v", a, b)
	}
}
