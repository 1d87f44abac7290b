package approval

import (
	"context"
	"testing"
	"time"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

func TestRequiresApprovalDefaults(t *testing.T) {
	t.Parallel()

	g, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cases := []struct {
		tool string
		want bool
	}{
		{"tracker.delete_issue", true},
		{"github.merge_pr", true},
		{"infra.deploy_service", true},
		{"tracker.get_issue", false},
		{"tracker.create_issue", false},
		{"kb.search", false},
	}
	for _, tc := range cases {
		if got := g.RequiresApproval(tc.tool, "", nil); got != tc.want {
			t.Fatalf("RequiresApproval(%q) = %v, want %v", tc.tool, got, tc.want)
		}
	}
}

func TestRequiresApprovalDisabled(t *testing.T) {
	t.Parallel()

	g, err := New(Config{GatePatterns: []string{"-"}}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if g.RequiresApproval("tracker.delete_issue", "", nil) {
		t.Fatal("gating disabled, nothing should require approval")
	}
}

func TestRequestApprovalPersistsPendingRecord(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	g, err := New(Config{}, store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	g.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	g.newID = func() string { return "approval-1" }

	caller := contractx.CallerContext{UserID: "user-1", WorkspaceID: "ws-1", SessionID: "sess-1"}
	ticket, err := g.RequestApproval(context.Background(), "destructive", "tracker.delete_issue", "tracker",
		map[string]any{"issue": "ENG-123"}, caller)
	if err != nil {
		t.Fatalf("RequestApproval() error = %v", err)
	}
	if ticket.ID != "approval-1" {
		t.Fatalf("ticket id = %q", ticket.ID)
	}

	rec, ok, err := store.Get(context.Background(), "approval-1")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("status = %q, want pending", rec.Status)
	}
	if rec.Tool != "tracker.delete_issue" || rec.UserID != "user-1" || rec.WorkspaceID != "ws-1" {
		t.Fatalf("record fields wrong: %+v", rec)
	}
	if rec.CreatedAt != time.Unix(1_700_000_000, 0).UTC() {
		t.Fatalf("created at = %v", rec.CreatedAt)
	}
}
