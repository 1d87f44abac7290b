package pipeline

import (
	"strings"
	"testing"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

func TestDirectiveForStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handoff contractx.Handoff
		user    string
		want    []string
		forbid  []string
	}{
		{
			name:    "done",
			handoff: contractx.Handoff{Status: contractx.StatusDone, Verification: []string{"checked"}},
			user:    "close the ticket",
			want:    []string{"complete"},
			forbid:  []string{"never claim completion", "four sections"},
		},
		{
			name: "done with unverified side effects",
			handoff: contractx.Handoff{
				Status:  contractx.StatusDone,
				Actions: []string{"created ticket ENG-2001"},
			},
			user: "file a ticket",
			want: []string{"not verified"},
		},
		{
			name:    "needs info with follow-up",
			handoff: contractx.Handoff{Status: contractx.StatusNeedsInfo, FollowUp: "Which project?"},
			user:    "make a ticket",
			want:    []string{"never claim completion", "Which project?"},
		},
		{
			name:    "planning",
			handoff: contractx.Handoff{Status: contractx.StatusPlanning},
			user:    "migrate the database",
			want:    []string{"in progress", "never claim completion"},
		},
		{
			name:    "blocked",
			handoff: contractx.Handoff{Status: contractx.StatusBlocked, Errors: []string{"api down"}},
			user:    "sync the data",
			want:    []string{"blocked", "never claim completion", "next step"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := directiveFor(tc.handoff, tc.user)
			for _, want := range tc.want {
				if !strings.Contains(got, want) {
					t.Fatalf("directive %q missing %q", got, want)
				}
			}
			for _, forbid := range tc.forbid {
				if strings.Contains(got, forbid) {
					t.Fatalf("directive %q must not contain %q", got, forbid)
				}
			}
		})
	}
}

func TestBriefingHeuristic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		message string
		want    bool
	}{
		{"give me a brief on the Acme deal", true},
		{"tell me about this customer", true},
		{"overview of the Initech account please", true},
		{"brief me before standup", false},          // intent without entity
		{"what's new with the Acme account?", false}, // entity without intent
		{"close ENG-123", false},
	}
	for _, tc := range cases {
		if got := isBriefingRequest(tc.message); got != tc.want {
			t.Fatalf("isBriefingRequest(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}

	done := contractx.Handoff{Status: contractx.StatusDone}
	directive := directiveFor(done, "give me a brief on the Acme deal")
	if !strings.Contains(directive, "four sections") {
		t.Fatalf("briefing directive missing layout instruction: %q", directive)
	}

	blocked := contractx.Handoff{Status: contractx.StatusBlocked}
	directive = directiveFor(blocked, "give me a brief on the Acme deal")
	if strings.Contains(directive, "four sections") {
		t.Fatal("briefing layout only applies when the work is done")
	}
}

func TestRenderSurfaceMarkup(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"[ENG-123](https://t.example/ENG-123)", "<https://t.example/ENG-123|ENG-123>"},
		{"**important**", "*important*"},
		{
			"Done. Closed **ENG-123** — see [the ticket](https://t.example/ENG-123).",
			"Done. Closed *ENG-123* — see <https://t.example/ENG-123|the ticket>.",
		},
		{"plain text stays put", "plain text stays put"},
		{"*already single* stars survive", "*already single* stars survive"},
	}
	for _, tc := range cases {
		if got := renderSurfaceMarkup(tc.in); got != tc.want {
			t.Fatalf("renderSurfaceMarkup(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
