package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/haasonsaas/adept/agent/contract"
	handoffx "github.com/haasonsaas/adept/agent/handoff"
)

// present runs the presenter phase: no tools, conversation history plus the
// serialized handoff and a status-derived directive.
func (s *Service) present(ctx context.Context, req Request, h contractx.Handoff) (string, error) {
	directive := directiveFor(h, req.UserMessage)

	msgs := make([]*schema.Message, 0, len(req.History)+3)
	msgs = append(msgs, schema.SystemMessage(s.prompts.Presenter))
	msgs = append(msgs, req.History...)
	msgs = append(msgs, schema.UserMessage(req.UserMessage))
	msgs = append(msgs, schema.UserMessage(fmt.Sprintf(
		"Execution summary (not from the user):\n\n%s\n\nInstructions: %s",
		handoffx.Encode(h), directive,
	)))

	out, err := s.models.Presenter().Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: presenter generate: %v", contractx.ErrModelInvoke, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("%w: presenter reply is empty", contractx.ErrSchemaViolation)
	}
	return renderSurfaceMarkup(out.Content), nil
}

// directiveFor turns the handoff status into presenter instructions.
func directiveFor(h contractx.Handoff, userMessage string) string {
	switch h.Status {
	case contractx.StatusDone:
		var b strings.Builder
		b.WriteString("The work is complete. Respond using the summary's data and actions. ")
		b.WriteString("You may include the plan as a short receipt. ")
		if hasSideEffectActions(h) && len(h.Verification) == 0 {
			b.WriteString("The summary shows changes that were made but not verified; say so. ")
		}
		if h.Draft != "" {
			b.WriteString("Use the draft as a starting point if it is accurate. ")
		}
		if isBriefingRequest(userMessage) {
			b.WriteString("Format the reply as a briefing with exactly four sections: " +
				"Overview, Recent activity, Key facts, Suggested next steps. " +
				"Cite the source for each section from the summary's data.")
		}
		return b.String()

	case contractx.StatusNeedsInfo:
		directive := "The work is waiting on the user. Give a one-line receipt of the task, " +
			"state what is needed, and never claim completion. "
		if h.FollowUp != "" {
			return directive + fmt.Sprintf("Ask exactly this question: %q", h.FollowUp)
		}
		return directive + "Ask a concise clarifying question."

	case contractx.StatusPlanning:
		directive := "Work is still in progress. Give a one-line receipt, surface the plan " +
			"(or synthesize a short one from the summary), and never claim completion. "
		if h.FollowUp != "" {
			return directive + fmt.Sprintf("Ask exactly this question: %q", h.FollowUp)
		}
		return directive + "Close by confirming the user wants you to proceed."

	default: // blocked, or anything unrecognized
		directive := "The work is blocked. Give a one-line receipt, surface the plan if present, " +
			"and never claim completion. Explain what went wrong using the errors and missing " +
			"sections, suggest a concrete next step, "
		if h.FollowUp != "" {
			return directive + fmt.Sprintf("and ask exactly this question: %q", h.FollowUp)
		}
		return directive + "and ask the user how they want to proceed."
	}
}

var sideEffectMarkers = []string{"create", "close", "update", "delete", "merge", "send", "deploy", "file"}

func hasSideEffectActions(h contractx.Handoff) bool {
	for _, action := range h.Actions {
		lower := strings.ToLower(action)
		for _, marker := range sideEffectMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

var (
	briefingIntentWords = []string{"brief", "briefing", "tell me about", "overview of", "summary of", "background on"}
	briefingEntityWords = []string{"company", "deal", "contact", "account", "customer", "lead", "prospect"}
)

// isBriefingRequest reports whether the user asked for an entity briefing:
// an intent word and an entity word must co-occur.
func isBriefingRequest(userMessage string) bool {
	lower := strings.ToLower(userMessage)
	intent := false
	for _, w := range briefingIntentWords {
		if strings.Contains(lower, w) {
			intent = true
			break
		}
	}
	if !intent {
		return false
	}
	for _, w := range briefingEntityWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	markdownBoldRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)
)

// renderSurfaceMarkup converts markdown links and bold markers into the chat
// surface's markup: [text](url) becomes <url|text>, **bold** becomes *bold*.
func renderSurfaceMarkup(text string) string {
	text = markdownLinkRe.ReplaceAllString(text, "<$2|$1>")
	text = markdownBoldRe.ReplaceAllString(text, "*$1*")
	return text
}
