// Package handoff implements the execution-handoff protocol: the line
// oriented document the executor phase emits and the presenter phase
// consumes. The codec is strict on parse, deterministic on serialize, and
// always recoverable through Fallback.
package handoff

import (
	"fmt"
	"strings"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

// Header is the literal first line of a handoff document.
const Header = "EXECUTION_HANDOFF"

// MissingFormatField marks a handoff synthesized because the executor never
// produced a parseable document.
const MissingFormatField = "executor_handoff_format"

const fallbackFollowUp = "Could you confirm what you'd like me to do, or rephrase the request?"

// sectionOrder is the fixed serialization order and doubles as the list of
// recognized section keys.
var sectionOrder = []string{"plan", "actions", "data", "errors", "verification", "missing", "follow-up", "draft"}

var requiredSections = []string{"plan", "actions", "data", "errors", "verification", "missing"}

var scalarSections = map[string]bool{
	"follow-up": true,
	"draft":     true,
}

// ParseResult carries the parsed handoff plus everything needed to decide on
// repair: accumulated errors and missing fields.
type ParseResult struct {
	Handoff       contractx.Handoff
	OK            bool
	MissingFields []string
	Errors        []string
}

// Parse scans raw for a handoff document. It succeeds only when the header,
// a valid status line, and all six required sections are present and the
// structural schema gate passes. The returned handoff is usable even on
// failure: status defaults to blocked and lists are never nil.
func Parse(raw string) ParseResult {
	res := ParseResult{
		Handoff: emptyHandoff(raw),
	}

	lines := strings.Split(raw, "\n")
	start := -1
	for i, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), Header) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		res.MissingFields = append(res.MissingFields, "header")
		return res
	}

	seen := make(map[string]bool, len(sectionOrder))
	statusSeen := false
	current := ""

	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if value, ok := cutPrefixFold(trimmed, "status:"); ok {
			statusSeen = true
			status := contractx.HandoffStatus(strings.ToLower(strings.TrimSpace(value)))
			if contractx.ValidStatus(status) {
				res.Handoff.Status = status
			} else {
				res.Errors = append(res.Errors, fmt.Sprintf("invalid status %q", strings.TrimSpace(value)))
			}
			continue
		}

		if key, inline, ok := matchSectionHeader(trimmed); ok {
			current = key
			seen[key] = true
			if inline != "" {
				appendItem(&res.Handoff, key, inline)
			}
			continue
		}

		if current != "" {
			appendItem(&res.Handoff, current, stripBullet(trimmed))
		}
	}

	if !statusSeen {
		res.MissingFields = append(res.MissingFields, "status")
	}
	for _, key := range requiredSections {
		if !seen[key] {
			res.MissingFields = append(res.MissingFields, key)
		}
	}

	if violations := validateSchema(res.Handoff); len(violations) > 0 {
		res.Errors = append(res.Errors, violations...)
	}

	res.OK = len(res.Errors) == 0 && len(res.MissingFields) == 0
	return res
}

// Encode serializes a handoff in the fixed section order, with "- none"
// marking empty sections. A literal "none" item cannot be represented: it is
// indistinguishable from the empty marker and is dropped on re-parse.
func Encode(h contractx.Handoff) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n")

	status := h.Status
	if !contractx.ValidStatus(status) {
		status = contractx.StatusBlocked
	}
	fmt.Fprintf(&b, "Status: %s\n", status)

	writeList := func(key string, items []string) {
		fmt.Fprintf(&b, "%s:\n", key)
		wrote := false
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" || strings.EqualFold(item, "none") {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", item)
			wrote = true
		}
		if !wrote {
			b.WriteString("- none\n")
		}
	}

	writeList("Plan", h.Plan)
	writeList("Actions", h.Actions)
	writeList("Data", h.Data)
	writeList("Errors", h.Errors)
	writeList("Verification", h.Verification)
	writeList("Missing", h.Missing)

	writeScalar := func(key, value string) {
		fmt.Fprintf(&b, "%s:\n", key)
		value = strings.TrimSpace(value)
		if value == "" || strings.EqualFold(value, "none") {
			b.WriteString("- none\n")
			return
		}
		fmt.Fprintf(&b, "- %s\n", value)
	}

	writeScalar("Follow-up", h.FollowUp)
	writeScalar("Draft", h.Draft)

	return b.String()
}

// Fallback builds the deterministic blocked handoff used when both the
// original parse and the repair pass fail. It guarantees the presenter phase
// always receives a well-formed document.
func Fallback(causes ...string) contractx.Handoff {
	cause := strings.Join(causes, "; ")
	if cause == "" {
		cause = "executor did not produce a parseable handoff"
	}
	h := emptyHandoff("")
	h.Status = contractx.StatusBlocked
	h.Errors = []string{fmt.Sprintf("executor handoff could not be parsed: %s", cause)}
	h.Missing = []string{MissingFormatField}
	h.FollowUp = fallbackFollowUp
	return h
}

func emptyHandoff(raw string) contractx.Handoff {
	return contractx.Handoff{
		Status:       contractx.StatusBlocked,
		Plan:         []string{},
		Actions:      []string{},
		Data:         []string{},
		Errors:       []string{},
		Verification: []string{},
		Missing:      []string{},
		Raw:          raw,
	}
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// matchSectionHeader tests for a "Key: inline-value" line. Keys are case
// insensitive, and "follow-up" also matches "followup" and "follow up".
func matchSectionHeader(line string) (key, inline string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	// A bulleted line is an item even when its text contains a colon.
	if !startsWithLetter(line) {
		return "", "", false
	}
	rawKey := normalizeKey(line[:idx])
	for _, candidate := range sectionOrder {
		if normalizeKey(candidate) == rawKey {
			return candidate, strings.TrimSpace(line[idx+1:]), true
		}
	}
	return "", "", false
}

func startsWithLetter(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

func appendItem(h *contractx.Handoff, section, item string) {
	item = strings.TrimSpace(item)
	if item == "" || strings.EqualFold(item, "none") {
		return
	}

	if scalarSections[section] {
		target := &h.FollowUp
		if section == "draft" {
			target = &h.Draft
		}
		if *target == "" {
			*target = item
		} else {
			*target += "\n" + item
		}
		return
	}

	switch section {
	case "plan":
		h.Plan = append(h.Plan, item)
	case "actions":
		h.Actions = append(h.Actions, item)
	case "data":
		h.Data = append(h.Data, item)
	case "errors":
		h.Errors = append(h.Errors, item)
	case "verification":
		h.Verification = append(h.Verification, item)
	case "missing":
		h.Missing = append(h.Missing, item)
	}
}

func stripBullet(line string) string {
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(line[len(marker):])
		}
	}
	// A bare marker with no text is an empty item.
	if line == "-" || line == "*" || line == "•" {
		return ""
	}
	return line
}
