package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a SessionResult as a human-readable text timeline.
func FormatTimeline(result *SessionResult) string {
	label := result.SessionID
	if label == "" {
		label = "all"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", label)
	}

	var b strings.Builder

	first := formatDateRange(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	b.WriteString(fmt.Sprintf("Session: %s | %s–%s UTC\n", label, first, last))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		b.WriteString(FormatEntry(e))
		b.WriteString("\n")
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatEntry renders one entry on a single line.
func FormatEntry(e AuditEntry) string {
	ts := formatTimeOnly(e.Timestamp)
	decision := strings.ToUpper(e.Decision)
	frame := ""
	if e.Frame.Len > 0 || e.Frame.Addr != 0 {
		frame = fmt.Sprintf("%d:%03X#%s", e.Frame.Bus, e.Frame.Addr, strings.ToUpper(e.Frame.Data))
	}
	tag := ""
	if e.Dest != nil {
		tag = fmt.Sprintf("  -> bus %d", *e.Dest)
	}
	if e.Reason != "" {
		tag += "  [" + e.Reason + "]"
	}
	engaged := "-"
	if e.ControlsAllowed {
		engaged = "E"
	}
	return fmt.Sprintf("%-10s %-16s %-5s %-1s %-28s%s", ts, e.Hook, decision, engaged, frame, tag)
}

// FormatJSON renders a SessionResult as indented JSON.
func FormatJSON(result *SessionResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s SessionSummary) string {
	parts := []string{}
	if s.AllowCount > 0 {
		parts = append(parts, fmt.Sprintf("%d allow", s.AllowCount))
	}
	if s.DenyCount > 0 {
		parts = append(parts, fmt.Sprintf("%d deny", s.DenyCount))
	}
	if s.RxInvalid > 0 {
		parts = append(parts, fmt.Sprintf("%d rx invalid", s.RxInvalid))
	}
	if s.Forwarded > 0 {
		parts = append(parts, fmt.Sprintf("%d forwarded", s.Forwarded))
	}
	if s.ModeChanges > 0 {
		parts = append(parts, fmt.Sprintf("%d mode change", s.ModeChanges))
	}
	state := "disengaged"
	if s.Engaged {
		state = "engaged"
	}
	return fmt.Sprintf("Summary: %s | Final state: %s\n", strings.Join(parts, ", "), state)
}
