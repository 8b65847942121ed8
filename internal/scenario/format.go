package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders a list of run results as human-readable text.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	totalFiles := len(results)
	fmt.Fprintf(&b, "Checking %d scenario file", totalFiles)
	if totalFiles != 1 {
		b.WriteString("s")
	}
	b.WriteString("...\n\n")

	totalChecks := 0
	totalPassed := 0
	failedScenarios := 0

	for _, r := range results {
		totalChecks += r.Total
		totalPassed += r.Passed

		if r.Failed == 0 {
			fmt.Fprintf(&b, "  PASS  %s [%s] (%d/%d)\n", r.Name, r.Mode, r.Passed, r.Total)
			continue
		}
		failedScenarios++
		fmt.Fprintf(&b, "  FAIL  %s [%s] (%d/%d)\n", r.Name, r.Mode, r.Passed, r.Total)
		for _, s := range r.Steps {
			if s.Passed {
				continue
			}
			fmt.Fprintf(&b, "    FAIL  step %d @%dus: %-5s %-24s %s expected %s, got %s\n",
				s.Index, s.At, s.Call, s.Frame, s.Check, s.Expected, s.Actual)
		}
	}

	fmt.Fprintf(&b, "\n%d of %d checks passed.", totalPassed, totalChecks)
	if failedScenarios > 0 {
		fmt.Fprintf(&b, " %d of %d scenarios failed.", failedScenarios, totalFiles)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
