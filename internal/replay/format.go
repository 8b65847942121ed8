package replay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders a replay result as a human-readable report. At most
// maxDenied denied frames are listed; 0 lists none.
func FormatText(r *Result, maxDenied int) string {
	var b strings.Builder
	st := r.Status

	fmt.Fprintf(&b, "Replayed %d frames (%d skipped) through %s\n\n", r.Frames, r.Skipped, st.ModeName)
	fmt.Fprintf(&b, "  rx valid:    %d\n", st.Counters.RxValid)
	fmt.Fprintf(&b, "  rx invalid:  %d\n", st.Counters.RxInvalid)
	fmt.Fprintf(&b, "  tx allowed:  %d\n", st.Counters.TxAllowed)
	fmt.Fprintf(&b, "  tx denied:   %d\n", st.Counters.TxDenied)
	fmt.Fprintf(&b, "  forwarded:   %d\n", st.Counters.Forwarded)

	engaged := 0
	for _, tr := range r.Transitions {
		if tr.ControlsAllowed {
			engaged++
		}
	}
	fmt.Fprintf(&b, "\n  transitions: %d (%d engagements)\n", len(r.Transitions), engaged)
	fmt.Fprintf(&b, "  final:       controls_allowed=%t relay_malfunction=%t\n",
		st.State.ControlsAllowed, st.State.RelayMalfunction)

	if maxDenied > 0 && len(r.Denied) > 0 {
		b.WriteString("\nDenied:\n")
		for i, d := range r.Denied {
			if i == maxDenied {
				fmt.Fprintf(&b, "  ... %d more\n", len(r.Denied)-maxDenied)
				break
			}
			fmt.Fprintf(&b, "  line %-6d %10dus  %-3s %s\n", d.Line, d.AtUS, d.Hook, d.Frame)
		}
	}
	return b.String()
}

// FormatJSON renders a replay result as JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay: %w", err)
	}
	return string(data), nil
}
