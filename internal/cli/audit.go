package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/audit"
)

var (
	tailLines     int
	sessionHook   string
	sessionFrom   string
	sessionTo     string
	sessionFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditSessionCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditSessionCmd.Flags().StringVar(&sessionHook, "hook", "", "Only entries of this hook (rx|tx|fwd|set_safety_mode|reload|relay_malfunction)")
	auditSessionCmd.Flags().StringVar(&sessionFrom, "from", "", "Start time filter (RFC3339)")
	auditSessionCmd.Flags().StringVar(&sessionTo, "to", "", "End time filter (RFC3339)")
	auditSessionCmd.Flags().StringVarP(&sessionFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit log entries",
	Long:  "Reads the last N entries from the JSONL audit log, one per line.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

var auditSessionCmd = &cobra.Command{
	Use:   "session <path> [session-id]",
	Short: "Show one session's decision timeline",
	Long:  "Filters the audit log by session ID, hook and time range, and renders\na timeline with counts and final engagement.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAuditSession,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified, head %s\n", result.Lines, result.Head)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	entries, err := audit.Tail(args[0], tailLines)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintln(out, audit.FormatEntry(e))
	}
	return nil
}

func runAuditSession(cmd *cobra.Command, args []string) error {
	filter := audit.SessionFilter{Hook: sessionHook}
	if len(args) == 2 {
		filter.SessionID = args[1]
	}

	if sessionFrom != "" {
		from, err := time.Parse(time.RFC3339, sessionFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", sessionFrom, err)
		}
		filter.From = from
	}
	if sessionTo != "" {
		to, err := time.Parse(time.RFC3339, sessionTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", sessionTo, err)
		}
		filter.To = to
	}

	result, err := audit.Session(args[0], filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch sessionFormat {
	case "json":
		js, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, js)
	default:
		fmt.Fprint(out, audit.FormatTimeline(result))
	}
	return nil
}
