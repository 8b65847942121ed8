package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/journal"
)

var (
	journalPath  string
	journalLimit int
	journalJSON  bool
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().StringVar(&journalPath, "db", "", "Journal database (default from config)")
	journalCmd.Flags().IntVarP(&journalLimit, "lines", "n", 50, "Most recent transitions to show (0 = all)")
	journalCmd.Flags().BoolVar(&journalJSON, "json", false, "Output JSON")
}

var journalCmd = &cobra.Command{
	Use:   "journal [session-id]",
	Short: "Show recorded engagement transitions",
	Long:  "Without arguments, lists every session in the engagement journal.\nWith a session ID, lists that session's transitions.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournal,
}

func runJournal(cmd *cobra.Command, args []string) error {
	path := journalPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Journal
	}
	if path == "" {
		return fmt.Errorf("no journal configured; set journal in config or pass --db")
	}

	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		sessions, err := j.Sessions()
		if err != nil {
			return err
		}
		if journalJSON {
			return printJSON(cmd, sessions)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tTRANSITIONS\tENGAGEMENTS\tRELAY FAULTS\tFIRST\tLAST")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n", s.SessionID, s.Transitions, s.Engagements, s.RelayFaults,
				s.First.Format("2006-01-02 15:04:05"), s.Last.Format("15:04:05"))
		}
		return tw.Flush()
	}

	entries, err := j.List(args[0], journalLimit)
	if err != nil {
		return err
	}
	if journalJSON {
		return printJSON(cmd, entries)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCLOCK_US\tMODE\tCAUSE\tCONTROLS\tRELAY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%t\t%t\n", e.CreatedAt.Format("15:04:05.000"), e.ClockUS, e.Mode, e.Cause,
			e.ControlsAllowed, e.RelayMalfunction)
	}
	return tw.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
