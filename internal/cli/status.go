package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/client"
	"github.com/ppiankov/cangate/internal/safety"
)

var (
	statusServer  string
	statusSetMode string
	statusParam   int16
	statusRelay   bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusServer, "server", "", "Interlock server address (default: listen address from config)")
	statusCmd.Flags().StringVar(&statusSetMode, "set-mode", "", "Select a safety mode before reporting")
	statusCmd.Flags().Int16Var(&statusParam, "param", 0, "Init parameter for --set-mode")
	statusCmd.Flags().BoolVar(&statusRelay, "relay-malfunction", false, "Report a relay fault before reporting")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running interlock",
	Long:  "Prints mode, engagement, torque tracker, counters and rx liveness as JSON.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, err := serverAddr(statusServer)
	if err != nil {
		return err
	}
	c, err := client.New(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if statusRelay {
		if err := c.SetRelayMalfunction(); err != nil {
			return err
		}
	}

	var st safety.Status
	if statusSetMode != "" {
		st, err = c.SetSafetyMode(statusSetMode, statusParam)
	} else {
		st, err = c.Status()
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
