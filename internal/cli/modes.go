package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/safety"
)

func init() {
	rootCmd.AddCommand(modesCmd)
}

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List supported safety modes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, m := range safety.Modes() {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", uint16(m), m)
		}
	},
}
