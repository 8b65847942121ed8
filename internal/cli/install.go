package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/integrity"
	"github.com/ppiankov/cangate/internal/systemd"
)

var (
	installUnitDir  string
	installUnitHash string
	installChecksum string
)

func init() {
	installCmd.Flags().StringVar(&installUnitDir, "unit-dir", systemd.DefaultUnitDir, "Directory to write cangate@.service into")
	installCmd.Flags().StringVar(&installUnitHash, "unit-hash", systemd.DefaultHashPath, "Where to record the unit digest")
	installCmd.Flags().StringVar(&installChecksum, "checksum", integrity.ChecksumPaths[0], "Where to record the binary digest")
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the systemd unit and record binary and unit checksums",
	Long: "Writes cangate@.service, records its digest for tamper checks, and records\n" +
		"the running binary's SHA-256 so serve and bridge can verify it at start.\n" +
		"Enable an instance with: systemctl enable --now cangate@<config-name>",
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	unitPath, err := systemd.Install(installUnitDir, installUnitHash)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "  created  %s\n", unitPath)
	fmt.Fprintf(cmd.ErrOrStderr(), "  created  %s\n", installUnitHash)

	sum, err := integrity.WriteChecksum(installChecksum)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "  created  %s (%s)\n", installChecksum, sum[:12])
	return nil
}
