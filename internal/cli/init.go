package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default configuration file",
	Long:  "Writes a commented default config to --config, or ~/.cangate/config.yaml.\nAn existing file is kept unless --force is given.",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := watchPath()
	if path == "" {
		return fmt.Errorf("cannot determine config path; pass --config")
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Fprintf(cmd.ErrOrStderr(), "  exists   %s (use --force to overwrite)\n", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.DefaultConfigYAML()), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "  created  %s\n", path)
	return nil
}
