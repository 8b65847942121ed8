package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/bridge"
	"github.com/ppiankov/cangate/internal/dispatch"
	"github.com/ppiankov/cangate/internal/integrity"
	"github.com/ppiankov/cangate/internal/safety"
)

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the SocketCAN gateway without the host-link server",
	Long: "Opens the configured car-side and host interfaces and gates every host\n" +
		"frame through a local interlock. Prints loop counters on exit.",
	RunE: runBridge,
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()
	if _, err := integrity.Verify(logger); err != nil {
		return err
	}

	il, err := dispatch.NewInterlock(cfg, safety.WithObserver(func(tr safety.Transition) {
		logger.Info("engagement transition",
			"mode", tr.Mode.String(),
			"cause", tr.Cause,
			"controls_allowed", tr.ControlsAllowed,
			"relay_malfunction", tr.RelayMalfunction,
		)
	}))
	if err != nil {
		return err
	}

	bc, closePorts, err := openPorts(cfg.Bridge, logger)
	if err != nil {
		return fmt.Errorf("failed to open CAN ports: %w", err)
	}
	defer closePorts()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "cangate bridge, mode %s, buses %v, host %s\n\n", cfg.Mode, cfg.Bridge.Buses, cfg.Bridge.Host)

	b := bridge.New(il, bc)
	runErr := b.Run(ctx)

	out, _ := json.MarshalIndent(b.Stats(), "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
