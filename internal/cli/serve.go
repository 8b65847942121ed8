package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/bridge"
	"github.com/ppiankov/cangate/internal/integrity"
	"github.com/ppiankov/cangate/internal/server"
	"github.com/ppiankov/cangate/internal/systemd"
)

var (
	serveListen string
	serveBridge bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "gRPC listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveBridge, "bridge", false, "Also run the SocketCAN gateway through the served interlock")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the host-link gRPC server",
	Long: "Runs one interlock and exposes it to the driving computer over gRPC.\n" +
		"With --bridge, the SocketCAN gateway shares the same interlock.\n" +
		"The config file is hot-reloaded; a changed file re-initializes the interlock.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	if _, err := integrity.Verify(logger); err != nil {
		return err
	}
	if msg := systemd.CheckUnit(filepath.Join(systemd.DefaultUnitDir, systemd.UnitName), systemd.DefaultHashPath); msg != "" {
		logger.Warn(msg)
	}

	srv, err := server.New(server.Config{
		ConfigPath: configPath,
		Listen:     serveListen,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	reloader, err := server.NewReloader(srv, []string{watchPath()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reloader != nil {
		go reloader.Run(ctx)
	}

	if serveBridge {
		bc, closePorts, err := openPorts(srv.AppConfig().Bridge, logger)
		if err != nil {
			return fmt.Errorf("failed to open CAN ports: %w", err)
		}
		defer closePorts()
		b := bridge.New(srv, bc)
		go func() {
			if err := b.Run(ctx); err != nil {
				logger.Error("bridge stopped", "err", err)
				srv.GracefulStop()
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down interlock server...")
		cancel()
		srv.GracefulStop()
	}()

	cfg := srv.AppConfig()
	fmt.Fprintf(os.Stderr, "cangate interlock server, mode %s\n", cfg.Mode)
	if serveBridge {
		fmt.Fprintf(os.Stderr, "Bridge: buses %v, host %s\n", cfg.Bridge.Buses, cfg.Bridge.Host)
	}
	if cfg.AuditLog != "" {
		fmt.Fprintf(os.Stderr, "Audit log: %s\n", cfg.AuditLog)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve()
}
