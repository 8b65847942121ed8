package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/audit"
	"github.com/ppiankov/cangate/internal/integrity"
	"github.com/ppiankov/cangate/internal/systemd"
)

var (
	doctorUnitDir  string
	doctorUnitHash string
)

func init() {
	doctorCmd.Flags().StringVar(&doctorUnitDir, "unit-dir", systemd.DefaultUnitDir, "Directory holding the systemd unit")
	doctorCmd.Flags().StringVar(&doctorUnitHash, "unit-hash", systemd.DefaultHashPath, "Recorded unit digest")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check gateway readiness and diagnose configuration issues",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	warn   bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// Binary and its recorded digest.
	res, err := integrity.Verify(slog.New(slog.NewTextHandler(io.Discard, nil)))
	switch {
	case err != nil:
		checks = append(checks, checkResult{label: "binary", detail: err.Error(), fix: "reinstall cangate"})
	case res.Skipped:
		checks = append(checks, checkResult{
			label:  "binary",
			ok:     true,
			warn:   true,
			detail: fmt.Sprintf("%s (v%s), no recorded checksum", res.Binary, version),
			fix:    "sudo cangate install",
		})
	default:
		checks = append(checks, checkResult{
			label:  "binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s), sha256 %s verified", res.Binary, version, res.Actual[:12]),
		})
	}

	cfg, err := loadConfig()
	if err != nil {
		checks = append(checks, checkResult{label: "config", detail: err.Error(), fix: "cangate init-config"})
	} else {
		path := watchPath()
		if _, statErr := os.Stat(path); statErr != nil {
			path = "built-in defaults"
		}
		checks = append(checks, checkResult{
			label:  "config",
			ok:     true,
			detail: fmt.Sprintf("%s, mode %s", path, cfg.Mode),
		})

		if cfg.AuditLog != "" {
			checks = append(checks, auditCheck(cfg.AuditLog))
		}

		ifaces := append([]string{cfg.Bridge.Host}, cfg.Bridge.Buses...)
		for _, name := range ifaces {
			if name == "" {
				continue
			}
			if _, err := net.InterfaceByName(name); err != nil {
				checks = append(checks, checkResult{
					label:  "iface " + name,
					detail: "not found",
					fix:    "ip link add dev " + name + " type vcan && ip link set up " + name,
				})
				continue
			}
			checks = append(checks, checkResult{label: "iface " + name, ok: true, detail: "present"})
		}
	}

	if runtime.GOOS == "linux" {
		unitPath := filepath.Join(doctorUnitDir, systemd.UnitName)
		if _, err := os.Stat(unitPath); err != nil {
			checks = append(checks, checkResult{
				label:  "systemd unit",
				ok:     true,
				warn:   true,
				detail: "not installed",
				fix:    "sudo cangate install",
			})
		} else if msg := systemd.CheckUnit(unitPath, doctorUnitHash); msg != "" {
			checks = append(checks, checkResult{label: "systemd unit", detail: msg, fix: "sudo cangate install"})
		} else {
			checks = append(checks, checkResult{label: "systemd unit", ok: true, detail: unitPath})
		}
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, c := range checks {
		mark := "✓"
		switch {
		case !c.ok:
			mark = "✗"
			failed = true
		case c.warn:
			mark = "!"
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if (!c.ok || c.warn) && c.fix != "" {
			line += "  ->  " + c.fix
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out)
	if failed {
		fmt.Fprintln(out, "Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Fprintln(out, "All checks passed.")
	return nil
}

func auditCheck(path string) checkResult {
	if _, err := os.Stat(path); err != nil {
		return checkResult{label: "audit log", ok: true, warn: true, detail: path + " (not created yet)"}
	}
	v := audit.Verify(path)
	if !v.Valid {
		return checkResult{
			label:  "audit log",
			detail: fmt.Sprintf("chain broken at line %d: %s", v.ErrorLine, v.Error),
			fix:    "cangate audit verify " + path,
		}
	}
	return checkResult{label: "audit log", ok: true, detail: fmt.Sprintf("%s, %d entries verified", path, v.Lines)}
}
