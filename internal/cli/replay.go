package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/canbus"
	"github.com/ppiankov/cangate/internal/dispatch"
	"github.com/ppiankov/cangate/internal/replay"
	"github.com/ppiankov/cangate/internal/safety"
)

var (
	replayMode         string
	replayParam        int16
	replayBuses        []string
	replayHost         string
	replayLongitudinal bool
	replayShowDenied   int
	replayFormat       string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayMode, "mode", "m", "", "Safety mode (default from config)")
	replayCmd.Flags().Int16Var(&replayParam, "param", 0, "Init parameter (default from config)")
	replayCmd.Flags().StringSliceVar(&replayBuses, "buses", nil, "Car-side interfaces by bus index (default from config)")
	replayCmd.Flags().StringVar(&replayHost, "host", "", "Interface carrying driving-computer frames (default from config)")
	replayCmd.Flags().BoolVar(&replayLongitudinal, "longitudinal", false, "Allow longitudinal control for host frames")
	replayCmd.Flags().IntVar(&replayShowDenied, "show-denied", 20, "Number of denied frames to list")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var replayCmd = &cobra.Command{
	Use:   "replay <candump.log>",
	Short: "Replay a candump log through a safety variant",
	Long: "Feeds a recorded candump -l log through a fresh interlock, using the\n" +
		"log timestamps as the interlock clock. Frames on car-side interfaces are\n" +
		"received; frames on the host interface are transmit requests.",
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mode := cfg.SafetyMode()
	param := cfg.Param
	if replayMode != "" {
		if mode, err = safety.ParseMode(replayMode); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("param") {
		param = replayParam
	}
	buses := cfg.Bridge.Buses
	if len(replayBuses) > 0 {
		buses = replayBuses
	}
	host := cfg.Bridge.Host
	if replayHost != "" {
		host = replayHost
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open candump log: %w", err)
	}
	defer f.Close()
	frames, err := canbus.ReadCandump(f)
	if err != nil {
		return err
	}

	res, err := replay.Run(frames, replay.Options{
		Table:               dispatch.NewTable(dispatch.OptionsFrom(cfg)),
		Mode:                mode,
		Param:               param,
		Buses:               canbus.NewBusMap(buses),
		Host:                host,
		LongitudinalAllowed: replayLongitudinal || cfg.Bridge.LongitudinalAllowed,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch replayFormat {
	case "json":
		js, err := replay.FormatJSON(res)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, js)
	default:
		fmt.Fprint(out, replay.FormatText(res, replayShowDenied))
	}
	return nil
}
