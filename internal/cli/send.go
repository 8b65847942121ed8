package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/cangate/internal/client"
	"github.com/ppiankov/cangate/internal/model"
)

var (
	sendServer       string
	sendRx           bool
	sendFwd          bool
	sendLongitudinal bool
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendServer, "server", "", "Interlock server address (default: listen address from config)")
	sendCmd.Flags().BoolVar(&sendRx, "rx", false, "Feed the frame as received from the car instead of transmitting")
	sendCmd.Flags().BoolVar(&sendFwd, "fwd", false, "Ask where the frame would be forwarded")
	sendCmd.Flags().BoolVar(&sendLongitudinal, "longitudinal", false, "Allow longitudinal control for this transmit")
}

var sendCmd = &cobra.Command{
	Use:   "send <bus:ADDR#DATA>",
	Short: "Ask a running interlock server for a decision",
	Long: "Sends one frame to the interlock server, e.g. 0:399#000A000000000000.\n" +
		"Default is a transmit request; --rx feeds it as received, --fwd queries forwarding.\n" +
		"An unreachable server denies.",
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func serverAddr(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Listen, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	if sendRx && sendFwd {
		return fmt.Errorf("--rx and --fwd are mutually exclusive")
	}
	f, err := model.ParseFrame(args[0])
	if err != nil {
		return err
	}
	addr, err := serverAddr(sendServer)
	if err != nil {
		return err
	}
	c, err := client.New(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	switch {
	case sendFwd:
		dst, err := c.Forward(f)
		if err != nil {
			return err
		}
		if dst == model.NoForward {
			fmt.Fprintln(out, "fwd: none")
		} else {
			fmt.Fprintf(out, "fwd: bus %d\n", dst)
		}
	case sendRx:
		ok, err := c.Receive(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "rx: %s\n", validity(ok))
	default:
		ok, err := c.Transmit(f, sendLongitudinal)
		fmt.Fprintf(out, "tx: %s\n", model.DecisionOf(ok))
		if err != nil {
			return err
		}
	}
	return nil
}

func validity(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}
