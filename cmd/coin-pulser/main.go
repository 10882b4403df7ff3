// Command coin-pulser turns button presses, serial TRIGGER commands and HTTP
// requests into timed coin pulses on a relay.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/coin-pulser/internal/gpio"
	"github.com/sweeney/coin-pulser/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "coin-pulser",
		Short:         "Coin pulse relay controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default /etc/coin-pulser.yaml)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(viper.New(), configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runDaemon(cfg, logger.New(cfg.Log.Level))
		},
	}
	addDaemonFlags(runCmd.Flags())

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Print the raw button level and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(viper.New(), configFile, nil)
			if err != nil {
				return err
			}
			in, err := gpio.NewRealInput(cfg.GPIO.Chip, cfg.GPIO.ButtonPin)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer in.Close()
			return printState(cmd.OutOrStdout(), in)
		},
	}

	root.AddCommand(runCmd, stateCmd)
	return root
}

// printState writes the button level. The input is pulled up, so Low
// means pressed.
func printState(w io.Writer, in gpio.Input) error {
	level, err := in.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	state := "RELEASED"
	if level == gpio.Low {
		state = "PRESSED"
	}
	_, err = fmt.Fprintf(w, "button: %s (%s)\n", state, level)
	return err
}
