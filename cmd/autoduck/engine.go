package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/autoduck/internal/daemon"
)

// engineCmd represents the engine command group.
var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Start or stop the ducking engine",
	Long: `Start or stop the ducking engine inside autoduckd.

The choice is remembered: a stopped engine stays stopped when the daemon
restarts, even with autostart enabled.

Use 'autoduck engine start' to begin ducking.
Use 'autoduck engine stop' to stop ducking (music is restored when restore_on_stop is set).
Use 'autoduck engine toggle' to switch between the two.`,
}

var engineStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start ducking",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEngine(cmd, true)
	},
}

var engineStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop ducking",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEngine(cmd, false)
	},
}

var engineToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle the ducking engine",
	Args:  cobra.NoArgs,
	RunE:  engineToggleRun,
}

func init() {
	engineCmd.AddCommand(engineStartCmd)
	engineCmd.AddCommand(engineStopCmd)
	engineCmd.AddCommand(engineToggleCmd)

	rootCmd.AddCommand(engineCmd)
}

func setEngine(cmd *cobra.Command, enable bool) error {
	client, err := mustConnect()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	if enable {
		err = client.Start(ctx)
	} else {
		err = client.Stop(ctx)
	}

	switch {
	case errors.Is(err, daemon.ErrAlreadyRunning):
		fmt.Fprintln(cmd.OutOrStdout(), "Ducking engine: already running")
		return nil
	case errors.Is(err, daemon.ErrNotRunning):
		fmt.Fprintln(cmd.OutOrStdout(), "Ducking engine: already stopped")
		return nil
	case err != nil:
		return err
	}

	if enable {
		fmt.Fprintln(cmd.OutOrStdout(), "Ducking engine: started")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Ducking engine: stopped")
	}
	return nil
}

func engineToggleRun(cmd *cobra.Command, args []string) error {
	client, err := mustConnect()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()
	state, err := client.State(ctx)
	if err != nil {
		return err
	}
	return setEngine(cmd, !state.Running)
}
