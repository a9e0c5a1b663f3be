package main

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/autoduck/internal/tui"
)

var tuiOpts struct {
	clipboard string
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the live status view",
	Long: `Launch the interactive terminal view of autoduckd.

The view shows every app currently producing audio, its role, volume and
peak level, and whether music is ducked. It refreshes twice a second.

Key bindings:
  j/k, ↑/↓    Navigate sessions
  space, e    Start/stop the engine
  p           Mark selected app as priority
  m           Mark selected app as music
  i           Ignore selected app
  u, x        Remove selected app from every list
  c           Copy state to clipboard as YAML
  r           Refresh now
  ?           Show help
  q           Quit

Role changes are saved to the config file.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().StringVar(&tuiOpts.clipboard, "clipboard", "",
		"Clipboard command (auto-detects wl-copy, xclip or xsel if empty)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	client, err := mustConnect()
	if err != nil {
		return err
	}

	return tui.Run(client, tui.RunOptions{
		ConfigPath: globalOpts.configPath,
		Clipboard:  tuiOpts.clipboard,
	})
}
