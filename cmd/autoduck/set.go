package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/autoduck/internal/config"
)

var setOpts struct {
	transient bool // Apply to the running engine without saving
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change an engine setting",
	Long: `Change an engine setting.

By default the value is written to the config file and the daemon is asked to
reload it. With --transient the value is applied to the running engine only
and is lost when autoduckd restarts.

Durations accept Go duration strings ("250ms", "1.5s") or integer milliseconds.

Keys: ` + strings.Join(config.EngineKeys, ", ") + `

Examples:
  # Duck music to 10%
  autoduck set volume_ducked 0.1

  # Wait two seconds of silence before restoring
  autoduck set restore_delay 2s

  # Try a slower fade in without saving it
  autoduck set fade_in 800 --transient`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)

	setCmd.Flags().BoolVar(&setOpts.transient, "transient", false,
		"Apply to the running engine only, do not save to the config file")
}

func runSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if setOpts.transient {
		return setTransient(cmd, key, value)
	}

	err := config.Edit(globalOpts.configPath, func(c *config.Config) error {
		return c.Set(key, value)
	})
	if err != nil {
		return err
	}
	logger.Debug("config updated", "key", key, "value", value, "path", globalOpts.configPath)
	return reloadDaemon(cmd)
}

// setTransient overlays one key on the daemon's current settings.
func setTransient(cmd *cobra.Command, key, value string) error {
	if strings.TrimPrefix(key, "engine.") == "autostart" {
		return fmt.Errorf("autostart only applies at daemon start and cannot be set with --transient")
	}

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

	cfg := config.DefaultConfig()
	cfg.SetSettings(state.Settings)
	if err := cfg.Set(key, value); err != nil {
		return err
	}

	if err := client.ApplySettings(ctx, cfg.Settings()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %s=%s (not saved)\n", key, value)
	return nil
}
