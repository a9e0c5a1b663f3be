// Package main provides the CLI entrypoint for autoduck.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/autoduck/internal/config"
	"github.com/jmylchreest/autoduck/internal/dbus"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// requestTimeout bounds each call to the daemon.
const requestTimeout = 5 * time.Second

// Global configuration and state
var (
	globalOpts struct {
		verbose    bool
		configPath string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "autoduck",
	Short: "Automatic music ducking for Linux desktops",
	Long: `autoduck controls autoduckd, a daemon that lowers music players while
priority applications (voice chat, calls) are producing sound, and fades
them back once the priority audio has been quiet for a while.

Running autoduck without a subcommand launches the interactive TUI.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		if globalOpts.configPath == "" {
			p, err := config.Path()
			if err != nil {
				return fmt.Errorf("failed to get config path: %w", err)
			}
			globalOpts.configPath = p
		}
		return nil
	},
	// Default to TUI when no subcommand is provided
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/autoduck/autoduck.toml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// requestContext returns a context bounded by requestTimeout.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// connect returns a client for the running daemon. ok is false, with a nil
// error, when the daemon is simply not running.
func connect() (client *dbus.Client, ok bool, err error) {
	client, err = dbus.NewClient()
	if errors.Is(err, dbus.ErrDaemonNotRunning) {
		logger.Debug("daemon not running")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return client, true, nil
}

// mustConnect is connect for commands that need a running daemon.
func mustConnect() (*dbus.Client, error) {
	client, ok, err := connect()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dbus.ErrDaemonNotRunning
	}
	return client, nil
}

// reloadDaemon asks a running daemon to re-read the config file. A stopped
// daemon picks the file up when it next starts.
func reloadDaemon(cmd *cobra.Command) error {
	client, ok, err := connect()
	if err != nil || !ok {
		if err != nil {
			logger.Warn("could not reach daemon", "error", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved; autoduckd will apply it on next start")
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()
	if err := client.Reload(ctx); err != nil {
		return fmt.Errorf("saved, but reload failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Saved and applied")
	return nil
}
