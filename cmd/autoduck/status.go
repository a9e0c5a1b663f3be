package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/autoduck/internal/adapter/output"
	"github.com/jmylchreest/autoduck/internal/core"
	"github.com/jmylchreest/autoduck/internal/store"
)

var statusOpts struct {
	format     string
	role       string
	template   string
	noSessions bool
	sort       string
	order      string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ducking engine status",
	Long: `Show whether the ducking engine is running, whether music is currently
ducked, which priority apps are active and when priority audio was last heard.

When autoduckd is not running, the last transition recorded in the state file
is shown instead.

The waybar format is designed for Waybar's custom module:

  "custom/autoduck": {
    "exec": "autoduck status -o waybar",
    "interval": 1,
    "return-type": "json",
    "on-click": "autoduck engine toggle"
  }

Formats: waybar, json, yaml, plain, ids`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOpts.format, "output", "o", "plain",
		"Output format (waybar, json, yaml, plain, ids)")
	statusCmd.Flags().StringVar(&statusOpts.role, "role", "",
		"Only show sessions with this role (priority, music, ignored, unclassified)")
	statusCmd.Flags().StringVar(&statusOpts.template, "template", "",
		"Go template for plain output (e.g. '{{.Phase}}')")
	statusCmd.Flags().BoolVar(&statusOpts.noSessions, "no-sessions", false,
		"Omit the session list")
	statusCmd.Flags().StringVar(&statusOpts.sort, "sort", "role",
		"Sort sessions by field (role, identity, peak, volume)")
	statusCmd.Flags().StringVar(&statusOpts.order, "order", "asc",
		"Sort order (asc, desc)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOpts.format)
	if err != nil {
		return err
	}
	if statusOpts.role != "" {
		if _, err := parseRole(statusOpts.role, true); err != nil {
			return err
		}
	}

	field, err := core.ParseSortField(statusOpts.sort)
	if err != nil {
		return err
	}
	order, err := core.ParseSortOrder(statusOpts.order)
	if err != nil {
		return err
	}

	opts := output.DefaultFormatterOptions()
	opts.Role = statusOpts.role
	opts.Template = statusOpts.template
	opts.ShowSession = !statusOpts.noSessions

	report, err := loadReport(core.SortOptions{Field: field, Order: order})
	if err != nil {
		// Waybar polls; an error object keeps the bar module alive.
		if format == output.FormatWaybar {
			return output.NewWaybarFormatter(opts).Format(cmd.OutOrStdout(), &output.Report{
				Running:    true,
				AudioError: err.Error(),
			})
		}
		return err
	}

	return output.NewFormatter(format, opts).Format(cmd.OutOrStdout(), report)
}

// loadReport fetches the live state with sessions in sortOpts order, or falls
// back to the state file when the daemon is not running.
func loadReport(sortOpts core.SortOptions) (*output.Report, error) {
	client, ok, err := connect()
	if err != nil {
		return nil, err
	}
	if ok {
		ctx, cancel := requestContext()
		defer cancel()
		state, err := client.State(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get daemon state: %w", err)
		}
		core.Sort(state.Status.Sessions, sortOpts)
		return output.NewReport(state, time.Now()), nil
	}

	path, err := store.StateFilePath()
	if err != nil {
		return nil, err
	}
	shared, err := store.LoadSharedState(path)
	if err != nil {
		return nil, err
	}
	return output.NewStateFileReport(*shared, time.Now()), nil
}
