package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/autoduck/internal/adapter/output"
	"github.com/jmylchreest/autoduck/internal/config"
	"github.com/jmylchreest/autoduck/internal/core"
	"github.com/jmylchreest/autoduck/internal/model"
)

var appsOpts struct {
	role   string
	format string
}

// appsCmd represents the apps command group.
var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage which apps are priority, music or ignored",
	Long: `Manage the application lists in the config file.

Priority apps (voice chat, calls) trigger ducking. Music apps are lowered while
priority audio plays. Ignored apps are never touched. An app cannot be both
priority and music: adding it to one list removes it from the other.

Apps are matched by process name, case-insensitively.

Use 'autoduck apps list' to see the lists and the apps currently playing audio.
Use 'autoduck apps add --role music spotify' to add an app.
Use 'autoduck apps remove spotify' to remove an app from every list.`,
	RunE: appsListRun,
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured apps and current audio sessions",
	Args:  cobra.NoArgs,
	RunE:  appsListRun,
}

var appsAddCmd = &cobra.Command{
	Use:   "add <name>...",
	Short: "Add apps to a role",
	Args:  cobra.MinimumNArgs(1),
	RunE:  appsAddRun,
}

var appsRemoveCmd = &cobra.Command{
	Use:   "remove <name>...",
	Short: "Remove apps from every role",
	Args:  cobra.MinimumNArgs(1),
	RunE:  appsRemoveRun,
}

func init() {
	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsAddCmd)
	appsCmd.AddCommand(appsRemoveCmd)

	for _, cmd := range []*cobra.Command{appsCmd, appsListCmd} {
		cmd.Flags().StringVarP(&appsOpts.format, "output", "o", "plain",
			"Output format (plain, json, yaml, ids)")
		cmd.Flags().StringVar(&appsOpts.role, "role", "",
			"Only list sessions with this role")
	}
	appsAddCmd.Flags().StringVar(&appsOpts.role, "role", "",
		"Role to assign (priority, music, ignored)")
	_ = appsAddCmd.MarkFlagRequired("role")

	rootCmd.AddCommand(appsCmd)
}

// parseRole parses a role name. Unclassified is accepted only when
// allowUnclassified is set.
func parseRole(name string, allowUnclassified bool) (model.Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for role, n := range model.RoleNames {
		if n != name {
			continue
		}
		if role == model.RoleUnclassified && !allowUnclassified {
			break
		}
		return role, nil
	}
	if allowUnclassified {
		return 0, fmt.Errorf("unknown role %q (want priority, music, ignored or unclassified)", name)
	}
	return 0, fmt.Errorf("unknown role %q (want priority, music or ignored)", name)
}

// appsListing is the structured form of 'apps list'.
type appsListing struct {
	Priority []string             `json:"priority" yaml:"priority"`
	Music    []string             `json:"music" yaml:"music"`
	Ignored  []string             `json:"ignored" yaml:"ignored"`
	Sessions []output.SessionView `json:"sessions,omitempty" yaml:"sessions,omitempty"`
}

func appsListRun(cmd *cobra.Command, args []string) error {
	switch appsOpts.format {
	case "plain", "json", "yaml", "ids":
	default:
		return fmt.Errorf("unknown output format %q (want plain, json, yaml or ids)", appsOpts.format)
	}
	if appsOpts.role != "" {
		if _, err := parseRole(appsOpts.role, true); err != nil {
			return err
		}
	}

	cfg, err := config.Load(globalOpts.configPath)
	if err != nil {
		return err
	}

	// Live sessions are best effort; the lists come from the config file.
	var sessions []output.SessionView
	var report *output.Report
	if r, err := loadReport(core.SortOptions{Field: core.SortByIdentity, Order: core.SortAsc}); err != nil {
		logger.Warn("could not read live sessions", "error", err)
	} else if r.Source == output.SourceDaemon {
		report = r
		sessions = r.FilterSessions(appsOpts.role)
	}

	w := cmd.OutOrStdout()
	listing := appsListing{
		Priority: cfg.Apps.Priority,
		Music:    cfg.Apps.Music,
		Ignored:  cfg.Apps.Ignored,
		Sessions: sessions,
	}

	switch appsOpts.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	case "yaml":
		return yaml.NewEncoder(w).Encode(listing)
	case "ids":
		if report == nil {
			return nil
		}
		return output.NewIDsFormatter().WithRole(appsOpts.role).Format(w, report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "priority:\t%s\n", strings.Join(listing.Priority, ", "))
	fmt.Fprintf(tw, "music:\t%s\n", strings.Join(listing.Music, ", "))
	fmt.Fprintf(tw, "ignored:\t%s\n", strings.Join(listing.Ignored, ", "))
	if err := tw.Flush(); err != nil {
		return err
	}

	if report == nil {
		fmt.Fprintln(w, "\nautoduckd is not running; no live sessions")
		return nil
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "\nno audio sessions")
		return nil
	}
	fmt.Fprintln(w, "\nsessions:")
	for _, s := range sessions {
		fmt.Fprintf(tw, "  %s\t%s\n", s.Identity, s.Role)
	}
	return tw.Flush()
}

func appsAddRun(cmd *cobra.Command, args []string) error {
	role, err := parseRole(appsOpts.role, false)
	if err != nil {
		return err
	}

	err = config.Edit(globalOpts.configPath, func(c *config.Config) error {
		for _, name := range args {
			// Ignored is additive; clear the other lists so the app has one role.
			if role == model.RoleIgnored {
				c.Apps.RemoveApp(name)
			}
			if err := c.Apps.AddApp(role, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return reloadDaemon(cmd)
}

func appsRemoveRun(cmd *cobra.Command, args []string) error {
	var missing []string
	err := config.Edit(globalOpts.configPath, func(c *config.Config) error {
		for _, name := range args {
			if !c.Apps.RemoveApp(name) {
				missing = append(missing, name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, name := range missing {
		logger.Warn("app was not listed", "name", name)
	}
	return reloadDaemon(cmd)
}
