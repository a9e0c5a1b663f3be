package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask autoduckd to re-read its config file",
	Long: `Ask autoduckd to re-read its config file. The daemon also reloads on its
own when the file changes; this is for editors that replace files in ways the
watcher misses. An invalid file is rejected and the running settings are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := mustConnect()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()
		if err := client.Reload(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration reloaded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}
