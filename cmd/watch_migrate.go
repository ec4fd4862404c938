package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var watchMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store migrations",
	Long:  "Creates or upgrades the trials and watch_runs tables for the configured store backend.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := watchStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "watch migrate")
		}

		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	watchCmd.AddCommand(watchMigrateCmd)
}
