package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sells-group/trialwatch-cli/internal/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Trial watch pipeline",
	Long:  "Fetches watched trials from the enabled registries, reconciles them against the stored snapshot, and reports what changed.",
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchStore opens the configured store backend.
func watchStore(ctx context.Context) (store.Store, error) {
	return store.New(ctx, cfg.Store)
}
