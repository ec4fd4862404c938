package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/trial"
)

var watchActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recently updated trials",
	Long:  "Lists stored trials whose registry last-updated timestamp falls inside the activity window, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := watchStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		window, _ := cmd.Flags().GetDuration("window")
		if window <= 0 {
			window = time.Duration(cfg.Watch.ActivityWindowHours) * time.Hour
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = cfg.Watch.ActivityLimit
		}

		rows, err := st.RecentActivity(ctx, time.Now().UTC().Add(-window), limit)
		if err != nil {
			return eris.Wrap(err, "watch activity")
		}

		if len(rows) == 0 {
			zap.L().Info("no recent activity in window", zap.Duration("window", window))
			return nil
		}

		formatActivity(os.Stdout, rows)
		return nil
	},
}

func init() {
	watchActivityCmd.Flags().Duration("window", 0, "activity window (default from config)")
	watchActivityCmd.Flags().Int("limit", 0, "maximum rows to list (default from config)")
	watchCmd.AddCommand(watchActivityCmd)
}

// formatActivity writes a tabular representation of activity rows to w.
func formatActivity(out io.Writer, rows []trial.Stored) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tLAST UPDATED\tTITLE")
	_, _ = fmt.Fprintln(w, "--\t------\t------------\t-----")

	for _, t := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			t.ExternalID,
			t.Status,
			t.LastUpdated,
			truncate(t.Title, 70),
		)
	}
	_ = w.Flush()
}
