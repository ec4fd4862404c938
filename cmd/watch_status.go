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

	"github.com/sells-group/trialwatch-cli/internal/store"
)

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watch run log",
	Long:  "Displays recent watch runs with their counters and outcome.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := watchStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "watch status")
		}

		if len(runs) == 0 {
			zap.L().Info("no watch runs found, run 'watch run' to start watching")
			return nil
		}

		formatRunEntries(os.Stdout, runs)
		return nil
	},
}

func init() {
	watchStatusCmd.Flags().Int("limit", 20, "maximum runs to list")
	watchCmd.AddCommand(watchStatusCmd)
}

// formatRunEntries writes a tabular representation of run entries to w.
func formatRunEntries(out io.Writer, runs []store.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tFETCHED\tNEW\tCHANGED\tUPDATED\tSKIPPED\tERRORS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t-------\t---\t-------\t-------\t-------\t------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			d := r.CompletedAt.Sub(r.StartedAt).Round(time.Second)
			dur = d.String()
		}

		errMsg := ""
		if r.Error != "" {
			errMsg = truncate(r.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			truncate(r.ID, 8),
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Counts.Fetched,
			r.Counts.New,
			r.Counts.Changed,
			r.Counts.Updated,
			r.Counts.Skipped,
			r.Counts.Errors,
			errMsg,
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
