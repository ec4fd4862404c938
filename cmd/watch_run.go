package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/fetcher"
	"github.com/sells-group/trialwatch-cli/internal/notify"
	"github.com/sells-group/trialwatch-cli/internal/reconcile"
	"github.com/sells-group/trialwatch-cli/internal/registry"
	"github.com/sells-group/trialwatch-cli/internal/store"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

var watchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, reconcile, and notify",
	Long: `Run one watch cycle: fetch watched trials from the enabled registries,
classify each as new, status-changed, or unchanged against the stored
snapshot, refresh every stored row, and deliver the digest.

Use --sources to restrict to specific registries (ctgov, isrctn).
Use --dry-run to print the digest instead of emailing it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "watch.run"))

		st, err := watchStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "watch run: migrate")
		}

		sources, err := buildSources(cmd)
		if err != nil {
			return err
		}

		runID, err := st.StartRun(ctx)
		if err != nil {
			return eris.Wrap(err, "watch run: start run")
		}
		log.Info("watch run started", zap.String("run_id", runID))

		counts, err := executeRun(ctx, cmd, st, sources)
		if err != nil {
			if failErr := st.FailRun(ctx, runID, err.Error()); failErr != nil {
				log.Error("failed to record run failure", zap.Error(failErr))
			}
			return err
		}

		if err := st.CompleteRun(ctx, runID, *counts); err != nil {
			return eris.Wrap(err, "watch run: complete run")
		}

		fmt.Printf("Run complete: %d fetched, %d new, %d changed, %d updated, %d skipped, %d errors\n",
			counts.Fetched, counts.New, counts.Changed, counts.Updated, counts.Skipped, counts.Errors)
		return nil
	},
}

func init() {
	watchRunCmd.Flags().String("sources", "", "comma-separated registries to poll (ctgov,isrctn; default: all enabled)")
	watchRunCmd.Flags().Bool("dry-run", false, "print the digest instead of emailing it")
	watchRunCmd.Flags().Duration("window", 0, "recent-activity window for the digest (default from config)")
	watchRunCmd.Flags().Int("limit", 0, "recent-activity row cap for the digest (default from config)")
	watchCmd.AddCommand(watchRunCmd)
}

// executeRun performs the fetch, reconcile, and notify steps and returns the
// final run counters.
func executeRun(ctx context.Context, cmd *cobra.Command, st store.Store, sources []registry.Source) (*store.RunCounts, error) {
	log := zap.L().With(zap.String("command", "watch.run"))

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Watch.UserAgent,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	var records []trial.Record
	skips := trial.SkipCounts{}
	for _, src := range sources {
		res, err := src.Fetch(ctx, f)
		if err != nil {
			// One registry being down must not blind the run to the
			// others; the empty-input check below catches total failure.
			log.Error("source fetch failed",
				zap.String("source", string(src.Name())),
				zap.Error(err),
			)
			continue
		}
		records = append(records, res.Records...)
		skips.Merge(res.Skips)
		log.Info("source fetched",
			zap.String("source", string(src.Name())),
			zap.Int("records", len(res.Records)),
			zap.Int("skipped", res.Skips.Total()),
		)
	}

	result, err := reconcile.New(st).Run(ctx, records)
	if err != nil {
		return nil, eris.Wrap(err, "watch run: reconcile")
	}
	result.Counts.Skipped += skips.Total()

	digest := &notify.Digest{
		NewTrials:     result.NewTrials,
		ChangedTrials: result.ChangedTrials,
		RunTime:       time.Now().UTC(),
	}

	window, _ := cmd.Flags().GetDuration("window")
	if window <= 0 {
		window = time.Duration(cfg.Watch.ActivityWindowHours) * time.Hour
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = cfg.Watch.ActivityLimit
	}

	// Activity is decoration on the digest; a failed query drops the
	// section, never the notification.
	activity, err := st.RecentActivity(ctx, time.Now().UTC().Add(-window), limit)
	if err != nil {
		log.Warn("recent activity query failed, sending digest without it", zap.Error(err))
	} else {
		digest.RecentActivity = activity
	}

	notifier, err := buildNotifier(cmd)
	if err != nil {
		return nil, err
	}
	if err := notifier.Send(ctx, digest); err != nil {
		return nil, eris.Wrap(err, "watch run: send digest")
	}

	return &result.Counts, nil
}

// buildSources resolves the --sources flag against the enabled registries.
func buildSources(cmd *cobra.Command) ([]registry.Source, error) {
	wl, err := registry.LoadWatchlist(cfg.Watch.WatchlistPath)
	if err != nil {
		return nil, err
	}

	requested := map[string]bool{}
	if flagVal, _ := cmd.Flags().GetString("sources"); flagVal != "" {
		for _, s := range strings.Split(flagVal, ",") {
			requested[strings.TrimSpace(strings.ToLower(s))] = true
		}
	}
	wants := func(name string) bool {
		return len(requested) == 0 || requested[name]
	}

	var sources []registry.Source
	if cfg.Registries.CTGov.Enabled && wants("ctgov") {
		sources = append(sources, registry.NewCTGov(cfg.Registries.CTGov, wl))
	}
	if cfg.Registries.ISRCTN.Enabled && wants("isrctn") {
		sources = append(sources, registry.NewISRCTN(cfg.Registries.ISRCTN, wl))
	}
	if len(sources) == 0 {
		return nil, eris.New("watch run: no registries selected (check registries.*.enabled and --sources)")
	}
	return sources, nil
}

// buildNotifier honors --dry-run before consulting the configured provider.
func buildNotifier(cmd *cobra.Command) (notify.Notifier, error) {
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		return &notify.LogNotifier{}, nil
	}
	return notify.New(cfg.Notify)
}
