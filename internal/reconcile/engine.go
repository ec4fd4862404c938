// Package reconcile classifies fetched trial records against the persisted
// snapshot and refreshes every row it sees.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/store"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

// ErrNoRecords is returned when the input sequence is empty. Total input
// exhaustion is the only terminal condition; everything narrower degrades to
// a per-record skip or soft error.
var ErrNoRecords = eris.New("reconcile: no records fetched from any source")

// Result is the outcome of one reconciliation run.
type Result struct {
	NewTrials     []trial.Stored
	ChangedTrials []trial.Changed
	Counts        store.RunCounts
}

// Engine reconciles fetched records against the store. It holds no global
// state; construct one per run with the dependencies it needs.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// New creates an engine backed by the given store.
func New(s store.Store) *Engine {
	return &Engine{store: s, now: time.Now}
}

// NewWithClock creates an engine with a fixed clock, for tests.
func NewWithClock(s store.Store, now func() time.Time) *Engine {
	return &Engine{store: s, now: now}
}

// Soft-error log throttling: systemic store outages would otherwise emit one
// warning per record.
const (
	softErrorLogVerbatim = 5
	softErrorLogEvery    = 100
)

// softErrorLog rate-limits store soft-error warnings within a run.
type softErrorLog struct {
	n int
}

func (l *softErrorLog) warn(msg string, fields ...zap.Field) {
	l.n++
	if l.n <= softErrorLogVerbatim || l.n%softErrorLogEvery == 0 {
		zap.L().Warn(msg, append(fields, zap.Int("soft_errors", l.n))...)
	}
}

// Run processes the full input sequence, classifying each record as
// NEW / CHANGED / UPDATED and upserting it regardless of classification so
// last_checked is refreshed. Individual lookup or upsert failures never
// abort the batch; lookups fail open (an uncertain prior state is treated
// as absent rather than blocking ingestion of the current observation).
func (e *Engine) Run(ctx context.Context, records []trial.Record) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	log := zap.L().With(zap.String("component", "reconcile.engine"))
	res := &Result{}
	res.Counts.Fetched = len(records)
	errLog := &softErrorLog{}
	now := e.now().UTC()

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Sanitize before classification so the status being compared is
		// byte-identical to the status being stored.
		rec.Sanitize()

		if rec.ExternalID == "" {
			res.Counts.Skipped++
			log.Debug("skipping record with missing external id",
				zap.String("title", rec.Title))
			continue
		}

		prior, err := e.store.GetTrial(ctx, rec.ExternalID)
		if err != nil && !eris.Is(err, store.ErrNotFound) {
			res.Counts.Errors++
			errLog.warn("store lookup failed, treating prior state as absent",
				zap.String("external_id", rec.ExternalID),
				zap.Error(err),
			)
			prior = nil
		}

		row := trial.Stored{
			Record:      rec,
			LastChecked: now,
		}

		switch {
		case prior == nil:
			row.ChangeType = trial.ChangeNew
			res.Counts.New++
			res.NewTrials = append(res.NewTrials, row)
			log.Info("new trial",
				zap.String("external_id", rec.ExternalID),
				zap.String("status", rec.Status),
			)
		case prior.Status != rec.Status:
			row.ChangeType = trial.ChangeStatus(prior.Status, rec.Status)
			res.Counts.Changed++
			res.ChangedTrials = append(res.ChangedTrials, trial.Changed{
				Stored:    row,
				OldStatus: prior.Status,
			})
			log.Info("status change",
				zap.String("external_id", rec.ExternalID),
				zap.String("old_status", prior.Status),
				zap.String("new_status", rec.Status),
			)
		default:
			row.ChangeType = trial.ChangeUpdated
			res.Counts.Updated++
		}

		if err := e.store.UpsertTrial(ctx, row); err != nil {
			res.Counts.Errors++
			errLog.warn("upsert failed, continuing with remaining records",
				zap.String("external_id", rec.ExternalID),
				zap.Error(err),
			)
		}
	}

	log.Info("reconciliation complete",
		zap.Int("fetched", res.Counts.Fetched),
		zap.Int("new", res.Counts.New),
		zap.Int("changed", res.Counts.Changed),
		zap.Int("updated", res.Counts.Updated),
		zap.Int("skipped", res.Counts.Skipped),
		zap.Int("errors", res.Counts.Errors),
	)
	return res, nil
}
