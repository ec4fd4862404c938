// Package store persists trial rows and the watch run log, with Postgres and
// SQLite drivers behind a common interface.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trialwatch-cli/internal/config"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

// ErrNotFound is returned by GetTrial when no row exists for the key.
var ErrNotFound = eris.New("store: trial not found")

// RunStatus represents the state of a watch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunCounts holds the aggregate counters for one reconciliation run.
type RunCounts struct {
	Fetched int `json:"fetched"`
	New     int `json:"new"`
	Changed int `json:"changed"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// RunEntry is a row in the watch run log.
type RunEntry struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Counts      RunCounts  `json:"counts"`
	Error       string     `json:"error,omitempty"`
}

// Store defines the persistence interface for the watch pipeline. Upsert is
// the only mutation path for trial rows; rows are never deleted.
type Store interface {
	// Trials
	GetTrial(ctx context.Context, externalID string) (*trial.Stored, error)
	UpsertTrial(ctx context.Context, t trial.Stored) error
	RecentActivity(ctx context.Context, since time.Time, limit int) ([]trial.Stored, error)

	// Run log
	StartRun(ctx context.Context) (string, error)
	CompleteRun(ctx context.Context, runID string, counts RunCounts) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]RunEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New builds a Store for the configured driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres", "":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: no database_url configured (set store.database_url or switch to the sqlite driver)")
		}
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q (valid: postgres, sqlite)", cfg.Driver)
	}
}

// activityPlaceholders are last_updated values some registry revisions wrote
// instead of NULL; they must never surface in the recent-activity report.
var activityPlaceholders = map[string]bool{
	"":     true,
	"null": true,
	"n/a":  true,
	"none": true,
}

// hasActivityTimestamp reports whether a row carries a real last_updated
// value. Used to post-filter the fallback (unfiltered) activity query.
func hasActivityTimestamp(t trial.Stored) bool {
	return !activityPlaceholders[strings.ToLower(strings.TrimSpace(t.LastUpdated))]
}
