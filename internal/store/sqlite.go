package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/trialwatch-cli/internal/trial"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as ISO-8601 text; lexicographic comparison matches chronological
// order for that encoding.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trials (
	external_id  TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	last_updated TEXT,
	last_checked TEXT NOT NULL,
	change_type  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS watch_runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TEXT NOT NULL,
	completed_at  TEXT,
	fetched       INTEGER NOT NULL DEFAULT 0,
	new_count     INTEGER NOT NULL DEFAULT 0,
	changed_count INTEGER NOT NULL DEFAULT 0,
	updated_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	error_count   INTEGER NOT NULL DEFAULT 0,
	error         TEXT
);

CREATE INDEX IF NOT EXISTS idx_trials_last_updated ON trials(last_updated DESC);
CREATE INDEX IF NOT EXISTS idx_watch_runs_started_at ON watch_runs(started_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetTrial(ctx context.Context, externalID string) (*trial.Stored, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT external_id, title, status, source, url, last_updated, last_checked, change_type
		 FROM trials WHERE external_id = ?`,
		externalID,
	)
	t, err := scanSQLiteTrial(row.Scan)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get trial %s", externalID)
	}
	return t, nil
}

func (s *SQLiteStore) UpsertTrial(ctx context.Context, t trial.Stored) error {
	lastUpdated := sqliteTimestamp(t.LastUpdated)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trials (external_id, title, status, source, url, last_updated, last_checked, change_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			source = excluded.source,
			url = excluded.url,
			last_updated = excluded.last_updated,
			last_checked = excluded.last_checked,
			change_type = excluded.change_type`,
		t.ExternalID, t.Title, t.Status, string(t.Source), t.URL,
		lastUpdated, t.LastChecked.UTC().Format(time.RFC3339), string(t.ChangeType),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert trial %s", t.ExternalID)
	}
	return nil
}

func (s *SQLiteStore) RecentActivity(ctx context.Context, since time.Time, limit int) ([]trial.Stored, error) {
	sinceStr := since.UTC().Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id, title, status, source, url, last_updated, last_checked, change_type
		 FROM trials
		 WHERE last_updated IS NOT NULL AND last_updated != '' AND last_updated >= ?
		 ORDER BY last_updated DESC LIMIT ?`,
		sinceStr, limit,
	)
	if err != nil {
		zap.L().Warn("sqlite: filtered activity query failed, retrying unfiltered", zap.Error(err))
		rows, err = s.db.QueryContext(ctx,
			`SELECT external_id, title, status, source, url, last_updated, last_checked, change_type
			 FROM trials WHERE last_updated >= ?
			 ORDER BY last_updated DESC LIMIT ?`,
			sinceStr, limit,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: recent activity")
		}
	}
	defer rows.Close()

	var out []trial.Stored
	for rows.Next() {
		t, err := scanSQLiteTrial(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity row")
		}
		if !hasActivityTimestamp(*t) {
			continue
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) StartRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watch_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(RunStatusRunning), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: start run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counts RunCounts) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE watch_runs
		 SET status = ?, completed_at = ?,
			fetched = ?, new_count = ?, changed_count = ?, updated_count = ?, skipped_count = ?, error_count = ?
		 WHERE id = ?`,
		string(RunStatusComplete), time.Now().UTC().Format(time.RFC3339),
		counts.Fetched, counts.New, counts.Changed, counts.Updated, counts.Skipped, counts.Errors,
		runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return nil
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE watch_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(RunStatusFailed), time.Now().UTC().Format(time.RFC3339), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, started_at, completed_at, fetched, new_count, changed_count, updated_count, skipped_count, error_count, error
		 FROM watch_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var status, startedAt string
		var completedAt, errStr *string
		if err := rows.Scan(&e.ID, &status, &startedAt, &completedAt,
			&e.Counts.Fetched, &e.Counts.New, &e.Counts.Changed,
			&e.Counts.Updated, &e.Counts.Skipped, &e.Counts.Errors, &errStr,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run entry")
		}
		e.Status = RunStatus(status)
		e.StartedAt = parseSQLiteTime(startedAt)
		if completedAt != nil {
			t := parseSQLiteTime(*completedAt)
			e.CompletedAt = &t
		}
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanSQLiteTrial reads one trials row given a row Scan func.
func scanSQLiteTrial(scan func(dest ...any) error) (*trial.Stored, error) {
	var t trial.Stored
	var source, changeType, lastChecked string
	var lastUpdated *string
	if err := scan(&t.ExternalID, &t.Title, &t.Status, &source, &t.URL,
		&lastUpdated, &lastChecked, &changeType,
	); err != nil {
		return nil, err
	}
	t.Source = trial.Source(source)
	t.ChangeType = trial.ChangeType(changeType)
	if lastUpdated != nil {
		t.LastUpdated = *lastUpdated
	}
	t.LastChecked = parseSQLiteTime(lastChecked)
	return &t, nil
}

// sqliteTimestamp canonicalizes a sanitized timestamp to RFC3339 for the TEXT
// column. Date-only and zoneless values would otherwise mix formats and break
// the lexicographic ordering and range comparison the queries rely on.
func sqliteTimestamp(s string) *string {
	t := parseStoredTimestamp(s)
	if t == nil {
		return nil
	}
	v := t.Format(time.RFC3339)
	return &v
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
