package store

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/db"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID is the advisory lock key guarding concurrent migrations.
const migrationLockID = 7219004

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	ownPool bool
}

// NewPostgres connects to Postgres and pings the database.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping database")
	}
	return &PostgresStore{pool: pool, ownPool: true}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership of
// the pool's lifecycle; Close becomes a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies all pending SQL migrations in lexicographic order under an
// advisory lock, tracking applied files in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied := make(map[string]bool)
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read applied migrations")
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return eris.Wrap(err, "postgres: scan applied migration")
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: iterate applied migrations")
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename) VALUES ($1)", name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
	}

	return nil
}

// Close releases the pool if this store created it.
func (s *PostgresStore) Close() error {
	if s.ownPool {
		s.pool.Close()
	}
	return nil
}

const trialColumns = `external_id, title, status, source, url, last_updated, last_checked, change_type`

// GetTrial fetches the stored row for an external ID.
func (s *PostgresStore) GetTrial(ctx context.Context, externalID string) (*trial.Stored, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+trialColumns+` FROM trials WHERE external_id = $1`,
		externalID,
	)
	t, err := scanTrial(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get trial %s", externalID)
	}
	return t, nil
}

// UpsertTrial inserts or replaces the row keyed by external_id.
func (s *PostgresStore) UpsertTrial(ctx context.Context, t trial.Stored) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trials (external_id, title, status, source, url, last_updated, last_checked, change_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			url = EXCLUDED.url,
			last_updated = EXCLUDED.last_updated,
			last_checked = EXCLUDED.last_checked,
			change_type = EXCLUDED.change_type`,
		t.ExternalID, t.Title, t.Status, string(t.Source), t.URL,
		parseStoredTimestamp(t.LastUpdated), t.LastChecked, string(t.ChangeType),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert trial %s", t.ExternalID)
	}
	return nil
}

// RecentActivity returns rows whose last_updated falls after since, newest
// first. The filtered query is tried first; if the store rejects it, the
// query is re-issued without the null-exclusion predicate and filtered
// in-process so the report still renders. pgx defers server-side query
// errors to row iteration, so the retry has to cover both the immediate
// Query error and the deferred rows.Err one.
func (s *PostgresStore) RecentActivity(ctx context.Context, since time.Time, limit int) ([]trial.Stored, error) {
	out, err := s.activityRows(ctx,
		`SELECT `+trialColumns+` FROM trials
		 WHERE last_updated IS NOT NULL AND last_updated >= $1
		 ORDER BY last_updated DESC LIMIT $2`,
		since, limit,
	)
	if err == nil {
		return out, nil
	}

	zap.L().Warn("postgres: filtered activity query failed, retrying unfiltered", zap.Error(err))
	out, err = s.activityRows(ctx,
		`SELECT `+trialColumns+` FROM trials
		 WHERE last_updated >= $1
		 ORDER BY last_updated DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent activity")
	}
	return out, nil
}

// activityRows issues one activity query and collects the rows that carry a
// real timestamp, folding deferred iteration errors into the returned error.
func (s *PostgresStore) activityRows(ctx context.Context, query string, since time.Time, limit int) ([]trial.Stored, error) {
	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trial.Stored
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity row")
		}
		if !hasActivityTimestamp(*t) {
			continue
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// StartRun records the beginning of a watch run and returns its ID.
func (s *PostgresStore) StartRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO watch_runs (id, status, started_at) VALUES ($1, $2, now())`,
		id, string(RunStatusRunning),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: start run")
	}
	return id, nil
}

// CompleteRun marks a run as successfully completed with its counters.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counts RunCounts) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE watch_runs
		 SET status = $1, completed_at = now(),
			fetched = $2, new_count = $3, changed_count = $4, updated_count = $5, skipped_count = $6, error_count = $7
		 WHERE id = $8`,
		string(RunStatusComplete),
		counts.Fetched, counts.New, counts.Changed, counts.Updated, counts.Skipped, counts.Errors,
		runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	return nil
}

// FailRun marks a run as failed with an error message.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE watch_runs SET status = $1, completed_at = now(), error = $2 WHERE id = $3`,
		string(RunStatusFailed), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	return nil
}

// ListRuns returns run log entries, most recent first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, started_at, completed_at, fetched, new_count, changed_count, updated_count, skipped_count, error_count, error
		 FROM watch_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var status string
		var errStr *string
		if err := rows.Scan(&e.ID, &status, &e.StartedAt, &e.CompletedAt,
			&e.Counts.Fetched, &e.Counts.New, &e.Counts.Changed,
			&e.Counts.Updated, &e.Counts.Skipped, &e.Counts.Errors, &errStr,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run entry")
		}
		e.Status = RunStatus(status)
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanTrial reads one trials row from a pgx row scanner.
func scanTrial(row pgx.Row) (*trial.Stored, error) {
	var t trial.Stored
	var source, changeType string
	var lastUpdated *time.Time
	if err := row.Scan(&t.ExternalID, &t.Title, &t.Status, &source, &t.URL,
		&lastUpdated, &t.LastChecked, &changeType,
	); err != nil {
		return nil, err
	}
	t.Source = trial.Source(source)
	t.ChangeType = trial.ChangeType(changeType)
	if lastUpdated != nil {
		t.LastUpdated = lastUpdated.UTC().Format(time.RFC3339)
	}
	return &t, nil
}

// parseStoredTimestamp converts a sanitized ISO-8601 string into a nullable
// time for the timestamptz column. Empty input maps to NULL, never to "".
func parseStoredTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
