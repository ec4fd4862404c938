package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/store"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

func init() {
	// Replace global logger with a no-op to avoid nil pointer panics in tests.
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeStore implements store.Store in memory and records call counts.
type fakeStore struct {
	trials    map[string]trial.Stored
	getCalls  int
	upserts   int
	getErr    error
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{trials: make(map[string]trial.Stored)}
}

func (f *fakeStore) GetTrial(_ context.Context, id string) (*trial.Stored, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.trials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (f *fakeStore) UpsertTrial(_ context.Context, t trial.Stored) error {
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.trials[t.ExternalID] = t
	return nil
}

func (f *fakeStore) RecentActivity(context.Context, time.Time, int) ([]trial.Stored, error) {
	return nil, nil
}
func (f *fakeStore) StartRun(context.Context) (string, error)                 { return "run-1", nil }
func (f *fakeStore) CompleteRun(context.Context, string, store.RunCounts) error { return nil }
func (f *fakeStore) FailRun(context.Context, string, string) error            { return nil }
func (f *fakeStore) ListRuns(context.Context, int) ([]store.RunEntry, error)  { return nil, nil }
func (f *fakeStore) Migrate(context.Context) error                            { return nil }
func (f *fakeStore) Close() error                                             { return nil }

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testEngine(s store.Store) *Engine {
	return NewWithClock(s, func() time.Time { return fixedNow })
}

func TestRun_EmptyInput(t *testing.T) {
	fs := newFakeStore()
	res, err := testEngine(fs).Run(context.Background(), nil)

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoRecords)
	assert.Zero(t, fs.getCalls, "no store calls on empty input")
	assert.Zero(t, fs.upserts)
}

func TestRun_NewTrial(t *testing.T) {
	fs := newFakeStore()
	rec := trial.Record{ExternalID: "NCT01234567", Title: "Gait training", Status: "Recruiting", Source: trial.SourceCTGov}

	res, err := testEngine(fs).Run(context.Background(), []trial.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counts.Fetched)
	assert.Equal(t, 1, res.Counts.New)
	require.Len(t, res.NewTrials, 1)
	assert.Equal(t, trial.ChangeNew, res.NewTrials[0].ChangeType)
	assert.Equal(t, fixedNow, res.NewTrials[0].LastChecked)

	stored := fs.trials["NCT01234567"]
	assert.Equal(t, trial.ChangeNew, stored.ChangeType)
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT01234567", stored.URL)
}

func TestRun_StatusChange(t *testing.T) {
	fs := newFakeStore()
	fs.trials["NCT01234567"] = trial.Stored{
		Record: trial.Record{ExternalID: "NCT01234567", Status: "Recruiting", Source: trial.SourceCTGov},
	}
	rec := trial.Record{ExternalID: "NCT01234567", Status: "Completed", Source: trial.SourceCTGov}

	res, err := testEngine(fs).Run(context.Background(), []trial.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counts.Changed)
	assert.Zero(t, res.Counts.New)
	require.Len(t, res.ChangedTrials, 1)
	assert.Equal(t, "Recruiting", res.ChangedTrials[0].OldStatus)
	assert.Equal(t, trial.ChangeStatus("Recruiting", "Completed"), res.ChangedTrials[0].ChangeType)
}

func TestRun_UnchangedStillUpserted(t *testing.T) {
	fs := newFakeStore()
	fs.trials["NCT01234567"] = trial.Stored{
		Record:      trial.Record{ExternalID: "NCT01234567", Status: "Recruiting", Source: trial.SourceCTGov},
		LastChecked: fixedNow.Add(-24 * time.Hour),
	}
	rec := trial.Record{ExternalID: "NCT01234567", Status: "Recruiting", Source: trial.SourceCTGov}

	res, err := testEngine(fs).Run(context.Background(), []trial.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counts.Updated)
	assert.Empty(t, res.NewTrials)
	assert.Empty(t, res.ChangedTrials)
	assert.Equal(t, 1, fs.upserts, "unchanged rows still refresh last_checked")
	assert.Equal(t, fixedNow, fs.trials["NCT01234567"].LastChecked)
	assert.Equal(t, trial.ChangeUpdated, fs.trials["NCT01234567"].ChangeType)
}

func TestRun_Idempotent(t *testing.T) {
	fs := newFakeStore()
	rec := trial.Record{ExternalID: "NCT01234567", Status: "Recruiting", Source: trial.SourceCTGov}

	res1, err := testEngine(fs).Run(context.Background(), []trial.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, res1.Counts.New)

	res2, err := testEngine(fs).Run(context.Background(), []trial.Record{rec})
	require.NoError(t, err)
	assert.Zero(t, res2.Counts.New, "second identical run classifies as UPDATED")
	assert.Zero(t, res2.Counts.Changed)
	assert.Equal(t, 1, res2.Counts.Updated)
}

func TestRun_SanitizedStatusComparesEqual(t *testing.T) {
	// A status that only differs by surrounding whitespace must not register
	// as a change on the second run.
	fs := newFakeStore()
	first := trial.Record{ExternalID: "NCT01234567", Status: "Recruiting", Source: trial.SourceCTGov}
	_, err := testEngine(fs).Run(context.Background(), []trial.Record{first})
	require.NoError(t, err)

	second := trial.Record{ExternalID: "NCT01234567", Status: "  Recruiting  ", Source: trial.SourceCTGov}
	res, err := testEngine(fs).Run(context.Background(), []trial.Record{second})
	require.NoError(t, err)
	assert.Zero(t, res.Counts.Changed)
	assert.Equal(t, 1, res.Counts.Updated)
}

func TestRun_MissingIDSkipped(t *testing.T) {
	fs := newFakeStore()
	recs := []trial.Record{
		{ExternalID: "   ", Title: "no id", Source: trial.SourceCTGov},
		{ExternalID: "NCT01234567", Status: "Recruiting", Source: trial.SourceCTGov},
	}

	res, err := testEngine(fs).Run(context.Background(), recs)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counts.Skipped)
	assert.Equal(t, 1, res.Counts.New)
	assert.Equal(t, 1, fs.getCalls, "skipped record makes no store calls")
	assert.Equal(t, 1, fs.upserts)
}

func TestRun_LookupFailsOpen(t *testing.T) {
	fs := newFakeStore()
	fs.getErr = eris.New("connection refused")
	rec := trial.Record{ExternalID: "NCT01234567", Status: "Recruiting", Source: trial.SourceCTGov}

	res, err := testEngine(fs).Run(context.Background(), []trial.Record{rec})
	require.NoError(t, err, "lookup failures never abort the batch")

	assert.Equal(t, 1, res.Counts.Errors)
	assert.Equal(t, 1, res.Counts.New, "uncertain prior state is treated as absent")
	assert.Equal(t, 1, fs.upserts, "the current observation is still ingested")
}

func TestRun_UpsertFailureContinues(t *testing.T) {
	fs := newFakeStore()
	fs.upsertErr = eris.New("disk full")
	recs := []trial.Record{
		{ExternalID: "NCT01234567", Status: "Recruiting", Source: trial.SourceCTGov},
		{ExternalID: "NCT07654321", Status: "Completed", Source: trial.SourceCTGov},
	}

	res, err := testEngine(fs).Run(context.Background(), recs)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Counts.Errors)
	assert.Equal(t, 2, fs.upserts, "every record is attempted")
}

func TestRun_CanceledContext(t *testing.T) {
	fs := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := trial.Record{ExternalID: "NCT01234567", Source: trial.SourceCTGov}
	_, err := testEngine(fs).Run(ctx, []trial.Record{rec})
	assert.ErrorIs(t, err, context.Canceled)
}
