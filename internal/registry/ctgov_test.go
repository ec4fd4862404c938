package registry

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/config"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

func init() {
	// Replace global logger with a no-op to avoid nil pointer panics in tests.
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeFetcher serves canned bodies keyed by pageToken (or offset for ISRCTN),
// failing any URL it has no body for.
type fakeFetcher struct {
	pages map[string]string // key: pageToken / offset value, "" for the first page
	key   string            // query parameter that selects the page
	urls  []string
}

func (f *fakeFetcher) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	f.urls = append(f.urls, rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	body, ok := f.pages[u.Query().Get(f.key)]
	if !ok {
		return nil, eris.Errorf("no canned page for %s", rawURL)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func ctgovTestConfig() config.CTGovConfig {
	return config.CTGovConfig{BaseURL: "https://example.test/api/v2/studies", PageSize: 2, Enabled: true}
}

func testWatchlist() Watchlist {
	return Watchlist{Conditions: []string{"spinal cord injury"}}
}

func TestCTGovFetch_Paginated(t *testing.T) {
	f := &fakeFetcher{key: "pageToken", pages: map[string]string{
		"": `{"studies":[
			{"protocolSection":{"identificationModule":{"nctId":"NCT00000001","briefTitle":"One"},"statusModule":{"overallStatus":"Recruiting","lastUpdatePostDateStruct":{"date":"2024-02-01"}}}},
			{"protocolSection":{"identificationModule":{"nctId":"NCT00000002","briefTitle":"Two"},"statusModule":{"overallStatus":"Completed"}}}
		],"nextPageToken":"p2"}`,
		"p2": `{"studies":[
			{"protocolSection":{"identificationModule":{"nctId":"NCT00000003","officialTitle":"Three"},"statusModule":{"overallStatus":"Recruiting"}}}
		]}`,
	}}

	src := NewCTGov(ctgovTestConfig(), testWatchlist())
	res, err := src.Fetch(context.Background(), f)
	require.NoError(t, err)

	require.Len(t, res.Records, 3)
	assert.Equal(t, "NCT00000001", res.Records[0].ExternalID)
	assert.Equal(t, "2024-02-01", res.Records[0].LastUpdated)
	assert.Equal(t, "Three", res.Records[2].Title, "officialTitle preferred over briefTitle")
	assert.Equal(t, trial.SourceCTGov, res.Records[0].Source)
	assert.Len(t, f.urls, 2)
	assert.Contains(t, f.urls[1], "pageToken=p2")
}

func TestCTGovFetch_FirstPageFailureIsFatal(t *testing.T) {
	f := &fakeFetcher{key: "pageToken", pages: map[string]string{}}

	src := NewCTGov(ctgovTestConfig(), testWatchlist())
	_, err := src.Fetch(context.Background(), f)
	assert.Error(t, err)
}

func TestCTGovFetch_MidPaginationFailureKeepsPartial(t *testing.T) {
	f := &fakeFetcher{key: "pageToken", pages: map[string]string{
		"": `{"studies":[
			{"protocolSection":{"identificationModule":{"nctId":"NCT00000001"},"statusModule":{"overallStatus":"Recruiting"}}}
		],"nextPageToken":"gone"}`,
	}}

	src := NewCTGov(ctgovTestConfig(), testWatchlist())
	res, err := src.Fetch(context.Background(), f)
	require.NoError(t, err, "partial results survive a failed later page")
	assert.Len(t, res.Records, 1)
}

func TestCTGovFetch_LegacyStudyFieldsShape(t *testing.T) {
	f := &fakeFetcher{key: "pageToken", pages: map[string]string{
		"": `{"StudyFieldsResponse":{"StudyFields":[
			{"NCTId":["NCT00000009"],"BriefTitle":["Legacy"],"OverallStatus":["Completed"],"LastUpdatePostDate":["March 1, 2024"]}
		]}}`,
	}}

	src := NewCTGov(ctgovTestConfig(), testWatchlist())
	res, err := src.Fetch(context.Background(), f)
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, "NCT00000009", rec.ExternalID)
	assert.Equal(t, "Legacy", rec.Title)
	assert.Equal(t, "2024-03-01T00:00:00Z", rec.LastUpdated, "legacy dates are rewritten as ISO")
}

func TestCTGovFetch_MissingIDSkipped(t *testing.T) {
	f := &fakeFetcher{key: "pageToken", pages: map[string]string{
		"": `{"studies":[
			{"protocolSection":{"statusModule":{"overallStatus":"Recruiting"}}},
			{"protocolSection":{"identificationModule":{"nctId":"NCT00000001"},"statusModule":{"overallStatus":"Recruiting"}}}
		]}`,
	}}

	src := NewCTGov(ctgovTestConfig(), testWatchlist())
	res, err := src.Fetch(context.Background(), f)
	require.NoError(t, err)

	assert.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Skips[trial.SkipMissingKey])
}

func TestCTGovFetch_MalformedDateKeepsRecord(t *testing.T) {
	f := &fakeFetcher{key: "pageToken", pages: map[string]string{
		"": `{"studies":[
			{"protocolSection":{"identificationModule":{"nctId":"NCT00000001"},"statusModule":{"overallStatus":"Recruiting","lastUpdatePostDateStruct":{"date":"not a date"}}}}
		]}`,
	}}

	src := NewCTGov(ctgovTestConfig(), testWatchlist())
	res, err := src.Fetch(context.Background(), f)
	require.NoError(t, err)

	require.Len(t, res.Records, 1, "a bad date never drops the record")
	assert.Empty(t, res.Records[0].LastUpdated)
	assert.Equal(t, 1, res.Skips[trial.SkipMalformedDate])
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, `(bladder OR urodynamic) AND ("spinal cord injury")`,
		buildQuery([]string{"bladder", "urodynamic"}, []string{"spinal cord injury"}))
	assert.Equal(t, `"spinal cord injury"`,
		buildQuery(nil, []string{"spinal cord injury"}))
	assert.Equal(t, "bladder",
		buildQuery([]string{"bladder"}, nil))
}
