package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/trial"
)

func init() {
	// Replace global logger with a no-op to avoid nil pointer panics in tests.
	zap.ReplaceGlobals(zap.NewNop())
}

func sampleDigest() *Digest {
	return &Digest{
		NewTrials: []trial.Stored{{
			Record: trial.Record{
				ExternalID: "NCT00000001",
				Title:      "Gait training after spinal cord injury",
				Status:     "Recruiting",
				URL:        "https://clinicaltrials.gov/study/NCT00000001",
			},
			ChangeType: trial.ChangeNew,
		}},
		ChangedTrials: []trial.Changed{{
			Stored: trial.Stored{
				Record: trial.Record{
					ExternalID: "ISRCTN11111111",
					Title:      "Bladder management study",
					Status:     "Completed",
					URL:        "https://www.isrctn.com/ISRCTN11111111",
				},
			},
			OldStatus: "Recruiting",
		}},
		RunTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRenderHTML_Sections(t *testing.T) {
	html, err := RenderHTML(sampleDigest())
	require.NoError(t, err)

	assert.Contains(t, html, "New Trials (1)")
	assert.Contains(t, html, "Status Changes (1)")
	assert.Contains(t, html, "NCT00000001")
	assert.Contains(t, html, "Recruiting")
	assert.Contains(t, html, `href="https://www.isrctn.com/ISRCTN11111111"`)
	assert.NotContains(t, html, "No new or changed trials")
}

func TestRenderHTML_Quiet(t *testing.T) {
	d := &Digest{RunTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	html, err := RenderHTML(d)
	require.NoError(t, err)

	assert.Contains(t, html, "No new or changed trials today.")
	assert.NotContains(t, html, "New Trials")
	assert.NotContains(t, html, "Status Changes")
}

func TestRenderHTML_EscapesRegistryText(t *testing.T) {
	d := &Digest{
		NewTrials: []trial.Stored{{
			Record: trial.Record{
				ExternalID: "NCT00000001",
				Title:      `<script>alert("x")</script>`,
				Status:     "Recruiting",
			},
		}},
		RunTime: time.Now(),
	}
	html, err := RenderHTML(d)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestRenderHTML_ActivityTable(t *testing.T) {
	d := &Digest{
		RecentActivity: []trial.Stored{{
			Record: trial.Record{
				ExternalID:  "NCT00000002",
				Title:       "Recently touched",
				Status:      "Active, not recruiting",
				LastUpdated: "2024-02-20T00:00:00Z",
			},
		}},
		RunTime: time.Now(),
	}
	html, err := RenderHTML(d)
	require.NoError(t, err)
	assert.Contains(t, html, "Recently Updated")
	assert.Contains(t, html, "NCT00000002")
}

func TestSubject(t *testing.T) {
	d := sampleDigest()
	assert.Equal(t, "Trials: 1 new trial, 1 status change", Subject("Trials", d))

	quiet := &Digest{}
	assert.Equal(t, "Trials: no changes", Subject("Trials", quiet))
	assert.Equal(t, "Clinical Trials Update: no changes", Subject("", quiet))

	d.NewTrials = append(d.NewTrials, d.NewTrials[0])
	assert.Equal(t, "Trials: 2 new trials, 1 status change", Subject("Trials", d))
}

func TestQuiet(t *testing.T) {
	assert.True(t, (&Digest{}).Quiet())
	assert.False(t, sampleDigest().Quiet())
}
