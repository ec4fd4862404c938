package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type xmlTrial struct {
	ID     string `xml:"isrctn"`
	Title  string `xml:"title"`
	Status string `xml:"overallStatus"`
}

func collectXML[T any](t *testing.T, items <-chan T, errs <-chan error) ([]T, error) {
	t.Helper()
	var out []T
	for item := range items {
		out = append(out, item)
	}
	return out, <-errs
}

func TestStreamXML_DecodesMatchingElements(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<allTrials>
	<fullTrial>
		<trial><isrctn>ISRCTN11111111</isrctn><title>First</title><overallStatus>Recruiting</overallStatus></trial>
	</fullTrial>
	<fullTrial>
		<trial><isrctn>ISRCTN22222222</isrctn><title>Second</title><overallStatus>Completed</overallStatus></trial>
	</fullTrial>
</allTrials>`

	items, errs := StreamXML[xmlTrial](context.Background(), strings.NewReader(body), "trial")
	got, err := collectXML(t, items, errs)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "ISRCTN11111111", got[0].ID)
	assert.Equal(t, "Completed", got[1].Status)
}

func TestStreamXML_NonUTF8Charset(t *testing.T) {
	// 0xFC is u-umlaut in ISO-8859-1.
	body := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<allTrials><trial><isrctn>ISRCTN33333333</isrctn><title>Z\xfcrich cohort</title><overallStatus>Recruiting</overallStatus></trial></allTrials>"

	items, errs := StreamXML[xmlTrial](context.Background(), strings.NewReader(body), "trial")
	got, err := collectXML(t, items, errs)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "Zürich cohort", got[0].Title)
}

func TestStreamXML_MalformedDocumentSurfacesError(t *testing.T) {
	body := `<allTrials><trial><isrctn>ISRCTN44444444</isrctn></trial><trial><isrctn>`

	items, errs := StreamXML[xmlTrial](context.Background(), strings.NewReader(body), "trial")
	got, err := collectXML(t, items, errs)

	assert.Error(t, err)
	assert.Len(t, got, 1, "elements before the breakage are still delivered")
}

func TestStreamXML_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, errs := StreamXML[xmlTrial](ctx, strings.NewReader("<allTrials></allTrials>"), "trial")
	got, err := collectXML(t, items, errs)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}
