package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/sells-group/trialwatch-cli/internal/fetcher"
	"github.com/sells-group/trialwatch-cli/internal/registry"
)

// diagnoseBodyPreview caps how much of the raw response gets printed.
const diagnoseBodyPreview = 1000

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Probe a registry API",
	Long:  "Fetches a two-trial sample with the configured watchlist query and prints the raw response shape, for debugging registry or query issues.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		wl, err := registry.LoadWatchlist(cfg.Watch.WatchlistPath)
		if err != nil {
			return err
		}

		source, _ := cmd.Flags().GetString("source")
		probeURL, err := diagnoseURL(source, wl)
		if err != nil {
			return err
		}

		fmt.Printf("Query: %s\n", wl.Query())
		fmt.Printf("URL:   %s\n\n", probeURL)

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    cfg.Watch.UserAgent,
			RateLimiters: fetcher.DefaultRateLimiters(),
		})
		body, err := f.Download(ctx, probeURL)
		if err != nil {
			return eris.Wrap(err, "diagnose: fetch sample")
		}
		defer body.Close() //nolint:errcheck

		data, err := io.ReadAll(body)
		if err != nil {
			return eris.Wrap(err, "diagnose: read sample body")
		}

		preview := data
		if len(preview) > diagnoseBodyPreview {
			preview = preview[:diagnoseBodyPreview]
		}
		fmt.Printf("Body (%d bytes, first %d shown):\n%s\n\n", len(data), len(preview), preview)

		if source == "ctgov" {
			parsed := gjson.ParseBytes(data)
			fmt.Printf("studies: %d\n", len(parsed.Get("studies").Array()))
			fmt.Printf("totalCount: %s\n", parsed.Get("totalCount").Raw)
			fmt.Printf("nextPageToken: %q\n", parsed.Get("nextPageToken").String())
		}

		return nil
	},
}

func init() {
	diagnoseCmd.Flags().String("source", "ctgov", "registry to probe (ctgov, isrctn)")
	rootCmd.AddCommand(diagnoseCmd)
}

// diagnoseURL builds a two-trial sample request for the chosen registry.
func diagnoseURL(source string, wl registry.Watchlist) (string, error) {
	q := url.Values{}
	switch source {
	case "ctgov":
		q.Set("query.term", wl.Query())
		q.Set("pageSize", strconv.Itoa(2))
		q.Set("format", "json")
		return cfg.Registries.CTGov.BaseURL + "?" + q.Encode(), nil
	case "isrctn":
		q.Set("q", wl.Query())
		q.Set("limit", strconv.Itoa(2))
		return cfg.Registries.ISRCTN.BaseURL + "?" + q.Encode(), nil
	default:
		return "", eris.Errorf("diagnose: unknown source %q (valid: ctgov, isrctn)", source)
	}
}
