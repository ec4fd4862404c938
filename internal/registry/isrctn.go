package registry

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/config"
	"github.com/sells-group/trialwatch-cli/internal/fetcher"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

// isrctnTrial mirrors the fields of interest inside each <trial> element of
// the ISRCTN query API response.
type isrctnTrial struct {
	ISRCTN      string `xml:"isrctn"`
	Title       string `xml:"title"`
	Status      string `xml:"overallStatus"`
	LastUpdated string `xml:"lastUpdated"`
}

// ISRCTN adapts the ISRCTN registry query API (XML, offset-paged).
type ISRCTN struct {
	cfg       config.ISRCTNConfig
	watchlist Watchlist
}

// NewISRCTN creates the ISRCTN source.
func NewISRCTN(cfg config.ISRCTNConfig, wl Watchlist) *ISRCTN {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &ISRCTN{cfg: cfg, watchlist: wl}
}

func (s *ISRCTN) Name() trial.Source { return trial.SourceISRCTN }

// Fetch pages through the query API until a page returns fewer trials than
// the page size. The XML stream is decoded with a charset-tolerant decoder;
// a trial element that fails to decode poisons only its page tail, not the
// run.
func (s *ISRCTN) Fetch(ctx context.Context, f fetcher.Fetcher) (*FetchResult, error) {
	log := zap.L().With(zap.String("source", string(s.Name())))
	res := &FetchResult{Skips: make(trial.SkipCounts)}

	offset := 0
	for {
		body, err := f.Download(ctx, s.pageURL(offset))
		if err != nil {
			if len(res.Records) > 0 {
				log.Warn("pagination aborted, keeping partial results",
					zap.Int("records", len(res.Records)), zap.Error(err))
				return res, nil
			}
			return nil, eris.Wrap(err, "isrctn: fetch first page")
		}

		pageCount := 0
		trials, errCh := fetcher.StreamXML[isrctnTrial](ctx, body, "trial")
		for t := range trials {
			pageCount++
			rec, skip := normalizeISRCTNTrial(t)
			if skip != "" {
				res.Skips.Add(skip)
				if skip != trial.SkipMalformedDate {
					continue
				}
			}
			res.Records = append(res.Records, rec)
		}
		streamErr := <-errCh
		_ = body.Close()

		if streamErr != nil {
			res.Skips.Add(trial.SkipParseError)
			log.Warn("xml stream ended early", zap.Error(streamErr))
		}

		if pageCount < s.cfg.PageSize {
			break
		}
		offset += s.cfg.PageSize
	}

	if len(res.Records) == 0 && res.Skips.Total() == 0 {
		log.Info("no trials matched watchlist")
	}
	log.Info("fetch complete",
		zap.Int("records", len(res.Records)),
		zap.Int("skipped", res.Skips.Total()),
	)
	return res, nil
}

func (s *ISRCTN) pageURL(offset int) string {
	q := url.Values{}
	q.Set("q", s.watchlist.Query())
	q.Set("limit", strconv.Itoa(s.cfg.PageSize))
	q.Set("offset", strconv.Itoa(offset))
	return s.cfg.BaseURL + "?" + q.Encode()
}

// normalizeISRCTNTrial converts one decoded trial element into a Record.
// Identifiers are normalized to the ISRCTN-prefixed form the registry uses
// in its public URLs.
func normalizeISRCTNTrial(t isrctnTrial) (trial.Record, trial.SkipReason) {
	id := strings.TrimSpace(t.ISRCTN)
	if id == "" {
		return trial.Record{}, trial.SkipMissingKey
	}
	if !strings.HasPrefix(id, "ISRCTN") {
		id = "ISRCTN" + id
	}

	rec := trial.Record{
		ExternalID:  id,
		Title:       t.Title,
		Status:      t.Status,
		LastUpdated: t.LastUpdated,
		Source:      trial.SourceISRCTN,
	}

	hadDate := rec.LastUpdated != ""
	if ok := rec.Sanitize(); hadDate && !ok {
		return rec, trial.SkipMalformedDate
	}
	return rec, ""
}
