package registry

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/config"
	"github.com/sells-group/trialwatch-cli/internal/fetcher"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

// ctgovFields is the field set requested from the v2 API.
const ctgovFields = "NCTId,BriefTitle,OfficialTitle,OverallStatus,LastUpdatePostDate"

// CTGov adapts the ClinicalTrials.gov v2 studies API. The v2 payload nests
// everything under protocolSection; the retired study_fields API returned
// flat arrays. Both shapes are accepted because stored snapshots span both
// API generations.
type CTGov struct {
	cfg       config.CTGovConfig
	watchlist Watchlist
}

// NewCTGov creates the ClinicalTrials.gov source.
func NewCTGov(cfg config.CTGovConfig, wl Watchlist) *CTGov {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &CTGov{cfg: cfg, watchlist: wl}
}

func (s *CTGov) Name() trial.Source { return trial.SourceCTGov }

// Fetch walks the paginated studies endpoint, following nextPageToken until
// the registry stops returning one. A mid-pagination failure keeps whatever
// was already normalized; only a first-page failure is fetch-fatal.
func (s *CTGov) Fetch(ctx context.Context, f fetcher.Fetcher) (*FetchResult, error) {
	log := zap.L().With(zap.String("source", string(s.Name())))
	res := &FetchResult{Skips: make(trial.SkipCounts)}

	token := ""
	for {
		pageURL := s.pageURL(token)
		body, err := f.Download(ctx, pageURL)
		if err != nil {
			if len(res.Records) > 0 {
				log.Warn("pagination aborted, keeping partial results",
					zap.Int("records", len(res.Records)), zap.Error(err))
				return res, nil
			}
			return nil, eris.Wrap(err, "ctgov: fetch first page")
		}

		data, err := io.ReadAll(body)
		_ = body.Close()
		if err != nil {
			if len(res.Records) > 0 {
				log.Warn("page read failed, keeping partial results", zap.Error(err))
				return res, nil
			}
			return nil, eris.Wrap(err, "ctgov: read page body")
		}

		page := gjson.ParseBytes(data)
		studies := page.Get("studies")
		if !studies.Exists() {
			// Legacy study_fields shape.
			studies = page.Get("StudyFieldsResponse.StudyFields")
		}

		for _, study := range studies.Array() {
			rec, skip := normalizeCTGovStudy(study)
			if skip != "" {
				res.Skips.Add(skip)
				// malformed_date degrades to an absent date; the record
				// itself is still reconciled.
				if skip != trial.SkipMalformedDate {
					continue
				}
			}
			res.Records = append(res.Records, rec)
		}

		token = page.Get("nextPageToken").String()
		if token == "" {
			break
		}
	}

	log.Info("fetch complete",
		zap.Int("records", len(res.Records)),
		zap.Int("skipped", res.Skips.Total()),
	)
	return res, nil
}

func (s *CTGov) pageURL(token string) string {
	q := url.Values{}
	q.Set("query.term", s.watchlist.Query())
	q.Set("pageSize", strconv.Itoa(s.cfg.PageSize))
	q.Set("fields", ctgovFields)
	q.Set("format", "json")
	if token != "" {
		q.Set("pageToken", token)
	}
	return s.cfg.BaseURL + "?" + q.Encode()
}

// normalizeCTGovStudy converts one study element into a Record, or a skip
// reason. A record missing its NCT ID is skipped; every other field degrades
// to empty. A date that fails sanitization degrades to absent and is tallied
// as malformed_date without dropping the record.
func normalizeCTGovStudy(study gjson.Result) (trial.Record, trial.SkipReason) {
	if !study.IsObject() {
		return trial.Record{}, trial.SkipParseError
	}

	id := firstString(study,
		"protocolSection.identificationModule.nctId",
		"NCTId",
	)
	if id == "" {
		return trial.Record{}, trial.SkipMissingKey
	}

	rec := trial.Record{
		ExternalID: id,
		Title: firstString(study,
			"protocolSection.identificationModule.officialTitle",
			"protocolSection.identificationModule.briefTitle",
			"OfficialTitle",
			"BriefTitle",
		),
		Status: firstString(study,
			"protocolSection.statusModule.overallStatus",
			"OverallStatus",
		),
		LastUpdated: dateString(study,
			"protocolSection.statusModule.lastUpdatePostDateStruct",
			"LastUpdatePostDate",
		),
		Source: trial.SourceCTGov,
	}

	hadDate := rec.LastUpdated != ""
	if ok := rec.Sanitize(); hadDate && !ok {
		return rec, trial.SkipMalformedDate
	}
	return rec, ""
}

// firstString returns the first non-empty string value among the given gjson
// paths. Legacy study_fields values arrive as single-element arrays; those
// are unwrapped.
func firstString(study gjson.Result, paths ...string) string {
	for _, path := range paths {
		v := study.Get(path)
		if !v.Exists() {
			continue
		}
		if v.IsArray() {
			arr := v.Array()
			if len(arr) > 0 && arr[0].String() != "" {
				return arr[0].String()
			}
			continue
		}
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}

// dateString extracts a date that may be a bare string, an object wrapping a
// date sub-field, or a single-element array of either.
func dateString(study gjson.Result, paths ...string) string {
	for _, path := range paths {
		v := study.Get(path)
		if !v.Exists() {
			continue
		}
		if v.IsArray() {
			arr := v.Array()
			if len(arr) == 0 {
				continue
			}
			v = arr[0]
		}
		if v.IsObject() {
			if d := v.Get("date").String(); d != "" {
				return d
			}
			continue
		}
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}
