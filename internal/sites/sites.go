// Package sites pulls European study-site listings from ClinicalTrials.gov
// and writes them as CSV or XLSX reports.
package sites

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/config"
	"github.com/sells-group/trialwatch-cli/internal/fetcher"
)

// siteFields is the field set requested for location extraction.
const siteFields = "NCTId,BriefTitle,OfficialTitle,Condition,ContactsLocationsModule,LocationFacility,LocationCity,LocationCountry,LocationStatus"

// Row is one study site at a European facility.
type Row struct {
	Facility   string
	City       string
	Country    string
	Conditions string
	Title      string
	NCTID      string
	Status     string
}

// dedupeKey identifies a site row; repeated pages can re-report the same
// location.
func (r Row) dedupeKey() string {
	return strings.Join([]string{r.NCTID, r.Facility, r.City, r.Country, r.Status}, "\x1f")
}

// Puller pages through the studies endpoint and extracts European sites.
type Puller struct {
	cfg        config.CTGovConfig
	terms      []string
	conditions []string
}

// NewPuller creates a site puller for the given search set.
func NewPuller(cfg config.CTGovConfig, terms, conditions []string) *Puller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Puller{cfg: cfg, terms: terms, conditions: conditions}
}

// DefaultTerms mirrors the bladder-management search the report was built
// for.
func DefaultTerms() []string {
	return []string{"bladder", "lower urinary tract", "urodynamic", "neurogenic detrusor", "urinary incontinence"}
}

// DefaultConditions returns the default condition filter.
func DefaultConditions() []string {
	return []string{"spinal cord injury", "stroke", "traumatic brain injury", "spina bifida", "multiple sclerosis"}
}

// Pull fetches all pages and returns deduplicated, sorted European site
// rows.
func (p *Puller) Pull(ctx context.Context, f fetcher.Fetcher) ([]Row, error) {
	log := zap.L().With(zap.String("component", "sites.puller"))

	var rows []Row
	seen := make(map[string]bool)
	token := ""

	for {
		body, err := f.Download(ctx, p.pageURL(token))
		if err != nil {
			return nil, eris.Wrap(err, "sites: fetch page")
		}
		data, err := io.ReadAll(body)
		_ = body.Close()
		if err != nil {
			return nil, eris.Wrap(err, "sites: read page body")
		}

		page := gjson.ParseBytes(data)
		for _, study := range page.Get("studies").Array() {
			for _, row := range extractSiteRows(study) {
				key := row.dedupeKey()
				if seen[key] {
					continue
				}
				seen[key] = true
				rows = append(rows, row)
			}
		}

		token = page.Get("nextPageToken").String()
		if token == "" {
			break
		}
	}

	rows = filterByTerms(rows, p.terms)
	sortRows(rows)

	log.Info("site pull complete", zap.Int("rows", len(rows)))
	return rows, nil
}

func (p *Puller) pageURL(token string) string {
	q := url.Values{}
	q.Set("query.term", buildSiteQuery(p.terms, p.conditions))
	q.Set("pageSize", strconv.Itoa(p.cfg.PageSize))
	q.Set("fields", siteFields)
	q.Set("format", "json")
	if token != "" {
		q.Set("pageToken", token)
	}
	return p.cfg.BaseURL + "?" + q.Encode()
}

// buildSiteQuery renders (t1 OR t2) AND (c1 OR c2) with quoting for
// multi-word entries.
func buildSiteQuery(terms, conditions []string) string {
	clause := func(ss []string) string {
		quoted := make([]string, 0, len(ss))
		for _, s := range ss {
			if strings.ContainsRune(s, ' ') {
				s = `"` + s + `"`
			}
			quoted = append(quoted, s)
		}
		return strings.Join(quoted, " OR ")
	}
	return "(" + clause(terms) + ") AND (" + clause(conditions) + ")"
}

// extractSiteRows pulls the European locations out of one study element.
func extractSiteRows(study gjson.Result) []Row {
	proto := study.Get("protocolSection")
	ident := proto.Get("identificationModule")
	nct := ident.Get("nctId").String()
	title := ident.Get("officialTitle").String()
	if title == "" {
		title = ident.Get("briefTitle").String()
	}

	var conds []string
	for _, c := range proto.Get("conditionsModule.conditions").Array() {
		conds = append(conds, c.String())
	}
	condStr := strings.Join(conds, "; ")

	var rows []Row
	for _, loc := range proto.Get("contactsLocationsModule.locations").Array() {
		country := loc.Get("country").String()
		if !IsEuropean(country) {
			continue
		}
		rows = append(rows, Row{
			Facility:   strings.TrimSpace(loc.Get("facility").String()),
			City:       strings.TrimSpace(loc.Get("city").String()),
			Country:    country,
			Conditions: condStr,
			Title:      title,
			NCTID:      nct,
			Status:     loc.Get("status").String(),
		})
	}
	return rows
}

// filterByTerms keeps rows whose title or conditions mention at least one
// search term, case-insensitively. An empty term set keeps everything.
func filterByTerms(rows []Row, terms []string) []Row {
	if len(terms) == 0 {
		return rows
	}
	out := rows[:0]
	for _, r := range rows {
		title := strings.ToLower(r.Title)
		conds := strings.ToLower(r.Conditions)
		for _, t := range terms {
			t = strings.ToLower(t)
			if strings.Contains(title, t) || strings.Contains(conds, t) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.City != b.City {
			return a.City < b.City
		}
		if a.Facility != b.Facility {
			return a.Facility < b.Facility
		}
		return a.NCTID < b.NCTID
	})
}
