package trial

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Storage caps for free-text registry fields. Registries occasionally ship
// multi-kilobyte titles; rows must never be rejected for oversized text.
const (
	MaxTitleLen  = 500
	MaxStatusLen = 100
)

// maxFractionDigits is the fractional-second precision the timestamp columns
// accept. Anything finer is truncated, not rejected.
const maxFractionDigits = 6

// iso8601Layouts are the shapes accepted by SanitizeTimestamp without
// reformatting. A value matching one of these (after fraction truncation)
// passes through unchanged.
var iso8601Layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// fallbackLayouts are tried when a value is not ISO-8601; on a hit the value
// is rewritten as a simplified UTC timestamp.
var fallbackLayouts = []string{
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"02/01/2006",
	time.RFC1123,
}

// SanitizeTimestamp normalizes a registry-reported timestamp for storage.
// Fractional seconds beyond six digits are truncated in place. Values that
// are not ISO-8601 are reparsed against a few known registry formats and
// rewritten as YYYY-MM-DDTHH:MM:SSZ. Returns ("", false) when nothing
// salvageable remains; callers store NULL in that case rather than dropping
// the record.
func SanitizeTimestamp(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	s = truncateFraction(s)
	for _, layout := range iso8601Layouts {
		if _, err := time.Parse(layout, s); err == nil {
			return s, true
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05Z"), true
		}
	}

	return "", false
}

// truncateFraction cuts fractional seconds down to maxFractionDigits,
// preserving any trailing zone designator. Values without a fraction are
// returned untouched.
func truncateFraction(s string) string {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return s
	}
	j := i + 1
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j-i-1 <= maxFractionDigits {
		return s
	}
	return s[:i+1+maxFractionDigits] + s[j:]
}

// CleanText NFC-normalizes registry text and collapses surrounding
// whitespace.
func CleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// CapField truncates a string to at most max runes.
func CapField(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Sanitize applies the storage rules to a record in place: text cleanup,
// defensive length caps, timestamp normalization, and URL derivation. The
// boolean reports whether a non-empty LastUpdated survived sanitization.
func (r *Record) Sanitize() bool {
	r.ExternalID = strings.TrimSpace(r.ExternalID)
	r.Title = CapField(CleanText(r.Title), MaxTitleLen)
	r.Status = CapField(CleanText(r.Status), MaxStatusLen)
	if r.URL == "" {
		r.URL = RegistryURL(r.Source, r.ExternalID)
	}

	if r.LastUpdated == "" {
		return false
	}
	ts, ok := SanitizeTimestamp(r.LastUpdated)
	r.LastUpdated = ts
	return ok
}
