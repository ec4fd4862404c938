package trial

// SkipReason explains why a raw registry record was dropped before
// reconciliation. Skips are ordinary, expected outcomes, not errors.
type SkipReason string

const (
	SkipMissingKey    SkipReason = "missing_key"
	SkipMalformedDate SkipReason = "malformed_date"
	SkipParseError    SkipReason = "parse_error"
)

// SkipCounts tallies skipped records per reason.
type SkipCounts map[SkipReason]int

// Add increments the counter for a reason.
func (c SkipCounts) Add(reason SkipReason) {
	c[reason]++
}

// Merge folds another tally into this one.
func (c SkipCounts) Merge(other SkipCounts) {
	for reason, n := range other {
		c[reason] += n
	}
}

// Total returns the number of skipped records across all reasons.
func (c SkipCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
