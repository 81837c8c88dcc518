package fastscore

import (
	"regexp"
	"time"
)

const DefaultBaseURL = "https://www.fastscore.com"

// Selectors is the structural contract with the source site's markup.
type Selectors struct {
	ListingItem    string
	TeamName       string
	DetailRefAttr  string
	Pagination     string
	PaginationNext string

	DetailDate string
	DetailTime string
}

func DefaultSelectors() Selectors {
	return Selectors{
		ListingItem:    "div.match-grid-match",
		TeamName:       "div.col-12.text-left.text-truncate.align-self-center.p-0",
		DetailRefAttr:  "data-href",
		Pagination:     ".pagination",
		PaginationNext: `a[rel="next"], .next:not(.disabled), li.next a`,
		DetailDate:     "span[data-date-match]",
		DetailTime:     "span[data-time-match]",
	}
}

var (
	DefaultVenuePathPattern = regexp.MustCompile(`^/stadium/`)
	DefaultRoundPattern     = regexp.MustCompile(`(?i)\b(?:matchday|round|week)\s*(\d+)\b`)
)

const DefaultTimeOffset = 3 * time.Hour
