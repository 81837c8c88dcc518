package fixture

import (
	"context"
	"time"
)

// DateLayout is the ISO-8601 calendar date used in every published snapshot.
const DateLayout = "2006-01-02"

// ListingRecord is one fixture discovered on a listing page. League and team
// names are always set; DetailRef is absolute.
type ListingRecord struct {
	League    string
	HomeTeam  string
	AwayTeam  string
	DetailRef string
}

// ExtractedFields are the semi-structured values read from a detail page.
// Any field may be nil when the page lacks the expected structure.
type ExtractedFields struct {
	DayToken    *string
	DateToken   *string
	TimeToken   *string
	VenueRaw    *string
	RoundNumber *string
}

// IsEmpty reports whether nothing was extracted.
func (f ExtractedFields) IsEmpty() bool {
	return f.DayToken == nil && f.DateToken == nil && f.TimeToken == nil && f.VenueRaw == nil && f.RoundNumber == nil
}

// NormalizedFixture is the published unit.
type NormalizedFixture struct {
	League      string     `json:"league" validate:"required"`
	HomeTeam    string     `json:"home_team" validate:"required"`
	AwayTeam    string     `json:"away_team" validate:"required"`
	Day         *string    `json:"day"`
	Date        *time.Time `json:"-"`
	Time        *string    `json:"time" validate:"omitnil,len=5"`
	Venue       *string    `json:"venue"`
	City        *string    `json:"city"`
	RoundNumber *string    `json:"round_number" validate:"omitnil,numeric"`
}

// DateString returns the ISO date or "" when the date is unknown.
func (f NormalizedFixture) DateString() string {
	if f.Date == nil {
		return ""
	}
	return f.Date.Format(DateLayout)
}

// Store replaces the published fixture snapshot as one unit.
type Store interface {
	ReplaceAll(ctx context.Context, items []NormalizedFixture) error
}

func StringPtr(v string) *string {
	return &v
}

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// StagedSnapshot is a prepared snapshot that readers cannot see yet. Commit
// makes it visible; Discard drops it. Exactly one of them should be called.
type StagedSnapshot interface {
	Commit() error
	Discard() error
}
