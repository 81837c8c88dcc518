package fixture

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	parenGroupRegex    = regexp.MustCompile(`\(([^()]+)\)`)
	trailingParenRegex = regexp.MustCompile(`\s*\(.*`)

	// Day-first layouts tried in order. ISO input is accepted as is.
	dateLayouts = []string{
		"02/01/2006",
		"2/1/2006",
		"02.01.2006",
		"2.1.2006",
		"02-01-2006",
		"2-1-2006",
		"02/01/06",
		"2 January 2006",
		"2 Jan 2006",
		"02 January 2006",
		"02 Jan 2006",
		DateLayout,
	}

	apostropheReplacer = strings.NewReplacer("’", "'", "‘", "'", "`", "'")
)

// Normalizer turns listing identity plus extracted fields into a NormalizedFixture.
// It is safe for concurrent use once built.
type Normalizer struct {
	overrides     map[string]VenueOverride
	aliases       map[string]string
	countryTokens []*regexp.Regexp
}

func NewNormalizer(rules Rules) *Normalizer {
	n := &Normalizer{
		overrides: make(map[string]VenueOverride, len(rules.VenueOverrides)),
		aliases:   make(map[string]string, len(rules.VenueAliases)),
	}
	for _, o := range rules.VenueOverrides {
		n.overrides[LookupKey(o.Team)] = VenueOverride{
			Team:  CleanText(o.Team),
			Venue: CleanText(o.Venue),
			City:  CleanText(o.City),
		}
	}
	for _, a := range rules.VenueAliases {
		n.aliases[LookupKey(a.From)] = CleanText(a.To)
	}
	for _, token := range rules.CountryTokens {
		token = CleanText(token)
		if token == "" {
			continue
		}
		n.countryTokens = append(n.countryTokens, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(token)+`\b`))
	}
	return n
}

func (n *Normalizer) Normalize(record ListingRecord, fields ExtractedFields) NormalizedFixture {
	out := NormalizedFixture{
		League:      CleanText(record.League),
		HomeTeam:    CleanText(record.HomeTeam),
		AwayTeam:    CleanText(record.AwayTeam),
		Day:         cleanPtr(fields.DayToken),
		Date:        ParseDayFirstDate(Deref(fields.DateToken)),
		Time:        cleanPtr(fields.TimeToken),
		RoundNumber: cleanPtr(fields.RoundNumber),
	}
	out.Venue, out.City = n.venueAndCity(out.HomeTeam, fields.VenueRaw)
	return out
}

// venueAndCity derives both values from one raw venue string so they never disagree.
func (n *Normalizer) venueAndCity(homeTeam string, venueRaw *string) (*string, *string) {
	raw := CleanText(Deref(venueRaw))
	if raw == "" {
		return nil, nil
	}

	if o, ok := n.overrides[LookupKey(homeTeam)]; ok {
		return nonEmpty(o.Venue), nonEmpty(o.City)
	}

	return nonEmpty(n.cleanVenue(raw)), nonEmpty(n.City(raw))
}

// City returns the content of the last parenthesized group with hyphens and
// country tokens removed.
func (n *Normalizer) City(venueRaw string) string {
	groups := parenGroupRegex.FindAllStringSubmatch(venueRaw, -1)
	if len(groups) == 0 {
		return ""
	}
	city := strings.ReplaceAll(groups[len(groups)-1][1], "-", " ")
	for _, re := range n.countryTokens {
		city = re.ReplaceAllString(city, " ")
	}
	return CleanText(city)
}

func (n *Normalizer) cleanVenue(venueRaw string) string {
	venue := CleanText(trailingParenRegex.ReplaceAllString(venueRaw, ""))
	if canonical, ok := n.aliases[LookupKey(venue)]; ok {
		return canonical
	}
	return venue
}

// ParseDayFirstDate parses a day/month/year date. Unparsable input yields nil.
func ParseDayFirstDate(raw string) *time.Time {
	raw = CleanText(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// CleanText applies NFC and collapses whitespace runs.
func CleanText(v string) string {
	return strings.Join(strings.Fields(norm.NFC.String(v)), " ")
}

// LookupKey is the matching key for override teams and venue aliases:
// cleaned, lowercased, with typographic apostrophes folded to '.
func LookupKey(v string) string {
	return strings.ToLower(apostropheReplacer.Replace(CleanText(v)))
}

func cleanPtr(v *string) *string {
	if v == nil {
		return nil
	}
	return nonEmpty(CleanText(*v))
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
