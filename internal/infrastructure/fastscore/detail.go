package fastscore

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
)

var clockRegex = regexp.MustCompile(`^(\d{1,2}):(\d{2})\b`)

type ExtractorConfig struct {
	Selectors        Selectors
	VenuePathPattern *regexp.Regexp
	RoundPattern     *regexp.Regexp
	TimeOffset       time.Duration
}

// Extractor reads ExtractedFields from a detail page. Missing structure yields
// nil fields, never an error.
type Extractor struct {
	selectors    Selectors
	venuePath    *regexp.Regexp
	roundPattern *regexp.Regexp
	offsetMin    int
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	selectors := cfg.Selectors
	if selectors.DetailDate == "" || selectors.DetailTime == "" {
		selectors = DefaultSelectors()
	}
	venuePath := cfg.VenuePathPattern
	if venuePath == nil {
		venuePath = DefaultVenuePathPattern
	}
	roundPattern := cfg.RoundPattern
	if roundPattern == nil {
		roundPattern = DefaultRoundPattern
	}

	return &Extractor{
		selectors:    selectors,
		venuePath:    venuePath,
		roundPattern: roundPattern,
		offsetMin:    int(cfg.TimeOffset / time.Minute),
	}
}

func (e *Extractor) Extract(payload []byte) fixture.ExtractedFields {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fixture.ExtractedFields{}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return fixture.ExtractedFields{}
	}

	var out fixture.ExtractedFields
	out.DayToken, out.DateToken = splitDayDate(firstText(doc, e.selectors.DetailDate))
	out.TimeToken = e.shiftClock(firstText(doc, e.selectors.DetailTime))
	out.VenueRaw = e.venue(doc)
	out.RoundNumber = e.round(doc)
	return out
}

func firstText(doc *goquery.Document, selector string) string {
	return fixture.CleanText(doc.Find(selector).First().Text())
}

// splitDayDate splits "Saturday, 05/04/2025" on the first comma.
func splitDayDate(text string) (*string, *string) {
	if text == "" {
		return nil, nil
	}
	day, date, found := strings.Cut(text, ",")
	if !found {
		return nil, nonEmpty(text)
	}
	return nonEmpty(strings.TrimSpace(day)), nonEmpty(strings.TrimSpace(date))
}

// shiftClock adds the source-to-local offset to an "HH:MM" value, wrapping at
// midnight. The calendar date is not adjusted.
func (e *Extractor) shiftClock(text string) *string {
	m := clockRegex.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return nil
	}

	const day = 24 * 60
	total := ((hour*60+minute+e.offsetMin)%day + day) % day
	clock := fmt.Sprintf("%02d:%02d", total/60, total%60)
	return &clock
}

func (e *Extractor) venue(doc *goquery.Document) *string {
	var venue *string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || !e.venuePath.MatchString(ref.Path) {
			return true
		}
		venue = nonEmpty(fixture.CleanText(s.Text()))
		return false
	})
	return venue
}

// round returns the number from the innermost element carrying a round marker.
func (e *Extractor) round(doc *goquery.Document) *string {
	var round *string
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "script" || goquery.NodeName(s) == "style" {
			return true
		}
		m := e.roundPattern.FindStringSubmatch(fixture.CleanText(s.Text()))
		if m == nil {
			return true
		}
		inChild := false
		s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
			inChild = e.roundPattern.MatchString(fixture.CleanText(c.Text()))
			return !inChild
		})
		if inChild {
			return true
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return true
		}
		value := strconv.Itoa(n)
		round = &value
		return false
	})
	return round
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
