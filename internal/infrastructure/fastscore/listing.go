package fastscore

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
)

const defaultMaxPages = 200

// Fetcher is the subset of the fetch client used here.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

type PaginatorConfig struct {
	BaseURL   string
	MaxPages  int
	Selectors Selectors
	Logger    *logging.Logger
}

type Paginator struct {
	fetcher   Fetcher
	base      *url.URL
	maxPages  int
	selectors Selectors
	logger    *logging.Logger
}

func NewPaginator(fetcher Fetcher, cfg PaginatorConfig) (*Paginator, error) {
	rawBase := strings.TrimSpace(cfg.BaseURL)
	if rawBase == "" {
		rawBase = DefaultBaseURL
	}
	base, err := url.Parse(rawBase)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid source base url %q", rawBase)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	selectors := cfg.Selectors
	if selectors.ListingItem == "" {
		selectors = DefaultSelectors()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Paginator{
		fetcher:   fetcher,
		base:      base,
		maxPages:  maxPages,
		selectors: selectors,
		logger:    logger,
	}, nil
}

// Listings walks page=1,2,... of the listing lazily. The sequence can be ranged
// over once; pagination stops on an empty page, a missing next-page control,
// a fetch failure or the page cap, and none of these is an error.
func (p *Paginator) Listings(ctx context.Context, listing fixture.Listing) (iter.Seq[fixture.ListingRecord], *fixture.WalkStats) {
	stats := &fixture.WalkStats{}
	var used atomic.Bool

	seq := func(yield func(fixture.ListingRecord) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}

		for page := 1; ; page++ {
			if ctx.Err() != nil {
				p.stop(ctx, stats, listing, page, fixture.StopCanceled)
				return
			}
			if page > p.maxPages {
				p.stop(ctx, stats, listing, page, fixture.StopMaxPages)
				return
			}

			pageURL, err := p.pageURL(listing.Path, page)
			if err != nil {
				p.logger.WarnContext(ctx, "invalid listing path", "league", listing.League, "path", listing.Path, "error", err)
				p.stop(ctx, stats, listing, page, fixture.StopFetchError)
				return
			}

			raw, err := p.fetcher.Fetch(ctx, pageURL)
			if err != nil {
				p.logger.WarnContext(ctx, "listing page fetch failed", "league", listing.League, "page", page, "error", err)
				p.stop(ctx, stats, listing, page, fixture.StopFetchError)
				return
			}
			stats.Pages++

			parsed, err := p.parsePage(raw, listing.League)
			if err != nil {
				p.logger.WarnContext(ctx, "listing page parse failed", "league", listing.League, "page", page, "error", err)
				p.stop(ctx, stats, listing, page, fixture.StopFetchError)
				return
			}
			stats.Rejected += parsed.rejected
			if len(parsed.records) == 0 {
				p.stop(ctx, stats, listing, page, fixture.StopEmptyPage)
				return
			}

			for _, rec := range parsed.records {
				stats.Accepted++
				if !yield(rec) {
					p.stop(ctx, stats, listing, page, fixture.StopConsumer)
					return
				}
			}

			if parsed.hasPagination && !parsed.hasNext {
				p.stop(ctx, stats, listing, page, fixture.StopNoNext)
				return
			}
		}
	}
	return seq, stats
}

func (p *Paginator) stop(ctx context.Context, stats *fixture.WalkStats, listing fixture.Listing, page int, reason string) {
	stats.StopReason = reason
	stats.StopPage = page
	p.logger.InfoContext(ctx, "listing pagination stopped",
		"league", listing.League,
		"page", page,
		"reason", reason,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
	)
}

func (p *Paginator) pageURL(path string, page int) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	u := p.base.ResolveReference(ref)
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type listingPage struct {
	records       []fixture.ListingRecord
	rejected      int
	hasPagination bool
	hasNext       bool
}

func (p *Paginator) parsePage(raw []byte, league string) (listingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return listingPage{}, fmt.Errorf("parse listing html: %w", err)
	}

	var out listingPage
	doc.Find(p.selectors.ListingItem).Each(func(_ int, item *goquery.Selection) {
		rec, ok := p.parseItem(item, league)
		if !ok {
			out.rejected++
			return
		}
		out.records = append(out.records, rec)
	})

	pagination := doc.Find(p.selectors.Pagination)
	out.hasPagination = pagination.Length() > 0
	out.hasNext = pagination.Find(p.selectors.PaginationNext).Length() > 0
	return out, nil
}

func (p *Paginator) parseItem(item *goquery.Selection, league string) (fixture.ListingRecord, bool) {
	var teams []string
	item.Find(p.selectors.TeamName).Each(func(_ int, s *goquery.Selection) {
		if name := fixture.CleanText(s.Text()); name != "" {
			teams = append(teams, name)
		}
	})
	if len(teams) != 2 {
		return fixture.ListingRecord{}, false
	}

	href, ok := item.Attr(p.selectors.DetailRefAttr)
	if !ok || strings.TrimSpace(href) == "" {
		href, ok = item.Find("a[href]").First().Attr("href")
	}
	if !ok || strings.TrimSpace(href) == "" {
		return fixture.ListingRecord{}, false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return fixture.ListingRecord{}, false
	}

	return fixture.ListingRecord{
		League:    fixture.CleanText(league),
		HomeTeam:  teams[0],
		AwayTeam:  teams[1],
		DetailRef: p.base.ResolveReference(ref).String(),
	}, true
}
