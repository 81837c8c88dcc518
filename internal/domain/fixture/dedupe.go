package fixture

import (
	"cmp"
	"slices"

	"github.com/valyala/bytebufferpool"
)

const (
	keyFieldSep = '\x1f'
	keyNullMark = '\x00'
)

// Dedupe drops exact duplicates across every field, keeping first occurrences
// in input order.
func Dedupe(items []NormalizedFixture) []NormalizedFixture {
	seen := make(map[string]struct{}, len(items))
	out := make([]NormalizedFixture, 0, len(items))
	for _, item := range items {
		key := DedupKey(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// DedupKey encodes the full field tuple. Null and empty values encode differently.
func DedupKey(f NormalizedFixture) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	writeKeyPart(buf, &f.League)
	writeKeyPart(buf, &f.HomeTeam)
	writeKeyPart(buf, &f.AwayTeam)
	writeKeyPart(buf, f.Day)
	if f.Date == nil {
		writeKeyPart(buf, nil)
	} else {
		date := f.DateString()
		writeKeyPart(buf, &date)
	}
	writeKeyPart(buf, f.Time)
	writeKeyPart(buf, f.Venue)
	writeKeyPart(buf, f.City)
	writeKeyPart(buf, f.RoundNumber)
	return buf.String()
}

func writeKeyPart(buf *bytebufferpool.ByteBuffer, v *string) {
	if v == nil {
		_ = buf.WriteByte(keyNullMark)
	} else {
		_, _ = buf.WriteString(*v)
	}
	_ = buf.WriteByte(keyFieldSep)
}

// SortByDate orders ascending by date with unknown dates last. Ties fall back to
// time (unknown last), then league, home team and away team.
func SortByDate(items []NormalizedFixture) {
	slices.SortStableFunc(items, func(a, b NormalizedFixture) int {
		if c := compareNullsLast(a.Date == nil, b.Date == nil); c != 0 {
			return c
		}
		if a.Date != nil {
			if c := a.Date.Compare(*b.Date); c != 0 {
				return c
			}
		}
		if c := compareNullsLast(a.Time == nil, b.Time == nil); c != 0 {
			return c
		}
		if c := cmp.Compare(Deref(a.Time), Deref(b.Time)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.League, b.League); c != 0 {
			return c
		}
		if c := cmp.Compare(a.HomeTeam, b.HomeTeam); c != 0 {
			return c
		}
		return cmp.Compare(a.AwayTeam, b.AwayTeam)
	})
}

func compareNullsLast(aNull, bNull bool) int {
	switch {
	case aNull == bNull:
		return 0
	case aNull:
		return 1
	default:
		return -1
	}
}
