package sqlstore

import (
	"database/sql"
	"time"

	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
)

type fixtureTableModel struct {
	League      string         `db:"league"`
	HomeTeam    string         `db:"home_team"`
	AwayTeam    string         `db:"away_team"`
	Day         sql.NullString `db:"day"`
	Date        sql.NullString `db:"date"`
	Time        sql.NullString `db:"time"`
	Venue       sql.NullString `db:"venue"`
	City        sql.NullString `db:"city"`
	RoundNumber sql.NullString `db:"round_number"`
}

func toTableModel(f fixture.NormalizedFixture) fixtureTableModel {
	return fixtureTableModel{
		League:      f.League,
		HomeTeam:    f.HomeTeam,
		AwayTeam:    f.AwayTeam,
		Day:         nullString(f.Day),
		Date:        sql.NullString{String: f.DateString(), Valid: f.Date != nil},
		Time:        nullString(f.Time),
		Venue:       nullString(f.Venue),
		City:        nullString(f.City),
		RoundNumber: nullString(f.RoundNumber),
	}
}

func (m fixtureTableModel) toDomain() fixture.NormalizedFixture {
	out := fixture.NormalizedFixture{
		League:      m.League,
		HomeTeam:    m.HomeTeam,
		AwayTeam:    m.AwayTeam,
		Day:         stringPtr(m.Day),
		Time:        stringPtr(m.Time),
		Venue:       stringPtr(m.Venue),
		City:        stringPtr(m.City),
		RoundNumber: stringPtr(m.RoundNumber),
	}
	if m.Date.Valid && len(m.Date.String) >= len(fixture.DateLayout) {
		if d, err := time.Parse(fixture.DateLayout, m.Date.String[:len(fixture.DateLayout)]); err == nil {
			out.Date = &d
		}
	}
	return out
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
