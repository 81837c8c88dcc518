package sqlstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	// The CHECK lets tests force a failure halfway through an insert batch.
	_, err = db.Exec(`CREATE TABLE fixtures (
	league TEXT NOT NULL,
	home_team TEXT NOT NULL CHECK (home_team <> 'BOOM'),
	away_team TEXT NOT NULL,
	day TEXT,
	date DATE,
	time TEXT,
	venue TEXT,
	city TEXT,
	round_number TEXT
)`)
	require.NoError(t, err)
	return db
}

func mustDate(t *testing.T, v string) *time.Time {
	t.Helper()
	d, err := time.Parse(fixture.DateLayout, v)
	require.NoError(t, err)
	return &d
}

func TestFixtureStore_ReplaceAllAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewFixtureStore(openTestDB(t), "", 0)
	require.NoError(t, err)

	first := []fixture.NormalizedFixture{
		{League: "Ligat HaAl", HomeTeam: "Old", AwayTeam: "Snapshot", Date: mustDate(t, "2024-01-01")},
	}
	require.NoError(t, store.ReplaceAll(ctx, first))

	second := []fixture.NormalizedFixture{
		{
			League:      "Ligat HaAl",
			HomeTeam:    "C",
			AwayTeam:    "D",
			Day:         fixture.StringPtr("Tuesday"),
			Date:        mustDate(t, "2025-04-01"),
			Time:        fixture.StringPtr("21:00"),
			Venue:       fixture.StringPtr("Teddy Stadium"),
			City:        fixture.StringPtr("Jerusalem"),
			RoundNumber: fixture.StringPtr("12"),
		},
		{League: "Ligat HaAl", HomeTeam: "X", AwayTeam: "Y"},
		{League: "Ligat HaAl", HomeTeam: "A", AwayTeam: "B", Date: mustDate(t, "2025-04-05")},
	}
	require.NoError(t, store.ReplaceAll(ctx, second))

	got, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "C", got[0].HomeTeam)
	require.Equal(t, "2025-04-01", got[0].DateString())
	require.Equal(t, "Teddy Stadium", fixture.Deref(got[0].Venue))
	require.Equal(t, "12", fixture.Deref(got[0].RoundNumber))
	require.Equal(t, "A", got[1].HomeTeam)
	require.Equal(t, "X", got[2].HomeTeam)
	require.Nil(t, got[2].Date)
	require.Nil(t, got[2].Venue)
}

func TestFixtureStore_FailedPublishKeepsPriorSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewFixtureStore(openTestDB(t), "fixtures", 2)
	require.NoError(t, err)

	prior := []fixture.NormalizedFixture{
		{League: "L", HomeTeam: "P1", AwayTeam: "Q1"},
		{League: "L", HomeTeam: "P2", AwayTeam: "Q2"},
	}
	require.NoError(t, store.ReplaceAll(ctx, prior))

	// The first batch of two rows succeeds before the second batch hits the CHECK.
	next := []fixture.NormalizedFixture{
		{League: "L", HomeTeam: "N1", AwayTeam: "M1"},
		{League: "L", HomeTeam: "N2", AwayTeam: "M2"},
		{League: "L", HomeTeam: "BOOM", AwayTeam: "M3"},
	}
	err = store.ReplaceAll(ctx, next)
	require.Error(t, err)

	got, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	homes := []string{got[0].HomeTeam, got[1].HomeTeam}
	require.ElementsMatch(t, []string{"P1", "P2"}, homes)
}

func TestFixtureStore_ReplaceWithEmptySnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewFixtureStore(openTestDB(t), "fixtures", 0)
	require.NoError(t, err)

	require.NoError(t, store.ReplaceAll(ctx, []fixture.NormalizedFixture{{League: "L", HomeTeam: "A", AwayTeam: "B"}}))
	require.NoError(t, store.ReplaceAll(ctx, nil))

	got, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFixtureStore_LargeSnapshotIsBatched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewFixtureStore(openTestDB(t), "fixtures", 50)
	require.NoError(t, err)

	items := make([]fixture.NormalizedFixture, 0, 180)
	for i := 0; i < 180; i++ {
		items = append(items, fixture.NormalizedFixture{League: "L", HomeTeam: fmt.Sprintf("H%03d", i), AwayTeam: "A"})
	}
	require.NoError(t, store.ReplaceAll(ctx, items))

	got, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 180)
}

func TestFixtureStore_EnsureSchema(t *testing.T) {
	t.Parallel()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	store, err := NewFixtureStore(db, "harvested_fixtures", 0)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.ReplaceAll(context.Background(), []fixture.NormalizedFixture{{League: "L", HomeTeam: "A", AwayTeam: "B"}}))
}

func TestNewFixtureStore_RejectsUnsafeTableName(t *testing.T) {
	t.Parallel()

	_, err := NewFixtureStore(nil, "fixtures; DROP TABLE users", 0)
	require.Error(t, err)
}
