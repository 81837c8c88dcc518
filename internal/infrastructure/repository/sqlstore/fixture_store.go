package sqlstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
	qb "github.com/riskibarqy/fixture-harvester/internal/platform/querybuilder"
)

const (
	DefaultTable     = "fixtures"
	defaultBatchSize = 500
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// FixtureStore owns the published fixture table. Every write replaces the whole
// table inside one transaction.
type FixtureStore struct {
	db        *sqlx.DB
	table     string
	batchSize int
}

func NewFixtureStore(db *sqlx.DB, table string, batchSize int) (*FixtureStore, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid fixture table name %q", table)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &FixtureStore{db: db, table: table, batchSize: batchSize}, nil
}

func (s *FixtureStore) Name() string { return "store" }

func (s *FixtureStore) Write(ctx context.Context, items []fixture.NormalizedFixture) error {
	return s.ReplaceAll(ctx, items)
}

// ReplaceAll clears the table and inserts items in one transaction. On any
// failure the previous snapshot is left untouched.
func (s *FixtureStore) ReplaceAll(ctx context.Context, items []fixture.NormalizedFixture) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx replace fixtures: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	clearQuery, clearArgs, err := qb.DeleteFrom(s.table).ToSQL()
	if err != nil {
		return fmt.Errorf("build clear fixtures query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(clearQuery), clearArgs...); err != nil {
		return fmt.Errorf("clear fixtures: %w", err)
	}

	rows := make([]fixtureTableModel, 0, len(items))
	for _, item := range items {
		rows = append(rows, toTableModel(item))
	}
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		insertQuery, insertArgs, err := qb.InsertModels(s.table, rows[start:end])
		if err != nil {
			return fmt.Errorf("build insert fixtures query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(insertQuery), insertArgs...); err != nil {
			return fmt.Errorf("insert fixtures rows %d-%d: %w", start, end-1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx replace fixtures: %w", err)
	}
	return nil
}

// ListAll returns the published snapshot ordered by date (unknown last).
func (s *FixtureStore) ListAll(ctx context.Context) ([]fixture.NormalizedFixture, error) {
	query, args, err := qb.Select(
		"league", "home_team", "away_team", "day",
		"CAST(date AS TEXT) AS date",
		"time", "venue", "city", "round_number",
	).
		From(s.table).
		OrderBy("CASE WHEN date IS NULL THEN 1 ELSE 0 END", "date", "time", "league", "home_team", "away_team").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list fixtures query: %w", err)
	}

	var rows []fixtureTableModel
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list fixtures: %w", err)
	}

	out := make([]fixture.NormalizedFixture, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// EnsureSchema creates the fixture table when missing. Used for local SQLite
// runs and tests; managed databases are provisioned separately.
func (s *FixtureStore) EnsureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	league TEXT NOT NULL,
	home_team TEXT NOT NULL,
	away_team TEXT NOT NULL,
	day TEXT,
	date DATE,
	time TEXT,
	venue TEXT,
	city TEXT,
	round_number TEXT
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure fixtures schema: %w", err)
	}
	return nil
}
