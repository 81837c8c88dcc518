package app

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/riskibarqy/fixture-harvester/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	_ "modernc.org/sqlite"
)

// openDB opens a traced pool for the configured driver and pings it.
func openDB(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	dsn := dataSourceName(cfg.DBDriver, cfg.DBURL)

	opts := []otelsql.Option{otelsql.WithQueryFormatter(formatDBQueryForTrace)}
	if name := dbName(cfg.DBDriver, cfg.DBURL); name != "" {
		opts = append(opts, otelsql.WithDBName(name))
	}

	db, err := otelsqlx.Open(cfg.DBDriver, dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}

	if cfg.DBDriver == config.DBDriverSQLite {
		// One writer at a time; the replace transaction must not see SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.DBDriver, err)
	}

	return db, nil
}
