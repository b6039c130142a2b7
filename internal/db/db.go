// Package db opens the item database and bootstraps its single table.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a DSN.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DialectFor picks the dialect for a DSN. Anything that is not a postgres URL
// is treated as a SQLite path.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return Postgres
	}
	return SQLite
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Placeholder returns the squirrel placeholder format for the dialect.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == Postgres {
		return sq.Dollar
	}
	return sq.Question
}

// DB is an open connection pool together with its dialect.
type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// Open connects to the database named by dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*DB, error) {
	dialect := DialectFor(dsn)

	conn, err := sqlx.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if dialect == SQLite {
		// One connection keeps :memory: databases alive and pragmas applied.
		conn.SetMaxOpenConns(1)

		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA synchronous=NORMAL",
		}
		for _, p := range pragmas {
			if _, err := conn.ExecContext(ctx, p); err != nil {
				conn.Close()
				return nil, fmt.Errorf("setting pragma %q: %w", p, err)
			}
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{DB: conn, Dialect: dialect}, nil
}

// QuoteTable quotes a table name for use in SQL. Both dialects accept
// double-quoted identifiers, which keeps mixed-case names like TestTable intact.
func QuoteTable(name string) string {
	return pq.QuoteIdentifier(name)
}

// EnsureSchema creates the item table if it does not exist yet. An existing
// table is left untouched.
func EnsureSchema(ctx context.Context, d *DB, table string) error {
	var ddl string
	switch d.Dialect {
	case Postgres:
		ddl = `CREATE TABLE IF NOT EXISTS %s (
    ID    BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    Name  TEXT,
    Price NUMERIC
)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS %s (
    ID    INTEGER PRIMARY KEY,
    Name  TEXT,
    Price NUMERIC
)`
	}

	if _, err := d.ExecContext(ctx, fmt.Sprintf(ddl, QuoteTable(table))); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	return nil
}
