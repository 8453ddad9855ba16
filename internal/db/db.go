// Package db owns the long-lived PostgreSQL connection the exporter
// reads the mailing-list platform's state from. It exposes plain
// "run a SELECT, get rows back" semantics and classifies failures into
// connectivity errors (database unreachable) and query errors (one
// statement failed), which the collector treats very differently.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// Row is one result row in column order: label columns first, the
// numeric value column last.
type Row []any

// ConnError means the database could not be reached or authenticated to.
// It degrades the exporter health gauge to 0.
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string { return fmt.Sprintf("database unreachable: %v", e.Err) }
func (e *ConnError) Unwrap() error { return e.Err }

// QueryError means one specific statement failed while the database
// itself is reachable. It fails only the metric backed by that statement.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("query failed: %v", e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// Client wraps a lazily-established *sql.DB over the pgx driver.
// sql.DB is itself a concurrency-safe bounded pool, so concurrent
// scrapes never interleave reads on one wire connection. Every session
// is forced read-only before it is handed to a query.
type Client struct {
	db *sql.DB
}

// Open parses the DSN and prepares the client. No connection is
// established until the first Ping or Select.
func Open(dsn string) (*Client, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	sqldb := stdlib.OpenDB(*connCfg, stdlib.OptionAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET default_transaction_read_only = on")
		return err
	}))

	// Scrapers poll serially, but the design must not assume it.
	sqldb.SetMaxOpenConns(2)
	sqldb.SetMaxIdleConns(1)

	return &Client{db: sqldb}, nil
}

// Ping reports whether the database is reachable without touching any
// platform table. A failure is always a *ConnError.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return &ConnError{Err: err}
	}
	return nil
}

// Select runs one statement and returns every row with raw driver
// values. Errors are classified: transport-level failures become
// *ConnError, everything else *QueryError.
func (c *Client) Select(ctx context.Context, stmt string) ([]Row, error) {
	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(err)
	}

	var out []Row
	for rows.Next() {
		vals := make(Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Err: err}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Stats exposes the underlying pool statistics for diagnostics.
func (c *Client) Stats() sql.DBStats {
	return c.db.Stats()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// classify decides whether an error is a connectivity failure or a
// statement failure.
func classify(err error) error {
	if isConnFailure(err) {
		return &ConnError{Err: err}
	}
	return &QueryError{Err: err}
}

func isConnFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	// Authentication and shutdown errors arrive as PgErrors with class
	// 28 (invalid authorization) or 57 (operator intervention).
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "28", "57":
			return true
		}
	}
	return false
}
