package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestOpenRejectsMalformedDSN(t *testing.T) {
	if _, err := Open("this is definitely not a dsn"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestOpenIsLazy(t *testing.T) {
	// No server listens here; Open must still succeed because the first
	// connection is only established on Ping/Select.
	c, err := Open("host=localhost port=1 dbname=mailman user=mailman")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()
}

func TestClassifyConnectivity(t *testing.T) {
	connErrs := []error{
		driver.ErrBadConn,
		fmt.Errorf("running query: %w", driver.ErrBadConn),
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
		&pgconn.PgError{Code: "28P01", Message: "password authentication failed"},
		&pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"},
	}
	for _, in := range connErrs {
		err := classify(in)
		var ce *ConnError
		if !errors.As(err, &ce) {
			t.Errorf("classify(%v) = %T, want *ConnError", in, err)
		}
	}
}

func TestClassifyQuery(t *testing.T) {
	queryErrs := []error{
		errors.New("some driver problem"),
		&pgconn.PgError{Code: "42601", Message: "syntax error at or near"},
		&pgconn.PgError{Code: "42P01", Message: "relation does not exist"},
	}
	for _, in := range queryErrs {
		err := classify(in)
		var qe *QueryError
		if !errors.As(err, &qe) {
			t.Errorf("classify(%v) = %T, want *QueryError", in, err)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")

	var ce error = &ConnError{Err: cause}
	if !errors.Is(ce, cause) {
		t.Error("ConnError does not unwrap to its cause")
	}
	if got := ce.Error(); got != "database unreachable: boom" {
		t.Errorf("ConnError.Error() = %q", got)
	}

	var qe error = &QueryError{Err: cause}
	if !errors.Is(qe, cause) {
		t.Error("QueryError does not unwrap to its cause")
	}
	if got := qe.Error(); got != "query failed: boom" {
		t.Errorf("QueryError.Error() = %q", got)
	}
}
