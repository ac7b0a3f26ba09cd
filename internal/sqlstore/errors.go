package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/sqllayout"
)

const uniqueMessage = "value must be unique"

// classify maps a driver error into the dberr taxonomy. Unique violations
// name the logical field through the layouts. Any other failure of a write
// is reported as TRANSACTION_ABORTED; the caller rolls the transaction back.
func classify(layouts map[string]*sqllayout.Layout, err error, write bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var de *dberr.Error
	if errors.As(err, &de) {
		return err
	}

	var sqe sqlite3.Error
	if errors.As(err, &sqe) {
		switch {
		case sqe.ExtendedCode == sqlite3.ErrConstraintUnique || sqe.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return dberr.Validation(sqliteUniqueField(layouts, sqe.Error()), uniqueMessage)
		case sqe.Code == sqlite3.ErrBusy || sqe.Code == sqlite3.ErrLocked:
			return dberr.WriteConflict(err)
		case sqe.Code == sqlite3.ErrCantOpen || sqe.Code == sqlite3.ErrIoErr || sqe.Code == sqlite3.ErrNotADB:
			return dberr.BackendUnavailable(err)
		}
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch {
		case pge.Code == "23505":
			return dberr.Validation(indexField(layouts, pge.ConstraintName), uniqueMessage)
		case pge.Code == "40001" || pge.Code == "40P01":
			return dberr.WriteConflict(err)
		case strings.HasPrefix(pge.Code, "08"):
			return dberr.BackendUnavailable(err)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &connErr) {
		return dberr.BackendUnavailable(err)
	}

	if write {
		return dberr.TransactionAborted(err)
	}
	return err
}

// sqliteUniqueField parses "UNIQUE constraint failed: posts.slug".
func sqliteUniqueField(layouts map[string]*sqllayout.Layout, msg string) string {
	_, cols, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return ""
	}
	first, _, _ := strings.Cut(cols, ",")
	table, column, ok := strings.Cut(strings.TrimSpace(first), ".")
	if !ok {
		return ""
	}
	for _, l := range layouts {
		if path, ok := l.FieldForColumn(table, column); ok {
			return path
		}
	}
	return column
}

func indexField(layouts map[string]*sqllayout.Layout, index string) string {
	for _, l := range layouts {
		if path, ok := l.FieldForIndex(index); ok {
			return path
		}
	}
	return ""
}
