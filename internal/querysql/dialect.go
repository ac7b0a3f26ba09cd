package querysql

import (
	"strconv"
	"strings"

	"github.com/roach88/folio/internal/sqllayout"
)

// Dialect captures the differences between the supported SQL engines.
// Compiled fragments always use ? placeholders; Rebind converts them for
// engines with numbered parameters.
type Dialect struct {
	Name string

	numbered bool
	real     string
	boolean  string
	collate  string
}

var (
	// SQLite is the dialect of github.com/mattn/go-sqlite3.
	SQLite = Dialect{Name: "sqlite", real: "REAL", boolean: "INTEGER", collate: " COLLATE BINARY"}

	// Postgres is the dialect of github.com/jackc/pgx/v5/stdlib.
	Postgres = Dialect{Name: "postgres", numbered: true, real: "DOUBLE PRECISION", boolean: "BOOLEAN", collate: ` COLLATE "C"`}
)

// DialectFor returns the dialect registered under a database/sql driver name.
func DialectFor(driver string) (Dialect, bool) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, true
	case "pgx", "postgres":
		return Postgres, true
	}
	return Dialect{}, false
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// ColumnType maps a layout type to a column type.
func (d Dialect) ColumnType(t sqllayout.Type) string {
	switch t {
	case sqllayout.TypeNumber:
		return d.real
	case sqllayout.TypeBool:
		return d.boolean
	}
	return "TEXT"
}

// Collate returns the collation clause giving byte-wise text ordering.
func (d Dialect) Collate() string {
	return d.collate
}

// LimitOffset renders a LIMIT/OFFSET clause. A limit of 0 means no limit.
func (d Dialect) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	case limit > 0:
		return " LIMIT " + strconv.Itoa(limit)
	case offset > 0 && d.numbered:
		return " OFFSET " + strconv.Itoa(offset)
	case offset > 0:
		return " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	}
	return ""
}

// Rebind rewrites ? placeholders for the dialect. Placeholders inside
// quoted literals and identifiers are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '?':
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}
