package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/querysql"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/sqllayout"
	"github.com/roach88/folio/internal/where"
)

// loadChunk bounds the number of parent keys bound in one IN list.
const loadChunk = 500

// CompileWhere implements adapter.Backend.
func (s *Store) CompileWhere(_ context.Context, _ adapter.Tx, coll *schema.Collection, w where.Expr, locale string) (querysql.Fragment, error) {
	l, err := s.Layout(coll)
	if err != nil {
		return querysql.Fragment{}, err
	}
	return s.compiler.Where(l, w, locale)
}

// Select implements adapter.Backend. It reads the matching parent rows,
// then their locale rows and child rows table by table, checking for
// cancellation between statements.
func (s *Store) Select(ctx context.Context, tx adapter.Tx, coll *schema.Collection, pred querysql.Fragment, page adapter.Page) ([]*RowSet, error) {
	l, err := s.Layout(coll)
	if err != nil {
		return nil, err
	}
	stx, err := s.sqlTx(tx)
	if err != nil {
		return nil, err
	}

	q, err := s.compiler.Select(l, pred, page.Sort, page.Locale, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, stx, q)
	if err != nil {
		return nil, err
	}

	sets := make([]*RowSet, len(rows))
	for i, row := range rows {
		sets[i] = newRowSet(l.Root)
		sets[i].Row = row
	}
	if err := s.load(ctx, stx, l.Root, sets); err != nil {
		return nil, err
	}
	return sets, nil
}

// SelectIDs implements adapter.Backend with a single id-only statement.
func (s *Store) SelectIDs(ctx context.Context, tx adapter.Tx, coll *schema.Collection, pred querysql.Fragment) ([]string, error) {
	l, err := s.Layout(coll)
	if err != nil {
		return nil, err
	}
	stx, err := s.sqlTx(tx)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, stx, s.compiler.IDs(l, pred))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		switch id := row[sqllayout.ColID].(type) {
		case string:
			ids = append(ids, id)
		case []byte:
			ids = append(ids, string(id))
		}
	}
	return ids, nil
}

// load attaches locale rows and child rows to sets, all rows of table t.
func (s *Store) load(ctx context.Context, tx *sql.Tx, t *sqllayout.Table, sets []*RowSet) error {
	if len(sets) == 0 {
		return nil
	}
	byKey := make(map[string]*RowSet, len(sets))
	keys := make([]any, 0, len(sets))
	for _, rs := range sets {
		byKey[rs.key()] = rs
		keys = append(keys, rs.key())
	}

	if t.HasLocales() {
		rows, err := s.byParent(ctx, tx, t.LocalesName(), keys, false)
		if err != nil {
			return err
		}
		for _, row := range rows {
			parent, _ := text(row[sqllayout.ColParentID])
			code, _ := text(row[sqllayout.ColLocale])
			if rs := byKey[parent]; rs != nil {
				rs.Locales[code] = row
			}
		}
	}

	for _, child := range t.Children {
		rows, err := s.byParent(ctx, tx, child.Name, keys, true)
		if err != nil {
			return err
		}
		children := make([]*RowSet, 0, len(rows))
		for _, row := range rows {
			parent, _ := text(row[sqllayout.ColParentID])
			rs := byKey[parent]
			if rs == nil {
				continue
			}
			el := newRowSet(child)
			el.Row = row
			rs.Children[child] = append(rs.Children[child], el)
			children = append(children, el)
		}
		if err := s.load(ctx, tx, child, children); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) byParent(ctx context.Context, tx *sql.Tx, table string, keys []any, ordered bool) ([]map[string]any, error) {
	var out []map[string]any
	for start := 0; start < len(keys); start += loadChunk {
		end := min(start+loadChunk, len(keys))
		chunk := keys[start:end]

		q := querysql.Fragment{
			SQL: "SELECT * FROM " + s.dialect.Quote(table) +
				" WHERE " + s.dialect.Quote(sqllayout.ColParentID) +
				" IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ") + ")",
			Args: chunk,
		}
		if ordered {
			q.SQL += " ORDER BY " + s.dialect.Quote(sqllayout.ColParentID) + ", " + s.dialect.Quote(sqllayout.ColOrder)
		}
		rows, err := s.query(ctx, tx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// query runs q and scans every row into a column map.
func (s *Store) query(ctx context.Context, tx *sql.Tx, q querysql.Fragment) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, s.dialect.Rebind(q.SQL), q.Args...)
	if err != nil {
		return nil, classify(s.layouts, fmt.Errorf("query: %w", err), false)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(s.layouts, fmt.Errorf("rows: %w", err), false)
	}
	return out, nil
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, classify(s.layouts, err, true)
	}
	return res, nil
}

// Count implements adapter.Backend.
func (s *Store) Count(ctx context.Context, tx adapter.Tx, coll *schema.Collection, pred querysql.Fragment) (int, error) {
	l, err := s.Layout(coll)
	if err != nil {
		return 0, err
	}
	stx, err := s.sqlTx(tx)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q := s.compiler.Count(l, pred)
	var n int
	if err := stx.QueryRowContext(ctx, s.dialect.Rebind(q.SQL), q.Args...).Scan(&n); err != nil {
		return 0, classify(s.layouts, fmt.Errorf("count: %w", err), false)
	}
	return n, nil
}

// Insert implements adapter.Backend.
func (s *Store) Insert(ctx context.Context, tx adapter.Tx, coll *schema.Collection, rs *RowSet) error {
	stx, err := s.sqlTx(tx)
	if err != nil {
		return err
	}
	if rs.key() == "" {
		return fmt.Errorf("insert %s: document has no id", coll.Slug)
	}
	if err := s.insertRow(ctx, stx, rs.Table.Name, systemColumns(rs.Table), rs.Table.Plain(), rs.Row); err != nil {
		return err
	}
	if err := s.writeLocales(ctx, stx, rs, false); err != nil {
		return err
	}
	return s.writeChildren(ctx, stx, rs)
}

// Patch implements adapter.Backend. Supplied columns are updated, supplied
// locales are upserted and supplied child tables are replaced.
func (s *Store) Patch(ctx context.Context, tx adapter.Tx, coll *schema.Collection, id string, rs *RowSet) (bool, error) {
	stx, err := s.sqlTx(tx)
	if err != nil {
		return false, err
	}
	t := rs.Table
	q := s.dialect.Quote

	found, err := s.query(ctx, stx, querysql.Fragment{
		SQL:  "SELECT " + q(sqllayout.ColID) + " FROM " + q(t.Name) + " WHERE " + q(sqllayout.ColID) + " = ?",
		Args: []any{id},
	})
	if err != nil {
		return false, err
	}
	if len(found) == 0 {
		return false, nil
	}

	rs.Row[sqllayout.ColID] = id
	var sets []string
	var args []any
	for _, c := range t.Plain() {
		if v, ok := rs.Row[c.Name]; ok {
			sets = append(sets, q(c.Name)+" = ?")
			args = append(args, v)
		}
	}
	if len(sets) > 0 {
		stmt := "UPDATE " + q(t.Name) + " SET " + strings.Join(sets, ", ") + " WHERE " + q(sqllayout.ColID) + " = ?"
		if _, err := s.exec(ctx, stx, stmt, append(args, id)...); err != nil {
			return false, fmt.Errorf("update %s: %w", t.Name, err)
		}
	}

	if err := s.writeLocales(ctx, stx, rs, true); err != nil {
		return false, err
	}
	if err := s.writeChildren(ctx, stx, rs); err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements adapter.Backend. Child and locale rows go with their
// parent through ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, tx adapter.Tx, coll *schema.Collection, pred querysql.Fragment) (int, error) {
	l, err := s.Layout(coll)
	if err != nil {
		return 0, err
	}
	stx, err := s.sqlTx(tx)
	if err != nil {
		return 0, err
	}

	ids := s.compiler.IDs(l, pred)
	stmt := "DELETE FROM " + s.dialect.Quote(l.Root.Name) + " WHERE " + s.dialect.Quote(sqllayout.ColID) + " IN (" + ids.SQL + ")"
	res, err := s.exec(ctx, stx, stmt, ids.Args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", l.Root.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", l.Root.Name, err)
	}
	return int(n), nil
}

func systemColumns(t *sqllayout.Table) []string {
	if t.IsRoot() {
		return []string{sqllayout.ColID}
	}
	return []string{sqllayout.ColKey, sqllayout.ColID, sqllayout.ColParentID, sqllayout.ColOrder}
}

// insertRow inserts the supplied columns of row, system columns first and
// then in layout order.
func (s *Store) insertRow(ctx context.Context, tx *sql.Tx, table string, system []string, cols []*sqllayout.Column, row map[string]any) error {
	names := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, name := range system {
		if v, ok := row[name]; ok {
			names = append(names, s.dialect.Quote(name))
			args = append(args, v)
		}
	}
	for _, c := range cols {
		if v, ok := row[c.Name]; ok {
			names = append(names, s.dialect.Quote(c.Name))
			args = append(args, v)
		}
	}

	stmt := "INSERT INTO " + s.dialect.Quote(table) + " (" + strings.Join(names, ", ") +
		") VALUES (" + strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + ")"
	if _, err := s.exec(ctx, tx, stmt, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// writeLocales writes the locale rows of rs. With upsert, existing rows
// keep the columns rs does not supply.
func (s *Store) writeLocales(ctx context.Context, tx *sql.Tx, rs *RowSet, upsert bool) error {
	t := rs.Table
	q := s.dialect.Quote
	for code, row := range rs.Locales {
		if len(row) == 0 {
			continue
		}
		full := make(map[string]any, len(row)+2)
		for k, v := range row {
			full[k] = v
		}
		full[sqllayout.ColParentID] = rs.key()
		full[sqllayout.ColLocale] = code

		if !upsert {
			if err := s.insertRow(ctx, tx, t.LocalesName(), []string{sqllayout.ColParentID, sqllayout.ColLocale}, t.Localized(), full); err != nil {
				return err
			}
			continue
		}

		names := []string{q(sqllayout.ColParentID), q(sqllayout.ColLocale)}
		args := []any{rs.key(), code}
		var updates []string
		for _, c := range t.Localized() {
			if v, ok := row[c.Name]; ok {
				names = append(names, q(c.Name))
				args = append(args, v)
				updates = append(updates, q(c.Name)+" = excluded."+q(c.Name))
			}
		}
		stmt := "INSERT INTO " + q(t.LocalesName()) + " (" + strings.Join(names, ", ") +
			") VALUES (" + strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + ")" +
			" ON CONFLICT (" + q(sqllayout.ColParentID) + ", " + q(sqllayout.ColLocale) + ") DO UPDATE SET " +
			strings.Join(updates, ", ")
		if _, err := s.exec(ctx, tx, stmt, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", t.LocalesName(), err)
		}
	}
	return nil
}

// writeChildren replaces every supplied child table of rs: the stored
// elements are deleted, cascading to their own children, and the supplied
// ones are inserted in order.
func (s *Store) writeChildren(ctx context.Context, tx *sql.Tx, rs *RowSet) error {
	for _, child := range rs.Table.Children {
		elements, ok := rs.Children[child]
		if !ok {
			continue
		}
		stmt := "DELETE FROM " + s.dialect.Quote(child.Name) + " WHERE " + s.dialect.Quote(sqllayout.ColParentID) + " = ?"
		if _, err := s.exec(ctx, tx, stmt, rs.key()); err != nil {
			return fmt.Errorf("clear %s: %w", child.Name, err)
		}
		for _, el := range elements {
			el.Row[sqllayout.ColParentID] = rs.key()
			if err := s.insertRow(ctx, tx, child.Name, systemColumns(child), child.Plain(), el.Row); err != nil {
				return err
			}
			if err := s.writeLocales(ctx, tx, el, false); err != nil {
				return err
			}
			if err := s.writeChildren(ctx, tx, el); err != nil {
				return err
			}
		}
	}
	return nil
}
