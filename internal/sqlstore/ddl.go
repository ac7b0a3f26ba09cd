package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/sqllayout"
)

const migrationsTable = "_folio_migrations"

// DDL returns the statements creating every table and index of the schema.
// All statements are idempotent.
func (s *Store) DDL() []string {
	var stmts []string
	for _, coll := range s.cfg.All() {
		l := s.layouts[coll.Slug]
		for _, t := range l.Tables() {
			stmts = append(stmts, s.tableDDL(t)...)
		}
	}
	return stmts
}

func (s *Store) tableDDL(t *sqllayout.Table) []string {
	q := s.dialect.Quote

	var defs []string
	if t.IsRoot() {
		defs = append(defs, q(sqllayout.ColID)+" TEXT PRIMARY KEY")
	} else {
		defs = append(defs,
			q(sqllayout.ColKey)+" TEXT PRIMARY KEY",
			q(sqllayout.ColID)+" TEXT",
			q(sqllayout.ColParentID)+" TEXT NOT NULL REFERENCES "+q(t.Parent.Name)+" ("+q(t.Parent.Key())+") ON DELETE CASCADE",
			q(sqllayout.ColOrder)+" INTEGER NOT NULL",
		)
	}
	for _, c := range t.Plain() {
		defs = append(defs, q(c.Name)+" "+s.dialect.ColumnType(c.Type))
	}
	stmts := []string{createTable(q(t.Name), defs)}

	if !t.IsRoot() {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			q(t.Name+"_parent_idx"), q(t.Name), q(sqllayout.ColParentID), q(sqllayout.ColOrder)))
	}
	for _, c := range t.Plain() {
		switch {
		case c.Unique:
			stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
				q(sqllayout.UniqueIndexName(t.Name, c.Name)), q(t.Name), q(c.Name)))
		case c.Index:
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				q(sqllayout.IndexName(t.Name, c.Name)), q(t.Name), q(c.Name)))
		}
	}

	if !t.HasLocales() {
		return stmts
	}

	name := t.LocalesName()
	defs = []string{
		q(sqllayout.ColParentID) + " TEXT NOT NULL REFERENCES " + q(t.Name) + " (" + q(t.Key()) + ") ON DELETE CASCADE",
		q(sqllayout.ColLocale) + " TEXT NOT NULL",
	}
	for _, c := range t.Localized() {
		defs = append(defs, q(c.Name)+" "+s.dialect.ColumnType(c.Type))
	}
	defs = append(defs, "PRIMARY KEY ("+q(sqllayout.ColParentID)+", "+q(sqllayout.ColLocale)+")")
	stmts = append(stmts, createTable(q(name), defs))
	for _, c := range t.Localized() {
		if c.Index {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
				q(sqllayout.IndexName(name, c.Name)), q(name), q(sqllayout.ColLocale), q(c.Name)))
		}
	}
	return stmts
}

func createTable(name string, defs []string) string {
	return "CREATE TABLE IF NOT EXISTS " + name + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

// Fingerprint identifies the generated DDL.
func (s *Store) Fingerprint() (string, error) {
	stmts := s.DDL()
	items := make([]any, len(stmts))
	for i, stmt := range stmts {
		items[i] = stmt
	}
	return document.Hash("folio/ddl/v1", items)
}

// Migrate implements adapter.Backend. It creates missing tables and
// indexes in one transaction and records the schema fingerprint.
func (s *Store) Migrate(ctx context.Context) error {
	fingerprint, err := s.Fingerprint()
	if err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(s.layouts, fmt.Errorf("begin migration: %w", err), false)
	}
	defer tx.Rollback()

	stmts := append(s.DDL(), createTable(s.dialect.Quote(migrationsTable), []string{
		`"fingerprint" TEXT PRIMARY KEY`,
		`"applied_at" TEXT NOT NULL`,
	}))
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classify(s.layouts, fmt.Errorf("migrate: %w", err), true)
		}
	}

	record := s.dialect.Rebind(`INSERT INTO "` + migrationsTable + `" ("fingerprint", "applied_at") VALUES (?, ?) ON CONFLICT ("fingerprint") DO NOTHING`)
	if _, err := tx.ExecContext(ctx, record, fingerprint, document.FormatTime(s.now())); err != nil {
		return classify(s.layouts, fmt.Errorf("record migration: %w", err), true)
	}

	if err := tx.Commit(); err != nil {
		return classify(s.layouts, fmt.Errorf("commit migration: %w", err), true)
	}
	return nil
}

// Migrations lists the recorded schema fingerprints, oldest first.
func (s *Store) Migrations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT "fingerprint" FROM "`+migrationsTable+`" ORDER BY "applied_at", "fingerprint"`)
	if err != nil {
		return nil, classify(s.layouts, fmt.Errorf("list migrations: %w", err), false)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}
