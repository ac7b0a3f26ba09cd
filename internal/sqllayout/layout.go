// Package sqllayout derives the relational storage layout of a collection.
//
// A collection maps to one parent table. Group fields are flattened into the
// columns of the table that owns them (meta.title becomes meta_title). Every
// array field and every variant of a blocks field gets its own child table,
// keyed by _parent_id and ordered by _order. Localized columns of any table
// move to a companion <table>_locales table keyed by (_parent_id, _locale).
//
//	posts                 id, slug, meta_description, author_id, created_at, ...
//	posts_locales         _parent_id, _locale, title
//	posts_items           _key, id, _parent_id, _order, label
//	posts_items_locales   _parent_id, _locale, caption
//	posts_layout_cta      _key, id, _parent_id, _order, heading
//
// The layout is built from the same *schema.Field pointers the path resolver
// returns, so compilers look columns and tables up by field identity.
package sqllayout

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/roach88/folio/internal/schema"
)

// System column names.
//
// Child rows are keyed by a storage-only _key: element ids are copied into
// version snapshots, so they are not unique within a child table.
// _parent_id holds the key of the owning row (the id of a parent row, the
// _key of a child row).
const (
	ColID       = "id"
	ColKey      = "_key"
	ColParentID = "_parent_id"
	ColOrder    = "_order"
	ColLocale   = "_locale"
)

// Type is the abstract storage type of a column; dialects map it to SQL.
type Type int

const (
	TypeText Type = iota
	TypeNumber
	TypeBool
)

// Part identifies which component of a field value a column stores.
type Part int

const (
	PartValue Part = iota
	PartRelationTo
	PartLng
	PartLat
)

// Column stores one field (or one part of it).
type Column struct {
	Name  string
	Type  Type
	Field *schema.Field
	Part  Part

	// Path holds the field names from the table's row root to the field,
	// crossing groups only.
	Path []string

	Localized bool
	Unique    bool
	Index     bool
}

// LogicalPath returns the dotted path of the column's field within its row.
func (c *Column) LogicalPath() string {
	return strings.Join(c.Path, ".")
}

// Table is one parent or child table.
type Table struct {
	Name string

	// Field and Block identify the array field (or blocks variant) that
	// owns a child table; both are nil for the root table.
	Field *schema.Field
	Block *schema.Block

	// Path holds the group names from the parent row root to Field.
	Path []string

	Parent   *Table
	Columns  []*Column
	Children []*Table

	byField map[*schema.Field][]*Column
}

// IsRoot reports whether t is the collection's parent table.
func (t *Table) IsRoot() bool {
	return t.Parent == nil
}

// Key returns the name of the column other rows reference t's rows by.
func (t *Table) Key() string {
	if t.IsRoot() {
		return ColID
	}
	return ColKey
}

// LocalesName is the name of the companion locale table.
func (t *Table) LocalesName() string {
	return t.Name + "_locales"
}

// Plain returns the columns stored in t itself.
func (t *Table) Plain() []*Column {
	var out []*Column
	for _, c := range t.Columns {
		if !c.Localized {
			out = append(out, c)
		}
	}
	return out
}

// Localized returns the columns stored in the locale table.
func (t *Table) Localized() []*Column {
	var out []*Column
	for _, c := range t.Columns {
		if c.Localized {
			out = append(out, c)
		}
	}
	return out
}

// HasLocales reports whether t has a locale table.
func (t *Table) HasLocales() bool {
	return len(t.Localized()) > 0
}

// ColumnsFor returns the columns storing field f in t, in part order.
func (t *Table) ColumnsFor(f *schema.Field) []*Column {
	return t.byField[f]
}

// Column returns the column storing part of f, or nil.
func (t *Table) Column(f *schema.Field, part Part) *Column {
	for _, c := range t.byField[f] {
		if c.Part == part {
			return c
		}
	}
	return nil
}

// Child returns the child table for an array field, or for one variant of a
// blocks field, or nil.
func (t *Table) Child(f *schema.Field, b *schema.Block) *Table {
	for _, c := range t.Children {
		if c.Field == f && c.Block == b {
			return c
		}
	}
	return nil
}

// ChildrenFor returns the child tables of field f: one for an array, one
// per variant for blocks.
func (t *Table) ChildrenFor(f *schema.Field) []*Table {
	var out []*Table
	for _, c := range t.Children {
		if c.Field == f {
			out = append(out, c)
		}
	}
	return out
}

// Layout is the complete table tree of one collection.
type Layout struct {
	Collection *schema.Collection
	Root       *Table

	tables []*Table
}

// Tables returns every table, parents before children.
func (l *Layout) Tables() []*Table {
	return l.tables
}

// FieldForColumn maps a column of the root table back to the logical
// field path. Used to name the field of a uniqueness violation.
func (l *Layout) FieldForColumn(table, column string) (string, bool) {
	for _, t := range l.tables {
		if t.Name != table {
			continue
		}
		for _, c := range t.Columns {
			if c.Name == column {
				return c.LogicalPath(), true
			}
		}
	}
	return "", false
}

// UniqueIndexName names the unique index of a column.
func UniqueIndexName(table, column string) string {
	return table + "_" + column + "_key"
}

// IndexName names a plain index of a column.
func IndexName(table, column string) string {
	return table + "_" + column + "_idx"
}

// FieldForIndex maps a unique index name back to the logical field path.
func (l *Layout) FieldForIndex(name string) (string, bool) {
	for _, c := range l.Root.Columns {
		if c.Unique && UniqueIndexName(l.Root.Name, c.Name) == name {
			return c.LogicalPath(), true
		}
	}
	return "", false
}

// Build derives the layout of a collection. It fails when two fields map
// to the same table or column name.
func Build(coll *schema.Collection) (*Layout, error) {
	l := &Layout{Collection: coll}
	b := &builder{layout: l, tableNames: make(map[string]bool)}

	root, err := b.table(TableName(coll.Slug), nil, nil, nil, nil, coll.Fields)
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", coll.Slug, err)
	}
	l.Root = root
	return l, nil
}

type builder struct {
	layout     *Layout
	tableNames map[string]bool
}

func (b *builder) table(name string, parent *Table, f *schema.Field, block *schema.Block, path []string, fields []*schema.Field) (*Table, error) {
	// Every table reserves its locale table name too.
	if b.tableNames[name] || b.tableNames[name+"_locales"] {
		return nil, fmt.Errorf("table name %q is used twice", name)
	}
	b.tableNames[name] = true
	b.tableNames[name+"_locales"] = true

	t := &Table{
		Name:    name,
		Field:   f,
		Block:   block,
		Path:    path,
		Parent:  parent,
		byField: make(map[*schema.Field][]*Column),
	}
	b.layout.tables = append(b.layout.tables, t)

	columnNames := map[string]bool{ColID: true, ColKey: true, ColParentID: true, ColOrder: true, ColLocale: true}
	if err := b.fields(t, fields, nil, columnNames, parent == nil); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *builder) fields(t *Table, fields []*schema.Field, prefix []string, columnNames map[string]bool, root bool) error {
	for _, f := range fields {
		path := append(append([]string(nil), prefix...), f.Name)
		base := ColumnName(path)

		add := func(name string, typ Type, part Part) error {
			if columnNames[name] {
				return fmt.Errorf("column %s.%s is used twice", t.Name, name)
			}
			columnNames[name] = true
			c := &Column{
				Name:      name,
				Type:      typ,
				Field:     f,
				Part:      part,
				Path:      path,
				Localized: f.Localized,
				Unique:    f.Unique && root,
				Index:     f.Index,
			}
			t.Columns = append(t.Columns, c)
			t.byField[f] = append(t.byField[f], c)
			return nil
		}

		var err error
		switch f.Kind {
		case schema.KindGroup:
			err = b.fields(t, f.Fields, path, columnNames, root)
		case schema.KindArray:
			var child *Table
			child, err = b.table(t.Name+"_"+base, t, f, nil, prefix, f.Fields)
			if child != nil {
				t.Children = append(t.Children, child)
			}
		case schema.KindBlocks:
			for _, block := range f.Blocks {
				var child *Table
				child, err = b.table(t.Name+"_"+base+"_"+ColumnName([]string{block.Slug}), t, f, block, prefix, block.Fields)
				if err != nil {
					break
				}
				t.Children = append(t.Children, child)
			}
		case schema.KindRelationship:
			if f.Polymorphic() {
				if err = add(base+"_relation_to", TypeText, PartRelationTo); err != nil {
					break
				}
			}
			err = add(base+"_id", TypeText, PartValue)
		case schema.KindPoint:
			if err = add(base+"_lng", TypeNumber, PartLng); err != nil {
				break
			}
			err = add(base+"_lat", TypeNumber, PartLat)
		case schema.KindNumber:
			err = add(base, TypeNumber, PartValue)
		case schema.KindCheckbox:
			err = add(base, TypeBool, PartValue)
		default:
			err = add(base, TypeText, PartValue)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// TableName converts a collection slug into a table name.
func TableName(slug string) string {
	return strings.ReplaceAll(slug, "-", "_")
}

// ColumnName joins field names into a snake_case column name:
// ["meta", "publishedAt"] becomes "meta_published_at".
func ColumnName(path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = snake(p)
	}
	return strings.Join(parts, "_")
}

func snake(s string) string {
	var sb strings.Builder
	runes := []rune(strings.ReplaceAll(s, "-", "_"))
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' && !unicode.IsUpper(runes[i-1]) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
