package schema

import (
	"fmt"
	"strings"
)

// Localization configures the locales documents can be written and read in.
type Localization struct {
	Locales       []string
	DefaultLocale string

	// Fallback makes locale-scoped reads fall back to DefaultLocale when
	// the request does not name a fallback locale.
	Fallback bool
}

// Has reports whether locale is configured.
func (l *Localization) Has(locale string) bool {
	for _, code := range l.Locales {
		if code == locale {
			return true
		}
	}
	return false
}

// Versions enables version history for a collection or global.
type Versions struct {
	// Drafts adds the _status field and draft reads/writes.
	Drafts bool

	// MaxPerDoc caps stored versions per document; 0 keeps every version.
	MaxPerDoc int
}

// Collection is a named set of documents sharing one field tree.
// Globals are collections holding at most one document.
type Collection struct {
	Slug       string
	Fields     []*Field
	Timestamps bool
	Versions   *Versions
	Global     bool

	// VersionsOf is set on the synthetic versions collection of a
	// versioned collection and points back at it.
	VersionsOf *Collection
}

// Drafts reports whether draft reads and writes are enabled.
func (c *Collection) Drafts() bool {
	return c.Versions != nil && c.Versions.Drafts
}

// Versioned reports whether writes append version snapshots.
func (c *Collection) Versioned() bool {
	return c.Versions != nil
}

// VersionsSlug is the slug of the synthetic versions collection.
func (c *Collection) VersionsSlug() string {
	return "_" + c.Slug + "_versions"
}

// Field returns the top-level field with the given name, or nil.
func (c *Collection) Field(name string) *Field {
	return Lookup(c.Fields, name)
}

// Config is the complete, validated schema.
type Config struct {
	Collections  []*Collection
	Globals      []*Collection
	Localization *Localization

	bySlug map[string]*Collection
	all    []*Collection
}

// NewConfig validates the declared collections and globals, adds implicit
// fields (timestamps, _status) and derives the versions collections.
//
// The returned Config must not be modified.
func NewConfig(loc *Localization, collections, globals []*Collection) (*Config, error) {
	cfg := &Config{
		Collections:  collections,
		Globals:      globals,
		Localization: loc,
	}

	if problems := Validate(cfg); len(problems) > 0 {
		return nil, &InvalidError{Problems: problems}
	}

	cfg.bySlug = make(map[string]*Collection)
	add := func(c *Collection) {
		cfg.bySlug[c.Slug] = c
		cfg.all = append(cfg.all, c)
	}

	for _, g := range globals {
		g.Global = true
	}
	for _, c := range append(append([]*Collection(nil), collections...), globals...) {
		addImplicitFields(c)
		add(c)
	}
	for _, c := range append(append([]*Collection(nil), collections...), globals...) {
		if c.Versioned() {
			add(versionsCollection(c))
		}
	}

	return cfg, nil
}

// Collection finds a collection, global or versions collection by slug.
func (c *Config) Collection(slug string) (*Collection, bool) {
	coll, ok := c.bySlug[slug]
	return coll, ok
}

// All returns every collection including globals and versions collections,
// in a stable order.
func (c *Config) All() []*Collection {
	return c.all
}

// Localized reports whether localization is configured.
func (c *Config) Localized() bool {
	return c.Localization != nil && len(c.Localization.Locales) > 0
}

// Locales returns the configured locale codes.
func (c *Config) Locales() []string {
	if !c.Localized() {
		return nil
	}
	return c.Localization.Locales
}

// DefaultLocale returns the configured default locale, or "".
func (c *Config) DefaultLocale() string {
	if !c.Localized() {
		return ""
	}
	return c.Localization.DefaultLocale
}

func addImplicitFields(c *Collection) {
	if c.Drafts() {
		c.Fields = append(c.Fields, &Field{
			Name:         FieldStatus,
			Kind:         KindSelect,
			Options:      []string{StatusDraft, StatusPublished},
			DefaultValue: StatusDraft,
			Index:        true,
		})
	}
	if c.Timestamps {
		c.Fields = append(c.Fields,
			&Field{Name: FieldCreatedAt, Kind: KindDate, Index: true},
			&Field{Name: FieldUpdatedAt, Kind: KindDate, Index: true},
		)
	}
}

// versionsCollection models the version history of c as an ordinary
// collection so both backends store and query it with the same machinery.
// Snapshots never enforce required or unique constraints.
func versionsCollection(c *Collection) *Collection {
	snapshot := cloneFields(c.Fields)
	walkFields(snapshot, func(f *Field) {
		f.Required = false
		f.Unique = false
		f.DefaultValue = nil
	})

	return &Collection{
		Slug: c.VersionsSlug(),
		Fields: []*Field{
			{Name: FieldParent, Kind: KindText, Required: true, Index: true},
			{Name: FieldVersion, Kind: KindGroup, Fields: snapshot},
			{Name: FieldLatest, Kind: KindCheckbox, Index: true},
			{Name: FieldCreatedAt, Kind: KindDate, Index: true},
			{Name: FieldUpdatedAt, Kind: KindDate, Index: true},
		},
		Timestamps: true,
		Global:     false,
		VersionsOf: c,
	}
}

// InvalidError reports every problem found while validating a schema.
type InvalidError struct {
	Problems []Problem
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.String()
	}
	return fmt.Sprintf("invalid schema (%d problems):\n  %s", len(e.Problems), strings.Join(lines, "\n  "))
}
