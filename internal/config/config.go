// Package config ingests the declarative schema from CUE or YAML and builds
// the immutable schema.Config every other component reads.
//
// Both formats share one shape:
//
//	localization: {locales: ["en", "fr"], defaultLocale: "en", fallback: true}
//	blocks: cta: fields: [{name: "heading", type: "text"}]
//	collections: posts: {
//		versions: drafts: true
//		fields: [
//			{name: "title", type: "text", localized: true, required: true},
//			{name: "layout", type: "blocks", blockRefs: ["cta"]},
//		]
//	}
//	globals: settings: fields: [{name: "siteName", type: "text"}]
//
// Collections and globals are registered in slug order. Loading fails fast:
// any schema problem rejects the whole file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/folio/internal/schema"
)

// File is the declarative schema as written by the user.
type File struct {
	Localization *Localization             `json:"localization,omitempty" yaml:"localization"`
	Blocks       map[string]Block          `json:"blocks,omitempty" yaml:"blocks"`
	Collections  map[string]CollectionSpec `json:"collections,omitempty" yaml:"collections"`
	Globals      map[string]CollectionSpec `json:"globals,omitempty" yaml:"globals"`
}

// Localization configures locales.
type Localization struct {
	Locales       []string `json:"locales" yaml:"locales"`
	DefaultLocale string   `json:"defaultLocale" yaml:"defaultLocale"`
	Fallback      bool     `json:"fallback,omitempty" yaml:"fallback"`
}

// Block is a reusable blocks variant, referenced from fields by slug.
type Block struct {
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// InlineBlock is a blocks variant declared on the field itself.
type InlineBlock struct {
	Slug   string      `json:"slug" yaml:"slug"`
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// CollectionSpec declares a collection or a global.
type CollectionSpec struct {
	// Timestamps defaults to true.
	Timestamps *bool       `json:"timestamps,omitempty" yaml:"timestamps"`
	Versions   *Versions   `json:"versions,omitempty" yaml:"versions"`
	Fields     []FieldSpec `json:"fields" yaml:"fields"`
}

// Versions enables version history.
type Versions struct {
	Drafts    bool `json:"drafts,omitempty" yaml:"drafts"`
	MaxPerDoc int  `json:"maxPerDoc,omitempty" yaml:"maxPerDoc"`
}

// FieldSpec declares one field.
type FieldSpec struct {
	Name         string        `json:"name" yaml:"name"`
	Type         string        `json:"type" yaml:"type"`
	Localized    bool          `json:"localized,omitempty" yaml:"localized"`
	Required     bool          `json:"required,omitempty" yaml:"required"`
	Unique       bool          `json:"unique,omitempty" yaml:"unique"`
	Index        bool          `json:"index,omitempty" yaml:"index"`
	DefaultValue any           `json:"defaultValue,omitempty" yaml:"defaultValue"`
	Options      []string      `json:"options,omitempty" yaml:"options"`
	Fields       []FieldSpec   `json:"fields,omitempty" yaml:"fields"`
	Blocks       []InlineBlock `json:"blocks,omitempty" yaml:"blocks"`
	BlockRefs    []string      `json:"blockRefs,omitempty" yaml:"blockRefs"`
	RelationTo   []string      `json:"relationTo,omitempty" yaml:"relationTo"`
}

// Load reads the schema at path: a .cue file, a directory of CUE files
// sharing one package, or a .yaml/.yml file.
func Load(path string) (*schema.Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema not found: %s", path)}
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}

	switch filepath.Ext(path) {
	case ".cue":
		return LoadCUEFile(path)
	case ".yaml", ".yml":
		return LoadYAMLFile(path)
	}
	return nil, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported schema format %q (want .cue, .yaml or .yml)", filepath.Ext(path))}
}

// Build converts a decoded File into a validated schema.Config.
func Build(f *File) (*schema.Config, error) {
	b := &builder{shared: make(map[string]*schema.Block)}
	for _, slug := range sortedKeys(f.Blocks) {
		b.shared[slug] = &schema.Block{Slug: slug, Fields: b.fields("blocks."+slug, f.Blocks[slug].Fields)}
	}

	collections := b.collections("collections", f.Collections)
	globals := b.collections("globals", f.Globals)
	if len(b.problems) > 0 {
		return nil, &schema.InvalidError{Problems: b.problems}
	}

	var loc *schema.Localization
	if f.Localization != nil {
		loc = &schema.Localization{
			Locales:       f.Localization.Locales,
			DefaultLocale: f.Localization.DefaultLocale,
			Fallback:      f.Localization.Fallback,
		}
	}
	return schema.NewConfig(loc, collections, globals)
}

type builder struct {
	shared   map[string]*schema.Block
	problems []schema.Problem
}

func (b *builder) collections(kind string, specs map[string]CollectionSpec) []*schema.Collection {
	var out []*schema.Collection
	for _, slug := range sortedKeys(specs) {
		spec := specs[slug]
		c := &schema.Collection{
			Slug:       slug,
			Timestamps: spec.Timestamps == nil || *spec.Timestamps,
			Fields:     b.fields(kind+"."+slug, spec.Fields),
		}
		if spec.Versions != nil {
			c.Versions = &schema.Versions{Drafts: spec.Versions.Drafts, MaxPerDoc: spec.Versions.MaxPerDoc}
		}
		out = append(out, c)
	}
	return out
}

func (b *builder) fields(path string, specs []FieldSpec) []*schema.Field {
	out := make([]*schema.Field, 0, len(specs))
	for _, s := range specs {
		fpath := path + "." + s.Name
		f := &schema.Field{
			Name:         s.Name,
			Kind:         schema.Kind(s.Type),
			Localized:    s.Localized,
			Required:     s.Required,
			Unique:       s.Unique,
			Index:        s.Index,
			DefaultValue: s.DefaultValue,
			Options:      s.Options,
			RelationTo:   s.RelationTo,
			Fields:       b.fields(fpath, s.Fields),
		}
		if len(s.Fields) == 0 {
			f.Fields = nil
		}
		for _, ib := range s.Blocks {
			f.Blocks = append(f.Blocks, &schema.Block{Slug: ib.Slug, Fields: b.fields(fpath+"."+ib.Slug, ib.Fields)})
		}
		for _, ref := range s.BlockRefs {
			shared, ok := b.shared[ref]
			if !ok {
				b.problems = append(b.problems, schema.Problem{
					Path:    fpath + ".blockRefs",
					Code:    schema.ProblemUndefinedBlock,
					Message: fmt.Sprintf("undefined block %q", ref),
				})
				continue
			}
			f.Blocks = append(f.Blocks, shared.Clone())
		}
		out = append(out, f)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
