package schema

import (
	"fmt"
	"regexp"

	"golang.org/x/text/language"
)

// Schema problem codes (S100-S199).
const (
	ProblemDuplicateName      = "S101" // duplicate sibling field or slug
	ProblemInvalidKind        = "S102" // unknown field type
	ProblemReservedName       = "S103" // reserved or malformed name
	ProblemUndefinedBlock     = "S104" // blocks field without variants or unknown reference
	ProblemUnknownRelation    = "S105" // relationship target is not a registered collection
	ProblemInvalidLocalized   = "S106" // localized flag where it cannot be honored
	ProblemInvalidUnique      = "S107" // unique flag on a nested or localized field
	ProblemMissingOptions     = "S108" // select without options
	ProblemInvalidLocale      = "S109" // malformed or unknown locale
	ProblemMissingChildren    = "S110" // group or array without fields
	ProblemInvalidSlug        = "S111" // malformed collection or block slug
	ProblemInvalidVersions    = "S112" // negative version cap
	ProblemInvalidRelationSet = "S113" // relationship without targets
)

// Problem is one schema defect.
type Problem struct {
	Path    string
	Message string
	Code    string
}

// String formats the problem for humans.
func (p Problem) String() string {
	return fmt.Sprintf("[%s] %s: %s", p.Code, p.Path, p.Message)
}

var (
	fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	slugPattern      = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// Validate checks a declared schema and returns every problem found.
// It runs before implicit fields are added, so user fields may not use the
// reserved names.
func Validate(cfg *Config) []Problem {
	v := &validator{cfg: cfg, targets: make(map[string]bool)}

	v.localization()

	for _, c := range cfg.Collections {
		v.targets[c.Slug] = true
	}

	slugs := make(map[string]bool)
	for _, group := range []struct {
		kind  string
		items []*Collection
	}{{"collections", cfg.Collections}, {"globals", cfg.Globals}} {
		for _, c := range group.items {
			path := group.kind + "." + c.Slug
			if !slugPattern.MatchString(c.Slug) {
				v.add(path, ProblemInvalidSlug, "slug must match %s", slugPattern)
			}
			if slugs[c.Slug] {
				v.add(path, ProblemDuplicateName, "duplicate slug %q", c.Slug)
			}
			slugs[c.Slug] = true

			if c.Versions != nil && c.Versions.MaxPerDoc < 0 {
				v.add(path+".versions.maxPerDoc", ProblemInvalidVersions, "must not be negative")
			}
			v.fields(path, c.Fields, true, false)
		}
	}

	return v.problems
}

type validator struct {
	cfg      *Config
	targets  map[string]bool
	problems []Problem
}

func (v *validator) add(path, code, format string, args ...any) {
	v.problems = append(v.problems, Problem{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) localization() {
	loc := v.cfg.Localization
	if loc == nil {
		return
	}
	if len(loc.Locales) == 0 {
		v.add("localization.locales", ProblemInvalidLocale, "at least one locale is required")
		return
	}

	seen := make(map[string]bool)
	for i, code := range loc.Locales {
		path := fmt.Sprintf("localization.locales[%d]", i)
		if code == AllLocales {
			v.add(path, ProblemInvalidLocale, "%q is reserved", AllLocales)
			continue
		}
		if _, err := language.Parse(code); err != nil {
			v.add(path, ProblemInvalidLocale, "invalid locale tag %q: %v", code, err)
		}
		if seen[code] {
			v.add(path, ProblemDuplicateName, "duplicate locale %q", code)
		}
		seen[code] = true
	}

	if !loc.Has(loc.DefaultLocale) {
		v.add("localization.defaultLocale", ProblemInvalidLocale, "default locale %q is not in locales", loc.DefaultLocale)
	}
}

// fields validates one sibling scope. topLevel is true for the direct fields
// of a collection; element is true inside array and blocks elements.
func (v *validator) fields(path string, fields []*Field, topLevel, element bool) {
	names := make(map[string]bool)

	for _, f := range fields {
		fpath := path + "." + f.Name

		switch {
		case !fieldNamePattern.MatchString(f.Name):
			v.add(fpath, ProblemReservedName, "field name must match %s", fieldNamePattern)
		case f.Name == FieldID:
			v.add(fpath, ProblemReservedName, "%q is reserved", FieldID)
		case topLevel && (f.Name == FieldCreatedAt || f.Name == FieldUpdatedAt):
			v.add(fpath, ProblemReservedName, "%q is reserved", f.Name)
		case element && f.Name == FieldBlockType:
			v.add(fpath, ProblemReservedName, "%q is reserved", FieldBlockType)
		}

		if names[f.Name] {
			v.add(fpath, ProblemDuplicateName, "duplicate field name %q", f.Name)
		}
		names[f.Name] = true

		if !f.Kind.Valid() {
			v.add(fpath, ProblemInvalidKind, "unknown type %q", f.Kind)
			continue
		}

		if f.Localized {
			if v.cfg.Localization == nil {
				v.add(fpath, ProblemInvalidLocalized, "localized field requires localization to be configured")
			} else if f.Kind.HasChildren() {
				v.add(fpath, ProblemInvalidLocalized, "%s fields cannot be localized; localize their children instead", f.Kind)
			}
		}

		if f.Unique && (!topLevel || f.Localized || !f.Kind.IsScalar()) {
			v.add(fpath, ProblemInvalidUnique, "unique is only supported on top-level, non-localized scalar fields")
		}

		switch f.Kind {
		case KindSelect:
			if len(f.Options) == 0 {
				v.add(fpath, ProblemMissingOptions, "select field requires options")
			}
		case KindGroup:
			if len(f.Fields) == 0 {
				v.add(fpath, ProblemMissingChildren, "group field requires fields")
			}
			v.fields(fpath, f.Fields, false, false)
		case KindArray:
			if len(f.Fields) == 0 {
				v.add(fpath, ProblemMissingChildren, "array field requires fields")
			}
			v.fields(fpath, f.Fields, false, true)
		case KindBlocks:
			v.blocks(fpath, f)
		case KindRelationship:
			if len(f.RelationTo) == 0 {
				v.add(fpath, ProblemInvalidRelationSet, "relationship requires relationTo")
			}
			for _, target := range f.RelationTo {
				if !v.targets[target] {
					v.add(fpath, ProblemUnknownRelation, "relationTo %q is not a registered collection", target)
				}
			}
		}
	}
}

func (v *validator) blocks(path string, f *Field) {
	if len(f.Blocks) == 0 {
		v.add(path, ProblemUndefinedBlock, "blocks field requires at least one block")
		return
	}

	slugs := make(map[string]bool)
	for _, b := range f.Blocks {
		if b == nil || b.Slug == "" {
			v.add(path, ProblemUndefinedBlock, "undefined block")
			continue
		}
		bpath := path + "." + b.Slug
		if !slugPattern.MatchString(b.Slug) {
			v.add(bpath, ProblemInvalidSlug, "block slug must match %s", slugPattern)
		}
		if slugs[b.Slug] {
			v.add(bpath, ProblemDuplicateName, "duplicate block %q", b.Slug)
		}
		slugs[b.Slug] = true
		v.fields(bpath, b.Fields, false, true)
	}
}
