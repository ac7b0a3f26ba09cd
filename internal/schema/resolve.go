package schema

import (
	"strings"

	"github.com/roach88/folio/internal/dberr"
)

// Step is one field traversed by a resolved path.
type Step struct {
	Field *Field

	// Block is the variant the path continues into when Field is a
	// blocks field; nil otherwise.
	Block *Block
}

// Path is one resolution of a dotted field path within a single collection.
//
// Steps run from the collection root to the leaf. Array and blocks steps
// are transparent: the next step is a field of the element schema. When
// the path crosses a relationship, the relationship is the last step and
// Rest holds the remainder, to be resolved against the target collection.
type Path struct {
	Steps []Step
	Rest  string
}

// Leaf returns the last field of the path.
func (p *Path) Leaf() *Field {
	return p.Steps[len(p.Steps)-1].Field
}

// String returns the dotted form of the path.
func (p *Path) String() string {
	parts := make([]string, 0, len(p.Steps)+1)
	for _, s := range p.Steps {
		parts = append(parts, s.Field.Name)
	}
	if p.Rest != "" {
		parts = append(parts, p.Rest)
	}
	return strings.Join(parts, ".")
}

// CrossesCollection reports whether the path passes through an array or
// blocks field.
func (p *Path) CrossesCollection() bool {
	for _, s := range p.Steps[:len(p.Steps)-1] {
		if s.Field.Kind == KindArray || s.Field.Kind == KindBlocks {
			return true
		}
	}
	return false
}

// ResolvePath resolves a dotted path against a field tree.
//
// Array and blocks segments are transparent. For blocks every variant is
// tried and each variant in which the remainder resolves yields its own
// Path, so a path valid in any variant is valid. The implicit "id" field
// resolves at the root and inside array and blocks elements; "blockType"
// resolves inside blocks elements. Resolution stops at a relationship and
// returns the remaining segments in Rest; traversal depth is bounded by
// the path length, so self-referencing relationships are harmless.
//
// Fails with an UNKNOWN_FIELD error when no resolution exists.
func ResolvePath(fields []*Field, dotted string) ([]*Path, error) {
	if dotted == "" {
		return nil, dberr.UnknownField(dotted)
	}
	segs := strings.Split(dotted, ".")
	for _, s := range segs {
		if s == "" {
			return nil, dberr.UnknownField(dotted)
		}
	}

	paths := resolve(fields, segs, true, false)
	if len(paths) == 0 {
		return nil, dberr.UnknownField(dotted)
	}
	return paths, nil
}

// resolve returns the step chains for segs. allowID is true at the root and
// element level; inBlock is true inside a blocks element.
func resolve(fields []*Field, segs []string, allowID, inBlock bool) []*Path {
	seg, rest := segs[0], segs[1:]

	if len(rest) == 0 {
		switch {
		case allowID && seg == FieldID:
			return []*Path{{Steps: []Step{{Field: IDField}}}}
		case inBlock && seg == FieldBlockType:
			return []*Path{{Steps: []Step{{Field: BlockTypeField}}}}
		}
	}

	f := Lookup(fields, seg)
	if f == nil {
		return nil
	}
	if len(rest) == 0 {
		return []*Path{{Steps: []Step{{Field: f}}}}
	}

	var tails []*Path
	switch f.Kind {
	case KindGroup:
		tails = prefix(Step{Field: f}, resolve(f.Fields, rest, false, false))
	case KindArray:
		tails = prefix(Step{Field: f}, resolve(f.Fields, rest, true, false))
	case KindBlocks:
		for _, b := range f.Blocks {
			tails = append(tails, prefix(Step{Field: f, Block: b}, resolve(b.Fields, rest, true, true))...)
		}
	case KindRelationship:
		tails = []*Path{{Steps: []Step{{Field: f}}, Rest: strings.Join(rest, ".")}}
	}
	return tails
}

func prefix(step Step, paths []*Path) []*Path {
	for _, p := range paths {
		p.Steps = append([]Step{step}, p.Steps...)
	}
	return paths
}
