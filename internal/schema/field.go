// Package schema is the normalized, in-memory model of the declarative
// collection schema.
//
// A Config is built once at startup (see internal/config) and is immutable
// afterwards, so it is safe for unrestricted concurrent reads. Every other
// component reads it: the filter compilers resolve paths through it, the
// assemblers walk it to shape rows and documents, and the adapter uses it to
// find collections, globals and their versions collections.
package schema

// Kind is the declared type of a field.
type Kind string

const (
	KindText         Kind = "text"
	KindNumber       Kind = "number"
	KindCheckbox     Kind = "checkbox"
	KindDate         Kind = "date"
	KindSelect       Kind = "select"
	KindJSON         Kind = "json"
	KindPoint        Kind = "point"
	KindGroup        Kind = "group"
	KindArray        Kind = "array"
	KindBlocks       Kind = "blocks"
	KindRelationship Kind = "relationship"
)

var kinds = map[Kind]bool{
	KindText: true, KindNumber: true, KindCheckbox: true, KindDate: true,
	KindSelect: true, KindJSON: true, KindPoint: true, KindGroup: true,
	KindArray: true, KindBlocks: true, KindRelationship: true,
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return kinds[k]
}

// IsScalar reports whether values of this kind are stored in a single slot.
func (k Kind) IsScalar() bool {
	switch k {
	case KindGroup, KindArray, KindBlocks, KindRelationship:
		return false
	}
	return k.Valid()
}

// HasChildren reports whether the kind owns a nested field tree.
func (k Kind) HasChildren() bool {
	return k == KindGroup || k == KindArray || k == KindBlocks
}

// Reserved field names.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldStatus    = "_status"
	FieldBlockType = "blockType"

	// Fields of a synthetic versions collection.
	FieldParent  = "parent"
	FieldVersion = "version"
	FieldLatest  = "latest"
)

// Draft/publish states stored in FieldStatus.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// AllLocales requests every locale: localized values are read and written as
// locale-keyed maps.
const AllLocales = "all"

// Field is one node of a collection's field tree.
type Field struct {
	Name string
	Kind Kind

	Localized bool
	Required  bool
	Unique    bool
	Index     bool

	// DefaultValue is applied on create when the field is absent.
	DefaultValue any

	// Options lists the allowed values of a select field.
	Options []string

	// Fields holds the children of group and array fields.
	Fields []*Field

	// Blocks holds the variants of a blocks field, in declaration order.
	Blocks []*Block

	// RelationTo names the target collections of a relationship field.
	// More than one target makes the relationship polymorphic.
	RelationTo []string
}

// Polymorphic reports whether a relationship can point at more than one collection.
func (f *Field) Polymorphic() bool {
	return len(f.RelationTo) > 1
}

// Block returns the variant with the given slug, or nil.
func (f *Field) Block(slug string) *Block {
	for _, b := range f.Blocks {
		if b.Slug == slug {
			return b
		}
	}
	return nil
}

// HasOption reports whether v is an allowed select value.
func (f *Field) HasOption(v string) bool {
	for _, o := range f.Options {
		if o == v {
			return true
		}
	}
	return false
}

// Block is a named variant of a blocks field.
type Block struct {
	Slug   string
	Fields []*Field
}

// Clone deep-copies the variant. Every reference to a shared block
// definition gets its own copy so field identity stays unique per position.
func (b *Block) Clone() *Block {
	return &Block{Slug: b.Slug, Fields: cloneFields(b.Fields)}
}

// Lookup finds a field by name among siblings.
func Lookup(fields []*Field, name string) *Field {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// IDField is the implicit identifier of documents and of array/blocks elements.
var IDField = &Field{Name: FieldID, Kind: KindText}

// BlockTypeField is the implicit discriminator of a blocks element.
var BlockTypeField = &Field{Name: FieldBlockType, Kind: KindText}

// clone deep-copies a field tree. Block variants are copied too so the copy
// can be adjusted without touching the original.
func (f *Field) clone() *Field {
	c := *f
	c.Options = append([]string(nil), f.Options...)
	c.RelationTo = append([]string(nil), f.RelationTo...)
	c.Fields = cloneFields(f.Fields)
	if f.Blocks != nil {
		c.Blocks = make([]*Block, len(f.Blocks))
		for i, b := range f.Blocks {
			c.Blocks[i] = b.Clone()
		}
	}
	return &c
}

func cloneFields(fields []*Field) []*Field {
	if fields == nil {
		return nil
	}
	out := make([]*Field, len(fields))
	for i, f := range fields {
		out[i] = f.clone()
	}
	return out
}

// walkFields visits every field in the tree, depth first.
func walkFields(fields []*Field, fn func(*Field)) {
	for _, f := range fields {
		fn(f)
		walkFields(f.Fields, fn)
		for _, b := range f.Blocks {
			walkFields(b.Fields, fn)
		}
	}
}
