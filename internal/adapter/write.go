package adapter

import (
	"context"
	"slices"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/where"
)

// Target identifies the document an update or delete applies to: by ID,
// or else the first document matching Where in default order.
type Target struct {
	ID    string
	Where where.Expr
}

// Create writes a new document and returns it as a subsequent read would.
// An "id" string in data is used as the document id; otherwise one is
// generated. With op.Draft on a collection with drafts, required fields
// are not enforced and the document is saved as a draft.
func (a *Adapter[P, R]) Create(ctx context.Context, slug string, data map[string]any, op Op) (document.Document, error) {
	coll, err := a.documents(slug)
	if err != nil {
		return nil, err
	}
	return a.createOp(ctx, "create", coll, data, "", op)
}

func (a *Adapter[P, R]) createOp(ctx context.Context, name string, coll *schema.Collection, data map[string]any, id string, op Op) (document.Document, error) {
	locale, fallback, err := a.locales(op)
	if err != nil {
		return nil, err
	}

	var doc document.Document
	err = a.run(ctx, name, coll, op, func(tx Tx) error {
		doc, err = a.create(ctx, tx, coll, data, id, locale, op.Draft && coll.Drafts())
		return err
	})
	if err != nil {
		return nil, err
	}
	return a.sanitize(coll, doc, locale, fallback), nil
}

func (a *Adapter[P, R]) create(ctx context.Context, tx Tx, coll *schema.Collection, data map[string]any, id, locale string, draft bool) (document.Document, error) {
	if id == "" {
		if given, ok := data[schema.FieldID].(string); ok && given != "" {
			id = given
		} else {
			id = a.newID()
		}
	}

	doc, err := document.Normalize(coll.Fields, data, a.normalizeOptions(true, draft, locale))
	if err != nil {
		return nil, err
	}
	doc = document.Lift(coll.Fields, doc, locale)
	doc[schema.FieldID] = id

	now := a.timestamp()
	if coll.Timestamps {
		doc[schema.FieldCreatedAt] = now
		doc[schema.FieldUpdatedAt] = now
	}
	if coll.Drafts() {
		doc[schema.FieldStatus] = status(draft)
	}

	raw, err := a.backend.Disassemble(coll, doc)
	if err != nil {
		return nil, err
	}
	if err := a.backend.Insert(ctx, tx, coll, raw); err != nil {
		return nil, err
	}

	stored, err := a.mustGet(ctx, tx, coll, id)
	if err != nil {
		return nil, err
	}
	if coll.Versioned() {
		if err := a.saveVersion(ctx, tx, coll, stored, now); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// UpdateOne applies data to the target document. Only supplied fields
// change; a supplied array or blocks field replaces every element. Under a
// single locale, a replacing element with the id of a stored element keeps
// that element's other locales. A missing target is reported as
// found=false.
//
// With op.Draft on a collection with drafts the change is merged into the
// latest draft snapshot and the published document is left untouched.
func (a *Adapter[P, R]) UpdateOne(ctx context.Context, slug string, target Target, data map[string]any, op Op) (document.Document, bool, error) {
	coll, err := a.documents(slug)
	if err != nil {
		return nil, false, err
	}
	locale, fallback, err := a.locales(op)
	if err != nil {
		return nil, false, err
	}

	var doc document.Document
	err = a.run(ctx, "updateOne", coll, op, func(tx Tx) error {
		id, err := a.resolveTarget(ctx, tx, coll, target, locale)
		if err != nil || id == "" {
			return err
		}
		doc, err = a.update(ctx, tx, coll, id, data, locale, op.Draft && coll.Drafts())
		return err
	})
	if err != nil || doc == nil {
		return nil, false, err
	}
	return a.sanitize(coll, doc, locale, fallback), true, nil
}

func (a *Adapter[P, R]) update(ctx context.Context, tx Tx, coll *schema.Collection, id string, data map[string]any, locale string, draft bool) (document.Document, error) {
	patch, err := document.Normalize(coll.Fields, data, a.normalizeOptions(false, draft, locale))
	if err != nil {
		return nil, err
	}
	patch = document.Lift(coll.Fields, patch, locale)
	delete(patch, schema.FieldCreatedAt)
	if locale != schema.AllLocales && document.HasElements(coll.Fields, patch) {
		current, err := a.current(ctx, tx, coll, id, draft)
		if err != nil {
			return nil, err
		}
		patch = document.Carry(coll.Fields, current, patch, locale)
	}

	now := a.timestamp()
	if coll.Timestamps {
		patch[schema.FieldUpdatedAt] = now
	}
	if coll.Drafts() {
		patch[schema.FieldStatus] = status(draft)
	}

	if draft {
		return a.saveDraft(ctx, tx, coll, id, patch, now)
	}

	raw, err := a.backend.Disassemble(coll, patch)
	if err != nil {
		return nil, err
	}
	found, err := a.backend.Patch(ctx, tx, coll, id, raw)
	if err != nil || !found {
		return nil, err
	}

	stored, err := a.mustGet(ctx, tx, coll, id)
	if err != nil {
		return nil, err
	}
	if coll.Versioned() {
		if err := a.saveVersion(ctx, tx, coll, stored, now); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// current returns document id in all-locales form as an update sees it:
// the latest draft snapshot for a draft write, else the stored document.
func (a *Adapter[P, R]) current(ctx context.Context, tx Tx, coll *schema.Collection, id string, draft bool) (document.Document, error) {
	if draft {
		doc, err := a.latestDraft(ctx, tx, coll, id)
		if err != nil || doc != nil {
			return doc, err
		}
	}
	return a.get(ctx, tx, coll, where.Eq(schema.FieldID, id), schema.AllLocales)
}

// resolveTarget returns the id of the target document, or "" when there
// is none.
func (a *Adapter[P, R]) resolveTarget(ctx context.Context, tx Tx, coll *schema.Collection, target Target, locale string) (string, error) {
	w := target.Where
	if target.ID != "" {
		w = where.Eq(schema.FieldID, target.ID)
	}
	if w == nil {
		return "", dberr.InvalidValue("where", "an id or a where clause is required")
	}
	doc, err := a.get(ctx, tx, coll, w, locale)
	if err != nil || doc == nil {
		return "", err
	}
	return document.ID(doc), nil
}

// DeleteOne removes the target document and its versions, returning the
// removed document.
func (a *Adapter[P, R]) DeleteOne(ctx context.Context, slug string, target Target, op Op) (document.Document, bool, error) {
	coll, err := a.documents(slug)
	if err != nil {
		return nil, false, err
	}
	locale, fallback, err := a.locales(op)
	if err != nil {
		return nil, false, err
	}

	var doc document.Document
	err = a.run(ctx, "deleteOne", coll, op, func(tx Tx) error {
		id, err := a.resolveTarget(ctx, tx, coll, target, locale)
		if err != nil || id == "" {
			return err
		}
		if doc, err = a.mustGet(ctx, tx, coll, id); err != nil {
			return err
		}
		_, err = a.deleteIDs(ctx, tx, coll, []string{id})
		return err
	})
	if err != nil || doc == nil {
		return nil, false, err
	}
	return a.sanitize(coll, doc, locale, fallback), true, nil
}

// DeleteMany removes every document matching w and their versions.
func (a *Adapter[P, R]) DeleteMany(ctx context.Context, slug string, w where.Expr, op Op) (int, error) {
	coll, err := a.documents(slug)
	if err != nil {
		return 0, err
	}
	locale, _, err := a.locales(op)
	if err != nil {
		return 0, err
	}

	var n int
	err = a.run(ctx, "deleteMany", coll, op, func(tx Tx) error {
		pred, err := a.backend.CompileWhere(ctx, tx, coll, w, locale)
		if err != nil {
			return err
		}
		ids, err := a.ids(ctx, tx, coll, pred)
		if err != nil {
			return err
		}
		n, err = a.deleteIDs(ctx, tx, coll, ids)
		return err
	})
	return n, err
}

// deleteChunk bounds the ids bound into one delete statement.
const deleteChunk = 500

func (a *Adapter[P, R]) deleteIDs(ctx context.Context, tx Tx, coll *schema.Collection, ids []string) (int, error) {
	n, err := a.removeIDs(ctx, tx, coll, schema.FieldID, ids)
	if err != nil {
		return 0, err
	}
	if coll.Versioned() {
		vcoll, err := a.versions(coll)
		if err != nil {
			return 0, err
		}
		if _, err := a.removeIDs(ctx, tx, vcoll, schema.FieldParent, ids); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// removeIDs deletes the documents of coll whose field holds one of ids,
// deleteChunk ids at a time.
func (a *Adapter[P, R]) removeIDs(ctx context.Context, tx Tx, coll *schema.Collection, field string, ids []string) (int, error) {
	total := 0
	for chunk := range slices.Chunk(ids, deleteChunk) {
		pred, err := a.backend.CompileWhere(ctx, tx, coll, valuesIn(field, chunk), schema.AllLocales)
		if err != nil {
			return 0, err
		}
		n, err := a.backend.Delete(ctx, tx, coll, pred)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (a *Adapter[P, R]) normalizeOptions(create, draft bool, locale string) document.NormalizeOptions {
	return document.NormalizeOptions{
		Create:        create,
		SkipRequired:  draft,
		Locale:        locale,
		Locales:       a.cfg.Locales(),
		DefaultLocale: a.cfg.DefaultLocale(),
		NewID:         a.newID,
	}
}

func status(draft bool) string {
	if draft {
		return schema.StatusDraft
	}
	return schema.StatusPublished
}
