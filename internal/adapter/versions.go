package adapter

import (
	"context"

	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/where"
)

// Version history is kept in the synthetic versions collection of each
// versioned collection. A version holds the id of its document in parent,
// a complete all-locales snapshot in version, and latest=true on the newest
// version of each document.

// saveVersion appends a snapshot of stored, a complete document in
// all-locales form, as the latest version of its document.
func (a *Adapter[P, R]) saveVersion(ctx context.Context, tx Tx, coll *schema.Collection, stored document.Document, now string) error {
	vcoll, err := a.versions(coll)
	if err != nil {
		return err
	}
	parent := document.ID(stored)
	if err := a.clearLatest(ctx, tx, vcoll, parent); err != nil {
		return err
	}

	snapshot := document.Prune(coll.Fields, stored)
	delete(snapshot, schema.FieldID)
	v := document.Document{
		schema.FieldID:        a.newID(),
		schema.FieldParent:    parent,
		schema.FieldVersion:   snapshot,
		schema.FieldLatest:    true,
		schema.FieldCreatedAt: now,
		schema.FieldUpdatedAt: now,
	}
	raw, err := a.backend.Disassemble(vcoll, v)
	if err != nil {
		return err
	}
	if err := a.backend.Insert(ctx, tx, vcoll, raw); err != nil {
		return err
	}

	if max := coll.Versions.MaxPerDoc; max > 0 {
		return a.pruneVersions(ctx, tx, vcoll, parent, max)
	}
	return nil
}

func (a *Adapter[P, R]) clearLatest(ctx context.Context, tx Tx, vcoll *schema.Collection, parent string) error {
	pred, err := a.backend.CompileWhere(ctx, tx, vcoll, where.All(
		where.Eq(schema.FieldParent, parent),
		where.Eq(schema.FieldLatest, true),
	), schema.AllLocales)
	if err != nil {
		return err
	}
	ids, err := a.ids(ctx, tx, vcoll, pred)
	if err != nil {
		return err
	}
	raw, err := a.backend.Disassemble(vcoll, document.Document{schema.FieldLatest: false})
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := a.backend.Patch(ctx, tx, vcoll, id, raw); err != nil {
			return err
		}
	}
	return nil
}

// pruneVersions keeps the newest keep versions of parent.
func (a *Adapter[P, R]) pruneVersions(ctx context.Context, tx Tx, vcoll *schema.Collection, parent string, keep int) error {
	pred, err := a.backend.CompileWhere(ctx, tx, vcoll, where.Eq(schema.FieldParent, parent), schema.AllLocales)
	if err != nil {
		return err
	}
	old, err := a.selectDocs(ctx, tx, vcoll, pred, Page{
		Sort:   []where.SortKey{{Path: schema.FieldCreatedAt, Desc: true}, {Path: schema.FieldID, Desc: true}},
		Offset: keep,
	})
	if err != nil || len(old) == 0 {
		return err
	}
	ids := make([]string, len(old))
	for i, v := range old {
		ids[i] = document.ID(v)
	}
	_, err = a.removeIDs(ctx, tx, vcoll, schema.FieldID, ids)
	return err
}

// latestDraft returns the latest snapshot of document id in all-locales
// form, or nil when it has no versions.
func (a *Adapter[P, R]) latestDraft(ctx context.Context, tx Tx, coll *schema.Collection, id string) (document.Document, error) {
	vcoll, err := a.versions(coll)
	if err != nil {
		return nil, err
	}
	v, err := a.get(ctx, tx, vcoll, where.All(
		where.Eq(schema.FieldParent, id),
		where.Eq(schema.FieldLatest, true),
	), schema.AllLocales)
	if err != nil || v == nil {
		return nil, err
	}
	return fromVersion(v), nil
}

// fromVersion returns the snapshot of a version as a document of its
// parent.
func fromVersion(v document.Document) document.Document {
	snapshot, _ := v[schema.FieldVersion].(map[string]any)
	doc := document.CloneDoc(snapshot)
	if doc == nil {
		doc = document.Document{}
	}
	doc[schema.FieldID] = v[schema.FieldParent]
	return doc
}

// saveDraft merges patch into the latest snapshot of document id and saves
// the result as a new version. The document itself is not changed.
func (a *Adapter[P, R]) saveDraft(ctx context.Context, tx Tx, coll *schema.Collection, id string, patch document.Document, now string) (document.Document, error) {
	base, err := a.latestDraft(ctx, tx, coll, id)
	if err != nil {
		return nil, err
	}
	if base == nil {
		if base, err = a.get(ctx, tx, coll, where.Eq(schema.FieldID, id), schema.AllLocales); err != nil || base == nil {
			return nil, err
		}
	}

	merged := document.Prune(coll.Fields, document.Merge(coll.Fields, base, patch))
	merged[schema.FieldID] = id
	if err := a.saveVersion(ctx, tx, coll, merged, now); err != nil {
		return nil, err
	}
	return merged, nil
}

// findDrafts runs q against the latest snapshots instead of the documents.
func (a *Adapter[P, R]) findDrafts(ctx context.Context, tx Tx, coll *schema.Collection, q Query, locale, fallback string) (*PaginatedDocs, error) {
	vcoll, err := a.versions(coll)
	if err != nil {
		return nil, err
	}
	rename := map[string]string{schema.FieldID: schema.FieldParent}

	sort := q.Sort
	if len(sort) == 0 {
		sort = DefaultSort(coll)
	}
	vq := Query{
		Where: where.All(where.Prefix(q.Where, schema.FieldVersion, rename), where.Eq(schema.FieldLatest, true)),
		Sort:  make([]where.SortKey, len(sort)),
		Limit: q.Limit,
		Page:  q.Page,
	}
	for i, k := range sort {
		if to, ok := rename[k.Path]; ok {
			vq.Sort[i] = where.SortKey{Path: to, Desc: k.Desc}
		} else {
			vq.Sort[i] = where.SortKey{Path: schema.FieldVersion + "." + k.Path, Desc: k.Desc}
		}
	}

	res, err := a.query(ctx, tx, vcoll, vq, locale)
	if err != nil {
		return nil, err
	}
	for i, v := range res.Docs {
		res.Docs[i] = a.sanitize(coll, fromVersion(v), locale, fallback)
	}
	return res, nil
}

// FindVersions queries the version history of a collection or global.
// Paths address the versions collection: parent, latest, createdAt and
// version.<field>.
func (a *Adapter[P, R]) FindVersions(ctx context.Context, slug string, q Query, op Op) (*PaginatedDocs, error) {
	coll, err := a.collection(slug)
	if err != nil {
		return nil, err
	}
	vcoll, err := a.versions(coll)
	if err != nil {
		return nil, err
	}
	locale, fallback, err := a.locales(op)
	if err != nil {
		return nil, err
	}

	var out *PaginatedDocs
	err = a.run(ctx, "findVersions", coll, op, func(tx Tx) error {
		out, err = a.find(ctx, tx, vcoll, q, locale, fallback)
		return err
	})
	return out, err
}

// FindVersionByID returns one version of a collection or global.
func (a *Adapter[P, R]) FindVersionByID(ctx context.Context, slug, id string, op Op) (document.Document, bool, error) {
	coll, err := a.collection(slug)
	if err != nil {
		return nil, false, err
	}
	vcoll, err := a.versions(coll)
	if err != nil {
		return nil, false, err
	}
	return a.findByID(ctx, "findVersionByID", vcoll, id, Op{Locale: op.Locale, FallbackLocale: op.FallbackLocale, Tx: op.Tx})
}

// PublishVersion makes the snapshot of a version the published document,
// replacing every field, and records it as the latest version. The
// document is recreated if it was deleted. It runs in one transaction, so
// on SQL and MongoDB readers never observe a half-published document. The
// embedded memory database makes each document write atomic but does not
// isolate sessions: a concurrent draft read may see the published fields
// before the new latest version is recorded.
func (a *Adapter[P, R]) PublishVersion(ctx context.Context, slug, versionID string, op Op) (document.Document, bool, error) {
	coll, err := a.collection(slug)
	if err != nil {
		return nil, false, err
	}
	vcoll, err := a.versions(coll)
	if err != nil {
		return nil, false, err
	}
	locale, fallback, err := a.locales(op)
	if err != nil {
		return nil, false, err
	}

	var doc document.Document
	err = a.run(ctx, "publishVersion", coll, op, func(tx Tx) error {
		v, err := a.get(ctx, tx, vcoll, where.Eq(schema.FieldID, versionID), schema.AllLocales)
		if err != nil || v == nil {
			return err
		}
		snapshot := fromVersion(v)
		id := document.ID(snapshot)
		now := a.timestamp()

		full := document.Document{}
		for _, f := range coll.Fields {
			full[f.Name] = snapshot[f.Name]
		}
		if coll.Timestamps {
			full[schema.FieldUpdatedAt] = now
			if full[schema.FieldCreatedAt] == nil {
				full[schema.FieldCreatedAt] = now
			}
		}
		if coll.Drafts() {
			full[schema.FieldStatus] = schema.StatusPublished
		}

		raw, err := a.backend.Disassemble(coll, full)
		if err != nil {
			return err
		}
		found, err := a.backend.Patch(ctx, tx, coll, id, raw)
		if err != nil {
			return err
		}
		if !found {
			full[schema.FieldID] = id
			if raw, err = a.backend.Disassemble(coll, full); err != nil {
				return err
			}
			if err := a.backend.Insert(ctx, tx, coll, raw); err != nil {
				return err
			}
		}

		if doc, err = a.mustGet(ctx, tx, coll, id); err != nil {
			return err
		}
		return a.saveVersion(ctx, tx, coll, doc, now)
	})
	if err != nil || doc == nil {
		return nil, false, err
	}
	return a.sanitize(coll, doc, locale, fallback), true, nil
}

// FindGlobal returns the document of a global. A global that was never
// written is reported as found=false.
func (a *Adapter[P, R]) FindGlobal(ctx context.Context, slug string, op Op) (document.Document, bool, error) {
	coll, err := a.global(slug)
	if err != nil {
		return nil, false, err
	}
	return a.findByID(ctx, "findGlobal", coll, globalID(coll), op)
}

// UpdateGlobal writes the supplied fields of a global, creating its
// document on first write.
func (a *Adapter[P, R]) UpdateGlobal(ctx context.Context, slug string, data map[string]any, op Op) (document.Document, error) {
	coll, err := a.global(slug)
	if err != nil {
		return nil, err
	}
	locale, fallback, err := a.locales(op)
	if err != nil {
		return nil, err
	}
	draft := op.Draft && coll.Drafts()

	var doc document.Document
	err = a.run(ctx, "updateGlobal", coll, op, func(tx Tx) error {
		existing, err := a.get(ctx, tx, coll, where.Eq(schema.FieldID, globalID(coll)), schema.AllLocales)
		if err != nil {
			return err
		}
		if existing == nil {
			doc, err = a.create(ctx, tx, coll, data, globalID(coll), locale, draft)
		} else {
			doc, err = a.update(ctx, tx, coll, globalID(coll), data, locale, draft)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return a.sanitize(coll, doc, locale, fallback), nil
}

// globalID is the fixed id of the single document of a global.
func globalID(coll *schema.Collection) string {
	return coll.Slug
}
