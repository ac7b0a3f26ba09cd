package adapter

import (
	"context"
	"fmt"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
	"github.com/roach88/folio/internal/where"
)

// Query selects and orders documents for Find.
type Query struct {
	Where where.Expr
	Sort  []where.SortKey

	// Limit is the page size; nil uses the default limit and 0 returns
	// every match on one page.
	Limit *int

	// Page is 1-based; values below 1 select the first page.
	Page int
}

// PaginatedDocs is one page of a Find result.
type PaginatedDocs struct {
	Docs          []document.Document `json:"docs"`
	TotalDocs     int                 `json:"totalDocs"`
	Limit         int                 `json:"limit"`
	TotalPages    int                 `json:"totalPages"`
	Page          int                 `json:"page"`
	PagingCounter int                 `json:"pagingCounter"`
	HasPrevPage   bool                `json:"hasPrevPage"`
	HasNextPage   bool                `json:"hasNextPage"`
	PrevPage      *int                `json:"prevPage"`
	NextPage      *int                `json:"nextPage"`
}

func paginate(docs []document.Document, total, limit, page int) *PaginatedDocs {
	if docs == nil {
		docs = []document.Document{}
	}
	p := &PaginatedDocs{Docs: docs, TotalDocs: total, Limit: limit, Page: page, TotalPages: 1}
	if limit > 0 {
		p.TotalPages = max(1, (total+limit-1)/limit)
		p.PagingCounter = (page-1)*limit + 1
	} else {
		p.PagingCounter = 1
	}
	if page > 1 {
		prev := page - 1
		p.HasPrevPage, p.PrevPage = true, &prev
	}
	if page < p.TotalPages {
		next := page + 1
		p.HasNextPage, p.NextPage = true, &next
	}
	return p
}

// Find returns one page of the documents matching q. With op.Draft on a
// collection with drafts, the latest draft snapshots are queried instead.
func (a *Adapter[P, R]) Find(ctx context.Context, slug string, q Query, op Op) (*PaginatedDocs, error) {
	coll, err := a.documents(slug)
	if err != nil {
		return nil, err
	}
	locale, fallback, err := a.locales(op)
	if err != nil {
		return nil, err
	}

	var out *PaginatedDocs
	err = a.run(ctx, "find", coll, op, func(tx Tx) error {
		if op.Draft && coll.Drafts() {
			out, err = a.findDrafts(ctx, tx, coll, q, locale, fallback)
		} else {
			out, err = a.find(ctx, tx, coll, q, locale, fallback)
		}
		return err
	})
	return out, err
}

// FindOne returns the first document matching w in default order.
func (a *Adapter[P, R]) FindOne(ctx context.Context, slug string, w where.Expr, op Op) (document.Document, bool, error) {
	one := 1
	res, err := a.Find(ctx, slug, Query{Where: w, Limit: &one}, op)
	if err != nil || len(res.Docs) == 0 {
		return nil, false, err
	}
	return res.Docs[0], true, nil
}

// FindByID returns the document with the given id. A missing document is
// reported as found=false, not as an error.
func (a *Adapter[P, R]) FindByID(ctx context.Context, slug, id string, op Op) (document.Document, bool, error) {
	coll, err := a.documents(slug)
	if err != nil {
		return nil, false, err
	}
	return a.findByID(ctx, "findByID", coll, id, op)
}

func (a *Adapter[P, R]) findByID(ctx context.Context, name string, coll *schema.Collection, id string, op Op) (document.Document, bool, error) {
	locale, fallback, err := a.locales(op)
	if err != nil {
		return nil, false, err
	}

	var doc document.Document
	err = a.run(ctx, name, coll, op, func(tx Tx) error {
		if op.Draft && coll.Drafts() {
			doc, err = a.latestDraft(ctx, tx, coll, id)
			if err != nil || doc != nil {
				return err
			}
		}
		doc, err = a.get(ctx, tx, coll, where.Eq(schema.FieldID, id), locale)
		return err
	})
	if err != nil || doc == nil {
		return nil, false, err
	}
	return a.sanitize(coll, doc, locale, fallback), true, nil
}

// Count returns the number of documents matching w.
func (a *Adapter[P, R]) Count(ctx context.Context, slug string, w where.Expr, op Op) (int, error) {
	coll, err := a.documents(slug)
	if err != nil {
		return 0, err
	}
	locale, _, err := a.locales(op)
	if err != nil {
		return 0, err
	}

	var n int
	err = a.run(ctx, "count", coll, op, func(tx Tx) error {
		pred, err := a.backend.CompileWhere(ctx, tx, coll, w, locale)
		if err != nil {
			return err
		}
		n, err = a.backend.Count(ctx, tx, coll, pred)
		return err
	})
	return n, err
}

func (a *Adapter[P, R]) find(ctx context.Context, tx Tx, coll *schema.Collection, q Query, locale, fallback string) (*PaginatedDocs, error) {
	res, err := a.query(ctx, tx, coll, q, locale)
	if err != nil {
		return nil, err
	}
	for i, d := range res.Docs {
		res.Docs[i] = a.sanitize(coll, d, locale, fallback)
	}
	return res, nil
}

// query runs q and returns the page in all-locales form.
func (a *Adapter[P, R]) query(ctx context.Context, tx Tx, coll *schema.Collection, q Query, locale string) (*PaginatedDocs, error) {
	limit := a.defaultLimit
	if q.Limit != nil {
		limit = *q.Limit
	}
	if limit < 0 {
		return nil, dberr.InvalidValue("limit", "limit must not be negative")
	}
	page := max(q.Page, 1)
	sort := q.Sort
	if len(sort) == 0 {
		sort = DefaultSort(coll)
	}

	pred, err := a.backend.CompileWhere(ctx, tx, coll, q.Where, locale)
	if err != nil {
		return nil, err
	}
	total, err := a.backend.Count(ctx, tx, coll, pred)
	if err != nil {
		return nil, err
	}
	offset := 0
	if limit > 0 {
		offset = (page - 1) * limit
	}
	docs, err := a.selectDocs(ctx, tx, coll, pred, Page{Sort: sort, Limit: limit, Offset: offset, Locale: locale})
	if err != nil {
		return nil, err
	}
	return paginate(docs, total, limit, page), nil
}

// selectDocs runs a compiled query and assembles every result into
// all-locales form.
func (a *Adapter[P, R]) selectDocs(ctx context.Context, tx Tx, coll *schema.Collection, pred P, page Page) ([]document.Document, error) {
	raws, err := a.backend.Select(ctx, tx, coll, pred, page)
	if err != nil {
		return nil, err
	}
	docs := make([]document.Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := a.backend.Assemble(coll, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// get returns the first document matching w in all-locales form, or nil.
func (a *Adapter[P, R]) get(ctx context.Context, tx Tx, coll *schema.Collection, w where.Expr, locale string) (document.Document, error) {
	pred, err := a.backend.CompileWhere(ctx, tx, coll, w, locale)
	if err != nil {
		return nil, err
	}
	docs, err := a.selectDocs(ctx, tx, coll, pred, Page{Sort: DefaultSort(coll), Limit: 1, Locale: locale})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// ids returns the ids of every document matching pred.
func (a *Adapter[P, R]) ids(ctx context.Context, tx Tx, coll *schema.Collection, pred P) ([]string, error) {
	return a.backend.SelectIDs(ctx, tx, coll, pred)
}

// mustGet reads back a document the operation has just written.
func (a *Adapter[P, R]) mustGet(ctx context.Context, tx Tx, coll *schema.Collection, id string) (document.Document, error) {
	doc, err := a.get(ctx, tx, coll, where.Eq(schema.FieldID, id), schema.AllLocales)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("read back %s %q: document not found", coll.Slug, id)
	}
	return doc, nil
}

// DefaultSort orders by newest first, or by id without timestamps.
func DefaultSort(coll *schema.Collection) []where.SortKey {
	if coll.Timestamps {
		return []where.SortKey{{Path: schema.FieldCreatedAt, Desc: true}}
	}
	return []where.SortKey{{Path: schema.FieldID}}
}

func valuesIn(field string, values []string) where.Condition {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return where.Condition{Path: field, Operator: where.In, Value: vals}
}
