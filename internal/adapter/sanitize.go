package adapter

import (
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/schema"
)

// sanitize turns an assembled all-locales document into the response shape:
// localized values resolve through the fallback chain and everything
// outside the logical shape is dropped.
func (a *Adapter[P, R]) sanitize(coll *schema.Collection, doc document.Document, locale, fallback string) document.Document {
	if locale == "" {
		locale = schema.AllLocales
	}
	out := document.Localize(coll.Fields, doc, locale, fallback)
	return document.Prune(coll.Fields, out)
}
