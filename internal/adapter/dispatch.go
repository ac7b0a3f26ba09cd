package adapter

import (
	"context"
	"errors"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/where"
)

// Operation names accepted by Dispatch.
const (
	OpFind            = "find"
	OpFindOne         = "findOne"
	OpFindByID        = "findByID"
	OpCount           = "count"
	OpCreate          = "create"
	OpUpdateOne       = "updateOne"
	OpDeleteOne       = "deleteOne"
	OpDeleteMany      = "deleteMany"
	OpFindGlobal      = "findGlobal"
	OpUpdateGlobal    = "updateGlobal"
	OpFindVersions    = "findVersions"
	OpFindVersionByID = "findVersionByID"
	OpPublishVersion  = "publishVersion"
)

// Request is the serializable form of one operation, as read from scenario
// files and the command line. Collection names the global for global
// operations. ID names the version for publishVersion and findVersionByID.
type Request struct {
	Operation      string         `json:"operation" yaml:"operation"`
	Collection     string         `json:"collection" yaml:"collection"`
	Where          map[string]any `json:"where,omitempty" yaml:"where,omitempty"`
	Data           map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	ID             string         `json:"id,omitempty" yaml:"id,omitempty"`
	Locale         string         `json:"locale,omitempty" yaml:"locale,omitempty"`
	FallbackLocale string         `json:"fallbackLocale,omitempty" yaml:"fallbackLocale,omitempty"`
	Draft          bool           `json:"draft,omitempty" yaml:"draft,omitempty"`
	Sort           string         `json:"sort,omitempty" yaml:"sort,omitempty"`
	Limit          *int           `json:"limit,omitempty" yaml:"limit,omitempty"`
	Page           int            `json:"page,omitempty" yaml:"page,omitempty"`

	Tx Tx `json:"-" yaml:"-"`
}

// Response is the serializable result of a Request. Exactly one of Doc,
// Docs, Count, NotFound and Error is set.
type Response struct {
	Doc      document.Document `json:"doc,omitempty" yaml:"doc,omitempty"`
	Docs     *PaginatedDocs    `json:"docs,omitempty" yaml:"docs,omitempty"`
	Count    *int              `json:"count,omitempty" yaml:"count,omitempty"`
	NotFound bool              `json:"notFound,omitempty" yaml:"notFound,omitempty"`
	Error    *ErrorBody        `json:"error,omitempty" yaml:"error,omitempty"`
}

// ErrorBody is the serializable form of an error.
type ErrorBody struct {
	Code      string `json:"code" yaml:"code"`
	Field     string `json:"field,omitempty" yaml:"field,omitempty"`
	Message   string `json:"message" yaml:"message"`
	Retryable bool   `json:"retryable,omitempty" yaml:"retryable,omitempty"`
}

// CodeInternal is reported for errors outside the taxonomy.
const CodeInternal = "INTERNAL"

// ErrorResponse converts err to a Response.
func ErrorResponse(err error) Response {
	var e *dberr.Error
	if !errors.As(err, &e) {
		return Response{Error: &ErrorBody{Code: CodeInternal, Message: err.Error()}}
	}
	return Response{Error: &ErrorBody{
		Code:      string(e.Code),
		Field:     e.Field,
		Message:   e.Message,
		Retryable: e.Retryable(),
	}}
}

// Dispatch runs req and converts the outcome into a Response. It never
// returns partial results: any error replaces the whole result.
func (a *Adapter[P, R]) Dispatch(ctx context.Context, req Request) Response {
	resp, err := a.dispatch(ctx, req)
	if err != nil {
		return ErrorResponse(err)
	}
	return resp
}

func (a *Adapter[P, R]) dispatch(ctx context.Context, req Request) (Response, error) {
	op := Op{Locale: req.Locale, FallbackLocale: req.FallbackLocale, Draft: req.Draft, Tx: req.Tx}

	var w where.Expr
	if req.Where != nil {
		var err error
		if w, err = where.Parse(req.Where); err != nil {
			return Response{}, err
		}
	}
	target := Target{ID: req.ID, Where: w}

	switch req.Operation {
	case OpFind, OpFindVersions:
		q := Query{Where: w, Sort: where.ParseSort(req.Sort), Limit: req.Limit, Page: req.Page}
		var (
			docs *PaginatedDocs
			err  error
		)
		if req.Operation == OpFind {
			docs, err = a.Find(ctx, req.Collection, q, op)
		} else {
			docs, err = a.FindVersions(ctx, req.Collection, q, op)
		}
		return Response{Docs: docs}, err

	case OpFindOne:
		return docResponse(a.FindOne(ctx, req.Collection, w, op))
	case OpFindByID:
		return docResponse(a.FindByID(ctx, req.Collection, req.ID, op))
	case OpFindVersionByID:
		return docResponse(a.FindVersionByID(ctx, req.Collection, req.ID, op))
	case OpFindGlobal:
		return docResponse(a.FindGlobal(ctx, req.Collection, op))

	case OpCount:
		n, err := a.Count(ctx, req.Collection, w, op)
		return Response{Count: &n}, err
	case OpDeleteMany:
		n, err := a.DeleteMany(ctx, req.Collection, w, op)
		return Response{Count: &n}, err

	case OpCreate:
		doc, err := a.Create(ctx, req.Collection, req.Data, op)
		return Response{Doc: doc}, err
	case OpUpdateGlobal:
		doc, err := a.UpdateGlobal(ctx, req.Collection, req.Data, op)
		return Response{Doc: doc}, err
	case OpUpdateOne:
		return docResponse(a.UpdateOne(ctx, req.Collection, target, req.Data, op))
	case OpDeleteOne:
		return docResponse(a.DeleteOne(ctx, req.Collection, target, op))
	case OpPublishVersion:
		return docResponse(a.PublishVersion(ctx, req.Collection, req.ID, op))
	}
	return Response{}, dberr.InvalidValue("operation", "unknown operation %q", req.Operation)
}

func docResponse(doc document.Document, found bool, err error) (Response, error) {
	if err != nil {
		return Response{}, err
	}
	if !found {
		return Response{NotFound: true}, nil
	}
	return Response{Doc: doc}, nil
}
