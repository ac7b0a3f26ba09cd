package docstore

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roach88/folio/internal/dberr"
	"github.com/roach88/folio/internal/schema"
)

const (
	uniquePrefix = "unique_"
	indexPrefix  = "idx_"
)

var dupIndex = regexp.MustCompile(`index: (\S+)`)

// classify maps a driver error into the dberr taxonomy. Duplicate keys
// name the field through the index name. Any other failure of a write is
// reported as TRANSACTION_ABORTED; the caller aborts the session.
func classify(err error, write bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var de *dberr.Error
	if errors.As(err, &de) {
		return err
	}

	if mongo.IsDuplicateKeyError(err) {
		return dberr.Validation(duplicateField(err.Error()), "value must be unique")
	}

	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(112) || se.HasErrorLabel("TransientTransactionError")) {
		return dberr.WriteConflict(err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return dberr.BackendUnavailable(err)
	}

	if write {
		return dberr.TransactionAborted(err)
	}
	return err
}

// duplicateField parses "E11000 duplicate key error collection: db.posts
// index: unique_slug dup key: ...".
func duplicateField(msg string) string {
	m := dupIndex.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	name := m[1]
	if name == "_id_" {
		return schema.FieldID
	}
	return strings.TrimPrefix(name, uniquePrefix)
}
