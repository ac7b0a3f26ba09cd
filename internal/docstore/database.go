package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Database is the document database the store runs on. MongoDB and the
// embedded in-memory database implement it.
type Database interface {
	Name() string
	Collection(name string) Collection

	// StartSession begins a unit of work. Databases without multi-document
	// transactions return a session whose Commit does nothing.
	StartSession(ctx context.Context) (Session, error)

	EnsureIndexes(ctx context.Context, collection string, indexes []Index) error
	Close(ctx context.Context) error
}

// Session scopes the operations of one unit of work.
type Session interface {
	// Context returns ctx bound to the session; collection calls made
	// with it belong to the unit of work.
	Context(ctx context.Context) context.Context
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Collection is one collection of documents keyed by _id.
type Collection interface {
	Find(ctx context.Context, filter bson.D, opts FindOptions) ([]bson.D, error)
	Count(ctx context.Context, filter bson.D) (int64, error)
	InsertOne(ctx context.Context, doc bson.D) error

	// UpdateByID applies $set and $unset to one document and reports
	// whether it exists.
	UpdateByID(ctx context.Context, id string, set, unset bson.D) (bool, error)
	DeleteMany(ctx context.Context, filter bson.D) (int64, error)
}

// FindOptions controls ordering and windowing of Find.
type FindOptions struct {
	Sort bson.D

	// Limit 0 means no limit.
	Limit int64
	Skip  int64

	// IDsOnly returns documents holding only _id.
	IDsOnly bool
}

// Index declares a single-key index. Unique indexes are sparse: documents
// without the key do not collide.
type Index struct {
	Name   string
	Key    string
	Unique bool
}
