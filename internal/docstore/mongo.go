package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is a Database backed by a MongoDB server.
type Mongo struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
}

var _ Database = (*Mongo)(nil)

// ConnectMongo connects to uri and uses the named database. Multi-document
// transactions require a replica set; without transactions each write is
// atomic on its own.
func ConnectMongo(ctx context.Context, uri, database string, transactions bool) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database), transactions: transactions}, nil
}

func (m *Mongo) Name() string { return "mongo" }

func (m *Mongo) Collection(name string) Collection {
	return &mongoCollection{c: m.db.Collection(name)}
}

func (m *Mongo) StartSession(ctx context.Context) (Session, error) {
	if !m.transactions {
		return noSession{}, nil
	}
	sess, err := m.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, err
	}
	return &mongoSession{sess: sess}, nil
}

func (m *Mongo) EnsureIndexes(ctx context.Context, collection string, indexes []Index) error {
	if len(indexes) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: idx.Key, Value: 1}},
			Options: options.Index().SetName(idx.Name).SetUnique(idx.Unique).SetSparse(idx.Unique),
		})
	}
	_, err := m.db.Collection(collection).Indexes().CreateMany(ctx, models)
	return err
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

type mongoCollection struct {
	c *mongo.Collection
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.D, opts FindOptions) ([]bson.D, error) {
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if opts.IDsOnly {
		fo.SetProjection(bson.D{{Key: "_id", Value: 1}})
	}

	cur, err := c.c.Find(ctx, filter, fo)
	if err != nil {
		return nil, err
	}
	var out []bson.D
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *mongoCollection) Count(ctx context.Context, filter bson.D) (int64, error) {
	return c.c.CountDocuments(ctx, filter)
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc bson.D) error {
	_, err := c.c.InsertOne(ctx, doc)
	return err
}

func (c *mongoCollection) UpdateByID(ctx context.Context, id string, set, unset bson.D) (bool, error) {
	byID := bson.D{{Key: "_id", Value: id}}
	var update bson.D
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: set})
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	if len(update) == 0 {
		n, err := c.c.CountDocuments(ctx, byID)
		return n > 0, err
	}
	res, err := c.c.UpdateOne(ctx, byID, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter bson.D) (int64, error) {
	res, err := c.c.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

type mongoSession struct {
	sess mongo.Session
}

func (s *mongoSession) Context(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, s.sess)
}

func (s *mongoSession) Commit(ctx context.Context) error {
	defer s.sess.EndSession(ctx)
	return s.sess.CommitTransaction(ctx)
}

func (s *mongoSession) Abort(ctx context.Context) error {
	defer s.sess.EndSession(ctx)
	return s.sess.AbortTransaction(ctx)
}

type noSession struct{}

func (noSession) Context(ctx context.Context) context.Context { return ctx }
func (noSession) Commit(context.Context) error                { return nil }
func (noSession) Abort(context.Context) error                 { return nil }
