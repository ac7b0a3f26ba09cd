package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func seed(t *testing.T, c Collection, docs ...bson.D) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, c.InsertOne(context.Background(), d))
	}
}

func ids(docs []bson.D) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i], _ = lookup(d, "_id")
	}
	return out
}

func TestMemory_FindSortWindow(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("posts")
	seed(t, c,
		bson.D{{Key: "_id", Value: "a"}, {Key: "n", Value: 2.0}},
		bson.D{{Key: "_id", Value: "b"}},
		bson.D{{Key: "_id", Value: "c"}, {Key: "n", Value: 1.0}},
		bson.D{{Key: "_id", Value: "d"}, {Key: "n", Value: 2.0}},
	)

	docs, err := c.Find(ctx, bson.D{}, FindOptions{Sort: bson.D{{Key: "n", Value: 1}, {Key: "_id", Value: -1}}})
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "c", "d", "a"}, ids(docs))

	docs, err = c.Find(ctx, bson.D{}, FindOptions{Sort: bson.D{{Key: "_id", Value: 1}}, Skip: 1, Limit: 2, IDsOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []bson.D{{{Key: "_id", Value: "b"}}, {{Key: "_id", Value: "c"}}}, docs)

	docs, err = c.Find(ctx, bson.D{}, FindOptions{Skip: 10})
	require.NoError(t, err)
	assert.Empty(t, docs)

	n, err := c.Count(ctx, bson.D{{Key: "n", Value: bson.D{{Key: "$gte", Value: 2.0}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemory_StoredValuesDoNotAlias(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("posts")
	meta := bson.D{{Key: "k", Value: "v"}}
	seed(t, c, bson.D{{Key: "_id", Value: "a"}, {Key: "meta", Value: meta}})

	meta[0].Value = "changed"
	docs, err := c.Find(ctx, bson.D{}, FindOptions{})
	require.NoError(t, err)
	v, _ := lookup(docs[0], "meta.k")
	assert.Equal(t, "v", v)
}

func TestMemory_UniqueIndexes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.EnsureIndexes(ctx, "posts", []Index{{Name: "unique_slug", Key: "slug", Unique: true}}))
	c := m.Collection("posts")

	seed(t, c,
		bson.D{{Key: "_id", Value: "a"}, {Key: "slug", Value: "x"}},
		bson.D{{Key: "_id", Value: "b"}},
		bson.D{{Key: "_id", Value: "c"}},
	)

	err := c.InsertOne(ctx, bson.D{{Key: "_id", Value: "d"}, {Key: "slug", Value: "x"}})
	require.Error(t, err)
	assert.True(t, mongo.IsDuplicateKeyError(err))
	assert.Equal(t, "slug", duplicateField(err.Error()))

	err = c.InsertOne(ctx, bson.D{{Key: "_id", Value: "a"}})
	assert.True(t, mongo.IsDuplicateKeyError(err))
	assert.Equal(t, "id", duplicateField(err.Error()))

	_, err = c.UpdateByID(ctx, "b", bson.D{{Key: "slug", Value: "x"}}, nil)
	assert.True(t, mongo.IsDuplicateKeyError(err))

	ok, err := c.UpdateByID(ctx, "a", bson.D{{Key: "slug", Value: "x"}}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	err = m.EnsureIndexes(ctx, "posts", []Index{{Name: "unique_other", Key: "_id", Unique: true}})
	require.NoError(t, err)
}

func TestMemory_UpdatePaths(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("posts")
	seed(t, c, bson.D{
		{Key: "_id", Value: "a"},
		{Key: "title", Value: bson.D{{Key: "en", Value: "Hi"}, {Key: "fr", Value: "Salut"}}},
		{Key: "views", Value: 1.0},
	})

	ok, err := c.UpdateByID(ctx, "a",
		bson.D{{Key: "title.fr", Value: "Bonjour"}, {Key: "meta.description", Value: "d"}},
		bson.D{{Key: "views", Value: ""}, {Key: "title.en", Value: ""}, {Key: "nope.deep", Value: ""}},
	)
	require.NoError(t, err)
	assert.True(t, ok)

	docs, err := c.Find(ctx, bson.D{}, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "_id", Value: "a"},
		{Key: "title", Value: bson.D{{Key: "fr", Value: "Bonjour"}}},
		{Key: "meta", Value: bson.D{{Key: "description", Value: "d"}}},
	}, docs[0])

	ok, err = c.UpdateByID(ctx, "missing", bson.D{{Key: "views", Value: 1.0}}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_AbortUndoesWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := m.Collection("posts")
	seed(t, c,
		bson.D{{Key: "_id", Value: "a"}, {Key: "n", Value: 1.0}},
		bson.D{{Key: "_id", Value: "b"}, {Key: "n", Value: 2.0}},
	)

	sess, err := m.StartSession(ctx)
	require.NoError(t, err)
	sctx := sess.Context(ctx)

	require.NoError(t, c.InsertOne(sctx, bson.D{{Key: "_id", Value: "c"}}))
	_, err = c.UpdateByID(sctx, "a", bson.D{{Key: "n", Value: 10.0}}, nil)
	require.NoError(t, err)
	n, err := c.DeleteMany(sctx, bson.D{{Key: "_id", Value: "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, sess.Abort(ctx))

	docs, err := c.Find(ctx, bson.D{}, FindOptions{Sort: bson.D{{Key: "_id", Value: 1}}})
	require.NoError(t, err)
	assert.Equal(t, []bson.D{
		{{Key: "_id", Value: "a"}, {Key: "n", Value: 1.0}},
		{{Key: "_id", Value: "b"}, {Key: "n", Value: 2.0}},
	}, docs)
}

func TestMemory_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := m.Collection("posts")

	sess, err := m.StartSession(ctx)
	require.NoError(t, err)
	require.NoError(t, c.InsertOne(sess.Context(ctx), bson.D{{Key: "_id", Value: "a"}}))
	require.NoError(t, sess.Commit(ctx))
	require.NoError(t, sess.Abort(ctx))

	n, err := c.Count(ctx, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemory_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewMemory().Collection("posts")

	_, err := c.Find(ctx, bson.D{}, FindOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.InsertOne(ctx, bson.D{{Key: "_id", Value: "a"}}), context.Canceled)
}
