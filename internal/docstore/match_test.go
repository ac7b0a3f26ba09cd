package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMatch(t *testing.T) {
	doc := bson.D{
		{Key: "_id", Value: "p1"},
		{Key: "title", Value: bson.D{{Key: "en", Value: "Hello World"}}},
		{Key: "views", Value: int32(3)},
		{Key: "featured", Value: true},
		{Key: "empty", Value: nil},
		{Key: "location", Value: bson.A{10.5, -20.0}},
		{Key: "items", Value: bson.A{
			bson.D{{Key: "id", Value: "i1"}, {Key: "label", Value: "a"}},
			bson.D{{Key: "id", Value: "i2"}, {Key: "label", Value: "b"}},
		}},
	}
	op := func(key string, v any) bson.D { return bson.D{{Key: key, Value: v}} }

	tests := []struct {
		name   string
		filter bson.D
		want   bool
	}{
		{"empty filter", bson.D{}, true},
		{"implicit equality", bson.D{{Key: "_id", Value: "p1"}}, true},
		{"int matches float", bson.D{{Key: "views", Value: op("$eq", 3.0)}}, true},
		{"dotted path", bson.D{{Key: "title.en", Value: op("$eq", "Hello World")}}, true},
		{"eq null matches missing", bson.D{{Key: "nope", Value: op("$eq", nil)}}, true},
		{"eq null matches null", bson.D{{Key: "empty", Value: op("$eq", nil)}}, true},
		{"ne matches missing", bson.D{{Key: "nope", Value: op("$ne", "x")}}, true},
		{"gt", bson.D{{Key: "views", Value: op("$gt", 2.0)}}, true},
		{"gt across types", bson.D{{Key: "views", Value: op("$gt", "2")}}, false},
		{"lte missing", bson.D{{Key: "nope", Value: op("$lte", 2.0)}}, false},
		{"in", bson.D{{Key: "views", Value: op("$in", bson.A{1.0, 3.0})}}, true},
		{"nin missing", bson.D{{Key: "nope", Value: op("$nin", bson.A{"x"})}}, true},
		{"exists null", bson.D{{Key: "empty", Value: op("$exists", true)}}, true},
		{"exists and not null", bson.D{{Key: "empty", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: nil}}}}, false},
		{"regex case-insensitive", bson.D{{Key: "title.en", Value: bson.D{{Key: "$regex", Value: "world"}, {Key: "$options", Value: "i"}}}}, true},
		{"regex case-sensitive", bson.D{{Key: "title.en", Value: bson.D{{Key: "$regex", Value: "world"}}}}, false},
		{"elemMatch", bson.D{{Key: "items", Value: op("$elemMatch", bson.D{{Key: "label", Value: op("$eq", "b")}})}}, true},
		{"elemMatch same element", bson.D{{Key: "items", Value: op("$elemMatch", bson.D{
			{Key: "id", Value: "i1"}, {Key: "label", Value: "b"},
		})}}, false},
		{"elemMatch with and", bson.D{{Key: "items", Value: op("$elemMatch", bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "id", Value: "i2"}},
			bson.D{{Key: "label", Value: "b"}},
		}}})}}, true},
		{"geoWithin", bson.D{{Key: "location", Value: op("$geoWithin", op("$box", bson.A{bson.A{10.0, -21.0}, bson.A{11.0, -19.0}}))}}, true},
		{"geoWithin edge inclusive", bson.D{{Key: "location", Value: op("$geoWithin", op("$box", bson.A{bson.A{10.5, -20.0}, bson.A{11.0, -19.0}}))}}, true},
		{"not", bson.D{{Key: "views", Value: op("$not", op("$gt", 5.0))}}, true},
		{"or", bson.D{{Key: "$or", Value: bson.A{bson.D{{Key: "views", Value: 1.0}}, bson.D{{Key: "featured", Value: true}}}}}, true},
		{"nor", bson.D{{Key: "$nor", Value: bson.A{bson.D{}}}}, false},
		{"and", bson.D{{Key: "$and", Value: bson.A{bson.D{{Key: "views", Value: 3.0}}, bson.D{{Key: "featured", Value: false}}}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(doc, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_Errors(t *testing.T) {
	doc := bson.D{{Key: "a", Value: 1.0}}

	_, err := Match(doc, bson.D{{Key: "$where", Value: "true"}})
	assert.Error(t, err)

	_, err = Match(doc, bson.D{{Key: "a", Value: bson.D{{Key: "$size", Value: 1}}}})
	assert.Error(t, err)

	_, err = Match(doc, bson.D{{Key: "$or", Value: bson.A{}}})
	assert.Error(t, err)
}

func TestSortCompare(t *testing.T) {
	assert.Equal(t, -1, sortCompare(nil, false, 1.0, true))
	assert.Equal(t, 0, sortCompare(nil, false, nil, true))
	assert.Equal(t, -1, sortCompare(2.0, true, "a", true))
	assert.Equal(t, 1, sortCompare("b", true, "a", true))
	assert.Equal(t, -1, sortCompare(int32(1), true, 1.5, true))
	assert.Equal(t, 1, sortCompare(true, true, "z", true))
}
