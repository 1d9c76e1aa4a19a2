package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

// These pin down the documents sent to the server; no server is needed.

func TestBlogQuery(t *testing.T) {
	tests := []struct {
		name   string
		filter repository.BlogFilter
		want   bson.M
	}{
		{"empty", repository.BlogFilter{}, bson.M{}},
		{"author", repository.BlogFilter{Author: "alice"}, bson.M{"author": "alice"}},
		{
			"health bucket, public",
			repository.BlogFilter{Categories: []string{"Health", "Personal Development"}, PublicOnly: true},
			bson.M{
				"category":   bson.M{"$in": []string{"Health", "Personal Development"}},
				"is_private": bson.M{"$ne": true},
			},
		},
		{
			"others bucket",
			repository.BlogFilter{NotIn: model.KnownCategories},
			bson.M{"category": bson.M{"$nin": model.KnownCategories}},
		},
		{
			"ids",
			repository.BlogFilter{IDs: []string{"a", "b"}},
			bson.M{"_id": bson.M{"$in": []string{"a", "b"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, blogQuery(tt.filter))
		})
	}
}

func TestNewVisitorUpdate(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	bounded := newVisitorUpdate("10.0.0.1", at, 1000)
	assert.Equal(t, bson.M{"views": 1}, bounded["$inc"])
	assert.Equal(t, bson.M{"last_viewed_at": at}, bounded["$set"])
	assert.Equal(t, bson.M{"visitors": bson.M{"$each": []string{"10.0.0.1"}, "$slice": -1000}}, bounded["$push"])

	unbounded := newVisitorUpdate("10.0.0.1", at, 0)
	assert.Equal(t, bson.M{"visitors": bson.M{"$each": []string{"10.0.0.1"}}}, unbounded["$push"])
}

func TestCooledDownQuery(t *testing.T) {
	threshold := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := cooledDownQuery("b1", threshold)

	assert.Equal(t, "b1", q["_id"])
	or, ok := q["$or"].(bson.A)
	if assert.True(t, ok) {
		assert.Len(t, or, 3)
		assert.Contains(t, or, bson.M{"last_viewed_at": bson.M{"$lte": threshold}})
	}
}

func TestNormalize(t *testing.T) {
	var b model.Blog
	normalize(&b)
	assert.NotNil(t, b.Tags)
	assert.NotNil(t, b.Comments)
	assert.NotNil(t, b.Likes.LikedBy)
	assert.NotNil(t, b.Visitors)
}
