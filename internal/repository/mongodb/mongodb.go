// Package mongodb implements the record store on MongoDB.
//
// Each entity is one document; likes, saved blogs, followed topics, category
// followers and view visitors are arrays inside it and are mutated with
// $addToSet / $pull so concurrent writers never lose each other's updates.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB holds the client and one handle per collection.
type DB struct {
	client     *mongo.Client
	accounts   *mongo.Collection
	profiles   *mongo.Collection
	blogs      *mongo.Collection
	categories *mongo.Collection
}

// New connects, pings and makes sure the indexes exist.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	d := client.Database(database)
	db := &DB{
		client:     client,
		accounts:   d.Collection("users"),
		profiles:   d.Collection("profiles"),
		blogs:      d.Collection("blogs"),
		categories: d.Collection("categories"),
	}
	if err := db.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: creating indexes: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, nil)
}

func (db *DB) Accounts() repository.AccountRepository { return db }
func (db *DB) Profiles() repository.ProfileRepository { return db }
func (db *DB) Blogs() repository.BlogRepository { return db }
func (db *DB) Categories() repository.CategoryRepository { return db }

func (db *DB) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{db.accounts, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}}},
			{Keys: bson.D{{Key: "reset_token", Value: 1}}, Options: options.Index().SetSparse(true)},
		}},
		{db.profiles, []mongo.IndexModel{
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "saved_blogs", Value: 1}}},
		}},
		{db.blogs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "author", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "comments.username", Value: 1}}},
			{Keys: bson.D{{Key: "likes.likedby", Value: 1}}},
		}},
		{db.categories, []mongo.IndexModel{
			{Keys: bson.D{{Key: "followed_by", Value: 1}}},
		}},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("%s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

func requireMatch(result *mongo.UpdateResult, resource, id string) error {
	if result.MatchedCount == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
