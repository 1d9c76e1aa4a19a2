package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.CategoryRepository = (*DB)(nil)

// Categories are keyed by name.
type categoryDoc struct {
	Name       string   `bson:"_id"`
	FollowedBy []string `bson:"followed_by"`
}

func (db *DB) GetCategory(ctx context.Context, name string) (*model.Category, error) {
	var doc categoryDoc
	err := db.categories.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("category", name)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting category %s: %w", name, err)
	}
	return &model.Category{Name: doc.Name, FollowedBy: nonNil(doc.FollowedBy)}, nil
}

// AddFollower creates the category on its first follow. The name is the _id,
// so two racing first follows cannot both insert: the loser gets a duplicate
// key error and retries as a plain update.
func (db *DB) AddFollower(ctx context.Context, name, username string) (bool, error) {
	filter := bson.M{"_id": name}
	update := bson.M{"$addToSet": bson.M{"followed_by": username}}

	result, err := db.categories.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		result, err = db.categories.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return false, fmt.Errorf("mongodb: following %s: %w", name, err)
	}
	return result.UpsertedCount > 0, nil
}

func (db *DB) RemoveFollower(ctx context.Context, name, username string) error {
	result, err := db.categories.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$pull": bson.M{"followed_by": username}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: unfollowing %s: %w", name, err)
	}
	return requireMatch(result, "category", name)
}

func (db *DB) RenameFollower(ctx context.Context, oldName, newName string) error {
	return renameInArray(ctx, db.categories, "followed_by", oldName, newName)
}

// renameInArray replaces oldName with newName in a set-valued array field
// across the collection. Running it twice is harmless.
func renameInArray(ctx context.Context, coll *mongo.Collection, field, oldName, newName string) error {
	if _, err := coll.UpdateMany(ctx,
		bson.M{field: oldName},
		bson.M{"$addToSet": bson.M{field: newName}},
	); err != nil {
		return fmt.Errorf("mongodb: adding %s to %s.%s: %w", newName, coll.Name(), field, err)
	}
	if _, err := coll.UpdateMany(ctx,
		bson.M{field: oldName},
		bson.M{"$pull": bson.M{field: oldName}},
	); err != nil {
		return fmt.Errorf("mongodb: removing %s from %s.%s: %w", oldName, coll.Name(), field, err)
	}
	return nil
}
