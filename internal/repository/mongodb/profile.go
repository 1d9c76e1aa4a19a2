package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

func (db *DB) CreateProfile(ctx context.Context, profile *model.Profile) error {
	if profile.ID == "" {
		profile.ID = xid.New().String()
	}
	// $addToSet refuses to operate on a null field.
	profile.SavedBlogs = nonNil(profile.SavedBlogs)
	profile.FollowedTopics = nonNil(profile.FollowedTopics)

	if _, err := db.profiles.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("username", profile.Name)
		}
		return fmt.Errorf("mongodb: creating profile %s: %w", profile.Name, err)
	}
	return nil
}

func (db *DB) GetProfile(ctx context.Context, name string) (*model.Profile, error) {
	var p model.Profile
	err := db.profiles.FindOne(ctx, bson.M{"name": name}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("profile", name)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting profile %s: %w", name, err)
	}
	p.SavedBlogs = nonNil(p.SavedBlogs)
	p.FollowedTopics = nonNil(p.FollowedTopics)
	return &p, nil
}

func (db *DB) UpdateProfile(ctx context.Context, oldName string, profile *model.Profile) error {
	result, err := db.profiles.UpdateOne(ctx, bson.M{"name": oldName}, bson.M{
		"$set": bson.M{
			"name":        profile.Name,
			"profile_pic": profile.ProfilePic,
			"phoneno":     profile.PhoneNo,
			"bio":         profile.Bio,
			"instagram":   profile.Instagram,
			"linkedin":    profile.LinkedIn,
		},
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("username", profile.Name)
		}
		return fmt.Errorf("mongodb: updating profile %s: %w", oldName, err)
	}
	return requireMatch(result, "profile", oldName)
}

func (db *DB) AddSavedBlog(ctx context.Context, name, blogID string) error {
	return db.updateProfileSet(ctx, name, "$addToSet", "saved_blogs", blogID)
}

func (db *DB) RemoveSavedBlog(ctx context.Context, name, blogID string) error {
	return db.updateProfileSet(ctx, name, "$pull", "saved_blogs", blogID)
}

func (db *DB) AddFollowedTopic(ctx context.Context, name, category string) error {
	return db.updateProfileSet(ctx, name, "$addToSet", "followed_topics", category)
}

func (db *DB) RemoveFollowedTopic(ctx context.Context, name, category string) error {
	return db.updateProfileSet(ctx, name, "$pull", "followed_topics", category)
}

// updateProfileSet applies a single-element set operator to an array field.
func (db *DB) updateProfileSet(ctx context.Context, name, op, field, value string) error {
	result, err := db.profiles.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{op: bson.M{field: value}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: %s %s on %s: %w", op, field, name, err)
	}
	return requireMatch(result, "profile", name)
}

func (db *DB) ListSavers(ctx context.Context, blogID string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"name": 1}).
		SetSort(bson.D{{Key: "name", Value: 1}})
	cur, err := db.profiles.Find(ctx, bson.M{"saved_blogs": blogID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing savers of %s: %w", blogID, err)
	}
	var docs []struct {
		Name string `bson:"name"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding savers of %s: %w", blogID, err)
	}
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return names, nil
}

func (db *DB) ForgetSavedBlog(ctx context.Context, blogID string) error {
	if _, err := db.profiles.UpdateMany(ctx,
		bson.M{"saved_blogs": blogID},
		bson.M{"$pull": bson.M{"saved_blogs": blogID}},
	); err != nil {
		return fmt.Errorf("mongodb: forgetting saved blog %s: %w", blogID, err)
	}
	return nil
}
