package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.BlogRepository = (*DB)(nil)

func (db *DB) CreateBlog(ctx context.Context, blog *model.Blog) error {
	now := time.Now().UTC()
	blog.ID = xid.New().String()
	blog.CreatedAt = now
	blog.UpdatedAt = now
	blog.Views = 0
	blog.LastViewedAt = nil
	blog.Comments = []model.Comment{}
	blog.Likes = model.Likes{LikedBy: []string{}}
	blog.Visitors = []string{}
	blog.Tags = nonNil(blog.Tags)

	if _, err := db.blogs.InsertOne(ctx, blog); err != nil {
		return fmt.Errorf("mongodb: creating blog: %w", err)
	}
	return nil
}

func (db *DB) GetBlog(ctx context.Context, id string) (*model.Blog, error) {
	var b model.Blog
	err := db.blogs.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("blog", id)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting blog %s: %w", id, err)
	}
	normalize(&b)
	return &b, nil
}

func (db *DB) ListBlogs(ctx context.Context, filter repository.BlogFilter) ([]model.Blog, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []model.Blog{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"visitors": 0})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := db.blogs.Find(ctx, blogQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing blogs: %w", err)
	}
	blogs := []model.Blog{}
	if err := cur.All(ctx, &blogs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding blogs: %w", err)
	}
	for i := range blogs {
		normalize(&blogs[i])
	}
	return blogs, nil
}

// blogQuery translates a BlogFilter into a find filter.
func blogQuery(filter repository.BlogFilter) bson.M {
	q := bson.M{}
	if filter.Author != "" {
		q["author"] = filter.Author
	}
	category := bson.M{}
	if len(filter.Categories) > 0 {
		category["$in"] = filter.Categories
	}
	if len(filter.NotIn) > 0 {
		category["$nin"] = filter.NotIn
	}
	if len(category) > 0 {
		q["category"] = category
	}
	if filter.IDs != nil {
		q["_id"] = bson.M{"$in": filter.IDs}
	}
	if filter.PublicOnly {
		q["is_private"] = bson.M{"$ne": true}
	}
	return q
}

func (db *DB) UpdateBlogContent(ctx context.Context, blog *model.Blog) error {
	blog.Tags = nonNil(blog.Tags)
	blog.UpdatedAt = time.Now().UTC()
	result, err := db.blogs.UpdateByID(ctx, blog.ID, bson.M{
		"$set": bson.M{
			"author":     blog.Author,
			"author_img": blog.AuthorImg,
			"author_id":  blog.AuthorID,
			"blog_image": blog.Image,
			"title":      blog.Title,
			"body":       blog.Body,
			"tags":       blog.Tags,
			"category":   blog.Category,
			"updated_at": blog.UpdatedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("mongodb: updating blog %s: %w", blog.ID, err)
	}
	return requireMatch(result, "blog", blog.ID)
}

func (db *DB) SetPrivate(ctx context.Context, id string, private bool) error {
	result, err := db.blogs.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"is_private": private, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("mongodb: setting visibility of %s: %w", id, err)
	}
	return requireMatch(result, "blog", id)
}

func (db *DB) DeleteBlog(ctx context.Context, id string) error {
	result, err := db.blogs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb: deleting blog %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return apperror.NotFound("blog", id)
	}
	return nil
}

func (db *DB) AddComment(ctx context.Context, blogID string, comment *model.Comment) error {
	if comment.ID == "" {
		comment.ID = xid.New().String()
	}
	if comment.Date.IsZero() {
		comment.Date = time.Now().UTC()
	}
	result, err := db.blogs.UpdateByID(ctx, blogID, bson.M{
		"$push": bson.M{"comments": comment},
	})
	if err != nil {
		return fmt.Errorf("mongodb: adding comment to %s: %w", blogID, err)
	}
	return requireMatch(result, "blog", blogID)
}

func (db *DB) AddLike(ctx context.Context, blogID, username string) error {
	result, err := db.blogs.UpdateByID(ctx, blogID, bson.M{
		"$addToSet": bson.M{"likes.likedby": username},
	})
	if err != nil {
		return fmt.Errorf("mongodb: liking %s: %w", blogID, err)
	}
	return requireMatch(result, "blog", blogID)
}

func (db *DB) RemoveLike(ctx context.Context, blogID, username string) error {
	result, err := db.blogs.UpdateByID(ctx, blogID, bson.M{
		"$pull": bson.M{"likes.likedby": username},
	})
	if err != nil {
		return fmt.Errorf("mongodb: unliking %s: %w", blogID, err)
	}
	return requireMatch(result, "blog", blogID)
}

// RecordView tries two conditional updates: first for a visitor not yet in
// the list, then for a blog whose last view is older than the cooldown.
// Neither matching means the visit is debounced.
func (db *DB) RecordView(ctx context.Context, blogID string, view repository.View) (*model.Blog, bool, error) {
	at := view.At.UTC()
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var b model.Blog
	err := db.blogs.FindOneAndUpdate(ctx,
		bson.M{"_id": blogID, "visitors": bson.M{"$ne": view.Visitor}},
		newVisitorUpdate(view.Visitor, at, view.MaxVisitors),
		after,
	).Decode(&b)
	if err == nil {
		normalize(&b)
		return &b, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("mongodb: recording new visitor on %s: %w", blogID, err)
	}

	err = db.blogs.FindOneAndUpdate(ctx,
		cooledDownQuery(blogID, at.Add(-view.Cooldown)),
		bson.M{
			"$inc": bson.M{"views": 1},
			"$set": bson.M{"last_viewed_at": at},
		},
		after,
	).Decode(&b)
	if err == nil {
		normalize(&b)
		return &b, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("mongodb: recording view on %s: %w", blogID, err)
	}

	current, err := db.GetBlog(ctx, blogID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func newVisitorUpdate(visitor string, at time.Time, max int) bson.M {
	push := bson.M{"$each": []string{visitor}}
	if max > 0 {
		// keep the newest max entries
		push["$slice"] = -max
	}
	return bson.M{
		"$inc":  bson.M{"views": 1},
		"$set":  bson.M{"last_viewed_at": at},
		"$push": bson.M{"visitors": push},
	}
}

func cooledDownQuery(blogID string, threshold time.Time) bson.M {
	return bson.M{
		"_id": blogID,
		"$or": bson.A{
			bson.M{"last_viewed_at": bson.M{"$exists": false}},
			bson.M{"last_viewed_at": nil},
			bson.M{"last_viewed_at": bson.M{"$lte": threshold}},
		},
	}
}

func (db *DB) RenameAuthor(ctx context.Context, oldName, newName, avatar string) error {
	if _, err := db.blogs.UpdateMany(ctx,
		bson.M{"author": oldName},
		bson.M{"$set": bson.M{"author": newName, "author_img": avatar}},
	); err != nil {
		return fmt.Errorf("mongodb: renaming author %s: %w", oldName, err)
	}
	return nil
}

func (db *DB) RenameCommenter(ctx context.Context, oldName, newName, avatar string) error {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"c.username": oldName}},
	})
	if _, err := db.blogs.UpdateMany(ctx,
		bson.M{"comments.username": oldName},
		bson.M{"$set": bson.M{
			"comments.$[c].username": newName,
			"comments.$[c].user_img": avatar,
		}},
		opts,
	); err != nil {
		return fmt.Errorf("mongodb: renaming commenter %s: %w", oldName, err)
	}
	return nil
}

func (db *DB) RenameLiker(ctx context.Context, oldName, newName string) error {
	return renameInArray(ctx, db.blogs, "likes.likedby", oldName, newName)
}

func normalize(b *model.Blog) {
	b.Tags = nonNil(b.Tags)
	b.Likes.LikedBy = nonNil(b.Likes.LikedBy)
	b.Visitors = nonNil(b.Visitors)
	if b.Comments == nil {
		b.Comments = []model.Comment{}
	}
}
