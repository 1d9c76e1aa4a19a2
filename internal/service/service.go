// Package service holds the business rules of the blogging backend.
//
//	Handler (HTTP) → Service (rules, cache policy) → Repository (record store)
//	                         ↘ cache.Cache
//
// Every read path goes through cache.ReadThrough under the key named in
// internal/cache/keys.go. Every write path first commits to the record store
// and only then deletes the keys whose snapshots it changed. Services never
// fail a request because the cache misbehaved.
package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

// Input limits.
const (
	MinPasswordLength = 8
	MaxUsernameLength = 30
	MaxTitleLength    = 200
	MaxCommentLength  = 2000
	PopularSize       = 3
	RecentlySavedSize = 2
)

// Usernames end up in cache keys and URLs, so they are kept to a safe
// alphabet.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func validateUsername(name string) error {
	switch {
	case name == "":
		return apperror.ValidationFailed("username", "username is required")
	case len(name) > MaxUsernameLength:
		return apperror.ValidationFailed("username", "username must be at most 30 characters")
	case !usernamePattern.MatchString(name):
		return apperror.ValidationFailed("username", "username may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password", "password must be at least 8 characters")
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, apperror.ErrConflict)
}

// invalidator computes and deletes the key sets of blog writes.
type invalidator struct {
	cache    *cache.Cache
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

// blogKeys lists every key whose snapshot contains b: its own entry, every
// listing it appears in, and the saved lists of the users who saved it.
func (iv *invalidator) blogKeys(ctx context.Context, b *model.Blog) []string {
	keys := []string{
		cache.BlogKey(b.ID),
		cache.AllBlogsKey,
		cache.UserBlogKey(b.Author),
		cache.CommentsKey(b.ID),
		cache.AuthorCommentsKey(b.Author),
		cache.PopularKey,
	}
	for _, bucket := range model.BucketsFor(b.Category) {
		keys = append(keys, cache.CategoryKey(bucket))
	}

	savers, err := iv.profiles.ListSavers(ctx, b.ID)
	if err != nil {
		// savedblog/recentlySaved carry the short TTL and expire on their own.
		iv.logger.Warn("listing savers for invalidation",
			slog.String("blogID", b.ID),
			slog.String("error", err.Error()),
		)
		return keys
	}
	for _, u := range savers {
		keys = append(keys, cache.SavedBlogKey(u), cache.RecentlySavedKey(u))
	}
	return keys
}

// invalidateBlogs deletes blogKeys of every blog plus extra.
func (iv *invalidator) invalidateBlogs(ctx context.Context, extra []string, blogs ...*model.Blog) {
	keys := append([]string(nil), extra...)
	for _, b := range blogs {
		keys = append(keys, iv.blogKeys(ctx, b)...)
	}
	iv.cache.Invalidate(ctx, keys...)
}

// nameKeys lists the per-user keys that embed username.
func nameKeys(username string) []string {
	return []string{
		cache.UserKey(username),
		cache.ProfileKey(username),
		cache.ProfilePicKey(username),
		cache.UserBlogKey(username),
		cache.AuthorCommentsKey(username),
		cache.SavedBlogKey(username),
		cache.RecentlySavedKey(username),
	}
}

// readBlog is the blog:<id> read path shared by BlogService and
// EngagementService.
func readBlog(ctx context.Context, c *cache.Cache, blogs repository.BlogRepository, id string) (*model.Blog, error) {
	return cache.ReadThrough(ctx, c, cache.BlogKey(id), c.TTL().Medium, func(ctx context.Context) (*model.Blog, error) {
		return blogs.GetBlog(ctx, id)
	})
}

func trimAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonNilBlogs(b []model.Blog) []model.Blog {
	if b == nil {
		return []model.Blog{}
	}
	return b
}
