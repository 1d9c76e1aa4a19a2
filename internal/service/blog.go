package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

// ViewOptions configures view counting.
type ViewOptions struct {
	Cooldown    time.Duration
	MaxVisitors int
}

// BlogService owns blog authoring, listings and view counting.
type BlogService struct {
	accounts repository.AccountRepository
	profiles repository.ProfileRepository
	blogs    repository.BlogRepository
	cache    *cache.Cache
	inv      *invalidator
	views    ViewOptions
	logger   *slog.Logger
	now      func() time.Time
}

func NewBlogService(store repository.Store, c *cache.Cache, views ViewOptions, logger *slog.Logger) *BlogService {
	return &BlogService{
		accounts: store.Accounts(),
		profiles: store.Profiles(),
		blogs:    store.Blogs(),
		cache:    c,
		inv:      &invalidator{cache: c, profiles: store.Profiles(), logger: logger},
		views:    views,
		logger:   logger,
		now:      time.Now,
	}
}

// BlogInput carries the author-editable fields of a blog.
type BlogInput struct {
	Title    string
	Body     string
	Image    string
	Tags     []string
	Category string
}

func (in *BlogInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.Image = strings.TrimSpace(in.Image)
	in.Category = strings.TrimSpace(in.Category)
	in.Tags = trimAll(in.Tags)

	switch {
	case in.Title == "":
		return apperror.ValidationFailed("title", "title is required")
	case len(in.Title) > MaxTitleLength:
		return apperror.ValidationFailed("title", "title must be at most 200 characters")
	case in.Body == "":
		return apperror.ValidationFailed("body", "body is required")
	case in.Category == "":
		return apperror.ValidationFailed("category", "category is required")
	}
	return nil
}

// ViewResult reports the counter after a visit.
type ViewResult struct {
	Views   int64 `json:"views"`
	Counted bool  `json:"counted"`
}

func (s *BlogService) Create(ctx context.Context, accountID string, in BlogInput) (*model.Blog, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetProfile(ctx, account.Username)
	if err != nil {
		return nil, err
	}

	blog := &model.Blog{
		Author:    account.Username,
		AuthorImg: profile.ProfilePic,
		AuthorID:  account.ID,
		Image:     in.Image,
		Title:     in.Title,
		Body:      in.Body,
		Tags:      in.Tags,
		Category:  in.Category,
	}
	if err := s.blogs.CreateBlog(ctx, blog); err != nil {
		return nil, err
	}
	s.inv.invalidateBlogs(ctx, nil, blog)

	s.logger.Info("blog created",
		slog.String("blogID", blog.ID),
		slog.String("author", blog.Author),
		slog.String("category", blog.Category),
	)
	return blog, nil
}

func (s *BlogService) Get(ctx context.Context, id string) (*model.Blog, error) {
	return readBlog(ctx, s.cache, s.blogs, id)
}

// ListAll returns every public blog.
func (s *BlogService) ListAll(ctx context.Context) ([]model.Blog, error) {
	return s.list(ctx, cache.AllBlogsKey, repository.BlogFilter{PublicOnly: true})
}

// ListCategory returns the public blogs of a listing bucket. "Health" also
// holds "Personal Development"; "Others" holds every category outside the
// known set.
func (s *BlogService) ListCategory(ctx context.Context, bucket string) ([]model.Blog, error) {
	m := model.MatchForBucket(bucket)
	return s.list(ctx, cache.CategoryKey(bucket), repository.BlogFilter{
		Categories: m.In,
		NotIn:      m.NotIn,
		PublicOnly: true,
	})
}

// ListUser returns every blog of author, private ones included.
func (s *BlogService) ListUser(ctx context.Context, author string) ([]model.Blog, error) {
	return s.list(ctx, cache.UserBlogKey(author), repository.BlogFilter{Author: author})
}

func (s *BlogService) list(ctx context.Context, key string, filter repository.BlogFilter) ([]model.Blog, error) {
	return cache.ReadThrough(ctx, s.cache, key, s.cache.TTL().Medium, func(ctx context.Context) ([]model.Blog, error) {
		blogs, err := s.blogs.ListBlogs(ctx, filter)
		return nonNilBlogs(blogs), err
	})
}

// Popular returns the public blogs that are both among the most liked and
// among the most commented, in most-liked order.
func (s *BlogService) Popular(ctx context.Context) ([]model.Blog, error) {
	return cache.ReadThrough(ctx, s.cache, cache.PopularKey, s.cache.TTL().Short, func(ctx context.Context) ([]model.Blog, error) {
		blogs, err := s.blogs.ListBlogs(ctx, repository.BlogFilter{PublicOnly: true})
		if err != nil {
			return nil, err
		}
		return popular(blogs, PopularSize), nil
	})
}

func popular(blogs []model.Blog, n int) []model.Blog {
	byLikes := append([]model.Blog(nil), blogs...)
	sort.SliceStable(byLikes, func(i, j int) bool {
		return len(byLikes[i].Likes.LikedBy) > len(byLikes[j].Likes.LikedBy)
	})
	byComments := append([]model.Blog(nil), blogs...)
	sort.SliceStable(byComments, func(i, j int) bool {
		return len(byComments[i].Comments) > len(byComments[j].Comments)
	})

	topCommented := make(map[string]bool, n)
	for i := 0; i < n && i < len(byComments); i++ {
		topCommented[byComments[i].ID] = true
	}
	out := []model.Blog{}
	for i := 0; i < n && i < len(byLikes); i++ {
		if topCommented[byLikes[i].ID] {
			out = append(out, byLikes[i])
		}
	}
	return out
}

// Edit replaces the content of a blog the caller wrote. Both the old and the
// new category buckets are invalidated.
func (s *BlogService) Edit(ctx context.Context, accountID, id string, in BlogInput) (*model.Blog, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	old, err := s.authored(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	updated := *old
	updated.Title = in.Title
	updated.Body = in.Body
	updated.Image = in.Image
	updated.Tags = in.Tags
	updated.Category = in.Category
	if err := s.blogs.UpdateBlogContent(ctx, &updated); err != nil {
		return nil, err
	}
	s.inv.invalidateBlogs(ctx, nil, old, &updated)

	return s.blogs.GetBlog(ctx, id)
}

// Delete removes a blog the caller wrote and drops it from every saved list.
func (s *BlogService) Delete(ctx context.Context, accountID, id string) error {
	blog, err := s.authored(ctx, accountID, id)
	if err != nil {
		return err
	}

	// Savers are gone from the record store once ForgetSavedBlog runs, so the
	// key set is computed first.
	keys := s.inv.blogKeys(ctx, blog)
	for _, u := range blog.Likes.LikedBy {
		keys = append(keys, cache.LikesSavedKey(id, u))
	}
	savers, err := s.profiles.ListSavers(ctx, id)
	if err != nil {
		return err
	}
	for _, u := range savers {
		keys = append(keys, cache.LikesSavedKey(id, u), cache.ProfileKey(u))
	}

	if err := s.blogs.DeleteBlog(ctx, id); err != nil {
		return err
	}
	// The record is gone from here on, even if cleaning the saved lists fails.
	s.cache.Invalidate(ctx, keys...)
	if err := s.profiles.ForgetSavedBlog(ctx, id); err != nil {
		return fmt.Errorf("service/blog: forgetting saves of %s: %w", id, err)
	}

	s.logger.Info("blog deleted", slog.String("blogID", id), slog.String("author", blog.Author))
	return nil
}

// TogglePrivate flips the visibility of a blog the caller wrote and returns
// the new value.
func (s *BlogService) TogglePrivate(ctx context.Context, accountID, id string) (bool, error) {
	blog, err := s.authored(ctx, accountID, id)
	if err != nil {
		return false, err
	}
	private := !blog.IsPrivate
	if err := s.blogs.SetPrivate(ctx, id, private); err != nil {
		return false, err
	}
	s.inv.invalidateBlogs(ctx, nil, blog)
	return private, nil
}

// View records a visit from visitor. A counted visit overwrites blog:<id>
// with the fresh snapshot; listings pick up the new counter when they expire.
func (s *BlogService) View(ctx context.Context, id, visitor string) (ViewResult, error) {
	if visitor == "" {
		return ViewResult{}, apperror.ValidationFailed("visitor", "visitor address is required")
	}
	blog, counted, err := s.blogs.RecordView(ctx, id, repository.View{
		Visitor:     visitor,
		At:          s.now(),
		Cooldown:    s.views.Cooldown,
		MaxVisitors: s.views.MaxVisitors,
	})
	if err != nil {
		return ViewResult{}, err
	}
	if counted {
		s.cache.Put(ctx, cache.BlogKey(id), blog, s.cache.TTL().Medium)
	}
	return ViewResult{Views: blog.Views, Counted: counted}, nil
}

// authored loads a blog from the record store and checks that accountID
// wrote it.
func (s *BlogService) authored(ctx context.Context, accountID, id string) (*model.Blog, error) {
	blog, err := s.blogs.GetBlog(ctx, id)
	if err != nil {
		return nil, err
	}
	if blog.AuthorID != accountID {
		return nil, apperror.Forbidden("only the author can change this blog")
	}
	return blog, nil
}
