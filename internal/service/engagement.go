package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

// EngagementService handles comments, likes and saved blogs.
type EngagementService struct {
	accounts repository.AccountRepository
	profiles repository.ProfileRepository
	blogs    repository.BlogRepository
	cache    *cache.Cache
	inv      *invalidator
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngagementService(store repository.Store, c *cache.Cache, logger *slog.Logger) *EngagementService {
	return &EngagementService{
		accounts: store.Accounts(),
		profiles: store.Profiles(),
		blogs:    store.Blogs(),
		cache:    c,
		inv:      &invalidator{cache: c, profiles: store.Profiles(), logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

func (s *EngagementService) Comments(ctx context.Context, blogID string) ([]model.Comment, error) {
	return cache.ReadThrough(ctx, s.cache, cache.CommentsKey(blogID), s.cache.TTL().Medium,
		func(ctx context.Context) ([]model.Comment, error) {
			blog, err := s.blogs.GetBlog(ctx, blogID)
			if err != nil {
				return nil, err
			}
			return nonNilComments(blog.Comments), nil
		})
}

// AuthorComments returns every comment left on author's blogs, blog by blog
// in creation order.
func (s *EngagementService) AuthorComments(ctx context.Context, author string) ([]model.Comment, error) {
	return cache.ReadThrough(ctx, s.cache, cache.AuthorCommentsKey(author), s.cache.TTL().Medium,
		func(ctx context.Context) ([]model.Comment, error) {
			blogs, err := s.blogs.ListBlogs(ctx, repository.BlogFilter{Author: author})
			if err != nil {
				return nil, err
			}
			out := []model.Comment{}
			for _, b := range blogs {
				out = append(out, b.Comments...)
			}
			return out, nil
		})
}

func (s *EngagementService) AddComment(ctx context.Context, accountID, blogID, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("comment", "comment is required")
	}
	if len(text) > MaxCommentLength {
		return nil, apperror.ValidationFailed("comment", "comment must be at most 2000 characters")
	}

	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetProfile(ctx, account.Username)
	if err != nil {
		return nil, err
	}
	blog, err := s.blogs.GetBlog(ctx, blogID)
	if err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:       xid.New().String(),
		Username: account.Username,
		UserImg:  profile.ProfilePic,
		Comment:  text,
		Date:     s.now().UTC(),
	}
	if err := s.blogs.AddComment(ctx, blogID, comment); err != nil {
		return nil, err
	}
	s.inv.invalidateBlogs(ctx, nil, blog)
	return comment, nil
}

func (s *EngagementService) Like(ctx context.Context, accountID, blogID string) error {
	return s.toggleLike(ctx, accountID, blogID, s.blogs.AddLike)
}

func (s *EngagementService) Unlike(ctx context.Context, accountID, blogID string) error {
	return s.toggleLike(ctx, accountID, blogID, s.blogs.RemoveLike)
}

func (s *EngagementService) toggleLike(ctx context.Context, accountID, blogID string, write func(context.Context, string, string) error) error {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	blog, err := s.blogs.GetBlog(ctx, blogID)
	if err != nil {
		return err
	}
	if err := write(ctx, blogID, account.Username); err != nil {
		return err
	}
	s.inv.invalidateBlogs(ctx, []string{cache.LikesSavedKey(blogID, account.Username)}, blog)
	return nil
}

func (s *EngagementService) Save(ctx context.Context, accountID, blogID string) error {
	return s.toggleSave(ctx, accountID, blogID, s.profiles.AddSavedBlog)
}

func (s *EngagementService) Unsave(ctx context.Context, accountID, blogID string) error {
	return s.toggleSave(ctx, accountID, blogID, s.profiles.RemoveSavedBlog)
}

func (s *EngagementService) toggleSave(ctx context.Context, accountID, blogID string, write func(context.Context, string, string) error) error {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if _, err := s.blogs.GetBlog(ctx, blogID); err != nil {
		return err
	}
	if err := write(ctx, account.Username, blogID); err != nil {
		return err
	}
	u := account.Username
	s.cache.Invalidate(ctx,
		cache.SavedBlogKey(u),
		cache.RecentlySavedKey(u),
		cache.LikesSavedKey(blogID, u),
		cache.ProfileKey(u),
	)
	return nil
}

// Status reports whether username liked and saved the blog.
func (s *EngagementService) Status(ctx context.Context, blogID, username string) (model.LikeSaveStatus, error) {
	if username == "" {
		return model.LikeSaveStatus{}, apperror.ValidationFailed("username", "username is required")
	}
	return cache.ReadThrough(ctx, s.cache, cache.LikesSavedKey(blogID, username), s.cache.TTL().Short,
		func(ctx context.Context) (model.LikeSaveStatus, error) {
			blog, err := s.blogs.GetBlog(ctx, blogID)
			if err != nil {
				return model.LikeSaveStatus{}, err
			}
			profile, err := s.profiles.GetProfile(ctx, username)
			if err != nil {
				return model.LikeSaveStatus{}, err
			}
			return model.LikeSaveStatus{
				Liked: blog.LikedBy(username),
				Saved: profile.HasSaved(blogID),
			}, nil
		})
}

// Engagement derives the per-user view from the blog:<id> snapshot, so it
// has no key of its own to go stale.
func (s *EngagementService) Engagement(ctx context.Context, blogID, username string) (*model.Engagement, error) {
	blog, err := readBlog(ctx, s.cache, s.blogs, blogID)
	if err != nil {
		return nil, err
	}
	return &model.Engagement{
		Likes:    model.Likes{LikedBy: nonNilStrings(blog.Likes.LikedBy)},
		Comments: nonNilComments(blog.Comments),
		IsLiked:  username != "" && blog.LikedBy(username),
	}, nil
}

// Saved returns the blogs username saved, in the order they were saved.
// Private blogs of other authors are left out.
func (s *EngagementService) Saved(ctx context.Context, username string) ([]model.Blog, error) {
	return cache.ReadThrough(ctx, s.cache, cache.SavedBlogKey(username), s.cache.TTL().Short,
		func(ctx context.Context) ([]model.Blog, error) {
			profile, err := s.profiles.GetProfile(ctx, username)
			if err != nil {
				return nil, err
			}
			return s.savedBlogs(ctx, profile)
		})
}

// RecentlySaved returns the first saved blogs together with every saved id
// and the user's avatar.
func (s *EngagementService) RecentlySaved(ctx context.Context, username string) (*model.RecentlySaved, error) {
	return cache.ReadThrough(ctx, s.cache, cache.RecentlySavedKey(username), s.cache.TTL().Short,
		func(ctx context.Context) (*model.RecentlySaved, error) {
			profile, err := s.profiles.GetProfile(ctx, username)
			if err != nil {
				return nil, err
			}
			blogs, err := s.savedBlogs(ctx, profile)
			if err != nil {
				return nil, err
			}
			if len(blogs) > RecentlySavedSize {
				blogs = blogs[:RecentlySavedSize]
			}
			return &model.RecentlySaved{
				Blogs:      blogs,
				BlogIDs:    nonNilStrings(profile.SavedBlogs),
				ProfilePic: profile.ProfilePic,
			}, nil
		})
}

func (s *EngagementService) savedBlogs(ctx context.Context, profile *model.Profile) ([]model.Blog, error) {
	if len(profile.SavedBlogs) == 0 {
		return []model.Blog{}, nil
	}
	blogs, err := s.blogs.ListBlogs(ctx, repository.BlogFilter{IDs: profile.SavedBlogs})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Blog, len(blogs))
	for _, b := range blogs {
		byID[b.ID] = b
	}
	out := make([]model.Blog, 0, len(blogs))
	for _, id := range profile.SavedBlogs {
		b, ok := byID[id]
		if !ok || (b.IsPrivate && b.Author != profile.Name) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func nonNilComments(c []model.Comment) []model.Comment {
	if c == nil {
		return []model.Comment{}
	}
	return c
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
