package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

// CategoryService handles category metadata and follows.
type CategoryService struct {
	accounts   repository.AccountRepository
	profiles   repository.ProfileRepository
	categories repository.CategoryRepository
	cache      *cache.Cache
	logger     *slog.Logger
}

func NewCategoryService(store repository.Store, c *cache.Cache, logger *slog.Logger) *CategoryService {
	return &CategoryService{
		accounts:   store.Accounts(),
		profiles:   store.Profiles(),
		categories: store.Categories(),
		cache:      c,
		logger:     logger,
	}
}

// Info returns the category with its followers. A category nobody has
// followed yet comes back empty rather than as NotFound.
func (s *CategoryService) Info(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	return cache.ReadThrough(ctx, s.cache, cache.CategoryInfoKey(name), s.cache.TTL().Long,
		func(ctx context.Context) (*model.Category, error) {
			c, err := s.categories.GetCategory(ctx, name)
			if isNotFound(err) {
				return &model.Category{Name: name, FollowedBy: []string{}}, nil
			}
			return c, err
		})
}

// Follow records the follow on both the category and the profile. Both
// writes are idempotent, so a failed follow is repaired by retrying.
func (s *CategoryService) Follow(ctx context.Context, accountID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("category", "category is required")
	}
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	created, err := s.categories.AddFollower(ctx, name, account.Username)
	if err != nil {
		return err
	}
	if err := s.profiles.AddFollowedTopic(ctx, account.Username, name); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.CategoryInfoKey(name), cache.ProfileKey(account.Username))

	if created {
		s.logger.Info("category created", slog.String("category", name))
	}
	return nil
}

func (s *CategoryService) Unfollow(ctx context.Context, accountID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("category", "category is required")
	}
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.categories.RemoveFollower(ctx, name, account.Username); err != nil {
		return err
	}
	if err := s.profiles.RemoveFollowedTopic(ctx, account.Username, name); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.CategoryInfoKey(name), cache.ProfileKey(account.Username))
	return nil
}
