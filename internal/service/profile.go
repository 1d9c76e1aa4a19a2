package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

// ProfileService serves account and profile lookups and applies profile
// edits, including renames.
type ProfileService struct {
	accounts   repository.AccountRepository
	profiles   repository.ProfileRepository
	blogs      repository.BlogRepository
	categories repository.CategoryRepository
	cache      *cache.Cache
	inv        *invalidator
	logger     *slog.Logger
}

func NewProfileService(store repository.Store, c *cache.Cache, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		accounts:   store.Accounts(),
		profiles:   store.Profiles(),
		blogs:      store.Blogs(),
		categories: store.Categories(),
		cache:      c,
		inv:        &invalidator{cache: c, profiles: store.Profiles(), logger: logger},
		logger:     logger,
	}
}

// Picture is the profile_pic:<username> snapshot.
type Picture struct {
	ProfilePic string `json:"profilePic"`
}

// ProfileUpdate carries the editable profile fields. An empty Name keeps the
// current username.
type ProfileUpdate struct {
	Name       string
	ProfilePic string
	PhoneNo    string
	Bio        string
	Instagram  string
	LinkedIn   string
}

// Account returns the public fields of the account named username.
func (s *ProfileService) Account(ctx context.Context, username string) (model.PublicAccount, error) {
	return cache.ReadThrough(ctx, s.cache, cache.UserKey(username), s.cache.TTL().Medium,
		func(ctx context.Context) (model.PublicAccount, error) {
			a, err := s.accounts.GetAccountByUsername(ctx, username)
			if err != nil {
				return model.PublicAccount{}, err
			}
			return a.Public(), nil
		})
}

func (s *ProfileService) Get(ctx context.Context, username string) (*model.Profile, error) {
	return cache.ReadThrough(ctx, s.cache, cache.ProfileKey(username), s.cache.TTL().Medium,
		func(ctx context.Context) (*model.Profile, error) {
			return s.profiles.GetProfile(ctx, username)
		})
}

func (s *ProfileService) Picture(ctx context.Context, username string) (Picture, error) {
	return cache.ReadThrough(ctx, s.cache, cache.ProfilePicKey(username), s.cache.TTL().Medium,
		func(ctx context.Context) (Picture, error) {
			p, err := s.profiles.GetProfile(ctx, username)
			if err != nil {
				return Picture{}, err
			}
			return Picture{ProfilePic: p.ProfilePic}, nil
		})
}

// Own returns the profile of the signed-in account.
func (s *ProfileService) Own(ctx context.Context, accountID string) (*model.Profile, error) {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, account.Username)
}

// Update overwrites the profile of the signed-in account.
//
// The username and avatar are copied into blogs, comments, likes and category
// followers, so a change fans out in a fixed order: account, profile, blog
// authors, commenters, likers, category followers. Every step replaces the
// old value with the new one, so re-running the update repairs a rename that
// failed halfway.
func (s *ProfileService) Update(ctx context.Context, accountID string, in ProfileUpdate) (*model.Profile, error) {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	oldName := account.Username

	current, err := s.profiles.GetProfile(ctx, oldName)
	if err != nil {
		return nil, err
	}

	newName := strings.TrimSpace(in.Name)
	if newName == "" {
		newName = oldName
	}
	renamed := newName != oldName
	if renamed {
		if err := validateUsername(newName); err != nil {
			return nil, err
		}
		if err := usernameFree(ctx, s.accounts, s.profiles, newName); err != nil {
			return nil, err
		}
	}

	avatar := strings.TrimSpace(in.ProfilePic)
	if avatar == "" {
		avatar = current.ProfilePic
	}

	// Snapshot the affected blogs before they change; their keys embed the
	// old name.
	touched, err := s.touchedBlogs(ctx, oldName)
	if err != nil {
		return nil, err
	}

	if renamed {
		if err := s.accounts.UpdateUsername(ctx, account.ID, newName); err != nil {
			return nil, err
		}
	}
	updated := &model.Profile{
		ID:         current.ID,
		Name:       newName,
		ProfilePic: avatar,
		PhoneNo:    strings.TrimSpace(in.PhoneNo),
		Bio:        strings.TrimSpace(in.Bio),
		Instagram:  strings.TrimSpace(in.Instagram),
		LinkedIn:   strings.TrimSpace(in.LinkedIn),
	}
	if err := s.profiles.UpdateProfile(ctx, oldName, updated); err != nil {
		return nil, err
	}
	if err := s.cascade(ctx, oldName, newName, avatar, renamed); err != nil {
		return nil, err
	}

	keys := append(nameKeys(oldName), nameKeys(newName)...)
	for _, topic := range current.FollowedTopics {
		keys = append(keys, cache.CategoryInfoKey(topic))
	}
	// Status snapshots are keyed by name; a freed name must not inherit them.
	for _, b := range touched {
		keys = append(keys, cache.LikesSavedKey(b.ID, oldName), cache.LikesSavedKey(b.ID, newName))
	}
	for _, id := range current.SavedBlogs {
		keys = append(keys, cache.LikesSavedKey(id, oldName), cache.LikesSavedKey(id, newName))
	}
	s.inv.invalidateBlogs(ctx, keys, touched...)

	if renamed {
		s.logger.Info("account renamed",
			slog.String("accountID", account.ID),
			slog.String("from", oldName),
			slog.String("to", newName),
			slog.Int("blogs", len(touched)),
		)
	}
	return s.profiles.GetProfile(ctx, newName)
}

// cascade copies the new name and avatar into every denormalized copy.
// Likers and followers only store the name, and their rename deletes rows of
// the old name, so they are skipped when the name is unchanged.
func (s *ProfileService) cascade(ctx context.Context, oldName, newName, avatar string, renamed bool) error {
	if err := s.blogs.RenameAuthor(ctx, oldName, newName, avatar); err != nil {
		return fmt.Errorf("service/profile: renaming blog authors: %w", err)
	}
	if err := s.blogs.RenameCommenter(ctx, oldName, newName, avatar); err != nil {
		return fmt.Errorf("service/profile: renaming commenters: %w", err)
	}
	if !renamed {
		return nil
	}
	if err := s.blogs.RenameLiker(ctx, oldName, newName); err != nil {
		return fmt.Errorf("service/profile: renaming likers: %w", err)
	}
	if err := s.categories.RenameFollower(ctx, oldName, newName); err != nil {
		return fmt.Errorf("service/profile: renaming category followers: %w", err)
	}
	return nil
}

// touchedBlogs returns every blog username wrote, commented on or liked.
func (s *ProfileService) touchedBlogs(ctx context.Context, username string) ([]*model.Blog, error) {
	all, err := s.blogs.ListBlogs(ctx, repository.BlogFilter{})
	if err != nil {
		return nil, err
	}
	var out []*model.Blog
	for i := range all {
		b := &all[i]
		if b.Author == username || b.LikedBy(username) || commentedBy(b, username) {
			out = append(out, b)
		}
	}
	return out, nil
}

func commentedBy(b *model.Blog, username string) bool {
	for _, c := range b.Comments {
		if c.Username == username {
			return true
		}
	}
	return false
}
