// Package repository declares the record store the services depend on.
//
// Two backends implement every interface: repository/sqlite (the default,
// embedded) and repository/mongo (document store). Each method touches a single
// record; callers that need several writes orchestrate them in the service
// layer.
//
// Lookups that miss return an *apperror.AppError wrapping apperror.ErrNotFound.
package repository

import (
	"context"
	"time"

	"github.com/sakif/mr-blogs/internal/model"
)

// Store bundles the four repositories a backend provides.
type Store interface {
	Accounts() AccountRepository
	Profiles() ProfileRepository
	Blogs() BlogRepository
	Categories() CategoryRepository
	Close() error
}

type AccountRepository interface {
	// CreateAccount assigns ID and timestamps. Returns apperror.ErrConflict
	// when the email is already registered.
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByResetToken(ctx context.Context, token string) (*model.Account, error)
	UpdateUsername(ctx context.Context, id, username string) error
	// SetPassword stores a new hash and clears any pending reset token.
	SetPassword(ctx context.Context, id, passwordHash string) error
	SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error
	DeleteAccount(ctx context.Context, id string) error
}

type ProfileRepository interface {
	CreateProfile(ctx context.Context, profile *model.Profile) error
	GetProfile(ctx context.Context, name string) (*model.Profile, error)
	// UpdateProfile overwrites the display fields of the profile currently
	// named oldName (including the name itself). Saved blogs and followed
	// topics are left untouched.
	UpdateProfile(ctx context.Context, oldName string, profile *model.Profile) error
	AddSavedBlog(ctx context.Context, name, blogID string) error
	RemoveSavedBlog(ctx context.Context, name, blogID string) error
	AddFollowedTopic(ctx context.Context, name, category string) error
	RemoveFollowedTopic(ctx context.Context, name, category string) error
	// ListSavers returns the names of every profile whose saved list holds blogID.
	ListSavers(ctx context.Context, blogID string) ([]string, error)
	// ForgetSavedBlog removes blogID from every saved list.
	ForgetSavedBlog(ctx context.Context, blogID string) error
}

// BlogFilter narrows ListBlogs. Zero values mean "no constraint".
type BlogFilter struct {
	Author     string
	Categories []string // category IN (...)
	NotIn      []string // category NOT IN (...)
	IDs        []string // id IN (...); a non-nil empty slice matches nothing
	PublicOnly bool
	Limit      int
}

// View describes one visit for RecordView.
type View struct {
	Visitor     string
	At          time.Time
	Cooldown    time.Duration
	MaxVisitors int
}

type BlogRepository interface {
	CreateBlog(ctx context.Context, blog *model.Blog) error
	GetBlog(ctx context.Context, id string) (*model.Blog, error)
	// ListBlogs returns matching blogs in creation order.
	ListBlogs(ctx context.Context, filter BlogFilter) ([]model.Blog, error)
	// UpdateBlogContent overwrites author fields, image, title, body, tags and
	// category. Engagement state is untouched.
	UpdateBlogContent(ctx context.Context, blog *model.Blog) error
	SetPrivate(ctx context.Context, id string, private bool) error
	DeleteBlog(ctx context.Context, id string) error

	AddComment(ctx context.Context, blogID string, comment *model.Comment) error
	AddLike(ctx context.Context, blogID, username string) error
	RemoveLike(ctx context.Context, blogID, username string) error
	// RecordView applies the debounce rule and returns the blog after the
	// visit together with whether the counter moved.
	RecordView(ctx context.Context, blogID string, view View) (*model.Blog, bool, error)

	// Rename fan-out targets. Each replaces oldName with newName and is
	// idempotent.
	RenameAuthor(ctx context.Context, oldName, newName, avatar string) error
	RenameCommenter(ctx context.Context, oldName, newName, avatar string) error
	RenameLiker(ctx context.Context, oldName, newName string) error
}

type CategoryRepository interface {
	GetCategory(ctx context.Context, name string) (*model.Category, error)
	// AddFollower creates the category when it does not exist yet and reports
	// whether it did.
	AddFollower(ctx context.Context, name, username string) (bool, error)
	RemoveFollower(ctx context.Context, name, username string) error
	RenameFollower(ctx context.Context, oldName, newName string) error
}
