package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================

// fakeStore implements all four repositories in memory. Records are copied
// in and out so tests cannot alias internal state.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int
	accounts   map[string]*model.Account
	profiles   map[string]*model.Profile // keyed by name
	blogs      map[string]*model.Blog
	blogOrder  []string
	categories map[string]*model.Category

	// call counters
	getBlogCalls   int
	listBlogsCalls int

	// failure injection
	createProfileErr error
	listSaversErr    error
	forgetSavedErr   error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   make(map[string]*model.Account),
		profiles:   make(map[string]*model.Profile),
		blogs:      make(map[string]*model.Blog),
		categories: make(map[string]*model.Category),
	}
}

func (f *fakeStore) Accounts() repository.AccountRepository { return f }
func (f *fakeStore) Profiles() repository.ProfileRepository { return f }
func (f *fakeStore) Blogs() repository.BlogRepository { return f }
func (f *fakeStore) Categories() repository.CategoryRepository { return f }
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// --- accounts ---

func (f *fakeStore) CreateAccount(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.Email == a.Email {
			return apperror.Conflict("email", a.Email)
		}
	}
	a.ID = f.id("acc")
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeStore) findAccount(match func(*model.Account) bool, what string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("account", what)
}

func (f *fakeStore) GetAccountByID(_ context.Context, id string) (*model.Account, error) {
	return f.findAccount(func(a *model.Account) bool { return a.ID == id }, id)
}

func (f *fakeStore) GetAccountByUsername(_ context.Context, username string) (*model.Account, error) {
	return f.findAccount(func(a *model.Account) bool { return a.Username == username }, username)
}

func (f *fakeStore) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	return f.findAccount(func(a *model.Account) bool { return a.Email == email }, email)
}

func (f *fakeStore) GetAccountByResetToken(_ context.Context, token string) (*model.Account, error) {
	return f.findAccount(func(a *model.Account) bool { return a.ResetToken != "" && a.ResetToken == token }, token)
}

func (f *fakeStore) withAccount(id string, fn func(*model.Account)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return apperror.NotFound("account", id)
	}
	fn(a)
	return nil
}

func (f *fakeStore) UpdateUsername(_ context.Context, id, username string) error {
	return f.withAccount(id, func(a *model.Account) { a.Username = username })
}

func (f *fakeStore) SetPassword(_ context.Context, id, hash string) error {
	return f.withAccount(id, func(a *model.Account) {
		a.PasswordHash = hash
		a.ResetToken = ""
		a.ResetExpiresAt = nil
	})
}

func (f *fakeStore) SetResetToken(_ context.Context, id, token string, expiresAt time.Time) error {
	return f.withAccount(id, func(a *model.Account) {
		a.ResetToken = token
		a.ResetExpiresAt = &expiresAt
	})
}

func (f *fakeStore) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return apperror.NotFound("account", id)
	}
	delete(f.accounts, id)
	return nil
}

// --- profiles ---

func copyProfile(p *model.Profile) *model.Profile {
	cp := *p
	cp.SavedBlogs = append([]string{}, p.SavedBlogs...)
	cp.FollowedTopics = append([]string{}, p.FollowedTopics...)
	return &cp
}

func (f *fakeStore) CreateProfile(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createProfileErr != nil {
		return f.createProfileErr
	}
	if _, ok := f.profiles[p.Name]; ok {
		return apperror.Conflict("username", p.Name)
	}
	if p.ID == "" {
		p.ID = f.id("prof")
	}
	f.profiles[p.Name] = copyProfile(p)
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, name string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[name]
	if !ok {
		return nil, apperror.NotFound("profile", name)
	}
	return copyProfile(p), nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, oldName string, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.profiles[oldName]
	if !ok {
		return apperror.NotFound("profile", oldName)
	}
	if p.Name != oldName {
		if _, taken := f.profiles[p.Name]; taken {
			return apperror.Conflict("username", p.Name)
		}
	}
	cur.Name = p.Name
	cur.ProfilePic = p.ProfilePic
	cur.PhoneNo = p.PhoneNo
	cur.Bio = p.Bio
	cur.Instagram = p.Instagram
	cur.LinkedIn = p.LinkedIn
	delete(f.profiles, oldName)
	f.profiles[p.Name] = cur
	return nil
}

func (f *fakeStore) withProfile(name string, fn func(*model.Profile)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[name]
	if !ok {
		return apperror.NotFound("profile", name)
	}
	fn(p)
	return nil
}

func addToSet(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func removeFromSet(list []string, v string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == v })
}

func (f *fakeStore) AddSavedBlog(_ context.Context, name, blogID string) error {
	return f.withProfile(name, func(p *model.Profile) { p.SavedBlogs = addToSet(p.SavedBlogs, blogID) })
}

func (f *fakeStore) RemoveSavedBlog(_ context.Context, name, blogID string) error {
	return f.withProfile(name, func(p *model.Profile) { p.SavedBlogs = removeFromSet(p.SavedBlogs, blogID) })
}

func (f *fakeStore) AddFollowedTopic(_ context.Context, name, category string) error {
	return f.withProfile(name, func(p *model.Profile) { p.FollowedTopics = addToSet(p.FollowedTopics, category) })
}

func (f *fakeStore) RemoveFollowedTopic(_ context.Context, name, category string) error {
	return f.withProfile(name, func(p *model.Profile) { p.FollowedTopics = removeFromSet(p.FollowedTopics, category) })
}

func (f *fakeStore) ListSavers(_ context.Context, blogID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listSaversErr != nil {
		return nil, f.listSaversErr
	}
	out := []string{}
	for name, p := range f.profiles {
		if slices.Contains(p.SavedBlogs, blogID) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (f *fakeStore) ForgetSavedBlog(_ context.Context, blogID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forgetSavedErr != nil {
		return f.forgetSavedErr
	}
	for _, p := range f.profiles {
		p.SavedBlogs = removeFromSet(p.SavedBlogs, blogID)
	}
	return nil
}

// --- blogs ---

func copyBlog(b *model.Blog) model.Blog {
	cp := *b
	cp.Tags = append([]string{}, b.Tags...)
	cp.Comments = append([]model.Comment{}, b.Comments...)
	cp.Likes.LikedBy = append([]string{}, b.Likes.LikedBy...)
	cp.Visitors = append([]string{}, b.Visitors...)
	return cp
}

func (f *fakeStore) CreateBlog(_ context.Context, b *model.Blog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = f.id("blog")
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	b.Comments = []model.Comment{}
	b.Likes = model.Likes{LikedBy: []string{}}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	cp := copyBlog(b)
	f.blogs[b.ID] = &cp
	f.blogOrder = append(f.blogOrder, b.ID)
	return nil
}

func (f *fakeStore) GetBlog(_ context.Context, id string) (*model.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getBlogCalls++
	b, ok := f.blogs[id]
	if !ok {
		return nil, apperror.NotFound("blog", id)
	}
	cp := copyBlog(b)
	return &cp, nil
}

func (f *fakeStore) ListBlogs(_ context.Context, filter repository.BlogFilter) ([]model.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listBlogsCalls++
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []model.Blog{}, nil
	}
	out := []model.Blog{}
	for _, id := range f.blogOrder {
		b, ok := f.blogs[id]
		switch {
		case !ok:
			continue
		case filter.Author != "" && b.Author != filter.Author:
			continue
		case len(filter.Categories) > 0 && !slices.Contains(filter.Categories, b.Category):
			continue
		case slices.Contains(filter.NotIn, b.Category):
			continue
		case filter.IDs != nil && !slices.Contains(filter.IDs, b.ID):
			continue
		case filter.PublicOnly && b.IsPrivate:
			continue
		}
		out = append(out, copyBlog(b))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) withBlog(id string, fn func(*model.Blog)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blogs[id]
	if !ok {
		return apperror.NotFound("blog", id)
	}
	fn(b)
	return nil
}

func (f *fakeStore) UpdateBlogContent(_ context.Context, in *model.Blog) error {
	return f.withBlog(in.ID, func(b *model.Blog) {
		b.Author, b.AuthorImg, b.AuthorID = in.Author, in.AuthorImg, in.AuthorID
		b.Image, b.Title, b.Body, b.Category = in.Image, in.Title, in.Body, in.Category
		b.Tags = append([]string{}, in.Tags...)
		b.UpdatedAt = time.Now()
	})
}

func (f *fakeStore) SetPrivate(_ context.Context, id string, private bool) error {
	return f.withBlog(id, func(b *model.Blog) { b.IsPrivate = private })
}

func (f *fakeStore) DeleteBlog(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blogs[id]; !ok {
		return apperror.NotFound("blog", id)
	}
	delete(f.blogs, id)
	f.blogOrder = removeFromSet(f.blogOrder, id)
	return nil
}

func (f *fakeStore) AddComment(_ context.Context, blogID string, c *model.Comment) error {
	return f.withBlog(blogID, func(b *model.Blog) { b.Comments = append(b.Comments, *c) })
}

func (f *fakeStore) AddLike(_ context.Context, blogID, username string) error {
	return f.withBlog(blogID, func(b *model.Blog) { b.Likes.LikedBy = addToSet(b.Likes.LikedBy, username) })
}

func (f *fakeStore) RemoveLike(_ context.Context, blogID, username string) error {
	return f.withBlog(blogID, func(b *model.Blog) { b.Likes.LikedBy = removeFromSet(b.Likes.LikedBy, username) })
}

func (f *fakeStore) RecordView(_ context.Context, blogID string, v repository.View) (*model.Blog, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blogs[blogID]
	if !ok {
		return nil, false, apperror.NotFound("blog", blogID)
	}
	seen := slices.Contains(b.Visitors, v.Visitor)
	cooled := b.LastViewedAt == nil || v.At.Sub(*b.LastViewedAt) >= v.Cooldown
	counted := !seen || cooled
	if counted {
		b.Views++
		at := v.At
		b.LastViewedAt = &at
		if !seen {
			b.Visitors = append(b.Visitors, v.Visitor)
			if v.MaxVisitors > 0 && len(b.Visitors) > v.MaxVisitors {
				b.Visitors = b.Visitors[len(b.Visitors)-v.MaxVisitors:]
			}
		}
	}
	cp := copyBlog(b)
	return &cp, counted, nil
}

func (f *fakeStore) RenameAuthor(_ context.Context, oldName, newName, avatar string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blogs {
		if b.Author == oldName {
			b.Author, b.AuthorImg = newName, avatar
		}
	}
	return nil
}

func (f *fakeStore) RenameCommenter(_ context.Context, oldName, newName, avatar string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blogs {
		for i := range b.Comments {
			if b.Comments[i].Username == oldName {
				b.Comments[i].Username, b.Comments[i].UserImg = newName, avatar
			}
		}
	}
	return nil
}

func (f *fakeStore) RenameLiker(_ context.Context, oldName, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blogs {
		if slices.Contains(b.Likes.LikedBy, oldName) {
			b.Likes.LikedBy = addToSet(removeFromSet(b.Likes.LikedBy, oldName), newName)
		}
	}
	return nil
}

// --- categories ---

func (f *fakeStore) GetCategory(_ context.Context, name string) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[name]
	if !ok {
		return nil, apperror.NotFound("category", name)
	}
	return &model.Category{Name: c.Name, FollowedBy: append([]string{}, c.FollowedBy...)}, nil
}

func (f *fakeStore) AddFollower(_ context.Context, name, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[name]
	if !ok {
		c = &model.Category{Name: name, FollowedBy: []string{}}
		f.categories[name] = c
	}
	c.FollowedBy = addToSet(c.FollowedBy, username)
	return !ok, nil
}

func (f *fakeStore) RemoveFollower(_ context.Context, name, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[name]
	if !ok {
		return apperror.NotFound("category", name)
	}
	c.FollowedBy = removeFromSet(c.FollowedBy, username)
	return nil
}

func (f *fakeStore) RenameFollower(_ context.Context, oldName, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.categories {
		if slices.Contains(c.FollowedBy, oldName) {
			c.FollowedBy = addToSet(removeFromSet(c.FollowedBy, oldName), newName)
		}
	}
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires every service to one fake store and one in-process cache.
type testEnv struct {
	store      *fakeStore
	mem        *cache.MemoryStore
	cache      *cache.Cache
	accounts   *AccountService
	profiles   *ProfileService
	blogs      *BlogService
	engagement *EngagementService
	categories *CategoryService
	mailer     *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	mem := cache.NewMemoryStore(time.Minute)
	c := cache.New(mem, cache.DefaultTTL(), discardLogger())
	t.Cleanup(func() { c.Close() })

	env := &testEnv{store: store, mem: mem, cache: c, mailer: &recordingMailer{}}
	env.accounts = NewAccountService(store, store, c, newTestTokens(t), newTestPasswords(), env.mailer,
		ResetOptions{TTL: time.Hour, LinkURL: "http://localhost:3000/reset-password"}, discardLogger())
	env.profiles = NewProfileService(store, c, discardLogger())
	env.blogs = NewBlogService(store, c, ViewOptions{Cooldown: 30 * time.Minute, MaxVisitors: 1000}, discardLogger())
	env.engagement = NewEngagementService(store, c, discardLogger())
	env.categories = NewCategoryService(store, c, discardLogger())
	return env
}

// register creates an account and returns its ID.
func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	a, err := e.accounts.Register(context.Background(), username, username+"@example.com", "password123")
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	return a.ID
}

func (e *testEnv) createBlog(t *testing.T, accountID, title, category string) *model.Blog {
	t.Helper()
	b, err := e.blogs.Create(context.Background(), accountID, BlogInput{
		Title:    title,
		Body:     "body of " + title,
		Category: category,
	})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", title, err)
	}
	return b
}

// cached reports whether key currently holds a snapshot.
func (e *testEnv) cached(key string) bool {
	_, err := e.mem.Get(context.Background(), key)
	return err == nil
}

// seed writes a placeholder snapshot under every key.
func (e *testEnv) seed(keys ...string) {
	for _, k := range keys {
		e.mem.Set(context.Background(), k, []byte(`"stale"`), time.Hour)
	}
}
