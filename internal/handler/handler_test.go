package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/handler"
	sqliteRepo "github.com/sakif/mr-blogs/internal/repository/sqlite"
	"github.com/sakif/mr-blogs/internal/service"
)

// =========================================================================
// TEST HARNESS
// =========================================================================

type recordingMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, _, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

func (m *recordingMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		return ""
	}
	return m.links[len(m.links)-1]
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	mailer *recordingMailer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := cache.New(cache.NewMemoryStore(time.Minute), cache.DefaultTTL(), logger)
	tokens, err := auth.NewTokenService(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	accounts := service.NewAccountService(db.Accounts(), db.Profiles(), c, tokens,
		auth.NewPasswordServiceWithCost(4), mailer,
		service.ResetOptions{TTL: time.Hour, LinkURL: "http://localhost:3000/reset"}, logger)
	session := handler.Session{MaxAgeSeconds: 3600}

	api := &handler.API{
		Accounts:   handler.NewAccountHandler(accounts, session, logger),
		Profiles:   handler.NewProfileHandler(service.NewProfileService(db, c, logger), logger),
		Blogs:      handler.NewBlogHandler(service.NewBlogService(db, c, service.ViewOptions{Cooldown: time.Hour, MaxVisitors: 100}, logger), logger),
		Engagement: handler.NewEngagementHandler(service.NewEngagementService(db, c, logger), logger),
		Categories: handler.NewCategoryHandler(service.NewCategoryService(db, c, logger), logger),
		Health:     handler.NewHealthHandler(map[string]handler.Pinger{"store": db}, logger),
	}
	r := chi.NewRouter()
	passthrough := func(next http.Handler) http.Handler { return next }
	api.Routes(r, auth.RequireAuth(tokens), passthrough)

	return &testAPI{t: t, router: r, mailer: mailer}
}

func (a *testAPI) do(method, path, body, token string) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// signUp registers username with password "password123" and returns a token.
func (a *testAPI) signUp(username string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/register",
		`{"username":"`+username+`","email":"`+username+`@example.com","password":"password123"}`, "")
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/login",
		`{"email":"`+username+`@example.com","password":"password123"}`, "")
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[tokenJSON](a.t, rec).Token
}

type tokenJSON struct {
	Token string `json:"token"`
}

type blogJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Category  string    `json:"category"`
	IsPrivate bool      `json:"isPrivate"`
	Views     int64     `json:"views"`
	Likes     likesJSON `json:"likes"`
}

type likesJSON struct {
	LikedBy []string `json:"likedBy"`
}

func (a *testAPI) postBlog(token, title, category string) blogJSON {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/blogs",
		`{"title":"`+title+`","body":"some text","category":"`+category+`","tags":["go"]}`, token)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[blogJSON](a.t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	return decode[handler.ErrorResponse](t, rec)
}

// =========================================================================
// ACCOUNTS
// =========================================================================

func TestAccounts(t *testing.T) {
	t.Run("register login and me", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.do(http.MethodPost, "/api/register",
			`{"username":"alice","email":"Alice@Example.com","password":"password123"}`, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		info := decode[map[string]string](t, rec)
		assert.Equal(t, "alice", info["username"])
		assert.Equal(t, "alice@example.com", info["email"])
		assert.NotEmpty(t, info["id"])

		rec = api.do(http.MethodPost, "/api/login", `{"email":"alice@example.com","password":"password123"}`, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var login struct {
			Token string            `json:"token"`
			Info  map[string]string `json:"info"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
		assert.NotEmpty(t, login.Token)
		assert.Equal(t, info["id"], login.Info["id"])

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		rec = api.do(http.MethodGet, "/api/me", "", login.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		me := decode[map[string]any](t, rec)
		assert.Equal(t, "alice", me["username"])
		assert.NotContains(t, me, "passwordHash")
	})

	t.Run("me requires a token", func(t *testing.T) {
		api := newTestAPI(t)
		rec := api.do(http.MethodGet, "/api/me", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = api.do(http.MethodGet, "/api/me", "", "garbage")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("validation errors name the JSON field", func(t *testing.T) {
		api := newTestAPI(t)

		rec := api.do(http.MethodPost, "/api/register", `{"username":"bob","email":"nope","password":"password123"}`, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		e := errorOf(t, rec)
		assert.Equal(t, "validation_error", e.Error)
		assert.Equal(t, "email", e.Field)

		rec = api.do(http.MethodPost, "/api/register", `{"username":"bob","email":"bob@example.com","password":"short"}`, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "password", errorOf(t, rec).Field)

		rec = api.do(http.MethodPost, "/api/register", `{"username":"bob","admin":true}`, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorOf(t, rec).Message, "unknown field")

		rec = api.do(http.MethodPost, "/api/register", "", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "request body is empty", errorOf(t, rec).Message)

		rec = api.do(http.MethodPost, "/api/register", `{"username":`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		api := newTestAPI(t)
		api.signUp("carol")

		rec := api.do(http.MethodPost, "/api/register",
			`{"username":"carol","email":"other@example.com","password":"password123"}`, "")
		require.Equal(t, http.StatusConflict, rec.Code)
		e := errorOf(t, rec)
		assert.Equal(t, "conflict", e.Error)
		assert.Equal(t, "username", e.Field)
	})

	t.Run("wrong password", func(t *testing.T) {
		api := newTestAPI(t)
		api.signUp("dave")

		rec := api.do(http.MethodPost, "/api/login", `{"email":"dave@example.com","password":"wrong-password"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		api := newTestAPI(t)
		rec := api.do(http.MethodPost, "/api/logout", "", "")
		require.Equal(t, http.StatusNoContent, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.Less(t, cookies[0].MaxAge, 0)
	})

	t.Run("password reset round trip", func(t *testing.T) {
		api := newTestAPI(t)
		api.signUp("erin")

		rec := api.do(http.MethodPost, "/api/password/forgot", `{"email":"nobody@example.com"}`, "")
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, api.mailer.last())

		rec = api.do(http.MethodPost, "/api/password/forgot", `{"email":"erin@example.com"}`, "")
		require.Equal(t, http.StatusAccepted, rec.Code)
		link, err := url.Parse(api.mailer.last())
		require.NoError(t, err)
		token := link.Query().Get("token")
		require.NotEmpty(t, token)

		rec = api.do(http.MethodPost, "/api/password/reset", `{"token":"`+token+`","password":"new-password-1"}`, "")
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = api.do(http.MethodPost, "/api/login", `{"email":"erin@example.com","password":"new-password-1"}`, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		// single use
		rec = api.do(http.MethodPost, "/api/password/reset", `{"token":"`+token+`","password":"another-pass"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

// =========================================================================
// PROFILES
// =========================================================================

func TestProfiles(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp("alice")

	rec := api.do(http.MethodGet, "/api/users/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[map[string]any](t, rec)["username"])

	rec = api.do(http.MethodGet, "/api/profiles/alice/picture", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["profilePic"])

	rec = api.do(http.MethodGet, "/api/profiles/ghost", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/profile", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[map[string]any](t, rec)["name"])

	t.Run("rename is visible everywhere", func(t *testing.T) {
		b := api.postBlog(token, "Before rename", "Science")
		// warm the caches the rename must drop
		api.do(http.MethodGet, "/api/blogs/"+b.ID, "", "")
		api.do(http.MethodGet, "/api/users/alice/blogs", "", "")

		rec := api.do(http.MethodPut, "/api/profile",
			`{"name":"alicia","bio":"writer","profilePic":"https://img.example.com/a.png"}`, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		p := decode[map[string]any](t, rec)
		assert.Equal(t, "alicia", p["name"])
		assert.Equal(t, "writer", p["bio"])

		rec = api.do(http.MethodGet, "/api/users/alice", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = api.do(http.MethodGet, "/api/users/alicia", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = api.do(http.MethodGet, "/api/blogs/"+b.ID, "", "")
		assert.Equal(t, "alicia", decode[blogJSON](t, rec).Author)

		rec = api.do(http.MethodGet, "/api/users/alicia/blogs", "", "")
		assert.Len(t, decode[[]blogJSON](t, rec), 1)
		rec = api.do(http.MethodGet, "/api/users/alice/blogs", "", "")
		assert.Empty(t, decode[[]blogJSON](t, rec))
	})

	t.Run("bad picture url", func(t *testing.T) {
		rec := api.do(http.MethodPut, "/api/profile", `{"profilePic":"not a url"}`, token)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "profilePic", errorOf(t, rec).Field)
	})
}

// =========================================================================
// BLOGS
// =========================================================================

func TestBlogs(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice")
	bob := api.signUp("bob")

	t.Run("create requires auth", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/api/blogs", `{"title":"x","body":"y","category":"Science"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("create and read", func(t *testing.T) {
		b := api.postBlog(alice, "Hello", "Science")
		assert.Equal(t, "alice", b.Author)

		rec := api.do(http.MethodGet, "/api/blogs/"+b.ID, "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Hello", decode[blogJSON](t, rec).Title)

		rec = api.do(http.MethodGet, "/api/blogs/does-not-exist", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", errorOf(t, rec).Error)
	})

	t.Run("missing title", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/api/blogs", `{"body":"y","category":"Science"}`, alice)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "title", errorOf(t, rec).Field)
	})

	t.Run("only the author edits", func(t *testing.T) {
		b := api.postBlog(alice, "Mine", "Technology")

		rec := api.do(http.MethodPut, "/api/blogs/"+b.ID, `{"title":"Stolen","body":"x","category":"Technology"}`, bob)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = api.do(http.MethodPut, "/api/blogs/"+b.ID, `{"title":"Edited","body":"x","category":"Business"}`, alice)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Edited", decode[blogJSON](t, rec).Title)

		rec = api.do(http.MethodGet, "/api/categories/Business/blogs", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, hasBlog(decode[[]blogJSON](t, rec), b.ID))
	})

	t.Run("private blogs leave public listings", func(t *testing.T) {
		b := api.postBlog(alice, "Secret", "Health")

		rec := api.do(http.MethodGet, "/api/blogs", "", "")
		require.True(t, hasBlog(decode[[]blogJSON](t, rec), b.ID))

		rec = api.do(http.MethodPost, "/api/blogs/"+b.ID+"/private", "", alice)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"isPrivate":true}`, rec.Body.String())

		rec = api.do(http.MethodGet, "/api/blogs", "", "")
		assert.False(t, hasBlog(decode[[]blogJSON](t, rec), b.ID))
		rec = api.do(http.MethodGet, "/api/categories/Health/blogs", "", "")
		assert.False(t, hasBlog(decode[[]blogJSON](t, rec), b.ID))

		rec = api.do(http.MethodGet, "/api/users/alice/blogs", "", "")
		assert.True(t, hasBlog(decode[[]blogJSON](t, rec), b.ID), "the author's own listing keeps private blogs")
	})

	t.Run("views are debounced per client", func(t *testing.T) {
		b := api.postBlog(bob, "Viewed", "Science")

		rec := api.do(http.MethodPost, "/api/blogs/"+b.ID+"/views", "", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"views":1,"counted":true}`, rec.Body.String())

		rec = api.do(http.MethodPost, "/api/blogs/"+b.ID+"/views", "", "")
		assert.JSONEq(t, `{"views":1,"counted":false}`, rec.Body.String())

		rec = api.do(http.MethodGet, "/api/blogs/"+b.ID, "", "")
		assert.EqualValues(t, 1, decode[blogJSON](t, rec).Views)
	})

	t.Run("delete", func(t *testing.T) {
		b := api.postBlog(alice, "Short lived", "Science")

		rec := api.do(http.MethodDelete, "/api/blogs/"+b.ID, "", bob)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = api.do(http.MethodDelete, "/api/blogs/"+b.ID, "", alice)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = api.do(http.MethodGet, "/api/blogs/"+b.ID, "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("popular is never null", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/api/popular", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEqual(t, "null\n", rec.Body.String())
	})
}

func hasBlog(list []blogJSON, id string) bool {
	for _, b := range list {
		if b.ID == id {
			return true
		}
	}
	return false
}

// =========================================================================
// ENGAGEMENT
// =========================================================================

func TestEngagement(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice")
	bob := api.signUp("bob")
	b := api.postBlog(alice, "Talk to me", "Science")
	base := "/api/blogs/" + b.ID

	rec := api.do(http.MethodGet, base+"/comments", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = api.do(http.MethodPost, base+"/comments", `{"comment":"nice post"}`, bob)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[map[string]any](t, rec)
	assert.Equal(t, "bob", c["username"])
	assert.NotEmpty(t, c["id"])

	rec = api.do(http.MethodPost, base+"/comments", `{"comment":""}`, bob)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/users/alice/comments", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	// like and save
	require.Equal(t, http.StatusNoContent, api.do(http.MethodPost, base+"/like", "", bob).Code)
	require.Equal(t, http.StatusNoContent, api.do(http.MethodPost, base+"/save", "", bob).Code)

	rec = api.do(http.MethodGet, base+"/status?username=bob", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"liked":true,"saved":true}`, rec.Body.String())

	rec = api.do(http.MethodGet, base+"/status", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, base+"/engagement?username=bob", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var e struct {
		Likes    likesJSON `json:"likes"`
		Comments []any     `json:"comments"`
		IsLiked  bool      `json:"isLiked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, []string{"bob"}, e.Likes.LikedBy)
	assert.Len(t, e.Comments, 1)
	assert.True(t, e.IsLiked)

	rec = api.do(http.MethodGet, "/api/users/bob/saved", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[[]blogJSON](t, rec)
	require.Len(t, saved, 1)
	assert.Equal(t, b.ID, saved[0].ID)

	rec = api.do(http.MethodGet, "/api/users/bob/recently-saved", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rs struct {
		Blogs      []blogJSON `json:"recentlySaved"`
		BlogIDs    []string   `json:"blogIds"`
		ProfilePic string     `json:"profilePic"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	assert.Equal(t, []string{b.ID}, rs.BlogIDs)
	assert.Len(t, rs.Blogs, 1)
	assert.NotEmpty(t, rs.ProfilePic)

	// undo both
	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, base+"/like", "", bob).Code)
	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, base+"/save", "", bob).Code)

	rec = api.do(http.MethodGet, base+"/status?username=bob", "", "")
	assert.JSONEq(t, `{"liked":false,"saved":false}`, rec.Body.String())
	rec = api.do(http.MethodGet, "/api/users/bob/saved", "", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/blogs/nope/like", "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =========================================================================
// CATEGORIES
// =========================================================================

func TestCategories(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice")
	path := "/api/categories/" + url.PathEscape("Personal Development")

	rec := api.do(http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"Personal Development","followedBy":[]}`, rec.Body.String())

	rec = api.do(http.MethodPost, path+"/follow", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Equal(t, http.StatusNoContent, api.do(http.MethodPost, path+"/follow", "", alice).Code)
	rec = api.do(http.MethodGet, path, "", "")
	assert.JSONEq(t, `{"name":"Personal Development","followedBy":["alice"]}`, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/profile", "", alice)
	assert.Contains(t, rec.Body.String(), "Personal Development")

	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, path+"/follow", "", alice).Code)
	rec = api.do(http.MethodGet, path, "", "")
	assert.JSONEq(t, `{"name":"Personal Development","followedBy":[]}`, rec.Body.String())

	rec = api.do(http.MethodDelete, "/api/categories/Unknown/follow", "", alice)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =========================================================================
// HEALTH AND GITHUB
// =========================================================================

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := handler.NewHealthHandler(map[string]handler.Pinger{"store": stubPinger{}}, logger)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h = handler.NewHealthHandler(map[string]handler.Pinger{
		"store": stubPinger{},
		"cache": stubPinger{err: errors.New("connection refused")},
	}, logger)
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","failed":{"cache":"unreachable"}}`, rec.Body.String())
}

func TestGitHubHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := auth.NewGitHubProvider("client-id", "client-secret", "http://localhost/auth/github/callback")
	h := handler.NewGitHubHandler(provider, nil, handler.Session{MaxAgeSeconds: 60}, "", logger)

	t.Run("login sets the state cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

		require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "oauth_state", cookies[0].Name)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, cookies[0].Value, loc.Query().Get("state"))
	})

	t.Run("callback rejects a state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=c&state=forged", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "real"})
		rec := httptest.NewRecorder()
		h.Callback(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		h.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=c&state=real", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "no cookie at all")
	})

	t.Run("callback handles a denied authorization", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?error=access_denied&state=s", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
		rec := httptest.NewRecorder()
		h.Callback(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/?auth=denied", rec.Header().Get("Location"))
	})

	t.Run("callback without a code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
		rec := httptest.NewRecorder()
		h.Callback(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
