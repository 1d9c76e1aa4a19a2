package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// API groups the handlers behind the /api prefix.
type API struct {
	Accounts   *AccountHandler
	Profiles   *ProfileHandler
	Blogs      *BlogHandler
	Engagement *EngagementHandler
	Categories *CategoryHandler
	GitHub     *GitHubHandler // nil when GitHub sign-in is not configured
	Health     *HealthHandler
}

// Routes mounts every endpoint on r. requireAuth guards routes that act as
// the signed-in account; limitWrites wraps every state-changing route.
func (a *API) Routes(r chi.Router, requireAuth, limitWrites func(http.Handler) http.Handler) {
	r.Get("/healthz", a.Health.Health)

	if a.GitHub != nil {
		r.Get("/auth/github/login", a.GitHub.Login)
		r.Get("/auth/github/callback", a.GitHub.Callback)
	}

	r.Route("/api", func(r chi.Router) {
		// public reads
		r.Get("/users/{username}", a.Profiles.Account)
		r.Get("/users/{username}/blogs", a.Blogs.ListUser)
		r.Get("/users/{username}/comments", a.Engagement.AuthorComments)
		r.Get("/users/{username}/saved", a.Engagement.Saved)
		r.Get("/users/{username}/recently-saved", a.Engagement.RecentlySaved)
		r.Get("/profiles/{username}", a.Profiles.Get)
		r.Get("/profiles/{username}/picture", a.Profiles.Picture)

		r.Get("/blogs", a.Blogs.List)
		r.Get("/blogs/{id}", a.Blogs.Get)
		r.Get("/blogs/{id}/comments", a.Engagement.Comments)
		r.Get("/blogs/{id}/status", a.Engagement.Status)
		r.Get("/blogs/{id}/engagement", a.Engagement.Engagement)
		r.Get("/popular", a.Blogs.Popular)

		r.Get("/categories/{category}", a.Categories.Info)
		r.Get("/categories/{category}/blogs", a.Blogs.ListCategory)

		// anonymous writes
		r.Group(func(r chi.Router) {
			r.Use(limitWrites)
			r.Post("/register", a.Accounts.Register)
			r.Post("/login", a.Accounts.Login)
			r.Post("/logout", a.Accounts.Logout)
			r.Post("/password/forgot", a.Accounts.Forgot)
			r.Post("/password/reset", a.Accounts.Reset)
			r.Post("/blogs/{id}/views", a.Blogs.View)
		})

		// signed-in reads
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", a.Accounts.Me)
			r.Get("/profile", a.Profiles.Own)
		})

		// signed-in writes
		r.Group(func(r chi.Router) {
			r.Use(limitWrites)
			r.Use(requireAuth)
			r.Put("/profile", a.Profiles.Update)

			r.Post("/blogs", a.Blogs.Create)
			r.Put("/blogs/{id}", a.Blogs.Edit)
			r.Delete("/blogs/{id}", a.Blogs.Delete)
			r.Post("/blogs/{id}/private", a.Blogs.TogglePrivate)

			r.Post("/blogs/{id}/comments", a.Engagement.AddComment)
			r.Post("/blogs/{id}/like", a.Engagement.Like)
			r.Delete("/blogs/{id}/like", a.Engagement.Unlike)
			r.Post("/blogs/{id}/save", a.Engagement.Save)
			r.Delete("/blogs/{id}/save", a.Engagement.Unsave)

			r.Post("/categories/{category}/follow", a.Categories.Follow)
			r.Delete("/categories/{category}/follow", a.Categories.Unfollow)
		})
	})
}
