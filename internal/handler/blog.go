package handler

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/service"
)

type BlogHandler struct {
	blogs  *service.BlogService
	logger *slog.Logger
}

func NewBlogHandler(blogs *service.BlogService, logger *slog.Logger) *BlogHandler {
	return &BlogHandler{blogs: blogs, logger: logger}
}

type blogRequest struct {
	Title    string   `json:"title"    validate:"required,max=200"`
	Body     string   `json:"body"     validate:"required"`
	Image    string   `json:"image"    validate:"omitempty,url"`
	Tags     []string `json:"tags"     validate:"max=20"`
	Category string   `json:"category" validate:"required,max=100"`
}

func (req blogRequest) input() service.BlogInput {
	return service.BlogInput{
		Title:    req.Title,
		Body:     req.Body,
		Image:    req.Image,
		Tags:     req.Tags,
		Category: req.Category,
	}
}

// Create handles POST /api/blogs.
func (h *BlogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req blogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	accountID, _ := auth.AccountIDFromContext(r.Context())
	blog, err := h.blogs.Create(r.Context(), accountID, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("blog created", slog.String("id", blog.ID), slog.String("author", blog.Author))
	writeJSON(w, http.StatusCreated, blog)
}

// Get handles GET /api/blogs/{id}.
func (h *BlogHandler) Get(w http.ResponseWriter, r *http.Request) {
	blog, err := h.blogs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, blog)
}

// List handles GET /api/blogs.
func (h *BlogHandler) List(w http.ResponseWriter, r *http.Request) {
	blogs, err := h.blogs.ListAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, blogs)
}

// ListCategory handles GET /api/categories/{category}/blogs.
func (h *BlogHandler) ListCategory(w http.ResponseWriter, r *http.Request) {
	blogs, err := h.blogs.ListCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, blogs)
}

// ListUser handles GET /api/users/{username}/blogs.
func (h *BlogHandler) ListUser(w http.ResponseWriter, r *http.Request) {
	blogs, err := h.blogs.ListUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, blogs)
}

// Popular handles GET /api/popular.
func (h *BlogHandler) Popular(w http.ResponseWriter, r *http.Request) {
	blogs, err := h.blogs.Popular(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, blogs)
}

// Edit handles PUT /api/blogs/{id}.
func (h *BlogHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req blogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	accountID, _ := auth.AccountIDFromContext(r.Context())
	blog, err := h.blogs.Edit(r.Context(), accountID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, blog)
}

// Delete handles DELETE /api/blogs/{id}.
func (h *BlogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.blogs.Delete(r.Context(), accountID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("blog deleted", slog.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// TogglePrivate handles POST /api/blogs/{id}/private.
func (h *BlogHandler) TogglePrivate(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	private, err := h.blogs.TogglePrivate(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isPrivate": private})
}

// View handles POST /api/blogs/{id}/views. The visitor is the client address.
func (h *BlogHandler) View(w http.ResponseWriter, r *http.Request) {
	res, err := h.blogs.View(r.Context(), chi.URLParam(r, "id"), clientIP(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// clientIP strips the port from RemoteAddr. Behind a proxy the RealIP
// middleware has already replaced RemoteAddr with the forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
