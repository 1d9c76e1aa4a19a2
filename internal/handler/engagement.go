package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/service"
)

type EngagementHandler struct {
	engagement *service.EngagementService
	logger     *slog.Logger
}

func NewEngagementHandler(engagement *service.EngagementService, logger *slog.Logger) *EngagementHandler {
	return &EngagementHandler{engagement: engagement, logger: logger}
}

type commentRequest struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

// Comments handles GET /api/blogs/{id}/comments.
func (h *EngagementHandler) Comments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.engagement.Comments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// AddComment handles POST /api/blogs/{id}/comments.
func (h *EngagementHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	accountID, _ := auth.AccountIDFromContext(r.Context())
	comment, err := h.engagement.AddComment(r.Context(), accountID, chi.URLParam(r, "id"), req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// AuthorComments handles GET /api/users/{username}/comments: every comment
// left on the user's blogs.
func (h *EngagementHandler) AuthorComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.engagement.AuthorComments(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *EngagementHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.engagement.Like)
}

func (h *EngagementHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.engagement.Unlike)
}

func (h *EngagementHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.engagement.Save)
}

func (h *EngagementHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.engagement.Unsave)
}

func (h *EngagementHandler) toggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, accountID, blogID string) error) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	if err := op(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/blogs/{id}/status?username=...
func (h *EngagementHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.engagement.Status(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Engagement handles GET /api/blogs/{id}/engagement?username=...
func (h *EngagementHandler) Engagement(w http.ResponseWriter, r *http.Request) {
	e, err := h.engagement.Engagement(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Saved handles GET /api/users/{username}/saved.
func (h *EngagementHandler) Saved(w http.ResponseWriter, r *http.Request) {
	blogs, err := h.engagement.Saved(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, blogs)
}

// RecentlySaved handles GET /api/users/{username}/recently-saved.
func (h *EngagementHandler) RecentlySaved(w http.ResponseWriter, r *http.Request) {
	rs, err := h.engagement.RecentlySaved(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}
