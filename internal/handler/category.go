package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/service"
)

type CategoryHandler struct {
	categories *service.CategoryService
	logger     *slog.Logger
}

func NewCategoryHandler(categories *service.CategoryService, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, logger: logger}
}

// Info handles GET /api/categories/{category}.
func (h *CategoryHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.categories.Info(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Follow handles POST /api/categories/{category}/follow.
func (h *CategoryHandler) Follow(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	if err := h.categories.Follow(r.Context(), accountID, chi.URLParam(r, "category")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unfollow handles DELETE /api/categories/{category}/follow.
func (h *CategoryHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	if err := h.categories.Unfollow(r.Context(), accountID, chi.URLParam(r, "category")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
