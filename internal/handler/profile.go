package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/service"
)

type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type updateProfileRequest struct {
	Name       string `json:"name"       validate:"max=30"`
	ProfilePic string `json:"profilePic" validate:"omitempty,url"`
	PhoneNo    string `json:"phoneNo"    validate:"max=30"`
	Bio        string `json:"bio"        validate:"max=500"`
	Instagram  string `json:"instagram"  validate:"max=200"`
	LinkedIn   string `json:"linkedin"   validate:"max=200"`
}

// Account handles GET /api/users/{username}.
func (h *ProfileHandler) Account(w http.ResponseWriter, r *http.Request) {
	account, err := h.profiles.Account(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Get handles GET /api/profiles/{username}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Picture handles GET /api/profiles/{username}/picture.
func (h *ProfileHandler) Picture(w http.ResponseWriter, r *http.Request) {
	pic, err := h.profiles.Picture(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pic)
}

// Own handles GET /api/profile.
func (h *ProfileHandler) Own(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	profile, err := h.profiles.Own(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Update handles PUT /api/profile. A changed name renames the account
// everywhere it appears.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	accountID, _ := auth.AccountIDFromContext(r.Context())
	profile, err := h.profiles.Update(r.Context(), accountID, service.ProfileUpdate{
		Name:       req.Name,
		ProfilePic: req.ProfilePic,
		PhoneNo:    req.PhoneNo,
		Bio:        req.Bio,
		Instagram:  req.Instagram,
		LinkedIn:   req.LinkedIn,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
