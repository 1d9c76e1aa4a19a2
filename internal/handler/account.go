package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/service"
)

// AccountHandler serves registration, password login and password reset.
type AccountHandler struct {
	accounts *service.AccountService
	session  Session
	logger   *slog.Logger
}

// Session controls the access-token cookie.
type Session struct {
	MaxAgeSeconds int
	Secure        bool
}

func NewAccountHandler(accounts *service.AccountService, session Session, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, session: session, logger: logger}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=30"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetRequest struct {
	Token    string `json:"token"    validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type accountInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func infoOf(a *model.Account) accountInfo {
	return accountInfo{ID: a.ID, Username: a.Username, Email: a.Email}
}

type loginResponse struct {
	Token string      `json:"token"`
	Info  accountInfo `json:"info"`
}

// Register handles POST /api/register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, infoOf(account))
}

// Login handles POST /api/login. The token is returned in the body for API
// clients and set as an HttpOnly cookie for browsers.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	auth.SetTokenCookie(w, res.Token, h.session.MaxAgeSeconds, h.session.Secure)
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, Info: infoOf(res.Account)})
}

// Logout handles POST /api/logout. Tokens are stateless, so this only drops
// the cookie; the token itself stays valid until it expires.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Forgot handles POST /api/password/forgot. It answers 202 whether or not the
// address is registered.
func (h *AccountHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address is registered, a reset link is on its way",
	})
}

// Reset handles POST /api/password/reset.
func (h *AccountHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	account, err := h.accounts.Me(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account.Public())
}
