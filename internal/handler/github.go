package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/service"
)

const stateCookie = "oauth_state"

// GitHubHandler runs the "Sign in with GitHub" flow.
type GitHubHandler struct {
	github      *auth.GitHubProvider
	accounts    *service.AccountService
	session     Session
	redirectURL string
	logger      *slog.Logger
}

// NewGitHubHandler redirects the browser to redirectURL once signed in.
func NewGitHubHandler(github *auth.GitHubProvider, accounts *service.AccountService, session Session, redirectURL string, logger *slog.Logger) *GitHubHandler {
	if redirectURL == "" {
		redirectURL = "/"
	}
	return &GitHubHandler{
		github:      github,
		accounts:    accounts,
		session:     session,
		redirectURL: redirectURL,
		logger:      logger,
	}
}

// Login handles GET /auth/github/login.
//
// A random state is stored in a short-lived HttpOnly cookie and sent to
// GitHub; Callback only accepts a request that echoes it back, which proves
// the flow started here.
func (h *GitHubHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles GET /auth/github/callback?code=...&state=...
func (h *GitHubHandler) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid OAuth state"})
		return
	}
	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if denied := r.URL.Query().Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", denied))
		http.Redirect(w, r, h.redirectURL+"?auth=denied", http.StatusSeeOther)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream_error", Message: "GitHub sign-in failed"})
		return
	}

	res, err := h.accounts.GitHubLogin(r.Context(), ghUser)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("signed in with GitHub",
		slog.String("accountID", res.Account.ID),
		slog.String("login", ghUser.Login),
	)

	auth.SetTokenCookie(w, res.Token, h.session.MaxAgeSeconds, h.session.Secure)
	http.Redirect(w, r, h.redirectURL, http.StatusSeeOther)
}
