package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/mail"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

// ResetOptions configures the password-reset flow.
type ResetOptions struct {
	TTL     time.Duration // lifetime of a reset token
	LinkURL string        // frontend page; the token is appended as ?token=
}

// AccountService handles registration, sign-in and password reset.
type AccountService struct {
	accounts  repository.AccountRepository
	profiles  repository.ProfileRepository
	cache     *cache.Cache
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mailer    mail.Sender
	reset     ResetOptions
	logger    *slog.Logger
	now       func() time.Time
}

func NewAccountService(
	accounts repository.AccountRepository,
	profiles repository.ProfileRepository,
	c *cache.Cache,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer mail.Sender,
	reset ResetOptions,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		profiles:  profiles,
		cache:     c,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		reset:     reset,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthResult bundles the signed-in account with its access token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	Account *model.Account
	Token   string
}

// Register creates the account and its profile.
//
// The two records live in different collections and are written one after
// the other. If the profile insert fails the account is deleted again, so a
// username is never half-registered.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (*model.Account, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := usernameFree(ctx, s.accounts, s.profiles, username); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}
	return s.create(ctx, username, email, hash, model.DefaultProfilePic)
}

func (s *AccountService) create(ctx context.Context, username, email, hash, avatar string) (*model.Account, error) {
	account := &model.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	profile := &model.Profile{
		Name:           username,
		ProfilePic:     avatar,
		SavedBlogs:     []string{},
		FollowedTopics: []string{},
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		if delErr := s.accounts.DeleteAccount(ctx, account.ID); delErr != nil {
			s.logger.Error("rolling back account after failed profile insert",
				slog.String("accountID", account.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}

	s.cache.Invalidate(ctx,
		cache.UserKey(username),
		cache.ProfileKey(username),
		cache.ProfilePicKey(username),
	)
	s.logger.Info("account registered",
		slog.String("accountID", account.ID),
		slog.String("username", username),
	)
	return account, nil
}

// usernameFree checks both the account and the profile side, since a rename
// updates them one after the other.
func usernameFree(ctx context.Context, accounts repository.AccountRepository, profiles repository.ProfileRepository, username string) error {
	if _, err := accounts.GetAccountByUsername(ctx, username); err == nil {
		return apperror.Conflict("username", username)
	} else if !isNotFound(err) {
		return err
	}
	if _, err := profiles.GetProfile(ctx, username); err == nil {
		return apperror.Conflict("username", username)
	} else if !isNotFound(err) {
		return err
	}
	return nil
}

// Login checks email and password and issues an access token. Unknown email
// and wrong password produce the same error.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	account, err := s.accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if isNotFound(err) {
			return nil, invalid
		}
		return nil, err
	}
	if err := s.passwords.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/account: verifying password: %w", err)
	}
	return s.issue(account)
}

// GitHubLogin signs in the account registered under the GitHub email, or
// creates one named after the GitHub login. GitHub-created accounts have no
// password until the user runs the reset flow.
func (s *AccountService) GitHubLogin(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/account: GitHub user must not be nil")
	}

	account, err := s.accounts.GetAccountByEmail(ctx, normalizeEmail(gh.Email))
	if err == nil {
		return s.issue(account)
	}
	if !isNotFound(err) {
		return nil, err
	}

	username, err := s.pickGitHubUsername(ctx, gh)
	if err != nil {
		return nil, err
	}
	avatar := gh.AvatarURL
	if avatar == "" {
		avatar = model.DefaultProfilePic
	}
	account, err = s.create(ctx, username, normalizeEmail(gh.Email), "", avatar)
	if err != nil {
		return nil, err
	}
	return s.issue(account)
}

func (s *AccountService) pickGitHubUsername(ctx context.Context, gh *auth.GitHubUser) (string, error) {
	candidates := []string{gh.Login, gh.Login + "-" + strconv.FormatInt(gh.ID, 10)}
	for _, name := range candidates {
		if validateUsername(name) != nil {
			continue
		}
		err := usernameFree(ctx, s.accounts, s.profiles, name)
		if err == nil {
			return name, nil
		}
		if !isConflict(err) {
			return "", err
		}
	}
	return "", apperror.Conflict("username", gh.Login)
}

func (s *AccountService) issue(account *model.Account) (*AuthResult, error) {
	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating token for %s: %w", account.ID, err)
	}
	return &AuthResult{Account: account, Token: token}, nil
}

// Me returns the account behind an access token.
func (s *AccountService) Me(ctx context.Context, accountID string) (*model.Account, error) {
	if accountID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.accounts.GetAccountByID(ctx, accountID)
}

// ForgotPassword stores a fresh reset token and mails the link. It reports
// success for unknown addresses too, so the endpoint cannot be used to probe
// which emails are registered.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if isNotFound(err) {
			s.logger.Debug("password reset for unknown email")
			return nil
		}
		return err
	}

	token := uuid.NewString()
	if err := s.accounts.SetResetToken(ctx, account.ID, token, s.now().Add(s.reset.TTL)); err != nil {
		return err
	}

	link := s.reset.LinkURL + "?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(ctx, account.Email, account.Username, link); err != nil {
		s.logger.Error("sending password reset mail",
			slog.String("accountID", account.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ResetPassword sets a new password for the holder of a valid reset token.
// The token is single-use: SetPassword clears it.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	invalid := apperror.Unauthorized("invalid or expired reset token")

	if err := validatePassword(password); err != nil {
		return err
	}
	if token == "" {
		return invalid
	}
	account, err := s.accounts.GetAccountByResetToken(ctx, token)
	if err != nil {
		if isNotFound(err) {
			return invalid
		}
		return err
	}
	if account.ResetExpiresAt == nil || !s.now().Before(*account.ResetExpiresAt) {
		return invalid
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return apperror.ValidationFailed("password", err.Error())
	}
	if err := s.accounts.SetPassword(ctx, account.ID, hash); err != nil {
		return err
	}
	s.logger.Info("password reset", slog.String("accountID", account.ID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
