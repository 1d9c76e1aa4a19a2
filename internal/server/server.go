// Package server is the composition root: it opens the record store and the
// cache, wires services to handlers and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/mr-blogs/internal/auth"
	"github.com/sakif/mr-blogs/internal/cache"
	"github.com/sakif/mr-blogs/internal/config"
	"github.com/sakif/mr-blogs/internal/handler"
	"github.com/sakif/mr-blogs/internal/mail"
	"github.com/sakif/mr-blogs/internal/middleware"
	"github.com/sakif/mr-blogs/internal/repository"
	"github.com/sakif/mr-blogs/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/mr-blogs/internal/repository/sqlite"
	"github.com/sakif/mr-blogs/internal/service"
)

// Server owns the store and cache connections and closes them on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	cache   *cache.Cache
	limiter *middleware.RateLimiter
}

// New connects to the configured backends and builds the router. Nothing is
// left open when it returns an error.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, storePing, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	cacheStore, cachePing, err := openCache(ctx, cfg.Cache)
	if err != nil {
		store.Close()
		return nil, err
	}

	ttl := cache.TTL{
		Short:  cfg.Cache.TTLShort,
		Medium: cfg.Cache.TTLMedium,
		Long:   cfg.Cache.TTLLong,
	}
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		cache:   cache.New(cacheStore, ttl, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute),
	}

	checks := map[string]handler.Pinger{"store": storePing}
	if cachePing != nil {
		checks["cache"] = cachePing
	}
	if err := s.setupRoutes(checks); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, handler.Pinger, error) {
	switch cfg.Driver {
	case "mongo":
		db, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return db, db, nil
	default:
		db, err := sqliteRepo.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return db, db, nil
	}
}

// openCache returns a nil Pinger for the in-process cache, which cannot be
// unreachable.
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, handler.Pinger, error) {
	if cfg.Driver == "memory" {
		return cache.NewMemoryStore(5 * time.Minute), nil, nil
	}
	rs := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return rs, rs, nil
}

func (s *Server) setupRoutes(checks map[string]handler.Pinger) error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	var mailer mail.Sender
	if cfg.Mail.SMTPHost != "" {
		mailer = mail.NewSMTPSender(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.SMTPUsername,
			cfg.Mail.SMTPPassword, cfg.Mail.From, cfg.Auth.ResetTokenTTL)
	} else {
		s.logger.Warn("SMTP_HOST not set, password reset links are only logged")
		mailer = mail.NewLogSender(s.logger)
	}

	accounts := service.NewAccountService(s.store.Accounts(), s.store.Profiles(), s.cache, tokens,
		auth.NewPasswordService(), mailer,
		service.ResetOptions{TTL: cfg.Auth.ResetTokenTTL, LinkURL: cfg.Mail.ResetURL}, s.logger)
	profiles := service.NewProfileService(s.store, s.cache, s.logger)
	blogs := service.NewBlogService(s.store, s.cache,
		service.ViewOptions{Cooldown: cfg.Views.Cooldown, MaxVisitors: cfg.Views.MaxVisitors}, s.logger)
	engagement := service.NewEngagementService(s.store, s.cache, s.logger)
	categories := service.NewCategoryService(s.store, s.cache, s.logger)

	session := handler.Session{
		MaxAgeSeconds: int(cfg.Auth.TokenTTL.Seconds()),
		// an https callback means the site itself is served over TLS
		Secure: strings.HasPrefix(cfg.Auth.GitHubCallbackURL, "https://"),
	}

	api := &handler.API{
		Accounts:   handler.NewAccountHandler(accounts, session, s.logger),
		Profiles:   handler.NewProfileHandler(profiles, s.logger),
		Blogs:      handler.NewBlogHandler(blogs, s.logger),
		Engagement: handler.NewEngagementHandler(engagement, s.logger),
		Categories: handler.NewCategoryHandler(categories, s.logger),
		Health:     handler.NewHealthHandler(checks, s.logger),
	}
	if cfg.Auth.GitHubClientID != "" && cfg.Auth.GitHubClientSecret != "" {
		provider := auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubCallbackURL)
		api.GitHub = handler.NewGitHubHandler(provider, accounts, session, "/", s.logger)
	} else {
		s.logger.Info("GitHub credentials not set, GitHub sign-in disabled")
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	api.Routes(s.router, auth.RequireAuth(tokens), s.limiter.Limit)
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) close() {
	if err := s.cache.Close(); err != nil {
		s.logger.Warn("closing cache", slog.String("error", err.Error()))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the backends.
func (s *Server) Start() error {
	defer s.close()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.limiter.Run(sweepCtx, time.Minute)

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("store", s.config.Store.Driver),
			slog.String("cache", s.config.Cache.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
