// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the store, services,
// handlers and middleware, and owns the process lifecycle:
//
//	config.Config → OpenStore (sqlite | postgres)
//	             → services (tweets, users, social, likes, auth, seed)
//	             → handlers → chi router
//	events.Hub  ← every service publishes through metrics.Publisher(hub)
//
// This is the "composition root" pattern: all dependencies are built in one
// place (New), so no other package constructs its own collaborators.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/sakif/minitwit/internal/auth"
	"github.com/sakif/minitwit/internal/config"
	"github.com/sakif/minitwit/internal/events"
	"github.com/sakif/minitwit/internal/handler"
	"github.com/sakif/minitwit/internal/metrics"
	"github.com/sakif/minitwit/internal/middleware"
	"github.com/sakif/minitwit/internal/pagination"
	"github.com/sakif/minitwit/internal/repository"
	"github.com/sakif/minitwit/internal/repository/postgres"
	sqliteRepo "github.com/sakif/minitwit/internal/repository/sqlite"
	"github.com/sakif/minitwit/internal/service"
)

// Deps is everything NewRouter needs. Tests fill it with an in-memory store.
type Deps struct {
	Store     repository.Store
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Cursors   *pagination.Codec
	Sessions  sessions.Store
	GitHub    *auth.GitHubProvider // nil disables /auth/github/*
	Hub       *events.Hub
	Metrics   *metrics.Metrics
	Cookies   handler.CookieOptions
	Logger    *slog.Logger
}

// NewRouter builds the services and handlers over d and returns the router.
//
// ROUTE STRUCTURE:
//
//	POST   /auth/signup | /auth/signin | /auth/logout
//	GET    /auth/github/login | /auth/github/callback
//	GET    /api/me                      PATCH /api/me
//	GET    /api/users/search | /suggested | /by-username/{username} | /{id}
//	GET    /api/users/{id}/tweets[/page|/count]
//	GET    /api/users/{id}/followers[/users] | /following[/users] | /is-following
//	POST   /api/users/{id}/follow       DELETE /api/users/{id}/follow
//	GET    /api/users/{id}/likes[/page]
//	POST   /api/tweets                  GET|DELETE /api/tweets/{id}
//	GET    /api/tweets/{id}/likes | /liked
//	POST   /api/tweets/{id}/like        DELETE /api/tweets/{id}/like
//	GET    /api/feed[/page]             GET /api/search/tweets[/page]
//	POST   /api/seed                    GET /api/events
//	GET    /metrics | /healthz
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: extracts the real client IP from proxy headers
//  3. Recoverer: turns panics into 500s instead of crashing
//  4. Logger: logs each request with timing info
//  5. Instrument: records the request duration histogram
//  6. OptionalAuth: puts the caller's user id (if any) into the context
//
// Authentication is optional at the router level. Each service decides
// what an anonymous caller gets ("Not authenticated", an empty list, false).
func NewRouter(d Deps) http.Handler {
	pub := d.Metrics.Publisher(d.Hub)

	tweetService := service.NewTweetService(d.Store, d.Cursors, pub, d.Logger)
	userService := service.NewUserService(d.Store, pub, d.Logger)
	socialService := service.NewSocialService(d.Store, pub, d.Logger)
	likeService := service.NewLikeService(d.Store, d.Cursors, pub, d.Logger)
	seedService := service.NewSeedService(d.Store, pub, d.Logger)
	authService := service.NewAuthService(d.Store, d.Tokens, d.Passwords, d.Metrics, d.Logger)

	authHandler := handler.NewAuthHandler(authService, d.GitHub, d.Sessions, d.Cookies, d.Logger)
	userHandler := handler.NewUserHandler(userService, d.Logger)
	tweetHandler := handler.NewTweetHandler(tweetService, d.Logger)
	socialHandler := handler.NewSocialHandler(socialService, d.Logger)
	likeHandler := handler.NewLikeHandler(likeService, d.Logger)
	seedHandler := handler.NewSeedHandler(seedService, d.Logger)
	eventsHandler := handler.NewEventsHandler(d.Hub, d.Logger)

	r := chi.NewRouter()

	// === Global Middleware ===
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(d.Logger))
	r.Use(d.Metrics.Instrument)
	r.Use(auth.OptionalAuth(d.Tokens))

	// === Operations ===
	r.Get("/healthz", handler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	// === Accounts ===
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/signin", authHandler.HandleSignIn)
		r.Post("/logout", authHandler.HandleLogout)

		if d.GitHub != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	// === API ===
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", userHandler.HandleMe)
		r.Patch("/me", userHandler.HandleUpdateMe)

		r.Route("/users", func(r chi.Router) {
			r.Get("/search", userHandler.HandleSearch)
			r.Get("/suggested", userHandler.HandleSuggested)
			r.Get("/by-username/{username}", userHandler.HandleGetByUsername)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.HandleGetByID)

				r.Get("/tweets", tweetHandler.HandleUserTweets)
				r.Get("/tweets/page", tweetHandler.HandleUserTweetsPage)
				r.Get("/tweets/count", tweetHandler.HandleUserTweetCount)

				r.Get("/followers", socialHandler.HandleFollowers)
				r.Get("/followers/users", socialHandler.HandleFollowerUsers)
				r.Get("/following", socialHandler.HandleFollowing)
				r.Get("/following/users", socialHandler.HandleFollowingUsers)
				r.Get("/is-following", socialHandler.HandleIsFollowing)
				r.Post("/follow", socialHandler.HandleFollow)
				r.Delete("/follow", socialHandler.HandleUnfollow)

				r.Get("/likes", likeHandler.HandleLikedTweets)
				r.Get("/likes/page", likeHandler.HandleLikedTweetsPage)
			})
		})

		r.Route("/tweets", func(r chi.Router) {
			r.Post("/", tweetHandler.HandleCreate)
			r.Get("/{id}", tweetHandler.HandleGetByID)
			r.Delete("/{id}", tweetHandler.HandleDelete)

			r.Get("/{id}/likes", likeHandler.HandleCount)
			r.Get("/{id}/liked", likeHandler.HandleHasLiked)
			r.Post("/{id}/like", likeHandler.HandleLike)
			r.Delete("/{id}/like", likeHandler.HandleUnlike)
		})

		r.Get("/feed", tweetHandler.HandleFeed)
		r.Get("/feed/page", tweetHandler.HandleFeedPage)
		r.Get("/search/tweets", tweetHandler.HandleSearch)
		r.Get("/search/tweets/page", tweetHandler.HandleSearchPage)

		r.Post("/seed", seedHandler.HandleSeed)
		r.Get("/events", eventsHandler.HandleStream)
	})

	return r
}

// OpenStore opens the backend named by cfg.DBDriver and runs its
// migrations. The sqlite driver creates the database directory if needed.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL, postgres.Options{})
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and the event hub. Start closes both on the
// way out, after in-flight requests have finished.
type Server struct {
	router http.Handler
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	hub    *events.Hub
	seed   *service.SeedService
}

// New opens the store and wires every dependency from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	cursors, err := pagination.NewCodec(cfg.CursorSecret)
	if err != nil {
		return nil, fmt.Errorf("creating cursor codec: %w", err)
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	} else {
		logger.Warn("GITHUB_CLIENT_ID not set, GitHub sign-in is disabled")
	}

	hub := events.NewHub(logger, 0)
	m := metrics.New()

	router := NewRouter(Deps{
		Store:     store,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(cfg.BcryptCost),
		Cursors:   cursors,
		Sessions:  sessions.NewCookieStore([]byte(cfg.SessionSecret)),
		GitHub:    github,
		Hub:       hub,
		Metrics:   m,
		Cookies:   handler.CookieOptions{Secure: cfg.CookieSecure, MaxAge: tokens.TTL()},
		Logger:    logger,
	})

	return &Server{
		router: router,
		config: cfg,
		logger: logger,
		store:  store,
		hub:    hub,
		seed:   service.NewSeedService(store, m.Publisher(hub), logger),
	}, nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the event hub, which ends every open event stream
//  4. Close the store
func (s *Server) Start() error {
	defer s.store.Close()

	s.hub.Start()
	defer s.hub.Stop()

	if s.config.SeedOnStart {
		res, err := s.seed.Seed(context.Background())
		if err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
		s.logger.Info("demo data", slog.String("status", res.Status))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second, // /api/events lifts this per response
		IdleTimeout:  60 * time.Second,
	}

	// Open event streams never finish on their own. Stopping the hub closes
	// their subscriptions so Shutdown can complete.
	srv.RegisterOnShutdown(s.hub.Stop)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("driver", s.config.DBDriver),
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
