package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"agora/internal/auth"
	"agora/internal/database"
	"agora/internal/feed"
)

const sessionCookieName = "agora_session"

type Config struct {
	UseHTTPS       bool
	ProductionMode bool
	SiteTitle      string
	SiteURL        string
}

type Server struct {
	db          *database.DB
	logger      *log.Logger
	auth        *auth.Service
	feedService *feed.Service
	csrf        *CSRF
	config      Config
	router      http.Handler
}

func NewServer(db *database.DB, logger *log.Logger, authService *auth.Service, feedService *feed.Service, config Config) (*Server, error) {
	if db == nil {
		return nil, errors.New("server: database is required")
	}
	if authService == nil || feedService == nil {
		return nil, errors.New("server: auth and feed services are required")
	}
	if logger == nil {
		logger = log.Default()
	}
	if config.SiteTitle == "" {
		config.SiteTitle = "Agora"
	}

	csrfConfig := DefaultConfig()
	csrfConfig.Secure = config.UseHTTPS

	s := &Server{
		db:          db,
		logger:      logger,
		auth:        authService,
		feedService: feedService,
		csrf:        NewCSRF(csrfConfig),
		config:      config,
	}
	s.router = s.Routes()

	if !config.ProductionMode {
		s.logger.Printf("Server configured (https=%v, site=%s)", config.UseHTTPS, config.SiteURL)
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/csrf", s.handleCSRFToken)
	mux.HandleFunc("GET /rss.xml", s.handleRSS)

	// Accounts
	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.handleMe))

	// Posts
	mux.HandleFunc("GET /api/posts", s.handleListPosts)
	mux.HandleFunc("POST /api/posts", s.requireAdmin(s.handleCreatePost))
	mux.HandleFunc("GET /api/posts/{id}", s.handleGetPost)
	mux.HandleFunc("POST /api/posts/{id}/like", s.requireAuth(s.handleToggleLike))
	mux.HandleFunc("POST /api/posts/{id}/comments", s.requireAuth(s.handleAddComment))

	// Feed administration
	mux.HandleFunc("GET /api/rss-feeds", s.requireAdmin(s.handleListFeeds))
	mux.HandleFunc("POST /api/rss-feeds", s.requireAdmin(s.handleCreateFeed))
	mux.HandleFunc("POST /api/rss-feeds/validate", s.requireAdmin(s.handleValidateFeed))
	mux.HandleFunc("PATCH /api/rss-feeds/{id}", s.requireAdmin(s.handleUpdateFeed))
	mux.HandleFunc("DELETE /api/rss-feeds/{id}", s.requireAdmin(s.handleDeleteFeed))
	mux.HandleFunc("POST /api/rss-feeds/{id}/import", s.requireAdmin(s.handleImportFeed))

	mux.HandleFunc("/", s.handle404)

	var handler http.Handler = mux
	handler = s.csrf.Middleware(handler)
	handler = securityHeaders(handler, s.config.UseHTTPS)
	handler = gzipMiddleware(handler)
	return handler
}

func (s *Server) handle404(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusNotFound, "Ressource introuvable.")
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Imports triggered from the admin API can take a full fetch timeout.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
		ErrorLog:     s.logger,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.csrf.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Printf("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.csrf.Close()
	return err
}
