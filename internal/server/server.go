package server

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ziadkadry99/catechiseme/internal/assetcache"
	"github.com/ziadkadry99/catechiseme/internal/metrics"
	"github.com/ziadkadry99/catechiseme/internal/nav"
	"github.com/ziadkadry99/catechiseme/internal/view"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Deps are the components the server routes to. Cache, Channel and Metrics
// are optional.
type Deps struct {
	Renderer *view.Renderer
	Assets   fs.FS
	Cache    *assetcache.Registration
	Channel  *assetcache.Channel
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Server serves the viewer shell, its views, and the offline asset cache.
type Server struct {
	cfg        Config
	renderer   *view.Renderer
	sessions   *nav.Sessions
	assets     fs.FS
	cache      *assetcache.Registration
	channel    *assetcache.Channel
	metrics    *metrics.Metrics
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server with all dependencies.
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		renderer: deps.Renderer,
		sessions: nav.NewSessions(deps.Renderer),
		assets:   deps.Assets,
		cache:    deps.Cache,
		channel:  deps.Channel,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", PageHeader},
		ExposedHeaders:   []string{PageHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// The update channel is long-lived and must not inherit the request timeout.
	if s.channel != nil {
		r.Get("/sw/channel", s.channel.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if s.cache != nil {
			r.Use(s.cache.Middleware)
		}

		r.Get("/", s.handleShell)
		r.Get("/index.html", s.handleShell)
		r.Get("/catalog.json", s.handleCatalog)
		r.Get("/printable.html", s.handlePrintable)

		r.Get("/view", s.handleView)
		r.Post("/nav/{button}", s.handleNav)
		r.Post("/action/{action}", s.handleAction)

		if s.cache != nil {
			r.Get(assetcache.ServiceWorkerPath, s.cache.ServiceWorkerHandler().ServeHTTP)
			r.Get("/sw/status", s.handleCacheStatus)
			r.Post("/sw/promote", s.handlePromote)
			r.Post("/sw/prune", s.handlePrune)
		}

		r.NotFound(s.handleStatic)
	})

	return r
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Sessions returns the live page contexts.
func (s *Server) Sessions() *nav.Sessions { return s.sessions }

// ServeHTTP lets the server act as the network handler behind the asset cache.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ServerConfig returns the server configuration.
func (s *Server) ServerConfig() Config { return s.cfg }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("catechiseme server listening", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and disconnects update channel
// clients, which Shutdown does not track.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// PruneSessions drops idle page contexts every interval until ctx is done.
func (s *Server) PruneSessions(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Prune(maxIdle); n > 0 {
				s.logger.Debug("pruned idle pages", zap.Int("pages", n), zap.Int("remaining", s.sessions.Len()))
			}
		}
	}
}
