// Package web serves the record kinds over HTTP: listing them, validating
// and importing uploaded documents, and exporting blank templates.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/rowbind/internal/config"
	"github.com/JonMunkholm/rowbind/internal/core"
	"github.com/JonMunkholm/rowbind/internal/logging"
	"github.com/JonMunkholm/rowbind/internal/pgsink"
	"github.com/JonMunkholm/rowbind/internal/web/middleware"
)

// Server is the HTTP front end of the mapping engine.
type Server struct {
	cfg     *config.Config
	engine  *core.Engine
	pool    pgsink.TxBeginner // nil when imports are disabled
	limiter *core.UploadLimiter
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires routes and middleware. pool may be nil, in which case
// import requests are refused.
func NewServer(cfg *config.Config, engine *core.Engine, pool pgsink.TxBeginner) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		pool:    pool,
		limiter: core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys))

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
			r.Use(chimw.Compress(5))

			r.Get("/kinds", s.handleListKinds)
			r.Get("/kinds/{kind}", s.handleGetKind)
			r.Get("/kinds/{kind}/template", s.handleTemplate)
			r.Get("/uploads/status", s.handleUploadStatus)
		})

		// Uploads run under their own, longer deadline.
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Upload.Timeout))

			r.Post("/kinds/{kind}/validate", s.handleValidate)
			r.Post("/kinds/{kind}/import", s.handleImport)
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr, "imports", s.pool != nil)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for running uploads to
// finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"status":  "ok",
		"imports": s.pool != nil,
		"uploads": s.limiter.Status(),
	})
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.limiter.Status())
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON. Encoding errors are logged since the
// headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
