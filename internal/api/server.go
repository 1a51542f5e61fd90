// Package api exposes the wheel game over HTTP.
package api

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/MJE43/wheel8/internal/engine"
	"github.com/MJE43/wheel8/internal/game"
	"github.com/MJE43/wheel8/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options tune the router.
type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Server handles HTTP requests
type Server struct {
	svc          *game.Service
	db           store.DB
	auth         *Authenticator
	errorHandler *ErrorHandler
	log          *zap.Logger
	opts         Options
	startTime    time.Time
}

// NewServer creates a new API server. db is only used for readiness checks.
func NewServer(svc *game.Service, db store.DB, auth *Authenticator, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		svc:          svc,
		db:           db,
		auth:         auth,
		errorHandler: NewErrorHandler(log),
		log:          log,
		opts:         opts,
		startTime:    time.Now(),
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Engine-Version", "X-Error-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	// Health and monitoring endpoints
	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/wheels", s.handleListWheels)

		r.Route("/wheels/{wheelID}", func(r chi.Router) {
			r.Get("/", s.handleGetWheel)
			r.Get("/spins", s.handleListSpins)
			r.Post("/verify", s.handleVerify)

			r.With(s.auth.Require(s.errorHandler, RoleOperator)).Post("/", s.handleInitialize)
			r.With(s.auth.Require(s.errorHandler, RolePlayer)).Post("/spin", s.handleSpin)
		})

		r.Get("/spins/{spinID}", s.handleGetSpin)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing else can be reported.
		return
	}
}

func wheelIDParam(r *http.Request) string {
	return chi.URLParam(r, "wheelID")
}

func hexEvent(res engine.SpinResult) string {
	return hex.EncodeToString(engine.EncodeEvent(res))
}
