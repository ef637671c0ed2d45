// Package httpd exposes a store over HTTP: a positional batch endpoint
// plus single-operation routes for scripting and health checks.
package httpd

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bunstore "github.com/kartikbazzad/bunstore"
	"github.com/kartikbazzad/bunstore/internal/logger"
)

// Options tunes the HTTP server.
type Options struct {
	Rate  float64 // requests per second per client IP, 0 disables limiting
	Burst int
}

// Server serves the store API.
type Server struct {
	store  bunstore.Store
	log    *slog.Logger
	engine *gin.Engine
}

// New builds a Server with its routes and middleware installed.
func New(store bunstore.Store, opts Options) *Server {
	s := &Server{
		store: store,
		log:   logger.Get(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(corsMiddleware())
	engine.Use(s.logMiddleware())
	engine.Use(metricsMiddleware())
	if opts.Rate > 0 {
		engine.Use(rateLimitMiddleware(opts.Rate, opts.Burst))
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	v1.POST("/batch", s.handleBatch)
	v1.GET("/items", s.handleGetItem)
	v1.PUT("/items", s.handlePutItem)
	v1.DELETE("/items", s.handleDeleteItem)
	v1.POST("/search", s.handleSearch)
	v1.POST("/namespaces", s.handleListNamespaces)

	s.engine = engine
	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info("http server listening", "addr", addr)
	return s.engine.Run(addr)
}

// statusFor maps store errors onto HTTP status codes. Validation
// failures are the caller's fault; everything else is the backend's.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bunstore.ErrInvalidOp),
		errors.Is(err, bunstore.ErrInvalidNamespace),
		errors.Is(err, bunstore.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, bunstore.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
