// Package server exposes a logstorage.Service over HTTP.
//
// Routes:
//
//	PUT  /api/logs/:name   upload a ZIP archive
//	GET  /api/logs/:archive list the files of an archive
//	GET  /logs/*path       download one inner file
//	HEAD /logs/*path       inner file metadata without downloading
//	GET  /api/status       backend settings
//	GET  /healthz          liveness
//	GET  /metrics          Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	logstorage "github.com/syedhassaanahmed/log-storage-service"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Server is the HTTP front end of a logstorage.Service.
type Server struct {
	svc             *logstorage.Service
	engine          *gin.Engine
	addr            string
	username        string
	password        string
	authExclude     []string
	cacheMaxAge     time.Duration
	maxUploadSize   int64
	shutdownTimeout time.Duration
	status          map[string]string
	registry        *prometheus.Registry
	logger          *slog.Logger
}

// New creates a Server for svc and registers its routes.
func New(svc *logstorage.Service, opts ...Option) *Server {
	s := &Server{
		svc:             svc,
		addr:            DefaultAddr,
		authExclude:     []string{"/healthz", "/metrics"},
		cacheMaxAge:     time.Hour,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s.engine = gin.New()
	s.engine.Use(
		requestID(),
		accessLog(s.log()),
		recovery(s.log()),
		newHTTPMetrics(s.registry).middleware(),
	)
	if s.username != "" || s.password != "" {
		s.engine.Use(basicAuth(s.username, s.password, s.authExclude))
	}
	s.routes()
	return s
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	api.GET("/status", s.statusInfo)
	api.PUT("/logs/:name", s.upload)
	api.GET("/logs/:archive", s.index)

	s.engine.GET("/logs/*path", s.download)
	s.engine.HEAD("/logs/*path", s.download)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log().Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.log().Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
