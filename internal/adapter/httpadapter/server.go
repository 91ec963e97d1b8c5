package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes health, readiness, metrics, and the volcano read API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// API routes served by api.
func NewServer(addr string, ready sharedobs.ReadinessChecker, api API, defaults Defaults, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Risk maps run a whole batch inside one request.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		mux:    mux,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	h := &handlers{api: api, defaults: defaults, logger: logger}
	mux.HandleFunc("GET /volcanoes", h.listVolcanoes)
	mux.HandleFunc("GET /volcanoes/search", h.searchVolcanoes)
	mux.HandleFunc("GET /volcanoes/{vnum}/status", h.status)
	mux.HandleFunc("GET /volcanoes/{vnum}/earthquakes", h.earthquakes)
	mux.HandleFunc("GET /volcanoes/{vnum}/indicators", h.indicators)
	mux.HandleFunc("GET /volcanoes/{vnum}/ntvc", h.ntvc)
	mux.HandleFunc("GET /risk-map", h.riskMap)

	return s
}

// EnableSync registers POST /sync, which runs one full risk sync inside the
// request. Call it before Start.
func (s *Server) EnableSync(syncer Syncer) {
	h := &syncHandler{syncer: syncer, logger: s.logger}
	s.mux.HandleFunc("POST /sync", h.sync)
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
