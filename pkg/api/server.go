// Package api serves the registry operations over HTTP for a browser front end.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/netutil"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/evidence"
	"github.com/evidence-registry/evreg/pkg/journal"
	"github.com/evidence-registry/evreg/pkg/log"
	"github.com/evidence-registry/evreg/pkg/session"
	"github.com/evidence-registry/evreg/pkg/view"
)

// MaxUploadBytes bounds the multipart body of an evidence upload.
const MaxUploadBytes = 100 << 20

// Server exposes the session and evidence operations as JSON over HTTP.
type Server struct {
	api             config.APIConfig
	instrumentation config.InstrumentationConfig
	sessions        *session.Manager
	evidence        *evidence.Service
	journal         *journal.Journal
	notifier        view.Notifier
	logger          log.Logger
}

// NewServer returns a server. j may be nil when no journal is kept.
func NewServer(cfg config.Config, sessions *session.Manager, svc *evidence.Service, j *journal.Journal, logger log.Logger) *Server {
	return &Server{
		api:             cfg.API,
		instrumentation: cfg.Instrumentation,
		sessions:        sessions,
		evidence:        svc,
		journal:         j,
		notifier:        view.Notifier{ChainName: cfg.Chain.Name},
		logger:          logger.With("module", "api"),
	}
}

// Handler returns the routed handler wrapped with CORS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health/live", s.live).Methods(http.MethodGet)

	r.HandleFunc("/session", s.getSession).Methods(http.MethodGet)
	r.HandleFunc("/session", s.disconnect).Methods(http.MethodDelete)
	r.HandleFunc("/session/connect", s.connect).Methods(http.MethodPost)
	r.HandleFunc("/session/refresh", s.refresh).Methods(http.MethodPost)
	r.HandleFunc("/panels", s.panels).Methods(http.MethodGet)

	r.HandleFunc("/evidence", s.addEvidence).Methods(http.MethodPost)
	r.HandleFunc("/evidence/count", s.evidenceCount).Methods(http.MethodGet)
	r.HandleFunc("/evidence/{id:[0-9]+}", s.getEvidence).Methods(http.MethodGet)

	r.HandleFunc("/roles/{role:police|court}/{action:grant|revoke}", s.changeRole).Methods(http.MethodPost)

	r.HandleFunc("/pins", s.pins).Methods(http.MethodGet)

	if s.instrumentation.IsPrometheusEnabled() {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	var handler http.Handler = r
	if len(s.api.CORSAllowedOrigins) > 0 {
		s.logger.Debug("CORS enabled", "origins", s.api.CORSAllowedOrigins)
		c := cors.New(cors.Options{
			AllowedOrigins: s.api.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type"},
		})
		handler = c.Handler(handler)
	}
	return handler
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.api.ListenAddress())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.api.ListenAddress(), err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.api.MaxOpenConnections > 0 {
		s.logger.Debug("limiting number of connections", "limit", s.api.MaxOpenConnections)
		listener = netutil.LimitListener(listener, s.api.MaxOpenConnections)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving HTTP", "listen address", listener.Addr())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error while shutting down HTTP server", "error", err)
		return err
	}
	return nil
}
