// Package api exposes SlimLO's Pool over HTTP: synchronous conversion
// requests, pool statistics, and a live-diagnostics event stream, the same
// gorilla/mux routing shape the teacher's API gateway uses.
package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocx/slimlo/internal/audit"
	"github.com/ocx/slimlo/internal/cache"
	"github.com/ocx/slimlo/internal/events"
	"github.com/ocx/slimlo/internal/metrics"
	internalwebsocket "github.com/ocx/slimlo/internal/websocket"
	"github.com/ocx/slimlo/internal/webhooks"
	"github.com/ocx/slimlo/pkg/slimlo"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is SlimLO's HTTP facade over a Pool.
type Server struct {
	pool            *slimlo.Pool
	cache           cache.Store
	audit           *audit.Logger
	metrics         *metrics.Metrics
	events          events.Emitter
	webhooks        webhooks.Emitter
	webhookRegistry *webhooks.Registry
	stream          *internalwebsocket.Streamer

	addr           string
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	maxUploadBytes int64

	tlsConfig *tls.Config

	httpServer *http.Server
	stopStream chan struct{}
}

// Config configures a Server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxUploadBytes  int64
	TLSConfig       *tls.Config
	Cache           cache.Store
	Audit           *audit.Logger
	Metrics         *metrics.Metrics
	Events          events.Emitter
	Webhooks        webhooks.Emitter
	WebhookRegistry *webhooks.Registry
}

// NewServer builds a Server around pool; nil optional Config fields fall
// back to no-op/in-memory defaults so a Server is always usable standalone.
func NewServer(pool *slimlo.Pool, cfg Config) *Server {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemoryStore()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics()
	}
	if cfg.Events == nil {
		cfg.Events = events.NewBus()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}

	return &Server{
		pool:            pool,
		cache:           cfg.Cache,
		audit:           cfg.Audit,
		metrics:         cfg.Metrics,
		events:          cfg.Events,
		webhooks:        cfg.Webhooks,
		webhookRegistry: cfg.WebhookRegistry,
		stream:          internalwebsocket.NewStreamer(),
		addr:            cfg.Addr,
		readTimeout:     cfg.ReadTimeout,
		writeTimeout:    cfg.WriteTimeout,
		idleTimeout:     cfg.IdleTimeout,
		maxUploadBytes:  cfg.MaxUploadBytes,
		tlsConfig:       cfg.TLSConfig,
		stopStream:      make(chan struct{}),
	}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/v1/convert", s.handleConvert).Methods(http.MethodPost)
	r.HandleFunc("/v1/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/v1/webhooks", s.handleRegisterWebhook).Methods(http.MethodPost)
	r.HandleFunc("/v1/events/stream", s.stream.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server and the websocket hub, blocking
// until the server stops.
func (s *Server) ListenAndServe() error {
	go s.stream.Run(s.stopStream)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
		TLSConfig:    s.tlsConfig,
	}

	if s.tlsConfig != nil {
		return s.httpServer.ListenAndServeTLS("", "")
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopStream)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) publish(eventType, subject string, data map[string]interface{}) {
	s.events.Emit(eventType, subject, data)
	s.stream.Broadcast(events.NewCloudEvent(eventType, subject, data))
}
