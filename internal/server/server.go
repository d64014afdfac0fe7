// Package server assembles the HTTP mux and middleware chain around the API
// handlers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"samhost/internal/api"
	"samhost/internal/observability/metrics"
)

type Config struct {
	Addr    string
	CORS    CORSConfig
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/streaming/start", handler.StartTransmission)
	mux.HandleFunc("/api/streaming/stop", handler.StopTransmission)
	mux.HandleFunc("/api/streaming/status", handler.StreamingStatus)
	mux.HandleFunc("/api/streaming/history", handler.StreamingHistory)
	mux.HandleFunc("/api/streaming/platforms", handler.StreamingPlatforms)
	mux.HandleFunc("/api/streaming/next", handler.AdvancePlaylist)
	mux.HandleFunc("/api/commercials", handler.Commercials)
	mux.HandleFunc("/api/commercials/", handler.CommercialByID)
	mux.HandleFunc("/api/wowza/test-connection", handler.TestServerConnection)
	mux.HandleFunc("/api/wowza/applications", handler.ServerApplications)
	mux.HandleFunc("/api/wowza/server-info", handler.ServerInfo)

	policy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}

	handlerChain := http.Handler(mux)
	handlerChain = authMiddleware(handler, handlerChain)
	handlerChain = corsMiddleware(policy, cfg.Logger, handlerChain)
	handlerChain = metricsMiddleware(recorder, handlerChain)
	handlerChain = loggingMiddleware(cfg.Logger, handlerChain)
	handlerChain = requestIDMiddleware(cfg.Logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		logger:     cfg.Logger,
		metrics:    recorder,
	}, nil
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)
		logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr)
	})
}

func metricsMiddleware(recorder *metrics.Recorder, next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(sr, r)
		recorder.ObserveRequest(r.Method, r.URL.Path, sr.status, time.Since(start))
	})
}

// authMiddleware resolves the bearer token for /api/ routes and stores the
// owning user on the context. Health and metrics stay open.
func authMiddleware(handler *api.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := handler.AuthenticateRequest(r)
		if err != nil {
			api.WriteError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := api.ContextWithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
