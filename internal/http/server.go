// Package http exposes the leak analysis pipeline as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"leakwatch/internal/log"
	"leakwatch/internal/service"
)

// AnalysisPublisher enqueues an analysis request for asynchronous processing.
// When no publisher is configured the server analyzes inline.
type AnalysisPublisher interface {
	PublishAnalysisRequest(ctx context.Context, userID string) error
}

type Server struct {
	http.Server

	svc       *service.AnalysisService
	publisher AnalysisPublisher

	rateLimiter  *rateLimiter
	logger       *log.Logger
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// publisher may be nil.
func NewServer(addr string, svc *service.AnalysisService, publisher AnalysisPublisher, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		svc:         svc,
		publisher:   publisher,
		rateLimiter: newRateLimiter(),
		logger:      logger,
	}

	mux.HandleFunc("POST /api/transactions", s.withMiddleware(s.handleIngestTransactions))
	mux.HandleFunc("POST /api/leaks/analyze", s.withMiddleware(s.handleAnalyze))
	mux.HandleFunc("GET /api/leaks/latest", s.withMiddleware(s.handleLatestReport))
	mux.HandleFunc("GET /api/leaks", s.withMiddleware(s.handleListLeaks))
	mux.HandleFunc("POST /api/leaks/{id}/resolve", s.withMiddleware(s.handleResolveLeak))
	mux.HandleFunc("POST /api/leaks/{id}/unresolve", s.withMiddleware(s.handleUnresolveLeak))
	mux.HandleFunc("GET /api/leaks/summary", s.withMiddleware(s.handleSummary))
	mux.HandleFunc("GET /healthz", handleHealth)

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withMiddleware adds security headers, rate limiting and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)
		ctx := r.Context()

		// Every log line of this request carries the same correlation id.
		structured := log.NewStructuredLogger(s.logger.With(log.FieldRequestID, generateRequestID()))
		structured.LogHTTPStart(ctx, r, ip)

		// Mutating requests count against the per-IP budget.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(ip) {
			s.logger.WarnContext(ctx, "Rate limit exceeded", "client_ip", ip, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), ip)
	}
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
