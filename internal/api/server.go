// Package api contains the HTTP front-end for job submission, queries
// and log streaming.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"ciforge/internal/api/handlers"
	"ciforge/internal/api/middleware"
	"ciforge/internal/logger"
	"ciforge/internal/runtime"
	"ciforge/internal/store"
)

// Submission endpoints are rate limited per API key; query and stream
// endpoints are not, since multiple concurrent readers of one job are
// expected.
const (
	submitRateLimit = rate.Limit(5)
	submitRateBurst = 10
)

// Server is the API's HTTP server.
type Server struct {
	httpServer *http.Server
}

// New wires the handlers, middleware and routes into a server listening
// on addr. metricsHandler may be nil to disable the /metrics route.
func New(addr string, s store.StoreFactory, rt runtime.Runtime, opts handlers.Options, metricsHandler http.Handler, log *slog.Logger) *Server {
	h := handlers.New(s, rt, opts, log)
	authMW := middleware.Auth(s)
	rateMW := middleware.RateLimit(submitRateLimit, submitRateBurst)

	mux := http.NewServeMux()

	// Probes stay unauthenticated.
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	mux.Handle("POST /submit-stream", authMW(rateMW(http.HandlerFunc(h.SubmitStream))))
	mux.Handle("POST /submit-async", authMW(rateMW(http.HandlerFunc(h.SubmitAsync))))
	mux.Handle("GET /jobs", authMW(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /jobs/{id}", authMW(http.HandlerFunc(h.GetJob)))
	mux.Handle("GET /jobs/{id}/stream", authMW(http.HandlerFunc(h.StreamJob)))

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: requestID(mux),
			// No WriteTimeout: log streams stay open for as long as the
			// job runs. Slowloris protection comes from the header
			// timeout instead.
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// requestID tags every request with a correlation id for log lines and
// wraps it in a tracing span.
func requestID(next http.Handler) http.Handler {
	tracer := otel.Tracer("ciforge-api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequestID(r.Context(), uuid.NewString())
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
