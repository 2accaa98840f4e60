package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/format"
	"gastos/internal/log"
)

// Ledger is what the API needs from the record store.
type Ledger interface {
	FindMovements(ctx context.Context, user string, f core.MovementFilter) ([]core.Movement, error)
	AddMovement(ctx context.Context, in core.MovementInput) (core.Movement, error)
	DeleteMovement(ctx context.Context, id string) (bool, error)
	ListCategories(ctx context.Context, user string) ([]string, error)
	AddCategory(ctx context.Context, user, name string) (string, error)
	DeleteCategory(ctx context.Context, user, name string) (bool, error)
	Invalidate(table string)
	Ping(ctx context.Context) error
}

// Options tunes the server. Zero values select defaults.
type Options struct {
	Logger   *log.Logger
	Currency *format.Currency
	// RateLimit caps mutating requests per client IP and minute. Negative
	// disables the limit.
	RateLimit      int
	RequestTimeout time.Duration
	Headers        *HeadersConfig
}

type Server struct {
	http.Server
	ledger      Ledger
	logger      *log.Logger
	currency    *format.Currency
	timeout     time.Duration
	headers     HeadersConfig
	rateLimiter *rateLimiter
	metrics     securityMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Currency == nil {
		opts.Currency, _ = format.NewCurrency("es", "$")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	headers := DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	s := &Server{
		ledger:   ledger,
		logger:   opts.Logger.WithComponent(log.ComponentHTTP),
		currency: opts.Currency,
		timeout:  opts.RequestTimeout,
		headers:  headers,
	}
	if opts.RateLimit >= 0 {
		s.rateLimiter = newRateLimiter(opts.RateLimit)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/users/{user}/movements", s.handleListMovements)
	mux.HandleFunc("POST /api/users/{user}/movements", s.handleCreateMovement)
	mux.HandleFunc("DELETE /api/movements/{id}", s.handleDeleteMovement)
	mux.HandleFunc("GET /api/users/{user}/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/users/{user}/categories", s.handleCreateCategory)
	mux.HandleFunc("DELETE /api/users/{user}/categories/{name}", s.handleDeleteCategory)
	mux.HandleFunc("POST /api/cache/invalidate", s.handleInvalidateCache)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           log.Middleware(opts.Logger, extractClientIP)(s.withSecurity(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// withSecurity adds security headers and rate limits mutating requests.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.headers.apply(w, r)

		clientIP := extractClientIP(r)
		if detectSuspiciousRequest(r, &s.metrics) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path)
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead &&
			s.rateLimiter != nil && !s.rateLimiter.allow(clientIP, &s.metrics) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background routines and the HTTP server.
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

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down", log.FieldOperation, log.OpShutdown)
	return s.Shutdown(shutdownCtx)
}
