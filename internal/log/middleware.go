package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
	// RequestIDContextKey is the context key for the request ID
	RequestIDContextKey ContextKey = "request_id"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

// Middleware attaches a request-scoped logger carrying a request ID and logs
// each completed request with its status and duration. An incoming
// X-Request-ID header is reused.
func Middleware(logger *Logger, clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, requestID)

			reqLogger := logger.WithComponent(ComponentHTTP).With(FieldRequestID, requestID)
			ctx := context.WithValue(r.Context(), LoggerContextKey, reqLogger)
			ctx = context.WithValue(ctx, RequestIDContextKey, requestID)
			r = r.WithContext(ctx)

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			level := slog.LevelInfo
			switch {
			case rw.status >= 500:
				level = slog.LevelError
			case rw.status >= 400:
				level = slog.LevelWarn
			}
			fields := NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
				WithHTTPResponse(rw.status, time.Since(start).Milliseconds())
			if clientIP != nil {
				fields.WithClientIP(clientIP(r))
			}
			reqLogger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
		})
	}
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// RequestID returns the request ID stored by Middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
