package router

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/auth"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/token"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/user"
	"github.com/ovaphlow/pitchfork/service-accounts/pkg/utilities"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

type requestIDKey struct{}

// RequestIDFrom returns the id assigned by RequestIDMiddleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if lrw.status == 0 {
		lrw.status = code
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter { return lrw.ResponseWriter }

func (lrw *loggingResponseWriter) statusOrOK() int {
	if lrw.status == 0 {
		return http.StatusOK
	}
	return lrw.status
}

// RequestIDMiddleware keeps a caller supplied X-Request-ID or assigns a KSUID.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = utilities.NewKSUID()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			logger.Debugw("http request",
				"request_id", RequestIDFrom(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", lrw.statusOrOK(),
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// MetricsMiddleware records count and latency per route pattern. It must sit
// between the last middleware that copies the request and the mux, so the
// pattern the mux matched is visible after the call.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, r.Method, lrw.statusOrOK(), time.Since(start))
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")

			// responses are JSON only
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}

			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Pinger reports database reachability for /health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the handlers and collaborators mounted by RegisterRoutes.
type Deps struct {
	Logger  *zap.SugaredLogger
	Auth    *auth.Handler
	Users   *user.Handler
	Tokens  *token.Issuer
	Metrics *metrics.Metrics
	DB      Pinger
}

// RegisterRoutes mounts HTTP handlers on an http.ServeMux and wraps it with
// request-id, logging, metrics and security header middleware.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	bearer := auth.RequireBearer(d.Tokens, d.Logger)

	mux.HandleFunc("GET /health", healthHandler(d.DB, d.Logger))
	mux.Handle("GET /metrics", d.Metrics.Handler())
	mux.HandleFunc("GET /.well-known/jwks.json", d.Tokens.JWKSHandler())

	// auth
	mux.HandleFunc("POST /api/auth/login", d.Auth.Login)
	mux.Handle("POST /api/auth/logout", bearer(http.HandlerFunc(d.Auth.Logout)))
	mux.Handle("DELETE /api/auth/logout", bearer(http.HandlerFunc(d.Auth.Logout)))

	// users
	mux.HandleFunc("POST /api/users", d.Users.Register)
	mux.HandleFunc("GET /api/users", d.Users.List)
	mux.Handle("GET /api/users/me", bearer(http.HandlerFunc(d.Users.Me)))
	mux.HandleFunc("GET /api/users/{id}", d.Users.ByID)

	var handler http.Handler = mux
	handler = SecurityHeadersMiddleware()(handler)
	handler = MetricsMiddleware(d.Metrics)(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}

func healthHandler(db Pinger, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				logger.Warnw("health check failed", "err", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
