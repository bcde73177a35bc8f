package middleware

import (
	"context"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashing"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/pkg/logging/logging"
)

// IPHasher turns a client address into the salted hash that may be logged.
type IPHasher interface {
	HashedIP(ctx context.Context, ip string) hashing.HashedValue
}

// LoggingContext attaches a request-scoped logger to the context. The
// client address is not logged here; see HashedClientIP.
func LoggingContext(baseLogger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			reqLogger := baseLogger.With(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			if reqID := chimw.GetReqID(ctx); reqID != "" {
				reqLogger = reqLogger.With(zap.String("request_id", reqID))
			}

			if ua := r.UserAgent(); ua != "" {
				reqLogger = reqLogger.With(zap.String("user_agent", ua))
			}

			ctx = logging.WithLogger(ctx, reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HashedClientIP adds the salted client IP hash to the request logger.
// It is mounted on the /api routes only: the address may come from a
// client-controlled proxy header, and each new one costs a full hash.
func HashedClientIP(hasher IPHasher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// RemoteAddr has already been rewritten by chi's RealIP when a
			// proxy header was present.
			if ip := clientIP(r.RemoteAddr); ip != "" && hasher != nil {
				ctx := logging.WithFields(r.Context(),
					zap.String("ip_hash", string(hasher.HashedIP(r.Context(), ip))),
				)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
