package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/handlers"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/metrics"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/middleware"
)

// Handlers groups everything SetupRouter mounts.
type Handlers struct {
	User     *handlers.UserHandler
	Video    *handlers.VideoHandler
	Feature  *handlers.FeatureHandler
	Health   *handlers.HealthHandler
	IPHasher middleware.IPHasher
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers) {
	r.Use(metrics.Middleware)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Timeout(15 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.HashedClientIP(h.IPHasher))

		r.Get("/userID", h.User.HashedUserID)
		r.Get("/userFeature", h.Feature.UserFeature)
		r.Get("/videoDetails/{videoID}", h.Video.VideoDetails)
	})

	r.Get("/healthz", h.Health.Healthz)

	r.Handle("/metrics", metrics.Handler())
}

// NewServer wraps the router with the process' HTTP timeouts.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
