package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/pkg/logging/logging"

	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves /healthz. It reports 503 when the cache backend
// does not answer a ping; the service still works then, only uncached.
type HealthHandler struct {
	Cache   Pinger
	Timeout time.Duration
}

func NewHealthHandler(p Pinger) *HealthHandler {
	return &HealthHandler{Cache: p, Timeout: time.Second}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
		defer cancel()
		if err := h.Cache.Ping(ctx); err != nil {
			logging.L(r.Context()).Warn("health check: cache unreachable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "cache": "unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
