package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashing"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/pkg/logging/logging"

	"go.uber.org/zap"
)

// UserHasher computes the public form of a private user ID.
type UserHasher interface {
	Hash(ctx context.Context, value string) hashing.HashedValue
}

// UserHandler serves GET /api/userID.
type UserHandler struct {
	Hasher UserHasher
}

func NewUserHandler(h UserHasher) *UserHandler {
	return &UserHandler{Hasher: h}
}

type hashedUserResponse struct {
	HashedUserID hashing.HashedValue `json:"hashedUserID"`
}

// HashedUserID answers with the memoized full-round hash of ?userID=.
func (h *UserHandler) HashedUserID(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userID is required")
		return
	}

	start := time.Now()
	hashed := h.Hasher.Hash(r.Context(), userID)

	logging.L(r.Context()).Debug("hashed user id",
		zap.Duration("latency", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, hashedUserResponse{HashedUserID: hashed})
}
