package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/features"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashing"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/pkg/logging/logging"
)

type FeatureChecker interface {
	HasFeature(ctx context.Context, userID hashing.HashedValue, feature features.Feature) (bool, error)
}

// FeatureHandler serves GET /api/userFeature.
type FeatureHandler struct {
	Hasher   UserHasher
	Features FeatureChecker
}

func NewFeatureHandler(h UserHasher, f FeatureChecker) *FeatureHandler {
	return &FeatureHandler{Hasher: h, Features: f}
}

type featureResponse struct {
	HashedUserID hashing.HashedValue `json:"hashedUserID"`
	Feature      int                 `json:"feature"`
	HasFeature   bool                `json:"hasFeature"`
}

// UserFeature takes the private ?userID= and a numeric ?feature=.
func (h *FeatureHandler) UserFeature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	userID := q.Get("userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userID is required")
		return
	}
	n, err := strconv.Atoi(q.Get("feature"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "feature must be an integer")
		return
	}

	hashed := h.Hasher.Hash(ctx, userID)
	has, err := h.Features.HasFeature(ctx, hashed, features.Feature(n))
	if errors.Is(err, features.ErrInvalidFeature) {
		writeError(w, http.StatusBadRequest, "unknown feature")
		return
	}
	if err != nil {
		logging.L(ctx).Error("feature lookup failed", zap.Int("feature", n), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "feature lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, featureResponse{HashedUserID: hashed, Feature: n, HasFeature: has})
}
