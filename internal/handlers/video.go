package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/videodetails"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/pkg/logging/logging"
)

type VideoDetailsGetter interface {
	GetVideoDetails(ctx context.Context, videoID string, ignoreCache bool) (*videodetails.VideoDetails, error)
}

// VideoHandler serves GET /api/videoDetails/{videoID}.
type VideoHandler struct {
	Videos VideoDetailsGetter
}

func NewVideoHandler(v VideoDetailsGetter) *VideoHandler {
	return &VideoHandler{Videos: v}
}

func (h *VideoHandler) VideoDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	videoID := chi.URLParam(r, "videoID")

	ignoreCache := false
	if raw := r.URL.Query().Get("ignoreCache"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ignoreCache must be a boolean")
			return
		}
		ignoreCache = v
	}

	details, err := h.Videos.GetVideoDetails(ctx, videoID, ignoreCache)
	switch {
	case errors.Is(err, videodetails.ErrInvalidVideoID):
		writeError(w, http.StatusBadRequest, "invalid videoID")
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logger.Warn("video details lookup aborted", zap.String("video_id", videoID), zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "upstream timed out")
		return
	case err != nil:
		logger.Error("video details lookup failed", zap.String("video_id", videoID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not fetch video details")
		return
	case details == nil:
		writeError(w, http.StatusNotFound, "video not found")
		return
	}

	writeJSON(w, http.StatusOK, details)
}
