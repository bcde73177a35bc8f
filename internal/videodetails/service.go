package videodetails

import (
	"context"
	"errors"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/cache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/querycache"

	"go.uber.org/zap"
)

// Service serves video details from the query cache, falling back to the
// upstream API.
type Service struct {
	client Client
	cache  *querycache.Cache
	logger *zap.Logger
}

func NewService(client Client, qc *querycache.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, cache: qc, logger: logger.Named("videodetails")}
}

// GetVideoDetails returns metadata for videoID. ignoreCache drops any
// cached entry first, forcing a refetch.
//
// A video the API reports as missing yields (nil, nil), and that answer is
// cached like any other. Every other upstream failure is returned and not
// cached.
func (s *Service) GetVideoDetails(ctx context.Context, videoID string, ignoreCache bool) (*VideoDetails, error) {
	if !validVideoID(videoID) {
		return nil, ErrInvalidVideoID
	}

	key := cache.VideoDetailsKey(videoID)
	if ignoreCache {
		s.cache.ClearKey(ctx, key)
	}

	return querycache.Get(ctx, s.cache, key, func(ctx context.Context) (*VideoDetails, error) {
		view, err := s.client.GetVideoDetailView(ctx, videoID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("video not found upstream", zap.String("video_id", videoID))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return toVideoDetails(videoID, view), nil
	})
}
