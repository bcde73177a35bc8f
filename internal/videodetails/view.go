package videodetails

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	viewPath        = "/x/web-interface/view"
	maxResponseSize = 1 << 20 // 1MB
)

// GetVideoDetailView calls the upstream view API for one video.
func (c *client) GetVideoDetailView(parentCtx context.Context, videoID string) (*VideoDetailView, error) {
	start := time.Now()

	if !validVideoID(videoID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVideoID, videoID)
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	q := url.Values{}
	if aid, ok := strings.CutPrefix(strings.ToLower(videoID), "av"); ok && aid != "" && isDigits(aid) {
		q.Set("aid", aid)
	} else {
		q.Set("bvid", videoID)
	}
	endpoint := c.cfg.BaseURL + viewPath + "?" + q.Encode()

	// doOnce builds a fresh *http.Request for each attempt
	doOnce := func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("videodetails: build HTTP request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.doWithRetry(ctx, doOnce)
	if err != nil {
		c.logger.Error("video api request failed",
			zap.String("video_id", videoID),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("videodetails: read upstream response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, videoID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("video api upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return nil, fmt.Errorf("videodetails: upstream %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("videodetails: decode upstream response: %w", err)
	}

	if notFoundCodes[envelope.Code] {
		return nil, fmt.Errorf("%w: %s (code %d)", ErrNotFound, videoID, envelope.Code)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("videodetails: upstream code %d: %s", envelope.Code, envelope.Message)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("videodetails: upstream returned no data for %s", videoID)
	}

	c.logger.Debug("video api request completed",
		zap.String("video_id", videoID),
		zap.Duration("duration", time.Since(start)),
	)

	return envelope.Data, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
