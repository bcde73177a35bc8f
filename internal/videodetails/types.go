package videodetails

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrNotFound means the API reports that the video does not exist or
	// is not viewable.
	ErrNotFound = errors.New("videodetails: video not found")

	// ErrInvalidVideoID is returned before any network call for IDs that
	// cannot be valid.
	ErrInvalidVideoID = errors.New("videodetails: invalid video id")
)

// VideoDetails is the subset of video metadata the service relies on.
type VideoDetails struct {
	VideoID    string `json:"videoId"`
	Duration   int64  `json:"duration"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Title      string `json:"title"`
	Published  int64  `json:"published"`
}

// Client fetches video metadata from the upstream API.
type Client interface {
	GetVideoDetailView(ctx context.Context, videoID string) (*VideoDetailView, error)
}

// VideoDetailView is the "data" object of the upstream view API.
type VideoDetailView struct {
	BVID     string `json:"bvid"`
	AID      int64  `json:"aid"`
	Title    string `json:"title"`
	PubDate  int64  `json:"pubdate"`
	Duration int64  `json:"duration"`
	Owner    struct {
		MID  int64  `json:"mid"`
		Name string `json:"name"`
	} `json:"owner"`
	Pages []struct {
		CID      int64 `json:"cid"`
		Page     int   `json:"page"`
		Duration int64 `json:"duration"`
	} `json:"pages"`
}

// Envelope shape shared by the upstream API's responses.
type apiResponse struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Data    *VideoDetailView `json:"data"`
}

// API codes meaning the video is gone or hidden.
var notFoundCodes = map[int]bool{
	-404:  true,
	62002: true, // invisible
	62004: true, // under review
	62012: true, // owner-only
}

// validVideoID accepts the alphanumeric BV/av identifiers the API uses.
func validVideoID(id string) bool {
	if id == "" || len(id) > 32 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// toVideoDetails maps the upstream view into VideoDetails. The first
// page's duration wins when present.
func toVideoDetails(videoID string, v *VideoDetailView) *VideoDetails {
	duration := v.Duration
	if len(v.Pages) >= 1 && v.Pages[0].Duration > 0 {
		duration = v.Pages[0].Duration
	}
	return &VideoDetails{
		VideoID:    videoID,
		Duration:   duration,
		AuthorID:   strconv.FormatInt(v.Owner.MID, 10),
		AuthorName: v.Owner.Name,
		Title:      v.Title,
		Published:  v.PubDate,
	}
}
