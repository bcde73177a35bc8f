package videodetails

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleView = `{
  "code": 0,
  "message": "0",
  "data": {
    "bvid": "BV1xx411c7mD",
    "aid": 2,
    "title": "字幕君交流场所",
    "pubdate": 1252458549,
    "duration": 2233,
    "owner": {"mid": 2, "name": "碧诗"},
    "pages": [{"cid": 62131, "page": 1, "duration": 2230}]
  }
}`

func newTestClient(t *testing.T, srv *httptest.Server) Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:     srv.URL + "/",
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		HTTPClient:  srv.Client(),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { closeClient(c) })
	return c
}

func closeClient(c Client) {
	if closer, ok := c.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "ftp://example.com"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestGetVideoDetailViewSuccess(t *testing.T) {
	t.Parallel()

	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, viewPath, r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleView))
	}))
	defer srv.Close()

	view, err := newTestClient(t, srv).GetVideoDetailView(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)

	assert.Equal(t, "bvid=BV1xx411c7mD", gotQuery)
	assert.Equal(t, "BilibiliSponsorBlockServer", gotUA)
	assert.Equal(t, int64(2), view.Owner.MID)
	assert.Equal(t, "碧诗", view.Owner.Name)

	details := toVideoDetails("BV1xx411c7mD", view)
	assert.Equal(t, &VideoDetails{
		VideoID:    "BV1xx411c7mD",
		Duration:   2230,
		AuthorID:   "2",
		AuthorName: "碧诗",
		Title:      "字幕君交流场所",
		Published:  1252458549,
	}, details)
}

func TestGetVideoDetailViewUsesAidForAvIDs(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(sampleView))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetVideoDetailView(context.Background(), "av170001")
	require.NoError(t, err)
	assert.Equal(t, "aid=170001", gotQuery)
}

func TestGetVideoDetailViewNotFound(t *testing.T) {
	t.Parallel()

	for name, handler := range map[string]http.HandlerFunc{
		"api code": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"code": -404, "message": "啥都木有"})
		},
		"invisible": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 62002, "message": "稿件不可见"})
		},
		"http 404": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			_, err := newTestClient(t, srv).GetVideoDetailView(context.Background(), "BV1xx411c7mD")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestGetVideoDetailViewUpstreamCodeError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":-400,"message":"请求错误"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetVideoDetailView(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "-400")
}

func TestGetVideoDetailViewRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(sampleView))
	}))
	defer srv.Close()

	view, err := newTestClient(t, srv).GetVideoDetailView(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "BV1xx411c7mD", view.BVID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetVideoDetailViewGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetVideoDetailView(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetVideoDetailViewDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GetVideoDetailView(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetVideoDetailViewRejectsInvalidID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("server should not be called for invalid id")
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	for _, id := range []string{"", "BV1/../x", "BV1 x", "BV1xx411c7mD&aid=1"} {
		_, err := c.GetVideoDetailView(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidVideoID, "id %q", id)
	}
}

func TestGetVideoDetailViewHonoursCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv).GetVideoDetailView(ctx, "BV1xx411c7mD")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestToVideoDetailsFallsBackToVideoDuration(t *testing.T) {
	t.Parallel()

	v := &VideoDetailView{Title: "t", Duration: 90}
	assert.Equal(t, int64(90), toVideoDetails("BV1", v).Duration)

	v.Pages = append(v.Pages, struct {
		CID      int64 `json:"cid"`
		Page     int   `json:"page"`
		Duration int64 `json:"duration"`
	}{Page: 1})
	assert.Equal(t, int64(90), toVideoDetails("BV1", v).Duration)
}
