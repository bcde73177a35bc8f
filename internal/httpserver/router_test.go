package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/cache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/features"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/handlers"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashcache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashing"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/querycache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/videodetails"
)

type staticVideos struct{}

func (staticVideos) GetVideoDetails(_ context.Context, videoID string, _ bool) (*videodetails.VideoDetails, error) {
	if videoID == "BVmissing" {
		return nil, nil
	}
	return &videodetails.VideoDetails{VideoID: videoID, Title: "t"}, nil
}

type testRouter struct {
	http.Handler
	mem         *cache.MemoryStore
	hashAdapter *cache.Adapter
}

func newTestRouter(t *testing.T, ipTTL time.Duration) testRouter {
	logger := zaptest.NewLogger(t)
	mem := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { mem.Close() })

	hashAdapter := cache.NewAdapter(mem, cache.AdapterConfig{Name: "hash"}, logger)
	queryAdapter := cache.NewAdapter(mem, cache.AdapterConfig{Name: "query"}, logger)
	t.Cleanup(hashAdapter.Wait)
	t.Cleanup(queryAdapter.Wait)

	memoizer := hashcache.New(hashAdapter, hashcache.Config{FullRounds: 20, Salt: "salt", IPEntryTTL: ipTTL}, logger)
	qc := querycache.New(queryAdapter, querycache.Config{DefaultTTL: time.Minute}, logger)

	r := chi.NewRouter()
	SetupRouter(r, logger, Handlers{
		User:     handlers.NewUserHandler(memoizer),
		Video:    handlers.NewVideoHandler(staticVideos{}),
		Feature:  handlers.NewFeatureHandler(memoizer, features.NewService(features.NewMemoryStore(), qc)),
		Health:   handlers.NewHealthHandler(mem),
		IPHasher: memoizer,
	})
	return testRouter{Handler: r, mem: mem, hashAdapter: hashAdapter}
}

func TestRouterRoutes(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, time.Hour))
	defer srv.Close()

	get := func(path string) *http.Response {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := get("/api/userID?userID=alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, string(hashing.Hash("alice", 20)), user["hashedUserID"])

	assert.Equal(t, http.StatusOK, get("/api/videoDetails/BV1xx411c7mD").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/api/videoDetails/BVmissing").StatusCode)
	assert.Equal(t, http.StatusOK, get("/api/userFeature?userID=alice&feature=1").StatusCode)
	assert.Equal(t, http.StatusOK, get("/healthz").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/v1/chat/completions").StatusCode)
	assert.NotEmpty(t, get("/api/userID?userID=bob").Header.Get("Content-Type"))
}

func TestOperationalRoutesDoNotHashClientIP(t *testing.T) {
	tr := newTestRouter(t, time.Hour)

	for i := 0; i < 50; i++ {
		for _, path := range []string{"/healthz", "/metrics"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
			tr.ServeHTTP(httptest.NewRecorder(), req)
		}
	}
	tr.hashAdapter.Wait()

	assert.Zero(t, tr.mem.Len())
}

func TestHashedClientIPEntriesExpire(t *testing.T) {
	tr := newTestRouter(t, 50*time.Millisecond)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/api/userID", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	tr.hashAdapter.Wait()

	key := cache.HashKey(string(hashing.Hash("198.51.100.9salt", 1)))
	_, ok, err := tr.mem.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok, "the /api routes memoize the client IP hash")

	require.Eventually(t, func() bool {
		_, ok, err := tr.mem.Get(ctx, key)
		return err == nil && !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNewServerTimeouts(t *testing.T) {
	srv := NewServer(":0", http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.WriteTimeout)
}
