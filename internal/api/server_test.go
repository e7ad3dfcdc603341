package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlkit/frontier/internal/config"
	"github.com/crawlkit/frontier/internal/frontier"
	"github.com/crawlkit/frontier/internal/frontier/memory"
)

type fakeIDGen struct {
	id  string
	err error
}

func (g fakeIDGen) NewID() (string, error) {
	return g.id, g.err
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	stages := frontier.NewStageRegistry()
	stages.Register(frontier.FingerprintStage{})
	router := frontier.NewRouter(
		frontier.Config{},
		frontier.Backends{"memory": memory.Factory},
		stages,
		zap.NewNop(),
	)
	return NewServer(router, fakeIDGen{id: "generated-run"}, cfg, zap.NewNop())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, s.Handler(), http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestStartJobGeneratesCrawlID(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]string{"spider": "news"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "news", resp["spider"])
	require.Equal(t, "generated-run", resp["crawl_id"])
}

func TestStartJobTwiceConflicts(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	body := map[string]string{"spider": "news", "crawl_id": "run-1"}

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", body)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartJobMissingSpider(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreStatsPopFlow(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs",
		map[string]string{"spider": "news", "crawl_id": "run-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/news/requests", map[string]any{
		"requests": []map[string]any{
			{"url": "https://r1.example"},
			{"url": "https://r2.example"},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/v1/jobs/news/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 2, stats.Count)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/news/requests/pop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var popped struct {
		Request *frontier.Request `json:"request"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &popped))
	require.NotNil(t, popped.Request)
	require.Equal(t, "https://r2.example", popped.Request.URL)

	// Drain and confirm an empty frontier pops null.
	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/news/requests/pop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/news/requests/pop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &popped))
	require.Nil(t, popped.Request)
}

func TestUnknownSpiderReturns404(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/ghost/requests", map[string]any{
		"requests": []map[string]any{{"url": "https://x.example"}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/ghost/requests/pop", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/v1/jobs/ghost/stats", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/v1/jobs/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreMalformedRequestReturns400(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs",
		map[string]string{"spider": "news", "crawl_id": "run-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/news/requests", map[string]any{
		"requests": []map[string]any{{"meta": map[string]any{"no": "url"}}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/news/requests",
		bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req)
	require.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestStopJobThenRestart(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs",
		map[string]string{"spider": "news", "crawl_id": "run-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/v1/jobs/news", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/v1/jobs/news/stats", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs",
		map[string]string{"spider": "news", "crawl_id": "run-2"})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	for i := 0; i < 3; i++ {
		rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs",
			map[string]string{"spider": fmt.Sprintf("spider-%d", i), "crawl_id": "run-1"})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs []map[string]string `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 3)
	require.Equal(t, "spider-0", resp.Jobs[0]["spider"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	s := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz?api_key=secret", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeaderSet(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, config.Config{})
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
