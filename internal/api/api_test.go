package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snapgate/snapgate/internal/cache"
	"github.com/snapgate/snapgate/internal/compare"
	"github.com/snapgate/snapgate/internal/governor"
	"github.com/snapgate/snapgate/internal/jobs"
	"github.com/snapgate/snapgate/internal/renderer"
	"github.com/snapgate/snapgate/pkg/models"
	"github.com/snapgate/snapgate/pkg/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type stubRenderer struct {
	calls int32
	fail  bool
}

func (r *stubRenderer) Capture(ctx context.Context, opts shared.CaptureOptions) (*renderer.Result, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.fail {
		return nil, &renderer.CaptureError{Message: "engine overloaded", Transient: true}
	}
	return &renderer.Result{
		Data:        testPNG(20, 20, color.RGBA{255, 255, 255, 255}),
		ContentType: opts.Format.ContentType(),
		FinalURL:    opts.URL,
	}, nil
}

func testPNG(w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

type testEnv struct {
	server   *Server
	renderer *stubRenderer
	store    *jobs.MemoryStore
}

func newTestEnv(t *testing.T, limits governor.Limits) *testEnv {
	t.Helper()

	render := &stubRenderer{}
	blobs := cache.NewMemoryBlobStore()
	store := jobs.NewMemoryStore()
	deliverer := jobs.NewDeliverer(jobs.DelivererConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
	}, store)
	orch := jobs.NewOrchestrator(jobs.OrchestratorConfig{
		Workers:        2,
		QueueSize:      16,
		CaptureTimeout: time.Second,
	}, store, render, blobs, deliverer)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	orch.Start(ctx)

	server := NewServer(ServerConfig{
		Governor:       governor.New(limits, governor.NewMemoryStore()),
		Cache:          cache.New(blobs),
		Comparer:       compare.NewEngine(blobs),
		Orchestrator:   orch,
		Renderer:       render,
		APIKeyDigests:  []string{shared.SHA256Hex([]byte(testAPIKey))},
		CacheTTL:       time.Minute,
		CaptureTimeout: time.Second,
	})

	return &testEnv{server: server, renderer: render, store: store}
}

func defaultLimits() governor.Limits {
	return governor.Limits{PerMinute: 100, PerHour: 1000}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestDevicesIsPublic(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	req := httptest.NewRequest("GET", "/devices", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)

	var resp models.DevicesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Devices, "iphone13")
	assert.Equal(t, 390, resp.Devices["iphone13"].Viewport.Width)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	req := httptest.NewRequest("POST", "/screenshot", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, 401, w.Code)

	req = httptest.NewRequest("POST", "/screenshot", bytes.NewReader(nil))
	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, 401, w.Code)
}

func TestAuthAcceptsQueryParameter(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	req := httptest.NewRequest("GET", "/screenshot?api_key="+testAPIKey+"&url=https://example.com", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
}

func TestScreenshotServedAndCached(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	body := models.ScreenshotRequest{URL: "https://example.com"}

	w := env.do(t, "POST", "/screenshot", body)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.NotEmpty(t, w.Body.Bytes())

	w = env.do(t, "POST", "/screenshot", body)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.renderer.calls))
}

func TestScreenshotEquivalentRequestsShareCacheEntry(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(t, "POST", "/screenshot", models.ScreenshotRequest{URL: "https://example.com"})
	require.Equal(t, 200, w.Code)

	// Same capture expressed with explicit defaults.
	w = env.do(t, "POST", "/screenshot", models.ScreenshotRequest{
		URL: "https://example.com", Width: 1920, Height: 1080, Quality: 80, Format: "png",
	})
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

func TestScreenshotValidation(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	tests := []struct {
		name string
		body models.ScreenshotRequest
	}{
		{"missing url", models.ScreenshotRequest{}},
		{"width out of range", models.ScreenshotRequest{URL: "https://example.com", Width: 10000}},
		{"unknown device", models.ScreenshotRequest{URL: "https://example.com", Device: "rotary_phone"}},
		{"unknown format", models.ScreenshotRequest{URL: "https://example.com", Format: "tiff"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/screenshot", tt.body)
			assert.Equal(t, 400, w.Code)
		})
	}
}

func TestScreenshotEngineFailure(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	env.renderer.fail = true

	w := env.do(t, "POST", "/screenshot", models.ScreenshotRequest{URL: "https://example.com"})
	assert.Equal(t, 502, w.Code)
}

func TestRateLimitEnforced(t *testing.T) {
	env := newTestEnv(t, governor.Limits{PerMinute: 2, PerHour: 100})
	body := models.ScreenshotRequest{URL: "https://example.com"}

	w := env.do(t, "POST", "/screenshot", body)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining-Minute"))

	w = env.do(t, "POST", "/screenshot", body)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining-Minute"))

	w = env.do(t, "POST", "/screenshot", body)
	require.Equal(t, 429, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp struct {
		RetryAfter int `json:"retry_after"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Positive(t, resp.RetryAfter)
	assert.LessOrEqual(t, resp.RetryAfter, 60)
}

func TestRateLimitCountsDeniedRequestsAgainstNothing(t *testing.T) {
	env := newTestEnv(t, governor.Limits{PerMinute: 1, PerHour: 100})
	body := models.ScreenshotRequest{URL: "https://example.com"}

	require.Equal(t, 200, env.do(t, "POST", "/screenshot", body).Code)

	first := env.do(t, "POST", "/screenshot", body)
	second := env.do(t, "POST", "/screenshot", body)
	assert.Equal(t, 429, first.Code)
	assert.Equal(t, 429, second.Code)
	assert.Equal(t, first.Header().Get("Retry-After"), second.Header().Get("Retry-After"))
}

func TestBatchScreenshots(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(t, "POST", "/batch", models.BatchRequest{
		URLs: []string{"https://example.com", "https://example.org", "ftp://bad.example"},
	})
	require.Equal(t, 200, w.Code)

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Total)

	assert.Equal(t, "success", resp.Results[0].Status)
	assert.Contains(t, resp.Results[0].Data, "data:image/png;base64,")
	assert.Equal(t, "success", resp.Results[1].Status)
	assert.Equal(t, "error", resp.Results[2].Status)
	assert.NotEmpty(t, resp.Results[2].Message)
}

func TestBatchLimitEnforced(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	urls := make([]string, shared.MaxBatchURLs+1)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/page-%d", i)
	}

	w := env.do(t, "POST", "/batch", models.BatchRequest{URLs: urls})
	assert.Equal(t, 400, w.Code)
}

func TestAsyncScreenshotLifecycle(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(t, "POST", "/screenshot/async", models.AsyncScreenshotRequest{
		ScreenshotRequest: models.ScreenshotRequest{URL: "https://example.com"},
	})
	require.Equal(t, 202, w.Code)

	var accepted models.AsyncScreenshotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.JobID)
	assert.Equal(t, "pending", accepted.Status)
	assert.Equal(t, "/jobs/"+accepted.JobID, accepted.StatusURL)

	var rec jobs.Record
	require.Eventually(t, func() bool {
		w := env.do(t, "GET", accepted.StatusURL, nil)
		if w.Code != 200 {
			return false
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		return rec.Status.Terminal()
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, jobs.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Result)

	w = env.do(t, "GET", accepted.StatusURL+"/artifact", nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestAsyncScreenshotValidatesWebhookURL(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(t, "POST", "/screenshot/async", models.AsyncScreenshotRequest{
		ScreenshotRequest: models.ScreenshotRequest{URL: "https://example.com"},
		WebhookURL:        "not a url",
	})
	assert.Equal(t, 400, w.Code)
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(t, "GET", "/jobs/unknown-id", nil)
	assert.Equal(t, 404, w.Code)
}

func TestJobSecretNeverSerialized(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(t, "POST", "/screenshot/async", models.AsyncScreenshotRequest{
		ScreenshotRequest: models.ScreenshotRequest{URL: "https://example.com"},
		WebhookURL:        "https://hooks.example.com/cb",
		WebhookSecret:     "super-secret-value",
	})
	require.Equal(t, 202, w.Code)

	var accepted models.AsyncScreenshotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	status := env.do(t, "GET", "/jobs/"+accepted.JobID, nil)
	require.Equal(t, 200, status.Code)
	assert.NotContains(t, status.Body.String(), "super-secret-value")
}

func TestCompareFlow(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	baseline := base64.StdEncoding.EncodeToString(testPNG(20, 20, color.RGBA{255, 255, 255, 255}))
	w := env.do(t, "POST", "/baselines", models.BaselineRequest{Name: "homepage", Image: baseline})
	require.Equal(t, 201, w.Code)

	// The stub renderer produces the same white 20x20 image.
	w = env.do(t, "POST", "/compare", models.CompareRequest{
		Baseline: "homepage",
		URL:      "https://example.com",
	})
	require.Equal(t, 200, w.Code)

	var resp models.CompareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Passed)
	assert.Zero(t, resp.DiffPixels)
	assert.Equal(t, 400, resp.TotalPixels)
	assert.Equal(t, 0.02, resp.Threshold)
	assert.NotEmpty(t, resp.DiffKey)

	diff := env.do(t, "GET", "/"+resp.DiffKey, nil)
	require.Equal(t, 200, diff.Code)
	assert.Equal(t, "image/png", diff.Header().Get("Content-Type"))
}

func TestCompareFailsOverThreshold(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	baseline := base64.StdEncoding.EncodeToString(testPNG(20, 20, color.RGBA{0, 0, 0, 255}))
	w := env.do(t, "POST", "/baselines", models.BaselineRequest{Name: "dark", Image: baseline})
	require.Equal(t, 201, w.Code)

	candidate := base64.StdEncoding.EncodeToString(testPNG(20, 20, color.RGBA{255, 255, 255, 255}))
	w = env.do(t, "POST", "/compare", models.CompareRequest{Baseline: "dark", Candidate: candidate})
	require.Equal(t, 200, w.Code)

	var resp models.CompareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Passed)
	assert.Equal(t, 1.0, resp.DifferenceRatio)
}

func TestCompareDimensionMismatch(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	baseline := base64.StdEncoding.EncodeToString(testPNG(10, 10, color.RGBA{255, 255, 255, 255}))
	w := env.do(t, "POST", "/baselines", models.BaselineRequest{Name: "small", Image: baseline})
	require.Equal(t, 201, w.Code)

	candidate := base64.StdEncoding.EncodeToString(testPNG(20, 20, color.RGBA{255, 255, 255, 255}))
	w = env.do(t, "POST", "/compare", models.CompareRequest{Baseline: "small", Candidate: candidate})
	assert.Equal(t, 422, w.Code)
}

func TestCompareMissingBaseline(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	candidate := base64.StdEncoding.EncodeToString(testPNG(10, 10, color.RGBA{255, 255, 255, 255}))
	w := env.do(t, "POST", "/compare", models.CompareRequest{Baseline: "ghost", Candidate: candidate})
	assert.Equal(t, 404, w.Code)
}

func TestGetBaseline(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	img := testPNG(10, 10, color.RGBA{255, 255, 255, 255})
	w := env.do(t, "POST", "/baselines", models.BaselineRequest{
		Name:  "homepage",
		Image: base64.StdEncoding.EncodeToString(img),
	})
	require.Equal(t, 201, w.Code)

	w = env.do(t, "GET", "/baselines/homepage", nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, img, w.Body.Bytes())

	w = env.do(t, "GET", "/baselines/missing", nil)
	assert.Equal(t, 404, w.Code)
}

func TestCreateBaselineFromCapture(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(t, "POST", "/baselines", models.BaselineRequest{
		Name: "captured",
		URL:  "https://example.com",
	})
	require.Equal(t, 201, w.Code)

	w = env.do(t, "GET", "/baselines/captured", nil)
	assert.Equal(t, 200, w.Code)
}
