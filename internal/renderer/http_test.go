package renderer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snapgate/snapgate/pkg/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineStub(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestClientCapture(t *testing.T) {
	var gotOpts shared.CaptureOptions
	client := engineStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/render", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotOpts))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"artifact":     base64.StdEncoding.EncodeToString([]byte("png-bytes")),
			"content_type": "image/png",
			"final_url":    "https://example.com/",
			"viewport":     shared.Viewport{Width: 1920, Height: 1080},
			"user_agent":   "HeadlessChrome",
		})
	})

	opts := shared.CaptureOptions{URL: "https://example.com"}.Normalized()
	result, err := client.Capture(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []byte("png-bytes"), result.Data)
	assert.Equal(t, "image/png", result.ContentType)
	assert.Equal(t, "https://example.com/", result.FinalURL)
	assert.Equal(t, opts.URL, gotOpts.URL)
	assert.Equal(t, opts.Width, gotOpts.Width)
}

func TestClientCaptureDefaultsContentType(t *testing.T) {
	client := engineStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"artifact": base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")),
		})
	})

	opts := shared.CaptureOptions{URL: "https://example.com", Format: shared.FormatJPEG}.Normalized()
	result, err := client.Capture(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", result.ContentType)
}

func TestClientCaptureEngineErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"server error is transient", 500, true},
		{"bad request is fatal", 400, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := engineStub(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			})

			_, err := client.Capture(context.Background(), shared.CaptureOptions{URL: "https://example.com"}.Normalized())
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestClientCaptureTimeout(t *testing.T) {
	client := engineStub(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Capture(ctx, shared.CaptureOptions{URL: "https://example.com"}.Normalized())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	assert.True(t, IsTransient(err))
}

func TestClientCaptureBadArtifactEncoding(t *testing.T) {
	client := engineStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"artifact": "not base64!!!"})
	})

	_, err := client.Capture(context.Background(), shared.CaptureOptions{URL: "https://example.com"}.Normalized())
	require.Error(t, err)

	var cerr *CaptureError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "artifact encoding")
}

func TestClientHealthy(t *testing.T) {
	up := engineStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(200)
	})
	assert.True(t, up.Healthy(context.Background()))

	down := engineStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	})
	assert.False(t, down.Healthy(context.Background()))
}
