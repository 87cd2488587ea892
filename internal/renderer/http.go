package renderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snapgate/snapgate/pkg/shared"
)

// Client talks to one rendering engine over HTTP. The engine exposes
// POST /render taking the capture options and returning the artifact
// base64-encoded, and GET /health.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		// No client timeout: the per-capture deadline comes from ctx.
		httpClient: &http.Client{},
	}
}

type renderResponse struct {
	Artifact    string          `json:"artifact"`
	ContentType string          `json:"content_type"`
	FinalURL    string          `json:"final_url"`
	Viewport    shared.Viewport `json:"viewport"`
	UserAgent   string          `json:"user_agent"`
}

func (c *Client) Capture(ctx context.Context, opts shared.CaptureOptions) (*Result, error) {
	body, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrCaptureTimeout, err)
		}
		return nil, &CaptureError{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &CaptureError{
			Message:   fmt.Sprintf("engine returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)),
			Transient: resp.StatusCode >= 500,
		}
	}

	var rr renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, &CaptureError{Message: "bad engine response: " + err.Error(), Transient: true}
	}

	data, err := base64.StdEncoding.DecodeString(rr.Artifact)
	if err != nil {
		return nil, &CaptureError{Message: "bad engine artifact encoding: " + err.Error(), Transient: true}
	}

	contentType := rr.ContentType
	if contentType == "" {
		contentType = opts.Format.ContentType()
	}

	return &Result{
		Data:        data,
		ContentType: contentType,
		FinalURL:    rr.FinalURL,
		Viewport:    rr.Viewport,
		UserAgent:   rr.UserAgent,
	}, nil
}

// Healthy probes the engine health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
