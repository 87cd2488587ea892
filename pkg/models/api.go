// Package models holds the request and response shapes of the HTTP API.
package models

import (
	"github.com/snapgate/snapgate/pkg/shared"
)

// ScreenshotRequest is the capture parameter set as received on the
// wire. Format and device arrive as raw strings and are validated when
// converted to capture options.
type ScreenshotRequest struct {
	URL             string `json:"url" form:"url"`
	Width           int    `json:"width" form:"width"`
	Height          int    `json:"height" form:"height"`
	FullPage        bool   `json:"fullpage" form:"fullpage"`
	Delay           int    `json:"delay" form:"delay"`
	Format          string `json:"format" form:"format"`
	Quality         int    `json:"quality" form:"quality"`
	Selector        string `json:"selector" form:"selector"`
	Device          string `json:"device" form:"device"`
	UserAgent       string `json:"user_agent" form:"user_agent"`
	DarkMode        bool   `json:"dark_mode" form:"dark_mode"`
	WaitForSelector string `json:"wait_for_selector" form:"wait_for_selector"`
	Script          string `json:"script" form:"script"`
	BlockAds        bool   `json:"block_ads" form:"block_ads"`
	ScrollPage      bool   `json:"scroll_page" form:"scroll_page"`
	MediaType       string `json:"media_type" form:"media_type"`
	Timezone        string `json:"timezone" form:"timezone"`
}

// Options converts the wire request into normalized capture options.
func (r ScreenshotRequest) Options() shared.CaptureOptions {
	return shared.CaptureOptions{
		URL:             r.URL,
		Width:           r.Width,
		Height:          r.Height,
		FullPage:        r.FullPage,
		DelayMillis:     r.Delay,
		Format:          shared.Format(r.Format),
		Quality:         r.Quality,
		Selector:        r.Selector,
		Device:          shared.Device(r.Device),
		UserAgent:       r.UserAgent,
		DarkMode:        r.DarkMode,
		WaitForSelector: r.WaitForSelector,
		Script:          r.Script,
		BlockAds:        r.BlockAds,
		ScrollPage:      r.ScrollPage,
		MediaType:       r.MediaType,
		Timezone:        r.Timezone,
	}.Normalized()
}

// AsyncScreenshotRequest adds callback delivery to a capture request.
type AsyncScreenshotRequest struct {
	ScreenshotRequest
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
}

type AsyncScreenshotResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

type BatchRequest struct {
	URLs     []string          `json:"urls"`
	Settings ScreenshotRequest `json:"settings"`
}

type BatchItemResult struct {
	URL     string `json:"url"`
	Status  string `json:"status"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type BatchResponse struct {
	Total   int               `json:"total"`
	Results []BatchItemResult `json:"results"`
}

// CompareRequest compares a named baseline against a candidate, supplied
// either as inline base64 image bytes or as capture parameters for a
// fresh rendering.
type CompareRequest struct {
	Baseline      string             `json:"baseline"`
	Threshold     *float64           `json:"threshold,omitempty"`
	Candidate     string             `json:"candidate,omitempty"`
	URL           string             `json:"url,omitempty"`
	CaptureParams *ScreenshotRequest `json:"capture_params,omitempty"`
}

type CompareResponse struct {
	Passed          bool    `json:"passed"`
	DifferenceRatio float64 `json:"difference_ratio"`
	DiffPixels      int     `json:"different_pixels"`
	TotalPixels     int     `json:"total_pixels"`
	Threshold       float64 `json:"threshold"`
	DiffKey         string  `json:"diff_key"`
}

// BaselineRequest creates or replaces a named baseline, from either an
// inline image or a fresh capture.
type BaselineRequest struct {
	Name          string             `json:"name"`
	Image         string             `json:"image,omitempty"`
	URL           string             `json:"url,omitempty"`
	CaptureParams *ScreenshotRequest `json:"capture_params,omitempty"`
}

type BaselineResponse struct {
	Name string `json:"baseline_name"`
}

type DevicesResponse struct {
	Devices map[string]shared.DevicePreset `json:"devices"`
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Components    map[string]string `json:"components"`
}
