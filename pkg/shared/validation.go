package shared

import (
	"net/url"
	"strings"
)

const (
	minViewport  = 100
	maxWidth     = 3840
	maxHeight    = 2160
	maxDelayMs   = 30000
	MaxBatchURLs = 10
)

func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}

	if parsed.Host == "" {
		return &ValidationError{Field: "url", Message: "host is required"}
	}

	return nil
}

func SanitizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	return rawURL
}

// ValidateCaptureOptions rejects malformed capture parameters before any
// admission, cache, or job logic runs. Call it on normalized options.
func ValidateCaptureOptions(o CaptureOptions) error {
	if o.URL == "" {
		return &ValidationError{Field: "url", Message: "url is required"}
	}
	if err := ValidateURL(o.URL); err != nil {
		return err
	}
	if _, ok := ParseFormat(string(o.Format)); !ok {
		return &ValidationError{Field: "format", Message: "format must be png, jpeg, or pdf"}
	}
	if _, ok := ParseDevice(string(o.Device)); !ok {
		return &ValidationError{Field: "device", Message: "unknown device preset"}
	}
	if o.Width < minViewport || o.Width > maxWidth {
		return &ValidationError{Field: "width", Message: "width must be between 100 and 3840"}
	}
	if o.Height < minViewport || o.Height > maxHeight {
		return &ValidationError{Field: "height", Message: "height must be between 100 and 2160"}
	}
	if o.Quality < 1 || o.Quality > 100 {
		return &ValidationError{Field: "quality", Message: "quality must be between 1 and 100"}
	}
	if o.DelayMillis < 0 || o.DelayMillis > maxDelayMs {
		return &ValidationError{Field: "delay", Message: "delay must be between 0 and 30000 milliseconds"}
	}
	if o.MediaType != "" && o.MediaType != "screen" && o.MediaType != "print" {
		return &ValidationError{Field: "media_type", Message: "media_type must be screen or print"}
	}
	return nil
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
