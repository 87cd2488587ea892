package shared

import "strings"

// Format is the artifact encoding produced by a capture.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatPDF  Format = "pdf"
)

// ParseFormat normalizes a user-supplied format string. "jpg" is an
// accepted alias for "jpeg".
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, true
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "pdf":
		return FormatPDF, true
	default:
		return "", false
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// Viewport is a pixel dimension pair.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CaptureOptions carries every capture-affecting parameter. The zero
// value is not usable directly; call Normalized to apply defaults and
// device presets before handing it to a renderer or fingerprinting it.
type CaptureOptions struct {
	URL             string `json:"url"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	FullPage        bool   `json:"fullpage,omitempty"`
	DelayMillis     int    `json:"delay,omitempty"`
	Format          Format `json:"format"`
	Quality         int    `json:"quality"`
	Selector        string `json:"selector,omitempty"`
	Device          Device `json:"device,omitempty"`
	UserAgent       string `json:"user_agent,omitempty"`
	DarkMode        bool   `json:"dark_mode,omitempty"`
	WaitForSelector string `json:"wait_for_selector,omitempty"`
	Script          string `json:"script,omitempty"`
	BlockAds        bool   `json:"block_ads,omitempty"`
	ScrollPage      bool   `json:"scroll_page,omitempty"`
	MediaType       string `json:"media_type,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

const (
	DefaultWidth   = 1920
	DefaultHeight  = 1080
	DefaultQuality = 80
)

// Normalized returns a copy with defaults applied and the device preset
// (if any) resolved into viewport and user agent. Two requests that mean
// the same capture normalize to identical values, which is what makes
// fingerprints collide for semantically identical requests.
func (o CaptureOptions) Normalized() CaptureOptions {
	out := o
	out.URL = SanitizeURL(o.URL)

	if f, ok := ParseFormat(string(o.Format)); ok {
		out.Format = f
	}
	if out.Width == 0 {
		out.Width = DefaultWidth
	}
	if out.Height == 0 {
		out.Height = DefaultHeight
	}
	if out.Quality == 0 {
		out.Quality = DefaultQuality
	}

	if preset, ok := out.Device.Preset(); ok {
		out.Width = preset.Viewport.Width
		out.Height = preset.Viewport.Height
		out.UserAgent = preset.UserAgent
	}

	return out
}

// Fingerprint derives the cache key for this option set. Canonical JSON
// keeps it independent of field ordering and encoder quirks.
func (o CaptureOptions) Fingerprint() (string, error) {
	data, err := CanonicalJSON(o.Normalized())
	if err != nil {
		return "", err
	}
	return SHA256Hex(data), nil
}
