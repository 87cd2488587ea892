package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCaptureOptions(t *testing.T) {
	valid := CaptureOptions{URL: "https://example.com"}.Normalized()
	require.NoError(t, ValidateCaptureOptions(valid))

	tests := []struct {
		name   string
		mutate func(*CaptureOptions)
		field  string
	}{
		{"missing url", func(o *CaptureOptions) { o.URL = "" }, "url"},
		{"bad scheme", func(o *CaptureOptions) { o.URL = "ftp://example.com" }, "url"},
		{"width too small", func(o *CaptureOptions) { o.Width = 50 }, "width"},
		{"width too large", func(o *CaptureOptions) { o.Width = 5000 }, "width"},
		{"height too small", func(o *CaptureOptions) { o.Height = 50 }, "height"},
		{"height too large", func(o *CaptureOptions) { o.Height = 3000 }, "height"},
		{"quality zero", func(o *CaptureOptions) { o.Quality = 0 }, "quality"},
		{"quality too high", func(o *CaptureOptions) { o.Quality = 101 }, "quality"},
		{"delay negative", func(o *CaptureOptions) { o.DelayMillis = -1 }, "delay"},
		{"delay too long", func(o *CaptureOptions) { o.DelayMillis = 40000 }, "delay"},
		{"unknown format", func(o *CaptureOptions) { o.Format = "bmp" }, "format"},
		{"unknown device", func(o *CaptureOptions) { o.Device = "iphone99" }, "device"},
		{"bad media type", func(o *CaptureOptions) { o.MediaType = "braille" }, "media_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			err := ValidateCaptureOptions(opts)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", SanitizeURL("example.com"))
	assert.Equal(t, "https://example.com", SanitizeURL("  https://example.com  "))
	assert.Equal(t, "http://example.com", SanitizeURL("http://example.com"))
	assert.Equal(t, "", SanitizeURL(""))
}

func TestParseDevice(t *testing.T) {
	for _, d := range Devices() {
		parsed, ok := ParseDevice(string(d))
		require.True(t, ok, "device %s", d)
		assert.Equal(t, d, parsed)

		preset, ok := d.Preset()
		require.True(t, ok)
		assert.Positive(t, preset.Viewport.Width)
		assert.Positive(t, preset.Viewport.Height)
		assert.NotEmpty(t, preset.UserAgent)
	}

	_, ok := ParseDevice("")
	assert.True(t, ok, "empty device means no emulation")

	_, ok = ParseDevice("nokia3310")
	assert.False(t, ok)
}
