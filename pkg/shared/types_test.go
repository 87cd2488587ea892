package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizedAppliesDefaults(t *testing.T) {
	opts := CaptureOptions{URL: "example.com"}.Normalized()

	assert.Equal(t, "https://example.com", opts.URL)
	assert.Equal(t, FormatPNG, opts.Format)
	assert.Equal(t, DefaultWidth, opts.Width)
	assert.Equal(t, DefaultHeight, opts.Height)
	assert.Equal(t, DefaultQuality, opts.Quality)
}

func TestNormalizedResolvesDevicePreset(t *testing.T) {
	opts := CaptureOptions{
		URL:    "https://example.com",
		Width:  500,
		Height: 500,
		Device: DeviceIPhone13,
	}.Normalized()

	assert.Equal(t, 390, opts.Width)
	assert.Equal(t, 844, opts.Height)
	assert.Contains(t, opts.UserAgent, "iPhone")
}

func TestFingerprintStable(t *testing.T) {
	a := CaptureOptions{URL: "https://example.com", Width: 800, Height: 600, Quality: 80, Format: FormatPNG}
	b := CaptureOptions{Format: FormatPNG, Quality: 80, Height: 600, Width: 800, URL: "https://example.com"}

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
	assert.Len(t, fpA, 64)
}

func TestFingerprintCollidesForEquivalentRequests(t *testing.T) {
	// Defaults filled in explicitly vs left to normalization.
	explicit := CaptureOptions{URL: "https://example.com", Width: 1920, Height: 1080, Quality: 80, Format: FormatPNG}
	implicit := CaptureOptions{URL: "example.com"}

	fpA, err := explicit.Fingerprint()
	require.NoError(t, err)
	fpB, err := implicit.Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
}

func TestFingerprintDiffersByParameter(t *testing.T) {
	base := CaptureOptions{URL: "https://example.com"}
	dark := CaptureOptions{URL: "https://example.com", DarkMode: true}

	fpA, err := base.Fingerprint()
	require.NoError(t, err)
	fpB, err := dark.Fingerprint()
	require.NoError(t, err)

	assert.NotEqual(t, fpA, fpB)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		ok       bool
	}{
		{"", FormatPNG, true},
		{"png", FormatPNG, true},
		{"jpeg", FormatJPEG, true},
		{"jpg", FormatJPEG, true},
		{"JPG", FormatJPEG, true},
		{"pdf", FormatPDF, true},
		{"webp", "", false},
	}

	for _, tt := range tests {
		t.Run("format_"+tt.input, func(t *testing.T) {
			f, ok := ParseFormat(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, f)
			}
		})
	}
}
