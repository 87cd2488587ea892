package compare

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/snapgate/snapgate/internal/cache"
	"github.com/snapgate/snapgate/pkg/shared"
)

// ErrBaselineNotFound reports a missing named baseline, distinct from a
// failed comparison.
var ErrBaselineNotFound = errors.New("baseline not found")

var baselineNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Engine persists named baselines and diff visualizations in a blob
// store and runs comparisons against them.
type Engine struct {
	blobs cache.BlobStore
}

func NewEngine(blobs cache.BlobStore) *Engine {
	return &Engine{blobs: blobs}
}

// SaveBaseline stores image bytes as the named reference. Replacement is
// explicit: saving over an existing name overwrites it.
func (e *Engine) SaveBaseline(ctx context.Context, name string, data []byte) error {
	if !baselineNameRe.MatchString(name) {
		return &shared.ValidationError{Field: "name", Message: "baseline name must be alphanumeric with . _ -"}
	}
	if _, err := DecodeImage(data); err != nil {
		return &shared.ValidationError{Field: "image", Message: "baseline must be a decodable PNG or JPEG"}
	}
	return e.blobs.Put(ctx, baselineKey(name), "image/png", data)
}

// Baseline fetches the named reference image bytes.
func (e *Engine) Baseline(ctx context.Context, name string) ([]byte, error) {
	data, _, err := e.blobs.Get(ctx, baselineKey(name))
	if err != nil {
		if errors.Is(err, cache.ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBaselineNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

// CompareWithBaseline compares candidate bytes against the named
// baseline, persists the diff visualization, and returns the result with
// the diff's storage key.
func (e *Engine) CompareWithBaseline(ctx context.Context, name string, candidate []byte, threshold float64) (*Result, string, error) {
	baselineData, err := e.Baseline(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return e.CompareBytes(ctx, baselineData, candidate, threshold)
}

// CompareBytes decodes and compares two images, storing the diff
// visualization. The returned key addresses the stored diff PNG.
func (e *Engine) CompareBytes(ctx context.Context, baseline, candidate []byte, threshold float64) (*Result, string, error) {
	baseImg, err := DecodeImage(baseline)
	if err != nil {
		return nil, "", err
	}
	candImg, err := DecodeImage(candidate)
	if err != nil {
		return nil, "", err
	}

	result, err := Images(baseImg, candImg, threshold)
	if err != nil {
		return nil, "", err
	}

	diffPNG, err := EncodePNG(result.Diff)
	if err != nil {
		return nil, "", err
	}

	diffKey := "comparisons/diff-" + uuid.New().String() + ".png"
	if err := e.blobs.Put(ctx, diffKey, "image/png", diffPNG); err != nil {
		return nil, "", fmt.Errorf("store diff image: %w", err)
	}

	return result, diffKey, nil
}

// Diff fetches a previously stored diff visualization by key.
func (e *Engine) Diff(ctx context.Context, key string) ([]byte, error) {
	data, _, err := e.blobs.Get(ctx, key)
	return data, err
}

func baselineKey(name string) string {
	return "baselines/" + name + ".png"
}
