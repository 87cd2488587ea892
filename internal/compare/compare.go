// Package compare scores pixel-level differences between two renderings
// for visual regression testing.
package compare

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"

	"github.com/snapgate/snapgate/pkg/shared"
)

// ErrDimensionMismatch reports images of unequal pixel dimensions. The
// engine never resizes: a size mismatch is a caller-visible signal.
var ErrDimensionMismatch = errors.New("image dimensions do not match")

// pixelEpsilon is the per-pixel sensitivity: the sum of absolute 8-bit
// channel deltas above which a pixel counts as different.
const pixelEpsilon = 30

var highlight = color.RGBA{R: 255, A: 255}

// Result is a single comparison verdict. DifferenceRatio is
// differing pixels over total pixels, in [0, 1].
type Result struct {
	Passed          bool
	DifferenceRatio float64
	DiffPixels      int
	TotalPixels     int
	Diff            *image.RGBA
}

// Images compares two equal-sized images. A pixel differs when its
// channel distance exceeds the fixed epsilon; the comparison passes when
// the differing ratio is at or below threshold. The returned Diff is a
// same-size copy of candidate with differing pixels highlighted.
// Integer channel math keeps the verdict deterministic across platforms.
func Images(baseline, candidate image.Image, threshold float64) (*Result, error) {
	if threshold < 0 {
		return nil, &shared.ValidationError{Field: "threshold", Message: "threshold must be non-negative"}
	}

	bb := baseline.Bounds()
	cb := candidate.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return nil, fmt.Errorf("%w: baseline %dx%d, candidate %dx%d",
			ErrDimensionMismatch, bb.Dx(), bb.Dy(), cb.Dx(), cb.Dy())
	}

	width, height := bb.Dx(), bb.Dy()
	diff := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(diff, diff.Bounds(), candidate, cb.Min, draw.Src)

	diffPixels := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			br, bg, bbl, _ := baseline.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			cr, cg, cbl, _ := candidate.At(cb.Min.X+x, cb.Min.Y+y).RGBA()

			distance := absDelta(br, cr) + absDelta(bg, cg) + absDelta(bbl, cbl)
			if distance > pixelEpsilon {
				diffPixels++
				diff.SetRGBA(x, y, highlight)
			}
		}
	}

	total := width * height
	ratio := float64(diffPixels) / float64(total)

	return &Result{
		Passed:          ratio <= threshold,
		DifferenceRatio: ratio,
		DiffPixels:      diffPixels,
		TotalPixels:     total,
		Diff:            diff,
	}, nil
}

// absDelta works on the 16-bit values color.Color reports, reduced to
// 8-bit so epsilon matches common PNG/JPEG channel depth.
func absDelta(a, b uint32) int {
	av := int(a >> 8)
	bv := int(b >> 8)
	if av > bv {
		return av - bv
	}
	return bv - av
}

// DecodeImage parses PNG or JPEG bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodePNG renders an image back to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
