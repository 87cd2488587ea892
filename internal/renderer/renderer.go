// Package renderer is the boundary to the headless rendering engine.
// The engine is an opaque collaborator: given a URL and option set it
// returns artifact bytes or fails.
package renderer

import (
	"context"
	"errors"

	"github.com/snapgate/snapgate/pkg/shared"
)

// Result is one successful capture.
type Result struct {
	Data        []byte
	ContentType string
	FinalURL    string
	Viewport    shared.Viewport
	UserAgent   string
}

// Renderer executes a capture. Implementations must honor the context
// deadline; a stuck engine surfaces as ErrCaptureTimeout, never a hang.
type Renderer interface {
	Capture(ctx context.Context, opts shared.CaptureOptions) (*Result, error)
}

// ErrCaptureTimeout reports a capture that exceeded its deadline.
var ErrCaptureTimeout = errors.New("capture timed out")

// CaptureError distinguishes transient engine failures (network,
// overload) from fatal ones (unreachable target, bad input). Neither is
// retried here; the distinction is surfaced to the caller.
type CaptureError struct {
	Message   string
	Transient bool
}

func (e *CaptureError) Error() string {
	return "capture failed: " + e.Message
}

// IsTransient reports whether the capture failure was transient.
// Timeouts count as transient.
func IsTransient(err error) bool {
	if errors.Is(err, ErrCaptureTimeout) {
		return true
	}
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return false
}
