// Package jobs owns the lifecycle of asynchronous capture requests:
// persisted job records, out-of-band capture execution, and signed
// webhook delivery with retry.
package jobs

import (
	"errors"
	"time"

	"github.com/snapgate/snapgate/pkg/shared"
)

// Status is a job lifecycle state. Transitions are monotonic:
// pending -> processing -> completed | failed. Terminal states are final.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrNotFound reports an unknown job id.
var ErrNotFound = errors.New("job not found")

// ErrInvalidTransition reports an attempt to move a job backwards or out
// of a terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// ResultRef points at a stored capture artifact. URL is a time-limited
// direct download link, present when the blob backend can mint one.
type ResultRef struct {
	ArtifactKey string `json:"artifact_key"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	FinalURL    string `json:"final_url,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Delivery tracks webhook delivery progress for a job.
type Delivery struct {
	Attempts    int        `json:"attempts"`
	Delivered   bool       `json:"delivered"`
	Exhausted   bool       `json:"exhausted"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Record is the persisted state of one async job. The callback secret
// never serializes.
type Record struct {
	ID          string                `json:"job_id"`
	Type        string                `json:"job_type"`
	Status      Status                `json:"status"`
	Options     shared.CaptureOptions `json:"params"`
	CallbackURL string                `json:"webhook_url,omitempty"`
	Secret      string                `json:"-"`
	Result      *ResultRef            `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Delivery    Delivery              `json:"delivery"`
}

func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}
