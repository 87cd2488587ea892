package jobs

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapgate/snapgate/pkg/shared"
)

const (
	headerJobID     = "X-Webhook-Job-ID"
	headerTimestamp = "X-Webhook-Timestamp"
	headerSignature = "X-Webhook-Signature"
)

// Payload is the webhook body sent on job completion. Repeated
// deliveries for one job carry the same job id and terminal status, so
// receivers can deduplicate by job id.
type Payload struct {
	JobID       string     `json:"job_id"`
	Type        string     `json:"job_type"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Result      *ResultRef `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// DelivererConfig tunes webhook delivery.
type DelivererConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Workers        int
	QueueSize      int
	// RatePerSecond caps outbound deliveries across all jobs.
	RatePerSecond float64
}

func (c DelivererConfig) withDefaults() DelivererConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 1 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 50
	}
	return c
}

// Deliverer posts signed job payloads to callback URLs from a bounded
// worker pool, retrying with exponential backoff up to the configured
// attempt cap. Exhaustion is recorded on the job record; the record
// itself stays queryable.
type Deliverer struct {
	cfg        DelivererConfig
	store      Store
	httpClient *http.Client
	limiter    *rate.Limiter
	queue      chan string
}

func NewDeliverer(cfg DelivererConfig, store Store) *Deliverer {
	cfg = cfg.withDefaults()
	return &Deliverer{
		cfg:        cfg,
		store:      store,
		httpClient: &http.Client{Timeout: cfg.AttemptTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)),
		queue:      make(chan string, cfg.QueueSize),
	}
}

func (d *Deliverer) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		go d.worker(ctx)
	}
}

// Enqueue schedules delivery for a job that reached a terminal state.
// Jobs without a callback URL are skipped by the worker.
func (d *Deliverer) Enqueue(jobID string) {
	select {
	case d.queue <- jobID:
	default:
		log.Printf("webhook: delivery queue full, dropping retry scheduling for job %s", jobID)
	}
}

func (d *Deliverer) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-d.queue:
			d.deliver(ctx, jobID)
		}
	}
}

func (d *Deliverer) deliver(ctx context.Context, jobID string) {
	rec, err := d.store.Get(ctx, jobID)
	if err != nil {
		log.Printf("webhook: job %s: %v", jobID, err)
		return
	}
	if rec.CallbackURL == "" || rec.Delivery.Delivered || rec.Delivery.Exhausted {
		return
	}

	body, err := shared.CanonicalJSON(Payload{
		JobID:       rec.ID,
		Type:        rec.Type,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.UpdatedAt,
		Result:      rec.Result,
		Error:       rec.Error,
	})
	if err != nil {
		log.Printf("webhook: job %s: encode payload: %v", jobID, err)
		return
	}

	backoff := shared.Backoff{
		Initial: d.cfg.InitialBackoff,
		Max:     d.cfg.MaxBackoff,
		Factor:  2,
	}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}

		_, err := d.store.UpdateDelivery(ctx, jobID, func(del *Delivery) {
			del.Attempts++
		})
		if err != nil {
			return
		}

		postErr := d.post(ctx, rec, body)
		if postErr == nil {
			now := time.Now().UTC()
			d.store.UpdateDelivery(ctx, jobID, func(del *Delivery) {
				del.Delivered = true
				del.DeliveredAt = &now
			})
			return
		}
		log.Printf("webhook: job %s: delivery attempt %d/%d failed: %v",
			jobID, attempt, d.cfg.MaxAttempts, postErr)

		if attempt < d.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff.Next()):
			}
		}
	}

	d.store.UpdateDelivery(ctx, jobID, func(del *Delivery) {
		del.Exhausted = true
	})
}

func (d *Deliverer) post(ctx context.Context, rec *Record, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, rec.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerJobID, rec.ID)
	req.Header.Set(headerTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(headerSignature, shared.SignHMAC(rec.Secret, body))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
