package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/snapgate/snapgate/internal/cache"
	"github.com/snapgate/snapgate/internal/renderer"
	"github.com/snapgate/snapgate/pkg/shared"
)

const jobTypeScreenshot = "screenshot"

// OrchestratorConfig tunes async capture execution.
type OrchestratorConfig struct {
	Workers        int
	QueueSize      int
	CaptureTimeout time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 60 * time.Second
	}
	return c
}

// ErrQueueFull reports that the orchestrator cannot accept more work
// right now. Submission never blocks on capture.
var ErrQueueFull = errors.New("job queue is full")

// Orchestrator drives async jobs to a terminal state: it persists the
// record, runs the capture on a worker pool with a deadline, stores the
// artifact, and hands terminal jobs to the deliverer.
type Orchestrator struct {
	cfg       OrchestratorConfig
	store     Store
	render    renderer.Renderer
	artifacts cache.BlobStore
	deliverer *Deliverer
	queue     chan string
}

func NewOrchestrator(cfg OrchestratorConfig, store Store, render renderer.Renderer, artifacts cache.BlobStore, deliverer *Deliverer) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		render:    render,
		artifacts: artifacts,
		deliverer: deliverer,
		queue:     make(chan string, cfg.QueueSize),
	}
}

func (o *Orchestrator) Start(ctx context.Context) {
	o.deliverer.Start(ctx)
	for i := 0; i < o.cfg.Workers; i++ {
		go o.worker(ctx)
	}
}

// Submit records a pending job and schedules its capture. It returns as
// soon as the record is persisted; the caller is never blocked on
// capture completion.
func (o *Orchestrator) Submit(ctx context.Context, opts shared.CaptureOptions, callbackURL, secret string) (string, error) {
	now := time.Now().UTC()
	rec := &Record{
		ID:          uuid.New().String(),
		Type:        jobTypeScreenshot,
		Status:      StatusPending,
		Options:     opts,
		CallbackURL: callbackURL,
		Secret:      secret,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := o.store.Create(ctx, rec); err != nil {
		return "", err
	}

	select {
	case o.queue <- rec.ID:
	default:
		// Roll back the record: its id never reaches the caller, and a
		// pending record with no queue slot would never turn terminal.
		if derr := o.store.Delete(ctx, rec.ID); derr != nil {
			log.Printf("jobs: %s: rollback rejected submission: %v", rec.ID, derr)
		}
		return "", ErrQueueFull
	}
	return rec.ID, nil
}

// GetStatus returns the current job record.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*Record, error) {
	return o.store.Get(ctx, id)
}

// Watch streams record snapshots for the job until cancel is called.
func (o *Orchestrator) Watch(id string) (<-chan Record, func(), error) {
	return o.store.Watch(id)
}

func (o *Orchestrator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-o.queue:
			o.run(ctx, id)
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, id string) {
	rec, err := o.store.Transition(ctx, id, StatusProcessing, nil)
	if err != nil {
		log.Printf("jobs: %s: start: %v", id, err)
		return
	}

	captureCtx, cancel := context.WithTimeout(ctx, o.cfg.CaptureTimeout)
	result, captureErr := o.render.Capture(captureCtx, rec.Options)
	cancel()

	if captureErr != nil {
		o.fail(ctx, id, captureErr)
		o.deliverer.Enqueue(id)
		return
	}

	ref, err := o.storeArtifact(ctx, id, rec.Options, result)
	if err != nil {
		o.fail(ctx, id, err)
		o.deliverer.Enqueue(id)
		return
	}

	if _, err := o.store.Transition(ctx, id, StatusCompleted, func(r *Record) {
		r.Result = ref
	}); err != nil {
		log.Printf("jobs: %s: complete: %v", id, err)
		return
	}
	o.deliverer.Enqueue(id)
}

func (o *Orchestrator) fail(ctx context.Context, id string, cause error) {
	msg := cause.Error()
	if errors.Is(cause, renderer.ErrCaptureTimeout) {
		msg = "capture timed out"
	}
	if _, err := o.store.Transition(ctx, id, StatusFailed, func(r *Record) {
		r.Error = msg
	}); err != nil {
		log.Printf("jobs: %s: fail: %v", id, err)
	}
}

// linkedBlobStore is implemented by blob backends that can mint direct
// download links (MinIO). Webhook receivers then get a fetchable URL
// instead of an opaque artifact key.
type linkedBlobStore interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

const artifactLinkTTL = 24 * time.Hour

func (o *Orchestrator) storeArtifact(ctx context.Context, id string, opts shared.CaptureOptions, result *renderer.Result) (*ResultRef, error) {
	key := fmt.Sprintf("jobs/%s.%s", id, opts.Normalized().Format)
	if err := o.artifacts.Put(ctx, key, result.ContentType, result.Data); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	ref := &ResultRef{
		ArtifactKey: key,
		ContentType: result.ContentType,
		Size:        len(result.Data),
		FinalURL:    result.FinalURL,
	}

	if linker, ok := o.artifacts.(linkedBlobStore); ok {
		url, err := linker.PresignedURL(ctx, key, artifactLinkTTL)
		if err != nil {
			// The key still resolves through the API; the link is a bonus.
			log.Printf("jobs: %s: presign artifact: %v", id, err)
		} else {
			ref.URL = url
		}
	}
	return ref, nil
}

// Artifact fetches a stored job artifact by its result reference key.
func (o *Orchestrator) Artifact(ctx context.Context, key string) ([]byte, string, error) {
	return o.artifacts.Get(ctx, key)
}
