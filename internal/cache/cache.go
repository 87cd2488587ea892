// Package cache maps normalized request fingerprints to previously
// produced capture artifacts, with TTL expiry and single-flight
// deduplication of concurrent producers.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Artifact is an immutable cached result.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Producer computes the artifact on a cache miss.
type Producer func(ctx context.Context) (Artifact, error)

type entry struct {
	blobKey     string
	contentType string
	createdAt   time.Time
	expiresAt   time.Time
	readers     int
}

type flight struct {
	done     chan struct{}
	artifact Artifact
	err      error
}

// ResultCache indexes artifacts by fingerprint in memory and stores the
// bytes in a BlobStore. At most one producer runs per fingerprint at a
// time; concurrent callers for the same fingerprint join the in-flight
// computation.
type ResultCache struct {
	blobs BlobStore

	mu      sync.Mutex
	entries map[string]*entry
	flights map[string]*flight

	now func() time.Time
}

func New(blobs BlobStore) *ResultCache {
	return &ResultCache{
		blobs:   blobs,
		entries: make(map[string]*entry),
		flights: make(map[string]*flight),
		now:     time.Now,
	}
}

// GetOrCompute returns the cached artifact for fingerprint, or invokes
// produce and caches its result for ttl. hit reports whether the caller
// was served without running produce itself: a live entry or a joined
// in-flight computation.
func (c *ResultCache) GetOrCompute(ctx context.Context, fingerprint string, ttl time.Duration, produce Producer) (Artifact, bool, error) {
	for {
		c.mu.Lock()

		if e, ok := c.entries[fingerprint]; ok {
			if e.expiresAt.After(c.now()) {
				e.readers++
				c.mu.Unlock()

				data, contentType, err := c.blobs.Get(ctx, e.blobKey)

				c.mu.Lock()
				e.readers--
				if err == nil {
					c.mu.Unlock()
					return Artifact{Data: data, ContentType: contentType}, true, nil
				}
				// Unreadable entry: purge and recompute as if absent.
				log.Printf("cache: purging unreadable entry %s: %v", fingerprint, err)
				if c.entries[fingerprint] == e {
					delete(c.entries, fingerprint)
				}
				c.mu.Unlock()
				c.removeBlob(e.blobKey)
				continue
			}
			// Expired entries are equivalent to absent. Reclaim the blob
			// here rather than waiting for a successful recompute to
			// overwrite it: a failing producer would otherwise orphan it
			// where Sweep can no longer see it. An entry with an active
			// reader is left in place for a later Sweep.
			if e.readers == 0 {
				delete(c.entries, fingerprint)
				c.mu.Unlock()
				c.removeBlob(e.blobKey)
				continue
			}
		}

		if f, ok := c.flights[fingerprint]; ok {
			c.mu.Unlock()
			select {
			case <-f.done:
				if f.err != nil {
					return Artifact{}, false, f.err
				}
				return f.artifact, true, nil
			case <-ctx.Done():
				return Artifact{}, false, ctx.Err()
			}
		}

		f := &flight{done: make(chan struct{})}
		c.flights[fingerprint] = f
		c.mu.Unlock()

		artifact, err := produce(ctx)
		if err == nil {
			err = c.store(ctx, fingerprint, ttl, artifact)
		}

		c.mu.Lock()
		delete(c.flights, fingerprint)
		c.mu.Unlock()

		f.artifact = artifact
		f.err = err
		close(f.done)

		if err != nil {
			return Artifact{}, false, err
		}
		return artifact, false, nil
	}
}

func (c *ResultCache) store(ctx context.Context, fingerprint string, ttl time.Duration, artifact Artifact) error {
	blobKey := "cache/" + fingerprint
	if err := c.blobs.Put(ctx, blobKey, artifact.ContentType, artifact.Data); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}

	now := c.now()
	c.mu.Lock()
	c.entries[fingerprint] = &entry{
		blobKey:     blobKey,
		contentType: artifact.ContentType,
		createdAt:   now,
		expiresAt:   now.Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// Evict drops an entry regardless of expiry.
func (c *ResultCache) Evict(ctx context.Context, fingerprint string) {
	c.mu.Lock()
	e, ok := c.entries[fingerprint]
	if ok {
		delete(c.entries, fingerprint)
	}
	c.mu.Unlock()
	if ok {
		c.removeBlob(e.blobKey)
	}
}

// Sweep reclaims expired entries. An entry with an active reader is left
// for a later pass so the reader never loses the bytes under it.
func (c *ResultCache) Sweep(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	var expired []*entry
	for fp, e := range c.entries {
		if !e.expiresAt.After(now) && e.readers == 0 {
			delete(c.entries, fp)
			expired = append(expired, e)
		}
	}
	c.mu.Unlock()

	for _, e := range expired {
		if err := c.blobs.Remove(ctx, e.blobKey); err != nil {
			log.Printf("cache: sweep remove %s: %v", e.blobKey, err)
		}
	}
	return len(expired)
}

// StartSweeper runs Sweep on a ticker until the context is cancelled.
func (c *ResultCache) StartSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sweep(ctx)
			}
		}
	}()
}

// Len reports the number of indexed entries, live or expired.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) removeBlob(key string) {
	if err := c.blobs.Remove(context.Background(), key); err != nil {
		log.Printf("cache: remove blob %s: %v", key, err)
	}
}
