package jobs

import (
	"context"
	"sync"
	"time"
)

// Store persists job records. Implementations must make each
// read-modify-write atomic per job id so status transitions are
// linearizable per job.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Transition advances the job's status and applies mutate to the
	// record under the same lock. Returns ErrInvalidTransition when the
	// move is not pending->processing->{completed,failed}.
	Transition(ctx context.Context, id string, to Status, mutate func(*Record)) (*Record, error)
	// UpdateDelivery mutates the delivery state without touching status.
	UpdateDelivery(ctx context.Context, id string, mutate func(*Delivery)) (*Record, error)
	// Delete removes the record regardless of status. Used to roll back
	// a submission whose queue reservation failed; such a record would
	// otherwise sit pending forever, invisible to the terminal-job sweep.
	Delete(ctx context.Context, id string) error
	// Watch streams record snapshots on every change until cancel is
	// called. The current snapshot is delivered first.
	Watch(id string) (<-chan Record, func(), error)
}

// MemoryStore keeps job records in process memory, one mutex per record.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*lockedRecord
}

type lockedRecord struct {
	mu       sync.Mutex
	rec      Record
	watchers map[chan Record]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*lockedRecord)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = &lockedRecord{
		rec:      *rec,
		watchers: make(map[chan Record]struct{}),
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	lr, err := s.locked(id)
	if err != nil {
		return nil, err
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	snapshot := lr.rec
	return &snapshot, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, to Status, mutate func(*Record)) (*Record, error) {
	lr, err := s.locked(id)
	if err != nil {
		return nil, err
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if !validTransition(lr.rec.Status, to) {
		return nil, ErrInvalidTransition
	}

	lr.rec.Status = to
	lr.rec.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(&lr.rec)
	}

	snapshot := lr.rec
	lr.notify(snapshot)
	return &snapshot, nil
}

func (s *MemoryStore) UpdateDelivery(_ context.Context, id string, mutate func(*Delivery)) (*Record, error) {
	lr, err := s.locked(id)
	if err != nil {
		return nil, err
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	mutate(&lr.rec.Delivery)
	lr.rec.UpdatedAt = time.Now().UTC()

	snapshot := lr.rec
	lr.notify(snapshot)
	return &snapshot, nil
}

func (s *MemoryStore) Watch(id string) (<-chan Record, func(), error) {
	lr, err := s.locked(id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Record, 8)

	lr.mu.Lock()
	lr.watchers[ch] = struct{}{}
	snapshot := lr.rec
	lr.mu.Unlock()

	ch <- snapshot

	cancel := func() {
		lr.mu.Lock()
		if _, ok := lr.watchers[ch]; ok {
			delete(lr.watchers, ch)
			close(ch)
		}
		lr.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lr, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	lr.mu.Lock()
	for ch := range lr.watchers {
		delete(lr.watchers, ch)
		close(ch)
	}
	lr.mu.Unlock()

	delete(s.records, id)
	return nil
}

// Sweep removes terminal jobs whose last update is older than maxAge.
func (s *MemoryStore) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, lr := range s.records {
		lr.mu.Lock()
		old := lr.rec.Status.Terminal() && lr.rec.UpdatedAt.Before(cutoff)
		if old {
			for ch := range lr.watchers {
				delete(lr.watchers, ch)
				close(ch)
			}
		}
		lr.mu.Unlock()
		if old {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps old terminal jobs until the context is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, every, maxAge time.Duration) {
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep(maxAge)
			}
		}
	}()
}

func (s *MemoryStore) locked(id string) (*lockedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lr, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return lr, nil
}

// notify is called with lr.mu held. Slow watchers drop updates rather
// than block a transition.
func (lr *lockedRecord) notify(snapshot Record) {
	for ch := range lr.watchers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
