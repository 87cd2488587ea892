package governor

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps window markers in process memory. Each credential
// owns its own mutex so admissions for different credentials never
// contend on a shared lock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*credentialWindows

	idleTTL time.Duration
}

type credentialWindows struct {
	mu       sync.Mutex
	minute   []time.Time
	hour     []time.Time
	lastSeen time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*credentialWindows),
		idleTTL: 2 * time.Hour,
	}
}

func (s *MemoryStore) Admit(_ context.Context, credential string, now time.Time, limits Limits) (Decision, error) {
	w := s.windows(credential)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSeen = now
	w.minute = purge(w.minute, now.Add(-MinuteWindow))
	w.hour = purge(w.hour, now.Add(-HourWindow))

	minuteFull := len(w.minute) >= limits.PerMinute
	hourFull := len(w.hour) >= limits.PerHour

	if minuteFull || hourFull {
		var retry time.Duration
		if minuteFull {
			retry = w.minute[0].Add(MinuteWindow).Sub(now)
		}
		if hourFull {
			if r := w.hour[0].Add(HourWindow).Sub(now); r > retry {
				retry = r
			}
		}
		if retry < 0 {
			retry = 0
		}
		return Decision{
			Allowed:         false,
			RemainingMinute: remaining(limits.PerMinute, len(w.minute)),
			RemainingHour:   remaining(limits.PerHour, len(w.hour)),
			RetryAfter:      retry,
		}, nil
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)

	return Decision{
		Allowed:         true,
		RemainingMinute: remaining(limits.PerMinute, len(w.minute)),
		RemainingHour:   remaining(limits.PerHour, len(w.hour)),
	}, nil
}

func (s *MemoryStore) windows(credential string) *credentialWindows {
	s.mu.RLock()
	w, ok := s.entries[credential]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.entries[credential]; ok {
		return w
	}
	w = &credentialWindows{}
	s.entries[credential] = w
	return w
}

// Sweep drops credentials with no activity inside the hour window plus
// an idle grace. Safe to call from a janitor ticker.
func (s *MemoryStore) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for credential, w := range s.entries {
		w.mu.Lock()
		idle := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(s.entries, credential)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps idle credentials until the context is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.Sweep(now)
			}
		}
	}()
}

func purge(markers []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(markers) && !markers[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return markers
	}
	return append(markers[:0], markers[i:]...)
}

func remaining(limit, used int) int {
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}
