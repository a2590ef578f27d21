package memory

import (
	"context"
	"sync"
	"time"
)

// FeatureStore keeps sliding-window sender counts and device usage in memory.
type FeatureStore struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	senders map[string][]time.Time
	devices map[string]map[string]struct{}
}

func NewFeatureStore(window time.Duration) *FeatureStore {
	return &FeatureStore{
		window:  window,
		now:     time.Now,
		senders: make(map[string][]time.Time),
		devices: make(map[string]map[string]struct{}),
	}
}

func (s *FeatureStore) Window() time.Duration { return s.window }

func (s *FeatureStore) SenderVelocity(_ context.Context, sender string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.prune(sender))), nil
}

func (s *FeatureStore) DeviceReuse(_ context.Context, deviceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.devices[deviceID])), nil
}

func (s *FeatureStore) Observe(_ context.Context, sender, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.senders[sender] = append(s.prune(sender), s.now())
	if deviceID != "" {
		if s.devices[deviceID] == nil {
			s.devices[deviceID] = make(map[string]struct{})
		}
		s.devices[deviceID][sender] = struct{}{}
	}
	return nil
}

// prune drops timestamps older than the window. Callers hold mu.
func (s *FeatureStore) prune(sender string) []time.Time {
	cutoff := s.now().Add(-s.window)
	ts := s.senders[sender]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]
	s.senders[sender] = ts
	return ts
}
