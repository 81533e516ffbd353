package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"servermon/internal/domain"
	"servermon/internal/repo"
)

var _ repo.ResultStore = (*Store)(nil)

// Store keeps everything in process memory. Backs the "memory" database
// type and the tests.
type Store struct {
	mu       sync.RWMutex
	results  map[string][]*domain.CheckResult
	statuses map[string]*domain.EndpointStatus
}

func New() *Store {
	return &Store{
		results:  make(map[string][]*domain.CheckResult),
		statuses: make(map[string]*domain.EndpointStatus),
	}
}

func (s *Store) Store(ctx context.Context, r *domain.CheckResult) (*domain.EndpointStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.EndpointName] = append(s.results[r.EndpointName], r)
	next := domain.Apply(s.statuses[r.EndpointName], r, time.Now().UTC())
	s.statuses[r.EndpointName] = next
	out := *next
	return &out, nil
}

func (s *Store) Status(ctx context.Context, name string) (*domain.EndpointStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.statuses[name]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *Store) Statuses(ctx context.Context) (map[string]*domain.EndpointStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*domain.EndpointStatus, len(s.statuses))
	for name, rec := range s.statuses {
		cp := *rec
		out[name] = &cp
	}
	return out, nil
}

func (s *Store) Results(ctx context.Context, name string, limit int) ([]*domain.CheckResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs := s.results[name]
	if limit <= 0 || limit > len(rs) {
		limit = len(rs)
	}
	out := make([]*domain.CheckResult, 0, limit)
	for i := len(rs) - 1; i >= len(rs)-limit; i-- {
		out = append(out, rs[i])
	}
	return out, nil
}

func (s *Store) MarkNotificationSent(ctx context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.statuses[name]
	if !ok {
		return fmt.Errorf("endpoint %q: %w", name, repo.ErrNotFound)
	}
	at = at.UTC()
	rec.NotificationSent = true
	rec.LastNotification = &at
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Close() error { return nil }
