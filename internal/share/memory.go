package share

import (
	"context"
	"sort"
	"sync"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[string]*Record
	byToken  map[string]string          // token -> id
	attempts map[string]map[string]bool // id -> counted attempt ids
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:     make(map[string]*Record),
		byToken:  make(map[string]string),
		attempts: make(map[string]map[string]bool),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) FindActiveByToken(ctx context.Context, token string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec := s.byID[id]
	if !rec.IsActive {
		return Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *InMemory) Create(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" || r.Token == "" {
		return Record{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[r.Token]; ok {
		return Record{}, ErrConflict
	}
	if _, ok := s.byID[r.ID]; ok {
		return Record{}, ErrConflict
	}
	stored := copyRecord(&r)
	s.byID[r.ID] = &stored
	s.byToken[r.Token] = r.ID
	return copyRecord(&stored), nil
}

func (s *InMemory) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return s.list(func(r *Record) bool { return r.OwnerID == ownerID }), nil
}

func (s *InMemory) ListByResource(ctx context.Context, resourceID string) ([]Record, error) {
	return s.list(func(r *Record) bool { return r.ResourceID == resourceID }), nil
}

func (s *InMemory) SetActive(ctx context.Context, id string, active bool) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.IsActive = active
	return copyRecord(rec), nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byToken, rec.Token)
	delete(s.byID, id)
	delete(s.attempts, id)
	return nil
}

func (s *InMemory) IncrementDownloadCount(ctx context.Context, id, attemptID string) (bool, error) {
	if attemptID == "" {
		return false, ErrAttemptID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok || !rec.IsActive {
		return false, ErrNotFound
	}
	// Idempotency
	if s.attempts[id][attemptID] {
		return false, nil
	}
	if rec.LimitReached() {
		return false, ErrDownloadLimitReached
	}
	rec.DownloadCount++
	if s.attempts[id] == nil {
		s.attempts[id] = make(map[string]bool)
	}
	s.attempts[id][attemptID] = true
	return true, nil
}

func (s *InMemory) HasAttempt(ctx context.Context, id, attemptID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts[id][attemptID], nil
}

func (s *InMemory) list(keep func(*Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0)
	for _, rec := range s.byID {
		if keep(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func copyRecord(r *Record) Record {
	out := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		out.ExpiresAt = &t
	}
	if r.MaxDownloads != nil {
		n := *r.MaxDownloads
		out.MaxDownloads = &n
	}
	return out
}
