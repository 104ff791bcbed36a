package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store for tests and single-instance runs.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	holder    string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: make(map[string]memoryLease), now: time.Now}
}

// WithClock replaces the store's clock. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Acquire(_ context.Context, name string, maxHold time.Duration) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.leases[name]; ok && existing.expiresAt.After(now) {
		return nil, nil
	}
	holder := uuid.NewString()
	s.leases[name] = memoryLease{holder: holder, expiresAt: now.Add(maxHold)}
	return &Lease{Name: name, Holder: holder, AcquiredAt: now}, nil
}

func (s *MemoryStore) Release(_ context.Context, lease *Lease, keepFor time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[lease.Name]
	if !ok || existing.holder != lease.Holder {
		return nil
	}
	if keepFor > 0 {
		existing.expiresAt = s.now().Add(keepFor)
		s.leases[lease.Name] = existing
		return nil
	}
	delete(s.leases, lease.Name)
	return nil
}
