package session

import (
	"context"
	"sync"
	"time"

	"luxe-booking/internal/booking"
	"luxe-booking/internal/clock"

	"github.com/google/uuid"
)

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore is a single-process Store, used when Redis is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	sessions map[string]memoryEntry
	locks    map[string]time.Time
}

func NewMemoryStore(c clock.Clock, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		clock:    c,
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		locks:    make(map[string]time.Time),
	}
}

func (m *MemoryStore) Create(_ context.Context, ownerUID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	s := Session{
		ID:        uuid.NewString(),
		OwnerUID:  ownerUID,
		State:     booking.NewState(),
		UpdatedAt: now,
	}
	m.sessions[s.ID] = memoryEntry{session: s, expiresAt: now.Add(m.ttl)}
	return s, nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.sessions, id)
		return Session{}, ErrNotFound
	}
	return e.session, nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	now := m.clock.Now()
	s.UpdatedAt = now
	m.sessions[s.ID] = memoryEntry{session: s, expiresAt: now.Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Lock(_ context.Context, id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if until, held := m.locks[id]; held && now.Before(until) {
		return nil, ErrLocked
	}
	until := now.Add(LockTTL)
	m.locks[id] = until

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.locks[id] == until {
				delete(m.locks, id)
			}
		})
	}, nil
}
