package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obverse/mantle-bot/internal/metrics"
)

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory, expiring them after ttl of inactivity
type MemoryStore struct {
	ttl      time.Duration
	sessions map[int64]memoryEntry
	mu       sync.RWMutex
	log      *slog.Logger
	now      func() time.Time
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore(ttl time.Duration, log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[int64]memoryEntry),
		log:      log,
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[userID]
	m.mu.RUnlock()

	if !ok || m.now().After(e.expiresAt) {
		return nil, ErrNoSession
	}

	s := e.session
	s.Details = append([]string(nil), e.session.Details...)
	return &s, nil
}

func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	cp := *s
	cp.Details = append([]string(nil), s.Details...)

	m.mu.Lock()
	m.sessions[s.UserID] = memoryEntry{session: cp, expiresAt: m.now().Add(m.ttl)}
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.FlowSessionsActive.Set(float64(n))
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.FlowSessionsActive.Set(float64(n))
	return nil
}

// Sweep removes expired sessions and returns how many were removed
func (m *MemoryStore) Sweep() int {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for id, e := range m.sessions {
		if now.After(e.expiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.FlowSessionsActive.Set(float64(n))
	return removed
}

// Start runs the sweeper until ctx is done
func (m *MemoryStore) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.Info("expired payment link sessions", "count", n)
			}
		}
	}
}
