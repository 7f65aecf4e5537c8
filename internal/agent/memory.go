package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultMemorySize is the number of entries kept per user
const DefaultMemorySize = 10

// Entry is one remembered message
type Entry struct {
	Role    string
	Content string
	At      time.Time
}

// Memory keeps the most recent messages of each user, oldest evicted first
type Memory struct {
	size    int
	entries map[int64][]Entry
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemory creates a new Memory holding size entries per user
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{
		size:    size,
		entries: make(map[int64][]Entry),
		now:     time.Now,
	}
}

// Add appends a message to the user's history
func (m *Memory) Add(userID int64, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.entries[userID], Entry{Role: role, Content: content, At: m.now()})
	if len(list) > m.size {
		list = append([]Entry(nil), list[len(list)-m.size:]...)
	}
	m.entries[userID] = list
}

// History returns a copy of the user's history, oldest first
func (m *Memory) History(userID int64) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[userID]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// LastAssistant returns the latest assistant message of the user's history
func (m *Memory) LastAssistant(userID int64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[userID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Role == roleAssistant {
			return list[i].Content
		}
	}
	return ""
}

// Sweep drops the history of users idle for longer than maxIdle and returns how many were dropped
func (m *Memory) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, list := range m.entries {
		if len(list) == 0 || list[len(list)-1].At.Before(cutoff) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Start sweeps idle histories every interval until ctx is done
func (m *Memory) Start(ctx context.Context, interval, maxIdle time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxIdle); n > 0 {
				log.Debug("dropped idle conversation histories", "count", n)
			}
		}
	}
}

// Forget drops the user's history
func (m *Memory) Forget(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
}
