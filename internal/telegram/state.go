package telegram

import (
	"sync"
	"time"
)

// UserState is a prompt the bot is waiting on an answer for
type UserState struct {
	State string
	At    time.Time
}

// StateManager tracks pending prompts per user.
// Payment link sessions live in the flow engine, not here.
type StateManager struct {
	mu     sync.RWMutex
	states map[int64]*UserState
	ttl    time.Duration
}

// NewStateManager creates a new state manager
func NewStateManager() *StateManager {
	return &StateManager{
		states: make(map[int64]*UserState),
		ttl:    10 * time.Minute,
	}
}

// Set sets a user's state
func (sm *StateManager) Set(userID int64, state string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.states[userID] = &UserState{State: state, At: time.Now()}
}

// Get returns a user's current state, nil when none or stale
func (sm *StateManager) Get(userID int64) *UserState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s := sm.states[userID]
	if s == nil || time.Since(s.At) > sm.ttl {
		return nil
	}
	return s
}

// Clear removes a user's state and reports whether there was one
func (sm *StateManager) Clear(userID int64) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, ok := sm.states[userID]
	delete(sm.states, userID)
	return ok
}

// State constants
const (
	StateWaitSend = "wait_send"
)
