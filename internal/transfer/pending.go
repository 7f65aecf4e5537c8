package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type pendingItem struct {
	req       Request
	expiresAt time.Time
}

// Pending holds validated requests waiting for the user to confirm them
type Pending struct {
	ttl   time.Duration
	items map[string]pendingItem
	mu    sync.Mutex
	now   func() time.Time
}

// NewPending creates a new Pending
func NewPending(ttl time.Duration) *Pending {
	return &Pending{
		ttl:   ttl,
		items: make(map[string]pendingItem),
		now:   time.Now,
	}
}

// Add stores a request and returns its confirmation ID
func (p *Pending) Add(req Request) string {
	id := uuid.NewString()
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for k, it := range p.items {
		if now.After(it.expiresAt) {
			delete(p.items, k)
		}
	}
	p.items[id] = pendingItem{req: req, expiresAt: now.Add(p.ttl)}
	return id
}

// Take removes and returns the request if it exists, has not expired and belongs to the user
func (p *Pending) Take(id string, telegramID int64) (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	it, ok := p.items[id]
	if !ok || it.req.TelegramID != telegramID {
		return Request{}, false
	}
	delete(p.items, id)

	if p.now().After(it.expiresAt) {
		return Request{}, false
	}
	return it.req, true
}

// Drop discards a request of the user
func (p *Pending) Drop(id string, telegramID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if it, ok := p.items[id]; ok && it.req.TelegramID == telegramID {
		delete(p.items, id)
	}
}
