package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPending(t *testing.T) {
	p := NewPending(time.Minute)
	id := p.Add(Request{TelegramID: 42, Amount: "1", Token: "USDC"})

	_, ok := p.Take(id, 7)
	assert.False(t, ok, "other users cannot confirm")

	req, ok := p.Take(id, 42)
	assert.True(t, ok)
	assert.Equal(t, "USDC", req.Token)

	_, ok = p.Take(id, 42)
	assert.False(t, ok, "a confirmation is single use")
}

func TestPendingExpiry(t *testing.T) {
	p := NewPending(time.Minute)
	now := time.Now()
	p.now = func() time.Time { return now }

	id := p.Add(Request{TelegramID: 42})
	now = now.Add(2 * time.Minute)

	_, ok := p.Take(id, 42)
	assert.False(t, ok)
}

func TestPendingDrop(t *testing.T) {
	p := NewPending(time.Minute)
	id := p.Add(Request{TelegramID: 42})
	p.Drop(id, 42)

	_, ok := p.Take(id, 42)
	assert.False(t, ok)
}
