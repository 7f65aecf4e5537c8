// Package flow drives the step-by-step creation of payment links.
package flow

import (
	"context"
	"errors"
	"time"
)

var ErrNoSession = errors.New("no active payment link session")

// Step is a state of the creation flow
type Step string

const (
	StepName    Step = "name"
	StepToken   Step = "token"
	StepAmount  Step = "amount"
	StepDetails Step = "details"
	StepConfirm Step = "confirm"
)

// Session is the in-progress flow of one user
type Session struct {
	UserID    int64     `json:"user_id"`
	ChatID    int64     `json:"chat_id"`
	Source    string    `json:"source"`
	Step      Step      `json:"step"`
	Name      string    `json:"name,omitempty"`
	Token     string    `json:"token,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Details   []string  `json:"details"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps at most one session per user.
// Get returns ErrNoSession when the user has none or it expired.
type Store interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}
