package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// --- Payment Links ---

const linkColumns = `id, link_id, creator_user_id, creator_wallet_id, title, amount, token, token_address,
	network, status, type, link_url, qr_code_url, details, view_count, current_uses, max_uses,
	total_received, source, telegram_chat_id, created_at, updated_at`

// CreatePaymentLink inserts a payment link, returns ErrAlreadyExists if the link ID is taken
func (s *Storage) CreatePaymentLink(l *PaymentLink) error {
	details, err := json.Marshal(nonNil(l.Details))
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	if l.TotalReceived == "" {
		l.TotalReceived = "0"
	}

	now := time.Now()
	result, err := s.db.Exec(
		`INSERT INTO payment_links (link_id, creator_user_id, creator_wallet_id, title, amount, token,
			token_address, network, status, type, link_url, qr_code_url, details, view_count,
			current_uses, max_uses, total_received, source, telegram_chat_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?)`,
		l.LinkID, l.CreatorUserID, l.CreatorWalletID, l.Title, l.Amount, l.Token,
		l.TokenAddress, l.Network, l.Status, l.Type, l.LinkURL, l.QRCodeURL, string(details),
		l.MaxUses, l.TotalReceived, l.Source, l.TelegramChatID, now.Unix(), now.Unix(),
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	l.ID, _ = result.LastInsertId()
	l.CreatedAt = time.Unix(now.Unix(), 0)
	l.UpdatedAt = l.CreatedAt
	return nil
}

// GetPaymentLink returns a payment link by its public link ID
func (s *Storage) GetPaymentLink(linkID string) (*PaymentLink, error) {
	l, err := scanLink(s.db.QueryRow(`SELECT `+linkColumns+` FROM payment_links WHERE link_id = ?`, linkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return l, err
}

// ListPaymentLinksByCreator returns all links of a user, newest first
func (s *Storage) ListPaymentLinksByCreator(userID int64) ([]PaymentLink, error) {
	rows, err := s.db.Query(
		`SELECT `+linkColumns+` FROM payment_links WHERE creator_user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []PaymentLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}

	return links, rows.Err()
}

// IncrementLinkViews counts one view of a payment link
func (s *Storage) IncrementLinkViews(linkID string) error {
	result, err := s.db.Exec(
		"UPDATE payment_links SET view_count = view_count + 1 WHERE link_id = ?",
		linkID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLinkPayment appends a payment to a link and updates its usage counters.
// The link is marked completed once it reaches its usage cap.
func (s *Storage) RecordLinkPayment(linkID string, p LinkPayment) (*PaymentLink, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var status, total string
	var currentUses, maxUses int
	err = tx.QueryRow(
		"SELECT status, current_uses, max_uses, total_received FROM payment_links WHERE link_id = ?",
		linkID,
	).Scan(&status, &currentUses, &maxUses, &total)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if status != LinkStatusActive {
		return nil, ErrInactive
	}
	if maxUses != UnlimitedUses && currentUses >= maxUses {
		return nil, ErrLimitReached
	}

	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	_, err = tx.Exec(
		`INSERT INTO link_payments (link_id, payer_address, amount, transaction_hash, paid_at)
		 VALUES (?, ?, ?, ?, ?)`,
		linkID, p.PayerAddress, amount.String(), p.TransactionHash, paidAt.Unix(),
	)
	if isUniqueViolation(err) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}

	prev, err := decimal.NewFromString(total)
	if err != nil {
		prev = decimal.Zero
	}

	currentUses++
	if maxUses != UnlimitedUses && currentUses >= maxUses {
		status = LinkStatusCompleted
	}

	_, err = tx.Exec(
		`UPDATE payment_links SET current_uses = ?, total_received = ?, status = ?, updated_at = ?
		 WHERE link_id = ?`,
		currentUses, prev.Add(amount).String(), status, time.Now().Unix(), linkID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetPaymentLink(linkID)
}

// ListLinkPayments returns payments of a link, newest first
func (s *Storage) ListLinkPayments(linkID string) ([]LinkPayment, error) {
	rows, err := s.db.Query(
		`SELECT id, link_id, payer_address, amount, transaction_hash, paid_at
		 FROM link_payments WHERE link_id = ? ORDER BY paid_at DESC, id DESC`,
		linkID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []LinkPayment
	for rows.Next() {
		var p LinkPayment
		var paidAt int64
		if err := rows.Scan(&p.ID, &p.LinkID, &p.PayerAddress, &p.Amount, &p.TransactionHash, &paidAt); err != nil {
			return nil, err
		}
		p.PaidAt = time.Unix(paidAt, 0)
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

func scanLink(row scanner) (*PaymentLink, error) {
	var l PaymentLink
	var details string
	var createdAt, updatedAt int64

	err := row.Scan(
		&l.ID, &l.LinkID, &l.CreatorUserID, &l.CreatorWalletID, &l.Title, &l.Amount, &l.Token,
		&l.TokenAddress, &l.Network, &l.Status, &l.Type, &l.LinkURL, &l.QRCodeURL, &details,
		&l.ViewCount, &l.CurrentUses, &l.MaxUses, &l.TotalReceived, &l.Source, &l.TelegramChatID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(details), &l.Details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	l.CreatedAt = time.Unix(createdAt, 0)
	l.UpdatedAt = time.Unix(updatedAt, 0)
	return &l, nil
}

func nonNil(fields []string) []string {
	if fields == nil {
		return []string{}
	}
	return fields
}
