package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// --- Transactions ---

// CreateTransaction records an on-chain transaction
func (s *Storage) CreateTransaction(t *Transaction) error {
	meta := t.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var tokenAddress sql.NullString
	if t.TokenAddress != "" {
		tokenAddress = sql.NullString{String: t.TokenAddress, Valid: true}
	}

	now := time.Now().Unix()
	result, err := s.db.Exec(
		`INSERT INTO transactions (wallet_id, user_id, type, status, amount, token, token_address,
			from_address, to_address, tx_hash, network, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.WalletID, t.UserID, t.Type, t.Status, t.Amount, t.Token, tokenAddress,
		t.FromAddress, t.ToAddress, t.TxHash, t.Network, string(metaJSON), now,
	)
	if err != nil {
		return err
	}

	t.ID, _ = result.LastInsertId()
	t.CreatedAt = time.Unix(now, 0)
	return nil
}

// ListTransactionsByUser returns the most recent transactions of a user
func (s *Storage) ListTransactionsByUser(userID int64, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(
		`SELECT id, wallet_id, user_id, type, status, amount, token, token_address,
			from_address, to_address, tx_hash, network, metadata, created_at
		 FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var tokenAddress sql.NullString
		var meta string
		var createdAt int64

		err := rows.Scan(&t.ID, &t.WalletID, &t.UserID, &t.Type, &t.Status, &t.Amount, &t.Token,
			&tokenAddress, &t.FromAddress, &t.ToAddress, &t.TxHash, &t.Network, &meta, &createdAt)
		if err != nil {
			return nil, err
		}

		t.TokenAddress = tokenAddress.String
		if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		txs = append(txs, t)
	}

	return txs, rows.Err()
}
