package storage

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrLimitReached  = errors.New("usage limit reached")
	ErrAlreadyExists = errors.New("already exists")
	ErrInactive      = errors.New("payment link is not active")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Storage) Ping() error {
	return s.db.Ping()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			last_seen_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS wallets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL UNIQUE REFERENCES users(id),
			provider_wallet_id TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL,
			network TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wallets_address ON wallets(lower(address))`,

		`CREATE TABLE IF NOT EXISTS payment_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			link_id TEXT NOT NULL UNIQUE,
			creator_user_id INTEGER NOT NULL REFERENCES users(id),
			creator_wallet_id INTEGER NOT NULL REFERENCES wallets(id),
			title TEXT NOT NULL,
			amount TEXT NOT NULL,
			token TEXT NOT NULL,
			token_address TEXT NOT NULL,
			network TEXT NOT NULL,
			status TEXT NOT NULL,
			type TEXT NOT NULL,
			link_url TEXT NOT NULL,
			qr_code_url TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '[]',
			view_count INTEGER NOT NULL DEFAULT 0,
			current_uses INTEGER NOT NULL DEFAULT 0,
			max_uses INTEGER NOT NULL DEFAULT 1,
			total_received TEXT NOT NULL DEFAULT '0',
			source TEXT NOT NULL DEFAULT '',
			telegram_chat_id INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_links_creator ON payment_links(creator_user_id)`,

		`CREATE TABLE IF NOT EXISTS link_payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			link_id TEXT NOT NULL REFERENCES payment_links(link_id),
			payer_address TEXT NOT NULL,
			amount TEXT NOT NULL,
			transaction_hash TEXT NOT NULL UNIQUE,
			paid_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_link_payments_link ON link_payments(link_id)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			wallet_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			amount TEXT NOT NULL,
			token TEXT NOT NULL,
			token_address TEXT,
			from_address TEXT NOT NULL,
			to_address TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			network TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id)`,

		`CREATE TABLE IF NOT EXISTS processed_events (
			wallet_id INTEGER NOT NULL,
			event_id TEXT NOT NULL,
			PRIMARY KEY (wallet_id, event_id)
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Processed Events ---

// MarkEventProcessed marks an event as processed, returns true if it was new
func (s *Storage) MarkEventProcessed(walletID int64, eventID string) (bool, error) {
	result, err := s.db.Exec(
		"INSERT OR IGNORE INTO processed_events (wallet_id, event_id) VALUES (?, ?)",
		walletID, eventID,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
