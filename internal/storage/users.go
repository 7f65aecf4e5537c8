package storage

import (
	"database/sql"
	"time"
)

// --- Users ---

// UpsertUser registers a user or refreshes the profile and last-seen time of an existing one
func (s *Storage) UpsertUser(telegramID int64, firstName, lastName, username string) (*User, error) {
	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO users (telegram_id, first_name, last_name, username, is_active, last_seen_at, created_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(telegram_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username,
			is_active = 1,
			last_seen_at = excluded.last_seen_at`,
		telegramID, firstName, lastName, username, now, now,
	)
	if err != nil {
		return nil, err
	}

	return s.GetUserByTelegramID(telegramID)
}

// GetUserByTelegramID returns a user by Telegram ID
func (s *Storage) GetUserByTelegramID(telegramID int64) (*User, error) {
	var u User
	var active int
	var lastSeen, createdAt int64

	err := s.db.QueryRow(
		`SELECT id, telegram_id, first_name, last_name, username, is_active, last_seen_at, created_at
		 FROM users WHERE telegram_id = ?`,
		telegramID,
	).Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.LastName, &u.Username, &active, &lastSeen, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.IsActive = active == 1
	u.LastSeenAt = time.Unix(lastSeen, 0)
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

// GetUser returns a user by internal ID
func (s *Storage) GetUser(userID int64) (*User, error) {
	var telegramID int64
	err := s.db.QueryRow("SELECT telegram_id FROM users WHERE id = ?", userID).Scan(&telegramID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetUserByTelegramID(telegramID)
}

// --- Wallets ---

const walletColumns = `w.id, w.user_id, w.provider_wallet_id, w.address, w.network, w.status, w.created_at`

// CreateWallet stores the custodial wallet of a user
func (s *Storage) CreateWallet(userID int64, providerWalletID, address, network string) (*Wallet, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`INSERT INTO wallets (user_id, provider_wallet_id, address, network, status, created_at)
		 VALUES (?, ?, ?, ?, 'active', ?)`,
		userID, providerWalletID, address, network, now,
	)
	if isUniqueViolation(err) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}

	id, _ := result.LastInsertId()
	return &Wallet{
		ID:               id,
		UserID:           userID,
		ProviderWalletID: providerWalletID,
		Address:          address,
		Network:          network,
		Status:           "active",
		CreatedAt:        time.Unix(now, 0),
	}, nil
}

// GetWalletByUserID returns the wallet of a user
func (s *Storage) GetWalletByUserID(userID int64) (*Wallet, error) {
	return s.queryWallet(`SELECT `+walletColumns+` FROM wallets w WHERE w.user_id = ?`, userID)
}

// GetWalletByTelegramID returns the wallet of a user by Telegram ID
func (s *Storage) GetWalletByTelegramID(telegramID int64) (*Wallet, error) {
	return s.queryWallet(
		`SELECT `+walletColumns+` FROM wallets w
		 JOIN users u ON u.id = w.user_id
		 WHERE u.telegram_id = ?`,
		telegramID,
	)
}

// GetWalletByAddress returns the wallet holding an address, compared case-insensitively
func (s *Storage) GetWalletByAddress(address string) (*Wallet, error) {
	return s.queryWallet(`SELECT `+walletColumns+` FROM wallets w WHERE lower(w.address) = lower(?)`, address)
}

// GetAllWallets returns all wallets in the database
func (s *Storage) GetAllWallets() ([]Wallet, error) {
	rows, err := s.db.Query(`SELECT ` + walletColumns + ` FROM wallets w ORDER BY w.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}

	return wallets, rows.Err()
}

func (s *Storage) queryWallet(query string, args ...interface{}) (*Wallet, error) {
	w, err := scanWallet(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return w, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(row scanner) (*Wallet, error) {
	var w Wallet
	var createdAt int64

	err := row.Scan(&w.ID, &w.UserID, &w.ProviderWalletID, &w.Address, &w.Network, &w.Status, &createdAt)
	if err != nil {
		return nil, err
	}

	w.CreatedAt = time.Unix(createdAt, 0)
	return &w, nil
}
