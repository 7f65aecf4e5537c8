package storage

import "time"

const NetworkMantle = "mantle"

// Payment link statuses
const (
	LinkStatusActive    = "active"
	LinkStatusExpired   = "expired"
	LinkStatusDisabled  = "disabled"
	LinkStatusCompleted = "completed"
)

// Payment link types
const (
	LinkTypeOneTime      = "one_time"
	LinkTypeMultipleUse  = "multiple_use"
	LinkTypeSubscription = "subscription"
)

// UnlimitedUses marks a link without a usage cap
const UnlimitedUses = -1

// Transaction types and statuses
const (
	TxTypeSend        = "send"
	TxTypeReceive     = "receive"
	TxTypePaymentLink = "payment_link"

	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// User is a registered Telegram user
type User struct {
	ID         int64
	TelegramID int64
	FirstName  string
	LastName   string
	Username   string
	IsActive   bool
	LastSeenAt time.Time
	CreatedAt  time.Time
}

// DisplayName returns the best available name for greetings
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "there"
}

// Wallet is the custodial wallet of a user
type Wallet struct {
	ID               int64
	UserID           int64
	ProviderWalletID string
	Address          string
	Network          string
	Status           string
	CreatedAt        time.Time
}

// PaymentLink is a shareable request for a fixed amount of a token
type PaymentLink struct {
	ID              int64
	LinkID          string
	CreatorUserID   int64
	CreatorWalletID int64
	Title           string
	Amount          string
	Token           string
	TokenAddress    string
	Network         string
	Status          string
	Type            string
	LinkURL         string
	QRCodeURL       string
	// Details holds the customer field names to collect, in the order they were added.
	Details        []string
	ViewCount      int
	CurrentUses    int
	MaxUses        int
	TotalReceived  string
	Source         string
	TelegramChatID int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DetailsMap returns the collected-field schema with empty placeholder values
func (l *PaymentLink) DetailsMap() map[string]string {
	m := make(map[string]string, len(l.Details))
	for _, field := range l.Details {
		m[field] = ""
	}
	return m
}

// Unlimited reports whether the link has no usage cap
func (l *PaymentLink) Unlimited() bool {
	return l.MaxUses == UnlimitedUses
}

// LinkPayment is a completed payment made through a payment link
type LinkPayment struct {
	ID              int64
	LinkID          string
	PayerAddress    string
	Amount          string
	TransactionHash string
	PaidAt          time.Time
}

// Transaction is an on-chain movement recorded for a wallet
type Transaction struct {
	ID           int64
	WalletID     int64
	UserID       int64
	Type         string
	Status       string
	Amount       string
	Token        string
	TokenAddress string
	FromAddress  string
	ToAddress    string
	TxHash       string
	Network      string
	Metadata     map[string]string
	CreatedAt    time.Time
}
