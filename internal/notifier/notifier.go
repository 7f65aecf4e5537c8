package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/paylink"
	"github.com/obverse/mantle-bot/internal/storage"
)

// Sender delivers a message to a Telegram chat
type Sender interface {
	SendNotification(ctx context.Context, chatID int64, text string) error
}

// Users resolves the Telegram account of a stored user
type Users interface {
	GetUser(userID int64) (*storage.User, error)
}

// Links explains where a transaction can be inspected
type Links interface {
	TxURL(hash string) string
}

// Notifier tells users about money arriving in their wallets and links
type Notifier struct {
	sender Sender
	users  Users
	links  Links
	log    *slog.Logger
}

// New creates a new Notifier
func New(sender Sender, users Users, links Links, log *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		users:  users,
		links:  links,
		log:    log,
	}
}

// NotifyPayment tells a link creator that the link was paid.
// Delivery failures are logged and dropped.
func (n *Notifier) NotifyPayment(ctx context.Context, link *storage.PaymentLink, p storage.LinkPayment) {
	chatID := link.TelegramChatID
	if chatID == 0 {
		user, err := n.users.GetUser(link.CreatorUserID)
		if err != nil {
			n.log.Error("get link creator", "link_id", link.LinkID, "error", err)
			return
		}
		chatID = user.TelegramID
	}

	if err := n.sender.SendNotification(ctx, chatID, n.formatPayment(link, p)); err != nil {
		n.log.Error("send payment notification", "link_id", link.LinkID, "chat_id", chatID, "error", err)
		return
	}
	n.log.Info("payment notification sent", "link_id", link.LinkID, "chat_id", chatID)
}

// Deposit is an incoming transfer to a custodial wallet
type Deposit struct {
	Token  string
	Amount decimal.Decimal
	From   string
	TxHash string
}

// NotifyDeposit tells a user about an incoming transfer
func (n *Notifier) NotifyDeposit(ctx context.Context, telegramID int64, d Deposit) {
	if err := n.sender.SendNotification(ctx, telegramID, n.formatDeposit(d)); err != nil {
		n.log.Error("send deposit notification", "telegram_id", telegramID, "tx_hash", d.TxHash, "error", err)
	}
}

func (n *Notifier) formatPayment(link *storage.PaymentLink, p storage.LinkPayment) string {
	lines := []string{
		"💰 <b>Payment Received!</b>",
		"",
		fmt.Sprintf("<b>%s</b> was just paid.", html.EscapeString(link.Title)),
		"",
		fmt.Sprintf("<b>Amount:</b> %s %s %s", p.Amount, paylink.TokenEmoji(link.Token), link.Token),
		fmt.Sprintf("<b>From:</b> <code>%s</code>", chain.ShortAddr(p.PayerAddress)),
	}

	uses := fmt.Sprintf("%d", link.CurrentUses)
	if !link.Unlimited() {
		uses = fmt.Sprintf("%d/%d", link.CurrentUses, link.MaxUses)
	}
	lines = append(lines,
		fmt.Sprintf("<b>Payments:</b> %s", uses),
		fmt.Sprintf("<b>Total received:</b> %s %s", link.TotalReceived, link.Token),
	)

	if link.Status == storage.LinkStatusCompleted {
		lines = append(lines, "", "✅ This link reached its payment limit and is now closed.")
	}
	if p.TransactionHash != "" {
		lines = append(lines, "", fmt.Sprintf("<a href='%s'>View transaction</a>", n.links.TxURL(p.TransactionHash)))
	}
	lines = append(lines, "", fmt.Sprintf("📊 /linkstats %s", link.LinkID))

	return strings.Join(lines, "\n")
}

func (n *Notifier) formatDeposit(d Deposit) string {
	return strings.Join([]string{
		"<b>🔔 Deposit received</b>",
		"",
		fmt.Sprintf("+%s %s %s", d.Amount.StringFixed(6), d.Token, paylink.TokenEmoji(d.Token)),
		"",
		fmt.Sprintf("From: <code>%s</code>", chain.ShortAddr(d.From)),
		fmt.Sprintf("<a href='%s'>View transaction</a>", n.links.TxURL(d.TxHash)),
	}, "\n")
}
