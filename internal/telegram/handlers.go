package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/obverse/mantle-bot/internal/agent"
	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/storage"
	"github.com/obverse/mantle-bot/internal/tools"
	"github.com/obverse/mantle-bot/internal/transfer"
)

const transactionsShown = 10

const noWalletText = "❌ No wallet found. Please use /start to create a wallet first."

type commandFunc func(ctx context.Context, msg *models.Message, args string)

func (b *Bot) commands() map[string]commandFunc {
	return map[string]commandFunc{
		"start":        b.startCommand,
		"help":         b.helpCommand,
		"wallet":       b.walletCommand,
		"balance":      b.balanceCommand,
		"transactions": b.transactionsCommand,
		"send":         b.sendCommand,
		"payment":      b.paymentCommand,
		"linkstats":    b.linkStatsCommand,
		"cancel":       b.cancelCommand,
	}
}

func (b *Bot) commandHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	b.handleCommand(ctx, update.Message)
}

// handleCommand runs a slash command and reports whether it was known
func (b *Bot) handleCommand(ctx context.Context, msg *models.Message) bool {
	name, args := splitCommand(msg.Text)
	fn, ok := b.commands()[name]
	if !ok {
		return false
	}
	b.log.Debug("command", "name", name, "user_id", msg.From.ID)
	fn(ctx, msg, args)
	return true
}

// splitCommand turns "/send@my_bot 5 USDC 0x.." into "send" and "5 USDC 0x.."
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(args)
}

func (b *Bot) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}
	b.handleText(ctx, update.Message)
}

func (b *Bot) handleText(ctx context.Context, msg *models.Message) {
	text := strings.TrimSpace(msg.Text)
	userID := msg.From.ID

	if strings.HasPrefix(text, "/") {
		if !b.handleCommand(ctx, msg) {
			b.sendMessage(ctx, msg.Chat.ID, "🤔 Unknown command. Type /help to see what I can do.", nil)
		}
		return
	}

	if state := b.states.Get(userID); state != nil && state.State == StateWaitSend {
		b.states.Clear(userID)
		b.prepareSend(ctx, msg.Chat.ID, userID, text)
		return
	}

	resp := b.deps.Agent.Respond(ctx, agent.Request{
		Text:   text,
		UserID: userID,
		ChatID: msg.Chat.ID,
		Source: sourceTelegram,
	})
	b.sendResponse(ctx, msg.Chat.ID, resp.Text, resp.Buttons, resp.PhotoURL)
}

func (b *Bot) sendResponse(ctx context.Context, chatID int64, text string, buttons [][]flow.Button, photoURL string) {
	b.sendMessage(ctx, chatID, text, inlineKeyboard(buttons))
	if photoURL != "" {
		b.sendPhoto(ctx, chatID, photoURL, "📱 Scan to pay")
	}
}

func (b *Bot) sendReply(ctx context.Context, chatID int64, r *flow.Reply) {
	photo := ""
	if r.Link != nil {
		photo = r.Link.QRCodeURL
	}
	b.sendResponse(ctx, chatID, r.Text, r.Buttons, photo)
}

// --- Commands ---

func (b *Bot) startCommand(ctx context.Context, msg *models.Message, _ string) {
	from := msg.From
	user, err := b.deps.Store.UpsertUser(from.ID, from.FirstName, from.LastName, from.Username)
	if err != nil {
		b.log.Error("upsert user", "telegram_id", from.ID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Failed to register. Please try /start again.", nil)
		return
	}

	wallet, created, err := b.ensureWallet(ctx, user)
	if err != nil {
		b.log.Error("create wallet", "telegram_id", from.ID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Failed to create your wallet. Please try /start again in a moment.", nil)
		return
	}

	greeting := "👋 Welcome back"
	if created {
		greeting = "🎉 Welcome"
	}
	text := fmt.Sprintf("%s, <b>%s</b>!\n\n", greeting, html.EscapeString(user.DisplayName()))
	if created {
		text += "Your Mantle wallet has been created.\n\n"
	}
	text += fmt.Sprintf("👛 <b>Address:</b>\n<code>%s</code>\n\n", wallet.Address) +
		"You can check balances, send tokens and create payment links.\n" +
		"Type /help to see all commands or just tell me what you need 👇"

	b.sendMessage(ctx, msg.Chat.ID, text, MainKeyboard())
}

// ensureWallet returns the user's wallet, creating it at the custody provider on first use
func (b *Bot) ensureWallet(ctx context.Context, user *storage.User) (*storage.Wallet, bool, error) {
	wallet, err := b.deps.Store.GetWalletByTelegramID(user.TelegramID)
	if err == nil {
		return wallet, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("get wallet: %w", err)
	}

	cw, err := b.deps.Custody.CreateWallet(ctx, user.TelegramID)
	if err != nil {
		return nil, false, fmt.Errorf("custody create wallet: %w", err)
	}

	wallet, err = b.deps.Store.CreateWallet(user.ID, cw.ID, chain.NormalizeAddress(cw.Address), storage.NetworkMantle)
	if errors.Is(err, storage.ErrAlreadyExists) {
		wallet, err = b.deps.Store.GetWalletByTelegramID(user.TelegramID)
		return wallet, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("store wallet: %w", err)
	}

	b.log.Info("wallet created", "telegram_id", user.TelegramID, "address", wallet.Address)
	return wallet, true, nil
}

func (b *Bot) helpCommand(ctx context.Context, msg *models.Message, _ string) {
	b.sendMessage(ctx, msg.Chat.ID, helpText, MainKeyboard())
}

func (b *Bot) walletCommand(ctx context.Context, msg *models.Message, _ string) {
	wallet, ok := b.wallet(ctx, msg.Chat.ID, msg.From.ID)
	if !ok {
		return
	}

	text := "👛 <b>Your Wallet</b>\n\n" +
		fmt.Sprintf("<b>Address:</b>\n<code>%s</code>\n\n", wallet.Address) +
		"<b>Network:</b> Mantle\n" +
		fmt.Sprintf("<b>Status:</b> %s\n\n", wallet.Status) +
		"Send MNT, USDC, USDT or DAI to this address to fund your wallet."
	b.sendMessage(ctx, msg.Chat.ID, text, WalletKeyboard(b.deps.Explorer.AddressURL(wallet.Address)))
}

func (b *Bot) balanceCommand(ctx context.Context, msg *models.Message, args string) {
	b.balance(ctx, msg.Chat.ID, msg.From.ID, strings.Fields(strings.ToUpper(args)))
}

func (b *Bot) balance(ctx context.Context, chatID, userID int64, tokens []string) {
	res := b.deps.Tools.CheckBalance(ctx, userID, tokens)
	b.sendResponse(ctx, chatID, res.Text, res.Buttons, res.PhotoURL)
}

func (b *Bot) transactionsCommand(ctx context.Context, msg *models.Message, _ string) {
	b.transactions(ctx, msg.Chat.ID, msg.From.ID)
}

func (b *Bot) transactions(ctx context.Context, chatID, userID int64) {
	wallet, ok := b.wallet(ctx, chatID, userID)
	if !ok {
		return
	}

	txs, err := b.deps.Store.ListTransactionsByUser(wallet.UserID, transactionsShown)
	if err != nil {
		b.log.Error("list transactions", "telegram_id", userID, "error", err)
		b.sendMessage(ctx, chatID, "❌ Failed to load your transactions. Please try again.", nil)
		return
	}
	b.sendMessage(ctx, chatID, formatTransactions(txs, b.deps.Explorer), nil)
}

func (b *Bot) sendCommand(ctx context.Context, msg *models.Message, args string) {
	if args == "" {
		b.promptSend(ctx, msg.Chat.ID, msg.From.ID)
		return
	}
	b.prepareSend(ctx, msg.Chat.ID, msg.From.ID, args)
}

func (b *Bot) promptSend(ctx context.Context, chatID, userID int64) {
	b.states.Set(userID, StateWaitSend)
	b.sendMessage(ctx, chatID, sendPromptText, CancelKeyboard())
}

// prepareSend parses "<amount> <token> <address> [memo]" and asks for confirmation
func (b *Bot) prepareSend(ctx context.Context, chatID, userID int64, args string) {
	req, ok := parseSendArgs(args)
	if !ok {
		b.sendMessage(ctx, chatID, sendUsageText, nil)
		return
	}
	req.TelegramID = userID
	req.Source = sourceTelegram

	res := b.deps.Tools.PrepareTransfer(ctx, req)
	b.sendResponse(ctx, chatID, res.Text, res.Buttons, res.PhotoURL)
}

func parseSendArgs(args string) (transfer.Request, bool) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return transfer.Request{}, false
	}
	return transfer.Request{
		Amount:    strings.TrimPrefix(fields[0], "$"),
		Token:     strings.ToUpper(fields[1]),
		ToAddress: fields[2],
		Memo:      strings.Join(fields[3:], " "),
	}, true
}

func (b *Bot) paymentCommand(ctx context.Context, msg *models.Message, _ string) {
	b.startFlow(ctx, msg.Chat.ID, msg.From.ID)
}

func (b *Bot) startFlow(ctx context.Context, chatID, userID int64) {
	b.states.Clear(userID)
	reply, err := b.deps.Flow.Start(ctx, userID, chatID, sourceTelegram)
	if err != nil {
		b.log.Error("start payment link flow", "telegram_id", userID, "error", err)
		b.sendMessage(ctx, chatID, "❌ Failed to start payment link creation. Please try again.", nil)
		return
	}
	b.sendReply(ctx, chatID, reply)
}

func (b *Bot) linkStatsCommand(ctx context.Context, msg *models.Message, args string) {
	b.linkStats(ctx, msg.Chat.ID, msg.From.ID, strings.TrimSpace(args))
}

func (b *Bot) linkStats(ctx context.Context, chatID, userID int64, linkID string) {
	var res *tools.Result
	if linkID == "" {
		res = b.deps.Tools.GetAllPaymentLinksStats(userID)
	} else {
		res = b.deps.Tools.GetPaymentLinkStats(userID, linkID)
	}
	b.sendResponse(ctx, chatID, res.Text, res.Buttons, res.PhotoURL)
}

func (b *Bot) cancelCommand(ctx context.Context, msg *models.Message, _ string) {
	b.cancel(ctx, msg.Chat.ID, msg.From.ID)
}

func (b *Bot) cancel(ctx context.Context, chatID, userID int64) {
	prompt := b.states.Clear(userID)
	session, err := b.deps.Flow.Cancel(ctx, userID)
	if err != nil {
		b.log.Error("cancel payment link flow", "telegram_id", userID, "error", err)
	}

	switch {
	case session:
		b.sendMessage(ctx, chatID, "❌ Payment link creation cancelled.", MainKeyboard())
	case prompt:
		b.sendMessage(ctx, chatID, "❌ Cancelled.", MainKeyboard())
	default:
		b.sendMessage(ctx, chatID, "Nothing to cancel.", nil)
	}
}

// wallet loads the user's wallet, telling them to /start when there is none
func (b *Bot) wallet(ctx context.Context, chatID, userID int64) (*storage.Wallet, bool) {
	wallet, err := b.deps.Store.GetWalletByTelegramID(userID)
	if errors.Is(err, storage.ErrNotFound) {
		b.sendMessage(ctx, chatID, noWalletText, nil)
		return nil, false
	}
	if err != nil {
		b.log.Error("get wallet", "telegram_id", userID, "error", err)
		b.sendMessage(ctx, chatID, "❌ Failed to load your wallet. Please try again.", nil)
		return nil, false
	}
	return wallet, true
}
