package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/obverse/mantle-bot/internal/agent"
	"github.com/obverse/mantle-bot/internal/config"
	"github.com/obverse/mantle-bot/internal/custody"
	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/storage"
	"github.com/obverse/mantle-bot/internal/tools"
	"github.com/obverse/mantle-bot/internal/transfer"
)

const sourceTelegram = "telegram"

// Store is the persistence the bot needs for registration and history
type Store interface {
	UpsertUser(telegramID int64, firstName, lastName, username string) (*storage.User, error)
	CreateWallet(userID int64, providerWalletID, address, network string) (*storage.Wallet, error)
	GetWalletByTelegramID(telegramID int64) (*storage.Wallet, error)
	ListTransactionsByUser(userID int64, limit int) ([]storage.Transaction, error)
}

// Flow runs payment link creation sessions
type Flow interface {
	Active(ctx context.Context, userID int64) bool
	Start(ctx context.Context, userID, chatID int64, source string) (*flow.Reply, error)
	Handle(ctx context.Context, userID int64, input string) (*flow.Reply, error)
	Cancel(ctx context.Context, userID int64) (bool, error)
}

// Toolbox runs wallet and payment link operations
type Toolbox interface {
	CheckBalance(ctx context.Context, telegramID int64, tokens []string) *tools.Result
	PrepareTransfer(ctx context.Context, req transfer.Request) *tools.Result
	ConfirmTransfer(ctx context.Context, id string, telegramID int64) *tools.Result
	CancelTransfer(id string, telegramID int64) *tools.Result
	GetPaymentLinkStats(telegramID int64, linkID string) *tools.Result
	GetAllPaymentLinksStats(telegramID int64) *tools.Result
}

// Links builds public payment link URLs
type Links interface {
	LinkURL(linkID string) string
}

// Explorer builds block explorer URLs
type Explorer interface {
	AddressURL(address string) string
	TxURL(hash string) string
}

// Deps are the services behind the bot
type Deps struct {
	Store    Store
	Custody  custody.Provider
	Agent    agent.Agent
	Flow     Flow
	Tools    Toolbox
	Links    Links
	Explorer Explorer
}

// messenger is the part of the Bot API the handlers use
type messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot    *bot.Bot
	api    messenger
	deps   Deps
	states *StateManager
	log    *slog.Logger
}

// New creates the bot, retrying the initial getMe call with a growing backoff
func New(ctx context.Context, cfg *config.Config, deps Deps, log *slog.Logger) (*Bot, error) {
	b := newBot(nil, deps, log)

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
		bot.WithCheckInitTimeout(cfg.BotInitTimeout),
	}

	var tgBot *bot.Bot
	err := retry(ctx, cfg.BotStartRetries, cfg.BotRetryBackoff, func(attempt int) error {
		var err error
		tgBot, err = bot.New(cfg.BotToken, opts...)
		if err != nil {
			log.Warn("init telegram bot", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot
	b.api = tgBot

	for name := range b.commands() {
		tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/"+name, bot.MatchTypeExact, b.commandHandler)
		tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/"+name+" ", bot.MatchTypePrefix, b.commandHandler)
	}

	return b, nil
}

func newBot(api messenger, deps Deps, log *slog.Logger) *Bot {
	return &Bot{
		api:    api,
		deps:   deps,
		states: NewStateManager(),
		log:    log,
	}
}

// retry calls fn up to attempts times, sleeping backoff*attempt between failures
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	if _, err := b.api.SendMessage(ctx, params); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendPhoto(ctx context.Context, chatID int64, url, caption string) {
	_, err := b.api.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:    chatID,
		Photo:     &models.InputFileString{Data: url},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		b.log.Error("send photo", "chat_id", chatID, "error", err)
	}
}

// clearKeyboard removes the buttons of a message so they cannot be pressed twice
func (b *Bot) clearKeyboard(ctx context.Context, msg models.MaybeInaccessibleMessage) {
	if msg.Message == nil {
		return
	}
	_, err := b.api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      msg.Message.Chat.ID,
		MessageID:   msg.Message.ID,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{}},
	})
	if err != nil {
		b.log.Debug("clear keyboard", "error", err)
	}
}

// SendNotification sends a notification message to a chat
func (b *Bot) SendNotification(ctx context.Context, chatID int64, text string) error {
	disablePreview := true
	_, err := b.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	return err
}
