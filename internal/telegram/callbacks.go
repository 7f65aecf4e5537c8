package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/tools"
)

func (b *Bot) callbackHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	b.handleCallback(ctx, update.CallbackQuery)
}

func (b *Bot) handleCallback(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID
	data := cb.Data

	// Answer callback to remove loading state
	if _, err := b.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID}); err != nil {
		b.log.Debug("answer callback", "error", err)
	}

	chatID := userID
	if cb.Message.Message != nil {
		chatID = cb.Message.Message.Chat.ID
	}

	switch {
	case data == dataBalance:
		b.balance(ctx, chatID, userID, nil)
	case data == dataTransactions:
		b.transactions(ctx, chatID, userID)
	case data == dataSend:
		b.promptSend(ctx, chatID, userID)
	case data == dataPayment, data == flow.DataCreate:
		b.startFlow(ctx, chatID, userID)
	case data == dataCopyAddress:
		b.copyAddress(ctx, chatID, userID)
	case data == flow.DataCancel && !b.deps.Flow.Active(ctx, userID):
		b.cancel(ctx, chatID, userID)
	case strings.HasPrefix(data, flow.DataTokenPrefix),
		data == flow.DataDone, data == flow.DataYes, data == flow.DataNo, data == flow.DataCancel:
		b.continueFlow(ctx, cb, chatID, data)
	case strings.HasPrefix(data, tools.DataConfirmSendPrefix):
		b.clearKeyboard(ctx, cb.Message)
		res := b.deps.Tools.ConfirmTransfer(ctx, strings.TrimPrefix(data, tools.DataConfirmSendPrefix), userID)
		b.sendResponse(ctx, chatID, res.Text, res.Buttons, res.PhotoURL)
	case strings.HasPrefix(data, tools.DataCancelSendPrefix):
		b.clearKeyboard(ctx, cb.Message)
		res := b.deps.Tools.CancelTransfer(strings.TrimPrefix(data, tools.DataCancelSendPrefix), userID)
		b.sendMessage(ctx, chatID, res.Text, nil)
	case strings.HasPrefix(data, flow.DataCopyPrefix):
		linkID := strings.TrimPrefix(data, flow.DataCopyPrefix)
		b.sendMessage(ctx, chatID,
			fmt.Sprintf("📋 <b>Payment Link</b>\n\n<code>%s</code>\n\nTap the link above to copy it.", b.deps.Links.LinkURL(linkID)),
			nil,
		)
	case strings.HasPrefix(data, flow.DataViewPrefix):
		b.linkStats(ctx, chatID, userID, strings.TrimPrefix(data, flow.DataViewPrefix))
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", userID)
	}
}

// continueFlow feeds a button press to the payment link flow
func (b *Bot) continueFlow(ctx context.Context, cb *models.CallbackQuery, chatID int64, data string) {
	reply, err := b.deps.Flow.Handle(ctx, cb.From.ID, data)
	if errors.Is(err, flow.ErrNoSession) {
		b.sendMessage(ctx, chatID, "⌛ This payment link session has expired. Use /payment to start again.", nil)
		return
	}
	if err != nil {
		b.log.Error("payment link flow", "telegram_id", cb.From.ID, "error", err)
		b.sendMessage(ctx, chatID, "❌ An error occurred during payment link creation. Please start over.", nil)
		return
	}

	if !reply.Invalid {
		b.clearKeyboard(ctx, cb.Message)
	}
	b.sendReply(ctx, chatID, reply)
}

func (b *Bot) copyAddress(ctx context.Context, chatID, userID int64) {
	wallet, ok := b.wallet(ctx, chatID, userID)
	if !ok {
		return
	}
	b.sendMessage(ctx, chatID, fmt.Sprintf("<code>%s</code>", wallet.Address), nil)
}
