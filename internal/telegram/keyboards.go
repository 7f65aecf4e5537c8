package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/obverse/mantle-bot/internal/flow"
)

// Callback data of the menu buttons
const (
	dataBalance      = "balance"
	dataTransactions = "transactions"
	dataSend         = "send"
	dataPayment      = "payment"
	dataCopyAddress  = "copy_address"
)

// MainKeyboard returns the main menu keyboard
func MainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💰 Balance", CallbackData: dataBalance},
				{Text: "📜 Transactions", CallbackData: dataTransactions},
			},
			{
				{Text: "💸 Send", CallbackData: dataSend},
				{Text: "🔗 Payment Link", CallbackData: dataPayment},
			},
		},
	}
}

// WalletKeyboard returns the actions under the wallet card
func WalletKeyboard(explorerURL string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "📋 Copy Address", CallbackData: dataCopyAddress},
				{Text: "💰 Balance", CallbackData: dataBalance},
			},
			{
				{Text: "🔍 View on Explorer", URL: explorerURL},
			},
		},
	}
}

// CancelKeyboard offers a way out of a pending prompt
func CancelKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "❌ Cancel", CallbackData: flow.DataCancel},
			},
		},
	}
}

// inlineKeyboard converts transport-neutral buttons, nil when there are none
func inlineKeyboard(rows [][]flow.Button) *models.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}

	markup := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			b := models.InlineKeyboardButton{Text: btn.Text}
			if btn.URL != "" {
				b.URL = btn.URL
			} else {
				b.CallbackData = btn.Data
			}
			buttons = append(buttons, b)
		}
		markup = append(markup, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: markup}
}
