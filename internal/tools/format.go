package tools

import (
	"fmt"
	"html"
	"strings"

	"github.com/obverse/mantle-bot/internal/balance"
	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/paylink"
	"github.com/obverse/mantle-bot/internal/transfer"
)

func formatBalance(r *balance.Report) string {
	var sb strings.Builder
	sb.WriteString("💰 <b>Your Wallet Balance</b>\n")
	sb.WriteString(fmt.Sprintf("📍 <code>%s</code>\n\n", r.Address))

	var natives, tokens []balance.TokenBalance
	for _, b := range r.Balances {
		if t, ok := chain.LookupToken(b.Symbol); ok && (t.Native || t.Symbol == chain.ETH.Symbol) {
			natives = append(natives, b)
			continue
		}
		tokens = append(tokens, b)
	}

	for _, b := range natives {
		emoji := "🟢"
		if b.Symbol == chain.ETH.Symbol {
			emoji = "🔷"
		}
		sb.WriteString(fmt.Sprintf("%s %s: %s %s%s\n", emoji, b.Symbol, b.Amount, b.Symbol, unavailable(b)))
	}

	if len(tokens) > 0 {
		if len(natives) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("🪙 <b>Token Balances:</b>\n")
		for _, b := range tokens {
			sb.WriteString(fmt.Sprintf("%s %s: %s%s\n", paylink.TokenEmoji(b.Symbol), b.Symbol, b.Amount, unavailable(b)))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func unavailable(b balance.TokenBalance) string {
	if b.Status == balance.StatusUnavailable {
		return " ⚠️ <i>unavailable</i>"
	}
	return ""
}

func formatPreview(p *transfer.Prepared, memo string) string {
	var sb strings.Builder
	sb.WriteString("💸 <b>Confirm Transfer</b>\n\n")
	sb.WriteString(fmt.Sprintf("<b>Amount:</b> %s %s\n", p.Amount, p.Token.Symbol))
	sb.WriteString(fmt.Sprintf("<b>From:</b> <code>%s</code>\n", p.Wallet.Address))
	sb.WriteString(fmt.Sprintf("<b>To:</b> <code>%s</code>\n", p.To))
	if memo != "" {
		sb.WriteString(fmt.Sprintf("<b>Memo:</b> %s\n", html.EscapeString(memo)))
	}
	sb.WriteString(fmt.Sprintf("<b>Balance:</b> %s %s\n\n", p.Balance.StringFixed(6), p.Token.Symbol))
	sb.WriteString("⚠️ Transfers cannot be reversed once sent.")
	return sb.String()
}

func formatSent(r *transfer.Result) string {
	var sb strings.Builder
	sb.WriteString("✅ <b>Transfer Successful!</b>\n\n")
	sb.WriteString(fmt.Sprintf("💸 Sent %s %s\n", r.Amount, r.Token))
	sb.WriteString(fmt.Sprintf("📤 To: <code>%s</code>\n", r.ToAddress))
	sb.WriteString(fmt.Sprintf("🧾 Tx: <code>%s</code>\n", r.TransactionHash))
	return sb.String()
}
