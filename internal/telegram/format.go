package telegram

import (
	"fmt"
	"strings"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/storage"
)

const helpText = "🤖 <b>Mantle Wallet Bot</b>\n\n" +
	"<b>Commands:</b>\n" +
	"/start - Create your wallet\n" +
	"/wallet - Show your wallet address\n" +
	"/balance [token] - Check your balances\n" +
	"/transactions - Recent transactions\n" +
	"/send &lt;amount&gt; &lt;token&gt; &lt;address&gt; [memo] - Send tokens\n" +
	"/payment - Create a payment link\n" +
	"/linkstats [link id] - Payment link statistics\n" +
	"/cancel - Cancel the current operation\n\n" +
	"💬 You can also write in plain words, e.g. \"what's my balance?\" or \"create payment link\"."

const sendPromptText = "💸 <b>Send Tokens</b>\n\n" +
	"Reply with the amount, token and recipient address:\n" +
	"<code>10 USDC 0x1234...abcd</code>\n\n" +
	"You can add a memo at the end. Supported tokens: MNT, USDC, USDT, DAI"

const sendUsageText = "❌ Invalid format.\n\n" +
	"Use: <code>/send &lt;amount&gt; &lt;token&gt; &lt;address&gt; [memo]</code>\n" +
	"Example: <code>/send 10 USDC 0x1234...abcd</code>"

func formatTransactions(txs []storage.Transaction, explorer Explorer) string {
	if len(txs) == 0 {
		return "📜 <b>Transaction History</b>\n\nNo transactions yet.\n\nUse /send to make your first transfer or share your address from /wallet to receive funds."
	}

	lines := []string{"📜 <b>Transaction History</b>", ""}
	for _, tx := range txs {
		var icon, sign, peer string
		switch tx.Type {
		case storage.TxTypeReceive, storage.TxTypePaymentLink:
			icon, sign, peer = "📥", "+", "from "+chain.ShortAddr(tx.FromAddress)
		default:
			icon, sign, peer = "📤", "-", "to "+chain.ShortAddr(tx.ToAddress)
		}

		status := ""
		if tx.Status != storage.TxStatusCompleted {
			status = fmt.Sprintf(" <i>(%s)</i>", tx.Status)
		}

		line := fmt.Sprintf("%s %s%s %s %s%s\n    %s",
			icon, sign, tx.Amount, tx.Token, peer, status, tx.CreatedAt.Format("Jan 2, 15:04"))
		if tx.TxHash != "" {
			line += fmt.Sprintf(" · <a href='%s'>view</a>", explorer.TxURL(tx.TxHash))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
