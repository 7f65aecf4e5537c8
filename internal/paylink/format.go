package paylink

import (
	"fmt"
	"html"
	"strings"

	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/storage"
)

// TokenEmoji returns the marker shown next to a token symbol
func TokenEmoji(token string) string {
	switch strings.ToUpper(token) {
	case "USDC":
		return "🔵"
	case "USDT", "MNT":
		return "🟢"
	case "DAI":
		return "🟡"
	default:
		return "🪙"
	}
}

// FormatCreated renders the summary sent after a link is created
func FormatCreated(l *storage.PaymentLink) string {
	var sb strings.Builder
	sb.WriteString("✅ <b>Payment Link Created!</b>\n\n")
	sb.WriteString(fmt.Sprintf("📝 <b>Name:</b> %s\n", html.EscapeString(l.Title)))
	sb.WriteString(fmt.Sprintf("💰 <b>Amount:</b> %s %s %s\n", l.Amount, TokenEmoji(l.Token), l.Token))
	sb.WriteString(fmt.Sprintf("🆔 <b>Link ID:</b> <code>%s</code>\n", l.LinkID))
	if len(l.Details) > 0 {
		sb.WriteString(fmt.Sprintf("📋 <b>Collecting:</b> %s\n", html.EscapeString(strings.Join(l.Details, ", "))))
	}
	sb.WriteString(fmt.Sprintf("\n🔗 <b>Payment Link:</b>\n%s\n", l.LinkURL))
	sb.WriteString("\nShare this link or the QR code to receive payments.")
	return sb.String()
}

// FormatStats renders the statistics of one link
func FormatStats(st *Stats) string {
	l := st.Link

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 <b>%s</b>\n\n", html.EscapeString(l.Title)))
	sb.WriteString(fmt.Sprintf("🆔 <code>%s</code> · %s\n", l.LinkID, capitalize(l.Status)))
	sb.WriteString(fmt.Sprintf("💰 <b>Amount:</b> %s %s %s\n\n", l.Amount, TokenEmoji(l.Token), l.Token))

	sb.WriteString(fmt.Sprintf("👀 Views: %d\n", st.Views))
	sb.WriteString(fmt.Sprintf("💳 Payments: %d\n", st.Transactions))
	sb.WriteString(fmt.Sprintf("🔁 Uses: %s\n", st.Uses()))
	sb.WriteString(fmt.Sprintf("📈 Conversion: %s%%\n", st.Conversion))
	sb.WriteString(fmt.Sprintf("💵 Received: %s %s\n", l.TotalReceived, l.Token))
	if st.Transactions > 0 {
		sb.WriteString(fmt.Sprintf("➗ Average: %s %s\n", st.Average, l.Token))
	}

	if len(st.Recent) > 0 {
		sb.WriteString("\n🔄 <b>Recent Payments:</b>\n")
		for i, p := range st.Recent {
			sb.WriteString(fmt.Sprintf("%d. %s %s from <code>%s</code> (%s)\n",
				i+1, p.Amount, l.Token, chain.ShortAddr(p.PayerAddress), p.PaidAt.Format("2006-01-02")))
		}
	} else if st.Views > 0 {
		sb.WriteString(fmt.Sprintf("\n💡 %d views but no payments yet.\n", st.Views))
	}

	sb.WriteString(fmt.Sprintf("\n🌐 <b>Tracking:</b> %s", st.TrackingURL))
	return sb.String()
}

// FormatSummary renders the overview of all links of a user
func FormatSummary(sum *Summary) string {
	if sum.TotalLinks == 0 {
		return "📭 <b>No Payment Links Found</b>\n\n" +
			"You haven't created any payment links yet.\n\n" +
			"🚀 Use /payment or say \"create payment link\" to get started."
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Payment Links Overview</b>\n\n")
	sb.WriteString(fmt.Sprintf("🔗 Total Links: %d (%d active)\n", sum.TotalLinks, sum.ActiveLinks))
	sb.WriteString(fmt.Sprintf("💳 Total Payments: %d\n", sum.TotalPayments))
	sb.WriteString(fmt.Sprintf("👀 Total Views: %d\n", sum.TotalViews))
	sb.WriteString(fmt.Sprintf("📈 Conversion: %s%%\n", sum.Conversion))
	sb.WriteString(fmt.Sprintf("💵 Total Revenue: $%s\n", sum.Revenue.StringFixed(2)))

	if len(sum.Top) > 0 && sum.Top[0].Revenue.IsPositive() {
		sb.WriteString("\n🏆 <b>Top Links:</b>\n")
		for i, row := range sum.Top {
			sb.WriteString(fmt.Sprintf("%d. <b>%s</b> (<code>%s</code>): %s %s, %d payments\n",
				i+1, html.EscapeString(row.Link.Title), row.Link.LinkID,
				row.Revenue.StringFixed(2), row.Link.Token, row.Payments))
		}
	}

	sb.WriteString("\n💡 Send /linkstats &lt;link id&gt; for details on one link.")
	return sb.String()
}

// FormatMatches renders links found by title
func FormatMatches(name string, links []storage.PaymentLink) string {
	if len(links) == 0 {
		return fmt.Sprintf("🔍 No payment links found matching \"%s\".", html.EscapeString(name))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔍 <b>Found %d payment link(s) matching \"%s\"</b>\n\n", len(links), html.EscapeString(name)))
	for i, l := range links {
		sb.WriteString(fmt.Sprintf("%d. <b>%s</b>: %s %s %s, %d payments, <code>%s</code>\n",
			i+1, html.EscapeString(l.Title), l.Amount, TokenEmoji(l.Token), l.Token, l.CurrentUses, l.LinkID))
	}
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
