// Package agent turns chat messages into answers, either by rules or with a language model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/intent"
	"github.com/obverse/mantle-bot/internal/tools"
	"github.com/obverse/mantle-bot/internal/transfer"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Request is one inbound chat message
type Request struct {
	Text   string
	UserID int64
	ChatID int64
	// Source names the transport, e.g. "telegram" or "mcp"
	Source string
}

// Response is what the agent answers
type Response struct {
	Text     string
	Buttons  [][]flow.Button
	PhotoURL string
	Intent   intent.Type
	// Step is set while a payment link flow awaits more input
	Step flow.Step
}

// Agent answers chat messages
type Agent interface {
	Respond(ctx context.Context, req Request) *Response
}

// ProcessMessage answers a message with plain text
func ProcessMessage(ctx context.Context, a Agent, text string, userID, chatID int64) string {
	return a.Respond(ctx, Request{Text: text, UserID: userID, ChatID: chatID}).Text
}

// FlowEngine runs payment link creation sessions
type FlowEngine interface {
	Active(ctx context.Context, userID int64) bool
	Start(ctx context.Context, userID, chatID int64, source string) (*flow.Reply, error)
	Handle(ctx context.Context, userID int64, input string) (*flow.Reply, error)
}

// Toolbox runs the direct tool invocations
type Toolbox interface {
	CheckBalance(ctx context.Context, telegramID int64, tokens []string) *tools.Result
	CreatePaymentLink(ctx context.Context, telegramID, chatID int64, p tools.LinkParams, source string) *tools.Result
	PrepareTransfer(ctx context.Context, req transfer.Request) *tools.Result
	GetPaymentLinkStats(telegramID int64, linkID string) *tools.Result
	GetAllPaymentLinksStats(telegramID int64) *tools.Result
	HasPaymentLink(linkID string) bool
	Call(ctx context.Context, name, arguments string, telegramID, chatID int64) (*tools.Result, error)
}

var errPanic = errors.New("agent panicked")

// continueFlow feeds the message to an active flow session.
// ok is false when the user has no session.
func continueFlow(ctx context.Context, engine FlowEngine, req Request) (resp *Response, ok bool, err error) {
	if !engine.Active(ctx, req.UserID) {
		return nil, false, nil
	}
	reply, err := engine.Handle(ctx, req.UserID, req.Text)
	if errors.Is(err, flow.ErrNoSession) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	return fromReply(reply, intent.PaymentLink), true, nil
}

func startFlow(ctx context.Context, engine FlowEngine, req Request) (*Response, error) {
	reply, err := engine.Start(ctx, req.UserID, req.ChatID, source(req))
	if err != nil {
		return nil, err
	}
	return fromReply(reply, intent.PaymentLink), nil
}

func fromReply(r *flow.Reply, it intent.Type) *Response {
	resp := &Response{Text: r.Text, Buttons: r.Buttons, Step: r.Step, Intent: it}
	if r.Link != nil {
		resp.PhotoURL = r.Link.QRCodeURL
	}
	return resp
}

func fromResult(r *tools.Result, it intent.Type) *Response {
	return &Response{Text: r.Text, Buttons: r.Buttons, PhotoURL: r.PhotoURL, Intent: it}
}

func source(req Request) string {
	if req.Source == "" {
		return "telegram"
	}
	return req.Source
}

// sendRequest prepares a transfer when the message names amount, token and address
func sendRequest(ctx context.Context, tb Toolbox, req Request, e intent.Entities) *Response {
	if e.Amount == "" || e.Token == "" || e.Address == "" {
		return &Response{Text: sendUsageText, Intent: intent.Send}
	}
	res := tb.PrepareTransfer(ctx, transfer.Request{
		TelegramID: req.UserID,
		ToAddress:  e.Address,
		Amount:     e.Amount,
		Token:      e.Token,
		Source:     source(req),
	})
	return fromResult(res, intent.Send)
}

type errorContext struct {
	action      string
	suggestions []string
}

var errorContexts = map[intent.Type]errorContext{
	intent.Balance: {
		action:      "checking your balance",
		suggestions: []string{"Try /balance command", "Check if wallet is set up with /wallet", "Contact support"},
	},
	intent.Send: {
		action:      "processing your transfer",
		suggestions: []string{"Use /send command for secure transfers", "Check your balance first", "Verify recipient address"},
	},
	intent.PaymentLink: {
		action:      "creating your payment link",
		suggestions: []string{"Try /payment command", "Check your wallet setup", "Try again in a moment"},
	},
	intent.Stats: {
		action:      "loading your payment link statistics",
		suggestions: []string{"Try /linkstats command", "Check the link ID", "Try again in a moment"},
	},
}

// errorMessage is the user-facing text for a failure while handling an intent
func errorMessage(it intent.Type) string {
	ec, ok := errorContexts[it]
	if !ok {
		ec = errorContext{
			action:      "processing your request",
			suggestions: []string{"Try using specific commands", "Type /help for assistance"},
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("❌ Something went wrong while %s.\n\n", ec.action))
	sb.WriteString("🔧 <b>Try these solutions:</b>\n")
	for i, s := range ec.suggestions {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, s))
	}
	sb.WriteString("\n💡 If the problem persists, the issue might be temporary. Please try again in a few minutes.")
	return sb.String()
}

const helpText = "🤖 <b>Mantle Wallet Assistant</b>\n\n" +
	"Here's what I can do:\n\n" +
	"💰 /balance - Check your wallet balance\n" +
	"💸 /send - Send tokens\n" +
	"🔗 /payment - Create a payment link\n" +
	"📊 /linkstats - Payment link statistics\n" +
	"📜 /transactions - View transaction history\n" +
	"👛 /wallet - Show your wallet\n" +
	"❌ /cancel - Cancel the current operation\n\n" +
	"You can also just ask, e.g. \"what's my balance?\" or \"create payment link\"."

const greetingText = "👋 Hello! I'm your Mantle wallet assistant.\n\n" +
	"I can check your balance, send tokens and create payment links. Type /help to see everything I can do."

const sendUsageText = "💸 <b>Send Tokens</b>\n\n" +
	"Use: <code>/send &lt;amount&gt; &lt;token&gt; &lt;address&gt; [memo]</code>\n" +
	"Example: <code>/send 10 USDC 0x1234...abcd</code>\n\n" +
	"Supported tokens: MNT, USDC, USDT, DAI"

func unknownText(message string) string {
	return "🤖 I understand you want to: \"" + html.EscapeString(message) + "\"\n\n" +
		"I can help you with:\n" +
		"• Check your wallet balance\n" +
		"• View transaction history\n" +
		"• Create payment links\n" +
		"• Send payments\n\n" +
		"Try saying: \"show my balance\", \"create payment link\" or use commands like /balance"
}
