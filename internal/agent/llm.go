package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/intent"
	"github.com/obverse/mantle-bot/internal/llm"
	"github.com/obverse/mantle-bot/internal/metrics"
	"github.com/obverse/mantle-bot/internal/tools"
	"github.com/obverse/mantle-bot/internal/tracing"
)

const (
	maxToolRounds  = 3
	historyForLLM  = 4
	llmTemperature = 0.7
)

const systemPrompt = `You are a payment assistant for a custodial wallet on the Mantle network.

Rules:
- For balance checks: ALWAYS use the check_balance tool
- For payment links: use create_payment_link when name, token (USDC, USDT or DAI) and amount are known, otherwise ask for them
- For payment tracking: use get_payment_link_stats or get_all_payment_links_stats
- For transfers: Guide users to the /send command
- NEVER generate fake data - only use tool results

Keep responses under 30 words. Use tools first, then respond with results.`

var (
	trackingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:track|monitor|analytics?).*payment`),
		regexp.MustCompile(`(?i)payment.*(?:track|monitor|analytics?)`),
		regexp.MustCompile(`(?i)(?:payment|link).*(?:stats|statistics|metrics)`),
		regexp.MustCompile(`(?i)(?:show|get).*payment.*(?:data|analytics?|tracking)`),
	}
	linkInfoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:payment.*link.*info|link.*info|info.*link)`),
		regexp.MustCompile(`(?i)(?:get|show|check).*(?:payment.*link|link)`),
		regexp.MustCompile(`(?i)(?:info|stats|details)`),
	}
	createPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)create.*payment.*link.*for\s+(.+?)\s+\$?(\d+\.?\d*)\s+(usdc|usdt|dai)(?:\s+collect\s+(.+))?$`),
		regexp.MustCompile(`(?i)payment.*link.*?(?:for\s+)?(.+?)\s+\$?(\d+\.?\d*)\s+(usdc|usdt|dai)(?:\s+collect\s+(.+))?$`),
		regexp.MustCompile(`(?i)create.*link.*?(?:for\s+)?(.+?)\s+\$?(\d+\.?\d*)\s+(usdc|usdt|dai)(?:\s+collect\s+(.+))?$`),
	}
	amountTokenPattern = regexp.MustCompile(`(?i)\$?\d+\.?\d*\s+(usdc|usdt|dai)`)
)

const linkGuidanceText = "To create a payment link, I need:\n" +
	"• Name/title for the payment\n" +
	"• Token (USDC, USDT, or DAI)\n" +
	"• Amount\n" +
	"• Payment details to collect from payers (optional)\n\n" +
	"Example: \"Create payment link for Coffee $5 USDC collect email,phone\"\n" +
	"Or: \"Create payment link for Service $10 USDT collect name,address,notes\""

const llmFallbackText = "I apologize, but I encountered an issue processing your request."

// LLM answers messages with shortcut patterns first and a tool-calling model otherwise
type LLM struct {
	client llm.Client
	model  string
	flow   FlowEngine
	tools  Toolbox
	memory *Memory
	log    *slog.Logger
}

// NewLLM creates a new model-backed agent
func NewLLM(client llm.Client, model string, engine FlowEngine, tb Toolbox, memory *Memory, log *slog.Logger) *LLM {
	return &LLM{
		client: client,
		model:  model,
		flow:   engine,
		tools:  tb,
		memory: memory,
		log:    log,
	}
}

// Respond answers one message. Failures are turned into a user-facing message.
func (a *LLM) Respond(ctx context.Context, req Request) (resp *Response) {
	ctx, span := tracing.Start(ctx, "agent.Respond",
		attribute.String("agent", "llm"),
		attribute.String("llm.provider", a.client.Name()),
		attribute.Int64("user_id", req.UserID),
	)

	history := a.memory.History(req.UserID)
	a.memory.Add(req.UserID, roleUser, req.Text)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
			resp = &Response{Text: errorMessage(intent.Unknown), Intent: intent.Unknown}
		}
		if err != nil {
			a.log.Error("respond", "user_id", req.UserID, "error", err)
		}
		a.memory.Add(req.UserID, roleAssistant, resp.Text)
		metrics.MessagesTotal.WithLabelValues("llm", string(resp.Intent)).Inc()
		span.SetAttributes(attribute.String("intent", string(resp.Intent)))
		tracing.End(span, err)
	}()

	resp, ok, err := continueFlow(ctx, a.flow, req)
	if ok {
		if err != nil {
			return &Response{Text: errorMessage(intent.PaymentLink), Intent: intent.PaymentLink}
		}
		return resp
	}

	if resp = a.shortcut(ctx, req); resp != nil {
		return resp
	}

	resp, err = a.generate(ctx, req, history)
	if err != nil {
		it := intent.Classify(req.Text, lastAssistantOf(history)).Type
		return &Response{Text: errorMessage(it), Intent: it}
	}
	return resp
}

// shortcut answers common requests without the model
func (a *LLM) shortcut(ctx context.Context, req Request) *Response {
	lower := strings.ToLower(req.Text)

	if strings.Contains(lower, "balance") || strings.Contains(lower, "check my") || strings.Contains(lower, "wallet") {
		return fromResult(a.tools.CheckBalance(ctx, req.UserID, nil), intent.Balance)
	}

	linkID := intent.FindLinkIDWith(req.Text, a.tools.HasPaymentLink)
	if linkID == "" && matchAny(trackingPatterns, lower) {
		return fromResult(a.tools.GetAllPaymentLinksStats(req.UserID), intent.Stats)
	}
	if linkID != "" && matchAny(linkInfoPatterns, lower) {
		return fromResult(a.tools.GetPaymentLinkStats(req.UserID, linkID), intent.Stats)
	}

	if p, ok := parseCreateCommand(req.Text); ok {
		return fromResult(a.tools.CreatePaymentLink(ctx, req.UserID, req.ChatID, p, source(req)), intent.PaymentLink)
	}

	if (strings.Contains(lower, "payment link") || strings.Contains(lower, "create link")) && !amountTokenPattern.MatchString(lower) {
		return &Response{
			Text:    linkGuidanceText,
			Intent:  intent.PaymentLink,
			Buttons: [][]flow.Button{{{Text: "🔗 Create Step by Step", Data: flow.DataCreate}}},
		}
	}
	return nil
}

// parseCreateCommand reads "create payment link for <name> $<amount> <token> [collect a,b]"
func parseCreateCommand(text string) (tools.LinkParams, bool) {
	text = strings.TrimSpace(text)
	for _, re := range createPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		p := tools.LinkParams{
			Name:   strings.TrimSpace(m[1]),
			Amount: m[2],
			Token:  strings.ToUpper(m[3]),
		}
		if m[4] != "" {
			p.Details = strings.Split(m[4], ",")
		}
		return p, true
	}
	return tools.LinkParams{}, false
}

func (a *LLM) generate(ctx context.Context, req Request, history []Entry) (*Response, error) {
	if len(history) > historyForLLM {
		history = history[len(history)-historyForLLM:]
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, e := range history {
		messages = append(messages, llm.Message{Role: e.Role, Content: e.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Text})

	resp := &Response{Intent: intent.Unknown}
	defs := tools.Definitions()

	for round := 0; round <= maxToolRounds; round++ {
		offered := defs
		if round == maxToolRounds {
			offered = nil
		}

		out, err := a.client.Complete(ctx, &llm.CompletionRequest{
			Model:       a.model,
			System:      fmt.Sprintf("%s\n\nUser ID: %d", systemPrompt, req.UserID),
			Messages:    messages,
			Tools:       offered,
			Temperature: llmTemperature,
		})
		if err != nil {
			return nil, fmt.Errorf("complete: %w", err)
		}

		if len(out.ToolCalls) == 0 {
			resp.Text = strings.TrimSpace(out.Content)
			if resp.Text == "" {
				resp.Text = llmFallbackText
			}
			return resp, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: out.Content, ToolCalls: out.ToolCalls})
		for _, call := range out.ToolCalls {
			content := a.runTool(ctx, req, call, resp)
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: call.ID})
		}
	}

	resp.Text = llmFallbackText
	return resp, nil
}

// runTool executes a model tool call and keeps its buttons and image for the reply
func (a *LLM) runTool(ctx context.Context, req Request, call llm.ToolCall, resp *Response) string {
	a.log.Info("tool call", "user_id", req.UserID, "tool", call.Name)

	res, err := a.tools.Call(ctx, call.Name, call.Arguments, req.UserID, req.ChatID)
	if err != nil {
		a.log.Warn("tool call", "tool", call.Name, "error", err)
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}

	if res.OK {
		resp.Intent = toolIntent(call.Name)
		if len(res.Buttons) > 0 {
			resp.Buttons = res.Buttons
		}
		if res.PhotoURL != "" {
			resp.PhotoURL = res.PhotoURL
		}
	}
	return res.JSON()
}

func toolIntent(name string) intent.Type {
	switch name {
	case tools.ToolCheckBalance:
		return intent.Balance
	case tools.ToolCreatePayment:
		return intent.PaymentLink
	default:
		return intent.Stats
	}
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func lastAssistantOf(history []Entry) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == roleAssistant {
			return history[i].Content
		}
	}
	return ""
}
