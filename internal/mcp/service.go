// Package mcp exposes the wallet and payment link flow as discrete tool calls.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/obverse/mantle-bot/internal/agent"
	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/tools"
)

var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrBadArguments = errors.New("invalid tool arguments")
)

// Tool names
const (
	ToolGetWalletBalance      = "get_wallet_balance"
	ToolCreatePaymentLink     = "create_payment_link"
	ToolContinuePaymentCreate = "continue_payment_creation"
	ToolCancelPaymentCreation = "cancel_payment_creation"
	ToolGetPaymentLinkStats   = "get_payment_link_stats"
)

const (
	contentText  = "text"
	contentImage = "image"
	sourceMCP    = "mcp"
)

// Tool describes a callable tool
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Content is one part of a tool result
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the answer to a tool call
type ToolResult struct {
	Content       []Content       `json:"content"`
	IsInteractive bool            `json:"isInteractive,omitempty"`
	NextStep      string          `json:"nextStep,omitempty"`
	SessionID     string          `json:"sessionId,omitempty"`
	Buttons       [][]flow.Button `json:"buttons,omitempty"`
}

// Text returns the first text content
func (r *ToolResult) Text() string {
	for _, c := range r.Content {
		if c.Type == contentText {
			return c.Text
		}
	}
	return ""
}

func textResult(text string) *ToolResult {
	return &ToolResult{Content: []Content{{Type: contentText, Text: text}}}
}

// Flow runs payment link creation sessions
type Flow interface {
	Active(ctx context.Context, userID int64) bool
	Start(ctx context.Context, userID, chatID int64, source string) (*flow.Reply, error)
	Handle(ctx context.Context, userID int64, input string) (*flow.Reply, error)
	Cancel(ctx context.Context, userID int64) (bool, error)
}

// Toolbox runs balance and statistics lookups
type Toolbox interface {
	CheckBalance(ctx context.Context, telegramID int64, tokens []string) *tools.Result
	GetPaymentLinkStats(telegramID int64, linkID string) *tools.Result
	GetAllPaymentLinksStats(telegramID int64) *tools.Result
}

// Service implements the tool API
type Service struct {
	flow  Flow
	tools Toolbox
	agent agent.Agent
	log   *slog.Logger
}

// NewService creates a new Service
func NewService(f Flow, tb Toolbox, a agent.Agent, log *slog.Logger) *Service {
	return &Service{
		flow:  f,
		tools: tb,
		agent: a,
		log:   log,
	}
}

// ListTools returns the available tools
func (s *Service) ListTools() []Tool {
	userOnly := json.RawMessage(`{
		"type": "object",
		"properties": {"userId": {"type": "string", "description": "The telegram user ID"}},
		"required": ["userId"]
	}`)

	return []Tool{
		{
			Name:        ToolGetWalletBalance,
			Description: "Get the wallet balance for a user including MNT, ETH and token balances",
			InputSchema: userOnly,
		},
		{
			Name:        ToolCreatePaymentLink,
			Description: "Start the interactive payment link creation process (like /payment command)",
			InputSchema: userOnly,
		},
		{
			Name:        ToolContinuePaymentCreate,
			Description: "Answer the current step of the payment link creation process",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"userId": {"type": "string", "description": "The telegram user ID"},
					"input": {"type": "string", "description": "The answer to the current step"}
				},
				"required": ["userId", "input"]
			}`),
		},
		{
			Name:        ToolCancelPaymentCreation,
			Description: "Cancel the current payment link creation process",
			InputSchema: userOnly,
		},
		{
			Name:        ToolGetPaymentLinkStats,
			Description: "Get statistics of one payment link, or of all links of the user when linkId is omitted",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"userId": {"type": "string", "description": "The telegram user ID"},
					"linkId": {"type": "string", "description": "8 character link ID"}
				},
				"required": ["userId"]
			}`),
		},
	}
}

// UserID accepts a Telegram user ID given as a JSON string or number
type UserID int64

func (u *UserID) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q: %w", raw, err)
	}
	*u = UserID(id)
	return nil
}

type callArgs struct {
	UserID UserID   `json:"userId"`
	Input  string   `json:"input"`
	LinkID string   `json:"linkId"`
	Tokens []string `json:"tokens"`
}

// CallTool runs a tool. Unknown tools and malformed arguments return a result
// describing the problem together with ErrUnknownTool or ErrBadArguments.
func (s *Service) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolResult, error) {
	var args callArgs
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return textResult("❌ Invalid arguments: " + err.Error()), fmt.Errorf("%w: %v", ErrBadArguments, err)
		}
	}
	if args.UserID == 0 {
		return textResult("❌ userId is required."), fmt.Errorf("%w: missing userId", ErrBadArguments)
	}
	id := int64(args.UserID)

	s.log.Info("mcp tool call", "tool", name, "user_id", id)

	switch name {
	case ToolGetWalletBalance:
		return fromTool(s.tools.CheckBalance(ctx, id, args.Tokens)), nil
	case ToolCreatePaymentLink:
		reply, err := s.flow.Start(ctx, id, id, sourceMCP)
		if err != nil {
			return nil, err
		}
		return fromReply(reply, id), nil
	case ToolContinuePaymentCreate:
		reply, err := s.flow.Handle(ctx, id, args.Input)
		if errors.Is(err, flow.ErrNoSession) {
			return textResult("❌ No active payment creation session. Please start with create_payment_link."), nil
		}
		if err != nil {
			return nil, err
		}
		return fromReply(reply, id), nil
	case ToolCancelPaymentCreation:
		return s.cancel(ctx, id)
	case ToolGetPaymentLinkStats:
		if args.LinkID == "" {
			return fromTool(s.tools.GetAllPaymentLinksStats(id)), nil
		}
		return fromTool(s.tools.GetPaymentLinkStats(id, args.LinkID)), nil
	default:
		return textResult("Unknown tool: " + name), fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func (s *Service) cancel(ctx context.Context, id int64) (*ToolResult, error) {
	cancelled, err := s.flow.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return textResult("❌ No active payment creation session to cancel."), nil
	}
	return textResult("❌ Payment link creation cancelled. You can start a new one anytime by saying \"create payment link\"."), nil
}

// ProcessNaturalLanguage answers a free-text message through the agent
func (s *Service) ProcessNaturalLanguage(ctx context.Context, message string, id int64) (string, error) {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "quit", "exit":
		if s.flow.Active(ctx, id) {
			res, err := s.cancel(ctx, id)
			if err != nil {
				return "", err
			}
			return res.Text(), nil
		}
	}

	resp := s.agent.Respond(ctx, agent.Request{Text: message, UserID: id, ChatID: id, Source: sourceMCP})
	return resp.Text, nil
}

func fromReply(r *flow.Reply, id int64) *ToolResult {
	res := textResult(r.Text)
	res.Buttons = r.Buttons
	if r.Interactive {
		res.IsInteractive = true
		res.NextStep = string(r.Step)
		res.SessionID = strconv.FormatInt(id, 10)
	}
	if r.Link != nil && r.Link.QRCodeURL != "" {
		res.Content = append(res.Content, Content{Type: contentImage, URL: r.Link.QRCodeURL, MimeType: "image/png"})
	}
	return res
}

func fromTool(r *tools.Result) *ToolResult {
	res := textResult(r.Text)
	res.Buttons = r.Buttons
	if r.PhotoURL != "" {
		res.Content = append(res.Content, Content{Type: contentImage, URL: r.PhotoURL, MimeType: "image/png"})
	}
	return res
}
