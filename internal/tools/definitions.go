package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/obverse/mantle-bot/internal/llm"
)

// Tool names offered to models
const (
	ToolCheckBalance     = "check_balance"
	ToolCreatePayment    = "create_payment_link"
	ToolLinkStats        = "get_payment_link_stats"
	ToolAllLinksStats    = "get_all_payment_links_stats"
	ToolFindPaymentLinks = "find_payment_links"
)

// Definitions returns the tools a model may call. There is no transfer tool;
// transfers go through /send and its confirmation step.
func Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        ToolCheckBalance,
			Description: "Check the user's Mantle wallet balances. Optionally restrict to token symbols.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"tokens": {"type": "array", "items": {"type": "string", "enum": ["MNT", "ETH", "USDC", "USDT", "DAI"]}}
				}
			}`),
		},
		{
			Name:        ToolCreatePayment,
			Description: "Create a shareable payment link that collects a fixed amount of a stablecoin.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Title shown to payers, at most 100 characters"},
					"token": {"type": "string", "enum": ["USDC", "USDT", "DAI"]},
					"amount": {"type": "string", "description": "Positive decimal amount"},
					"details": {"type": "array", "items": {"type": "string"}, "description": "Fields to collect from payers, e.g. email"}
				},
				"required": ["name", "token", "amount"]
			}`),
		},
		{
			Name:        ToolLinkStats,
			Description: "Get views, payments and revenue of one of the user's payment links.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"link_id": {"type": "string", "description": "8 character link ID"}},
				"required": ["link_id"]
			}`),
		},
		{
			Name:        ToolAllLinksStats,
			Description: "Summarize all payment links of the user with totals and top links.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		{
			Name:        ToolFindPaymentLinks,
			Description: "Find the user's payment links whose name contains the given text.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"name": {"type": "string"}},
				"required": ["name"]
			}`),
		},
	}
}

type callArgs struct {
	Tokens  []string `json:"tokens"`
	Name    string   `json:"name"`
	Token   string   `json:"token"`
	Amount  string   `json:"amount"`
	Details []string `json:"details"`
	LinkID  string   `json:"link_id"`
}

// Call runs a tool by name with JSON arguments on behalf of a user
func (t *Tools) Call(ctx context.Context, name, arguments string, telegramID, chatID int64) (*Result, error) {
	var args callArgs
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", name, err)
		}
	}

	switch name {
	case ToolCheckBalance:
		return t.CheckBalance(ctx, telegramID, args.Tokens), nil
	case ToolCreatePayment:
		return t.CreatePaymentLink(ctx, telegramID, chatID, LinkParams{
			Name:    args.Name,
			Token:   args.Token,
			Amount:  args.Amount,
			Details: args.Details,
		}, "agent"), nil
	case ToolLinkStats:
		return t.GetPaymentLinkStats(telegramID, args.LinkID), nil
	case ToolAllLinksStats:
		return t.GetAllPaymentLinksStats(telegramID), nil
	case ToolFindPaymentLinks:
		return t.FindPaymentLinks(telegramID, args.Name), nil
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

// JSON renders a result for a model: the data payload when present, else the text
func (r *Result) JSON() string {
	payload := map[string]interface{}{"success": r.OK}
	if r.Data != nil {
		payload["data"] = r.Data
	} else {
		payload["message"] = r.Text
	}
	if !r.OK {
		payload["error"] = r.Text
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(b)
}
