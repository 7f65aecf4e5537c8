package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Models returns available models.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-haiku-20240307",
	}
}

// Complete sends a completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	turns := anthropicTurns(req)
	if len(turns) == 0 {
		return nil, errors.New("no messages to send")
	}

	messages := make([]anthropic.MessageParam, len(turns))
	for i, t := range turns {
		blocks, err := t.blocks()
		if err != nil {
			return nil, err
		}
		messages[i] = anthropic.MessageParam{
			Role:    anthropic.F(anthropic.MessageParamRole(t.Role)),
			Content: anthropic.F(blocks),
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.F(model),
		MaxTokens:   anthropic.F(int64(maxTokens)),
		Messages:    anthropic.F(messages),
		Temperature: anthropic.F(req.Temperature),
	}
	if len(req.Tools) > 0 {
		tools, err := toAnthropicTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = anthropic.F(tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	out := &CompletionResponse{
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.ContentBlockTypeText:
			out.Content += block.Text
		case anthropic.ContentBlockTypeToolUse:
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("tool %s input: %w", block.Name, err)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: string(args)})
		}
	}
	out.LatencyMs = time.Since(start).Milliseconds()
	return out, nil
}

func toAnthropicTools(tools []Tool) ([]anthropic.ToolParam, error) {
	out := make([]anthropic.ToolParam, len(tools))
	for i, t := range tools {
		schema := map[string]interface{}{"type": "object"}
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
			}
		}
		out[i] = anthropic.ToolParam{
			Name:        anthropic.F(t.Name),
			Description: anthropic.F(t.Description),
			InputSchema: anthropic.F[interface{}](schema),
		}
	}
	return out, nil
}

// turn is one Anthropic message before conversion to SDK blocks
type turn struct {
	Role  string
	Parts []part
}

// part is a text block, a tool_use block when Call is set, or a tool_result
// block answering ResultFor
type part struct {
	Text      string
	Call      *ToolCall
	ResultFor string
}

func (t turn) text() string {
	var texts []string
	for _, p := range t.Parts {
		if p.Call == nil && p.ResultFor == "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

func (t turn) blocks() ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.Parts))
	for _, p := range t.Parts {
		switch {
		case p.Call != nil:
			input := map[string]interface{}{}
			if p.Call.Arguments != "" {
				if err := json.Unmarshal([]byte(p.Call.Arguments), &input); err != nil {
					return nil, fmt.Errorf("tool %s arguments: %w", p.Call.Name, err)
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlockParam(p.Call.ID, p.Call.Name, input))
		case p.ResultFor != "":
			blocks = append(blocks, anthropic.NewToolResultBlock(p.ResultFor, p.Text, false))
		default:
			blocks = append(blocks, anthropic.TextBlockParam{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(p.Text),
			})
		}
	}
	return blocks, nil
}

// anthropicTurns folds the request into strictly alternating user/assistant turns
// starting with a user turn. The system prompt leads the first user turn. Tool
// results answering a known call become tool_result blocks, others plain user text.
func anthropicTurns(req *CompletionRequest) []turn {
	var turns []turn
	push := func(role string, parts ...part) {
		if len(parts) == 0 {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Parts = append(turns[n-1].Parts, parts...)
			return
		}
		turns = append(turns, turn{Role: role, Parts: parts})
	}

	calls := map[string]bool{}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleAssistant:
			if len(turns) == 0 {
				continue
			}
			var parts []part
			if msg.Content != "" {
				parts = append(parts, part{Text: msg.Content})
			}
			for i := range msg.ToolCalls {
				call := msg.ToolCalls[i]
				calls[call.ID] = true
				parts = append(parts, part{Call: &call})
			}
			push(RoleAssistant, parts...)
		case RoleTool:
			if msg.ToolCallID != "" && calls[msg.ToolCallID] {
				push(RoleUser, part{Text: msg.Content, ResultFor: msg.ToolCallID})
				continue
			}
			push(RoleUser, part{Text: "Tool result:\n" + msg.Content})
		default:
			if msg.Content != "" {
				push(RoleUser, part{Text: msg.Content})
			}
		}
	}

	if req.System != "" && len(turns) > 0 {
		turns[0].Parts = append([]part{{Text: strings.TrimSpace(req.System)}}, turns[0].Parts...)
	}
	return turns
}
