// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/obverse/mantle-bot/internal/metrics"
	"github.com/obverse/mantle-bot/internal/tracing"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a chat message sent to or received from a model.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool describes a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []Tool
	MaxTokens   int
	Temperature float64
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderAnthropic:
		c, err = NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		c, err = NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(c), nil
}

// Instrument wraps a client with metrics and tracing.
func Instrument(c Client) Client {
	if _, ok := c.(*instrumented); ok {
		return c
	}
	return &instrumented{Client: c}
}

type instrumented struct {
	Client
}

func (c *instrumented) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, span := tracing.Start(ctx, "llm.Complete",
		attribute.String("llm.provider", c.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.tools", len(req.Tools)),
	)

	start := time.Now()
	resp, err := c.Client.Complete(ctx, req)
	metrics.LLMRequestDuration.WithLabelValues(c.Name(), metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.LLMTokensTotal.WithLabelValues(resp.Model, "input").Add(float64(resp.TokensIn))
		metrics.LLMTokensTotal.WithLabelValues(resp.Model, "output").Add(float64(resp.TokensOut))
		span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.ToolCalls)))
	}

	tracing.End(span, err)
	return resp, err
}
