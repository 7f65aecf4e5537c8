package agent

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/obverse/mantle-bot/internal/intent"
	"github.com/obverse/mantle-bot/internal/metrics"
	"github.com/obverse/mantle-bot/internal/tracing"
)

// Rules answers messages by pattern-based intent classification
type Rules struct {
	flow   FlowEngine
	tools  Toolbox
	memory *Memory
	log    *slog.Logger
}

// NewRules creates a new rule-based agent
func NewRules(engine FlowEngine, tb Toolbox, memory *Memory, log *slog.Logger) *Rules {
	return &Rules{
		flow:   engine,
		tools:  tb,
		memory: memory,
		log:    log,
	}
}

// Respond answers one message. Failures are turned into a user-facing message.
func (a *Rules) Respond(ctx context.Context, req Request) (resp *Response) {
	ctx, span := tracing.Start(ctx, "agent.Respond",
		attribute.String("agent", "rules"),
		attribute.Int64("user_id", req.UserID),
	)

	lastAssistant := a.memory.LastAssistant(req.UserID)
	a.memory.Add(req.UserID, roleUser, req.Text)

	var (
		it  = intent.Unknown
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
			resp = &Response{Text: errorMessage(it), Intent: it}
		}
		if err != nil {
			a.log.Error("respond", "user_id", req.UserID, "intent", it, "error", err)
		}
		a.memory.Add(req.UserID, roleAssistant, resp.Text)
		metrics.MessagesTotal.WithLabelValues("rules", string(resp.Intent)).Inc()
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

	classified := intent.ClassifyWith(req.Text, lastAssistant, a.tools.HasPaymentLink)
	it = classified.Type
	a.log.Debug("classified message", "user_id", req.UserID, "intent", it, "confidence", classified.Confidence)

	resp, err = a.dispatch(ctx, req, classified)
	if err != nil {
		return &Response{Text: errorMessage(it), Intent: it}
	}
	return resp
}

func (a *Rules) dispatch(ctx context.Context, req Request, in intent.Intent) (*Response, error) {
	switch in.Type {
	case intent.Balance:
		var tokens []string
		if in.Entities.Token != "" {
			tokens = []string{in.Entities.Token}
		}
		return fromResult(a.tools.CheckBalance(ctx, req.UserID, tokens), in.Type), nil
	case intent.Send:
		return sendRequest(ctx, a.tools, req, in.Entities), nil
	case intent.PaymentLink:
		return startFlow(ctx, a.flow, req)
	case intent.Stats:
		if in.Entities.LinkID != "" {
			return fromResult(a.tools.GetPaymentLinkStats(req.UserID, in.Entities.LinkID), in.Type), nil
		}
		return fromResult(a.tools.GetAllPaymentLinksStats(req.UserID), in.Type), nil
	case intent.Help:
		return &Response{Text: helpText, Intent: in.Type}, nil
	case intent.Greeting:
		return &Response{Text: greetingText, Intent: in.Type}, nil
	default:
		return &Response{Text: unknownText(req.Text), Intent: intent.Unknown}, nil
	}
}
