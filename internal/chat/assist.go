package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/llm"
	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
	"github.com/capitalize-ai/livechat-engine/pkg/metrics"
	"github.com/capitalize-ai/livechat-engine/pkg/tracing"
)

// AssistMode selects what the assistant does for an agent.
type AssistMode string

const (
	AssistSummarize AssistMode = "summarize"
	AssistSuggest   AssistMode = "suggest"
	AssistImprove   AssistMode = "improve"
)

// ErrDraftRequired is returned when AssistImprove is asked for without a draft.
var ErrDraftRequired = errors.New("draft is required")

// ParseAssistMode parses an assistance mode.
func ParseAssistMode(s string) (AssistMode, bool) {
	switch m := AssistMode(s); m {
	case AssistSummarize, AssistSuggest, AssistImprove:
		return m, true
	}
	return "", false
}

var assistInstructions = map[AssistMode]string{
	AssistSummarize: "You help restaurant support agents. Summarize the conversation below in two or three sentences: what the customer wants and what has been done so far.",
	AssistSuggest:   "You help restaurant support agents. Write the next reply the agent should send to the customer. Return only the reply text.",
	AssistImprove:   "You help restaurant support agents. Rewrite the agent's draft reply so it is clear, friendly and accurate for this conversation. Return only the rewritten reply.",
}

// Assist asks the completion service to summarize the conversation, suggest
// a reply, or improve the agent's draft. Unknown ids yield an empty result.
func (e *Engine) Assist(ctx context.Context, id string, mode AssistMode, draft string) (string, error) {
	instruction, ok := assistInstructions[mode]
	if !ok {
		return "", fmt.Errorf("unknown assist mode %q", mode)
	}
	draft = strings.TrimSpace(draft)
	if mode == AssistImprove && draft == "" {
		return "", ErrDraftRequired
	}
	if e.llm == nil {
		return "", ErrAssistUnavailable
	}

	conv, ok := e.repo.Get(id)
	if !ok {
		return "", nil
	}

	prompt := transcript(conv)
	if mode == AssistImprove {
		prompt += "\n\nDraft reply:\n" + draft
	}

	ctx, span := tracing.Tracer().Start(ctx, "chat.assist",
		trace.WithAttributes(attribute.String("conversation_id", id), attribute.String("mode", string(mode))))
	defer span.End()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CompletionTimeout)
	defer cancel()

	resp, err := e.llm.Complete(callCtx, &llm.CompletionRequest{
		Model:    e.cfg.Model,
		System:   instruction,
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		metrics.RecordCompletion("assist", "error", time.Since(start).Seconds(), 0, 0)
		e.logger.Warn("assistance failed",
			logger.ConversationID(id),
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ErrAssistUnavailable, err)
	}
	metrics.RecordCompletion("assist", "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	// A stray handoff marker means nothing to an agent.
	text, _ := ParseHandoff(resp.Content, e.cfg.HandoffMarker)
	return text, nil
}

// transcript renders the whole conversation, internal notes included, for
// agent-facing assistance.
func transcript(c model.Conversation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation with %s (status: %s)\n\n", displayName(model.Sender{ID: c.CustomerID, DisplayName: c.CustomerName}), c.Status)
	for _, m := range c.Messages {
		var label string
		switch {
		case m.Sender.Role == model.RoleCustomer:
			label = "Customer"
		case m.Sender.Role == model.RoleSystem:
			label = "System"
		case !m.IsPublic():
			label = "Internal note (" + displayName(m.Sender) + ")"
		default:
			label = "Agent (" + displayName(m.Sender) + ")"
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, contentText(m.Content))
	}
	return sb.String()
}
