package chat

import (
	"context"
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

const handoffNote = "The assistant has handed this conversation to a human agent"

// BuildTurns formats the public, non-system history of a conversation as
// completion turns: customer messages become user turns and agent messages
// model turns.
func BuildTurns(messages []model.Message) []llm.ChatMessage {
	turns := make([]llm.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if !m.IsPublic() {
			continue
		}
		var role string
		switch m.Sender.Role {
		case model.RoleCustomer:
			role = llm.RoleUser
		case model.RoleAgent:
			role = llm.RoleModel
		default:
			continue
		}
		turns = append(turns, llm.ChatMessage{Role: role, Content: contentText(m.Content)})
	}
	return turns
}

func contentText(c model.Content) string {
	var attachment string
	if c.Attachment != nil {
		name := c.Attachment.Name
		if name == "" {
			name = c.Attachment.URL
		}
		attachment = "[Attachment: " + name + "]"
	}
	switch c.Kind {
	case model.ContentAttachment:
		return attachment
	case model.ContentTextWithAttachment:
		return c.Text + "\n" + attachment
	default:
		return c.Text
	}
}

// ParseHandoff strips every occurrence of marker from reply and reports
// whether one was present.
func ParseHandoff(reply, marker string) (string, bool) {
	if marker == "" || !strings.Contains(reply, marker) {
		return strings.TrimSpace(reply), false
	}
	stripped := strings.ReplaceAll(reply, marker, "")
	return strings.Join(strings.Fields(stripped), " "), true
}

// requestReply asks the assistant to answer the conversation in the
// background.
func (e *Engine) requestReply(id string) {
	if e.llm == nil || !e.track() {
		return
	}

	go func() {
		defer e.wg.Done()
		e.respond(e.ctx, id)
	}()
}

// respond runs one assistant turn. The conversation may be closed, merged or
// taken over while the completion call is in flight, so the result is
// applied to whatever the conversation is now: a reply for a merged-away
// conversation goes to the conversation that absorbed it, and a reply for a
// closed or removed one is dropped.
func (e *Engine) respond(ctx context.Context, id string) {
	conv, ok := e.repo.Get(id)
	if !ok {
		return
	}
	turns := BuildTurns(conv.Messages)
	if len(turns) == 0 {
		return
	}
	log := e.logger.ForConversation(id)

	ctx, span := tracing.Tracer().Start(ctx, "chat.assistant_reply",
		trace.WithAttributes(attribute.String("conversation_id", id), attribute.Int("turns", len(turns))))
	defer span.End()

	e.setAgentTyping(ctx, id, true)

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CompletionTimeout)
	resp, err := e.llm.Complete(callCtx, &llm.CompletionRequest{
		Model:    e.cfg.Model,
		System:   e.cfg.SystemInstruction,
		Messages: turns,
	})
	cancel()
	elapsed := time.Since(start).Seconds()

	target, alive := e.resolve(id)
	e.setAgentTyping(ctx, id, false)
	if target != id {
		e.setAgentTyping(ctx, target, false)
	}

	if e.ctx.Err() != nil {
		// Engine shut down mid-call.
		return
	}
	if !alive {
		metrics.DroppedRepliesTotal.Inc()
		log.Info("assistant reply dropped, conversation closed or removed")
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		metrics.RecordCompletion("reply", "error", elapsed, 0, 0)
		log.Warn("completion failed, sending fallback reply", zap.Error(err))
		e.deliverReply(ctx, target, e.cfg.FallbackReply, false)
		return
	}

	metrics.RecordCompletion("reply", "ok", elapsed, resp.TokensIn, resp.TokensOut)
	text, handoff := ParseHandoff(resp.Content, e.cfg.HandoffMarker)
	span.SetAttributes(attribute.Bool("handoff", handoff))
	e.deliverReply(ctx, target, text, handoff)
}

// deliverReply appends the assistant's reply, flagging the conversation for
// a human first when the assistant asked for a handoff.
func (e *Engine) deliverReply(ctx context.Context, id, text string, handoff bool) {
	customerFocused := e.focus.customerFocused(id)
	var reply *model.Message

	conv, ok := e.repo.UpdateToFront(id, func(c *model.Conversation) bool {
		if c.Status != model.StatusOpen {
			return false
		}
		if handoff {
			c.RequiresHuman = true
			c.UnreadCount++
			c.Messages = append(c.Messages, e.systemMessage(c.ID, handoffNote))
		}
		if text != "" {
			m := e.newMessage(c.ID, e.assistantSender(), model.TextContent(text), model.VisibilityPublic)
			m.Read = customerFocused
			c.Messages = append(c.Messages, m)
			reply = &m
		}
		return handoff || reply != nil
	})
	if !ok {
		metrics.DroppedRepliesTotal.Inc()
		return
	}

	if handoff {
		metrics.HandoffsTotal.Inc()
		e.logger.Info("conversation handed off to a human", logger.ConversationID(id))
	}
	if reply != nil {
		metrics.MessagesTotal.WithLabelValues(string(model.RoleAgent), string(model.VisibilityPublic)).Inc()
	}

	msg := reply
	if msg == nil {
		msg = lastMessage(conv)
	}
	e.commit(ctx, conv, model.EventMessageAppended, msg)

	if reply != nil && !customerFocused {
		e.notify(ctx, &Notification{
			ConversationID: id,
			RecipientID:    conv.CustomerID,
			RecipientRole:  model.RoleCustomer,
			Message:        *reply,
		})
	}
}

// resolve follows merges from id to the conversation that now hosts it and
// reports whether that conversation is still open.
func (e *Engine) resolve(id string) (string, bool) {
	target := e.mergeTarget(id)
	conv, ok := e.repo.Get(target)
	if !ok || conv.Status != model.StatusOpen {
		return target, false
	}
	return target, true
}

func (e *Engine) setAgentTyping(ctx context.Context, id string, on bool) {
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		if c.Typing.AgentTyping == on {
			return false
		}
		c.Typing.AgentTyping = on
		return true
	})
	if ok {
		e.emit(ctx, model.EventTypingChanged, conv, nil)
	}
}
