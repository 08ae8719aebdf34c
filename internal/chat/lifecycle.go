package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
	"github.com/capitalize-ai/livechat-engine/pkg/metrics"
)

// Create starts a conversation for a customer with its first message.
//
// Outside operating hours an automated system message is appended and the
// conversation is flagged for a human without consulting the assistant.
// Invalid content is skipped and reported with ok=false.
func (e *Engine) Create(ctx context.Context, customerID, customerName string, content model.Content, metadata map[string]string) (model.Conversation, bool) {
	if !content.Valid() || customerID == "" {
		return model.Conversation{}, false
	}

	now := e.now()
	id := uuid.Must(uuid.NewV7()).String()
	customer := model.Sender{ID: customerID, DisplayName: customerName, Role: model.RoleCustomer}

	conv := model.Conversation{
		ID:            id,
		CustomerID:    customerID,
		CustomerName:  customerName,
		Status:        model.StatusOpen,
		Tags:          []string{},
		ViewingAgents: []string{},
		Messages:      []model.Message{e.newMessage(id, customer, content, model.VisibilityPublic)},
		UnreadCount:   1,
		CreatedAt:     now,
	}
	if len(metadata) > 0 {
		conv.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			conv.Metadata[k] = v
		}
	}

	hours := "open"
	if !e.withinHours(now) {
		hours = "closed"
		conv.Messages = append(conv.Messages, e.systemMessage(id, e.cfg.OffHoursReply))
		conv.RequiresHuman = true
	}

	e.repo.Insert(conv)
	metrics.ConversationsTotal.WithLabelValues(hours).Inc()
	metrics.MessagesTotal.WithLabelValues(string(model.RoleCustomer), string(model.VisibilityPublic)).Inc()
	e.logger.Info("conversation created",
		logger.ConversationID(id),
		logger.CustomerID(customerID),
		zap.Bool("requires_human", conv.RequiresHuman),
	)

	e.commit(ctx, conv, model.EventConversationCreated, &conv.Messages[0])

	if !conv.RequiresHuman {
		e.requestReply(id)
	}
	return conv.Clone(), true
}

// CreateInbound starts a conversation delivered by a webhook or simulator.
// The source is recorded in the metadata snapshot.
func (e *Engine) CreateInbound(ctx context.Context, source, customerID, customerName string, content model.Content, metadata map[string]string) (model.Conversation, bool) {
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if source == "" {
		source = "webhook"
	}
	meta["source"] = source
	return e.Create(ctx, customerID, customerName, content, meta)
}

// Send appends a customer or agent message.
//
// Customer messages are always public. A public agent message clears
// requiresHuman and, the first time, records the first response time.
// A customer message into an open conversation that does not require a
// human is answered by the assistant.
func (e *Engine) Send(ctx context.Context, id string, sender model.Sender, content model.Content, vis model.Visibility) (model.Message, bool) {
	if !content.Valid() {
		return model.Message{}, false
	}
	switch sender.Role {
	case model.RoleCustomer:
		vis = model.VisibilityPublic
	case model.RoleAgent:
		if vis != model.VisibilityInternal {
			vis = model.VisibilityPublic
		}
	default:
		return model.Message{}, false
	}

	customerFocused := e.focus.customerFocused(id)
	var msg model.Message

	conv, ok := e.repo.UpdateToFront(id, func(c *model.Conversation) bool {
		// Stamped under the repository lock so the log stays in time order.
		msg = e.newMessage(id, sender, content, vis)
		switch {
		case sender.Role == model.RoleCustomer:
			msg.Read = len(c.ViewingAgents) > 0
			if !msg.Read {
				c.UnreadCount++
			}
			c.Typing.CustomerTyping = false
			c.Typing.CustomerPreview = nil
		case vis == model.VisibilityPublic:
			msg.Read = customerFocused
			c.RequiresHuman = false
			if c.FirstResponseTime == nil {
				if first, ok := c.FirstMessageTime(); ok {
					secs := msg.Timestamp.Sub(first).Seconds()
					c.FirstResponseTime = &secs
				}
			}
		default:
			msg.Read = true
		}
		c.Messages = append(c.Messages, msg)
		return true
	})
	if !ok {
		return model.Message{}, false
	}

	metrics.MessagesTotal.WithLabelValues(string(sender.Role), string(vis)).Inc()
	e.commit(ctx, conv, model.EventMessageAppended, &msg)

	switch {
	case sender.Role == model.RoleCustomer:
		if len(conv.ViewingAgents) == 0 && conv.AssigneeID != "" {
			e.notify(ctx, &Notification{
				ConversationID: id,
				RecipientID:    conv.AssigneeID,
				RecipientRole:  model.RoleAgent,
				Message:        msg,
			})
		}
		if conv.Status == model.StatusOpen && !conv.RequiresHuman {
			e.requestReply(id)
		}
	case vis == model.VisibilityPublic && !customerFocused:
		e.notify(ctx, &Notification{
			ConversationID: id,
			RecipientID:    conv.CustomerID,
			RecipientRole:  model.RoleCustomer,
			Message:        msg,
		})
	}
	return msg, true
}

// Close moves an open or snoozed conversation to closed, records its
// duration, appends a note naming the closer and clears the unread count.
// Closing an already-closed conversation is a no-op.
func (e *Engine) Close(ctx context.Context, id string, closer model.Sender) bool {
	now := e.now()
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		if c.Status == model.StatusClosed {
			return false
		}
		c.Status = model.StatusClosed
		c.SnoozedUntil = nil
		c.UnreadCount = 0
		c.Typing = model.Typing{}
		if first, ok := c.FirstMessageTime(); ok {
			secs := now.Sub(first).Seconds()
			c.Duration = &secs
		}
		c.Messages = append(c.Messages, e.systemMessage(c.ID, "Conversation closed by "+displayName(closer)))
		return true
	})
	if !ok {
		return false
	}

	metrics.RecordTransition("close")
	e.logger.Info("conversation closed",
		logger.ConversationID(id),
		zap.String("closed_by", closer.ID),
	)
	e.commit(ctx, conv, model.EventConversationUpdated, lastMessage(conv))
	return true
}

// Reopen moves a closed conversation back to open, flags it for a human and
// moves it to the front. Reopening an open conversation is a no-op.
func (e *Engine) Reopen(ctx context.Context, id string, by model.Sender) bool {
	conv, ok := e.repo.UpdateToFront(id, func(c *model.Conversation) bool {
		if c.Status != model.StatusClosed {
			return false
		}
		c.Status = model.StatusOpen
		c.UnreadCount = 1
		c.RequiresHuman = true
		c.Messages = append(c.Messages, e.systemMessage(c.ID, "Conversation reopened by "+displayName(by)))
		return true
	})
	if !ok {
		return false
	}

	metrics.RecordTransition("reopen")
	e.commit(ctx, conv, model.EventConversationUpdated, lastMessage(conv))
	return true
}

// Snooze hides an open, active conversation until the given time. If the
// caller is an agent focused on it, that focus is dropped immediately.
// Snoozing a closed or already snoozed conversation, or into the past, is a
// no-op.
func (e *Engine) Snooze(ctx context.Context, id string, until time.Time, by model.Sender) bool {
	if !until.After(e.now()) {
		return false
	}

	dropFocus := by.Role == model.RoleAgent && e.focus.agentFocus(by.ID) == id
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		if c.Status != model.StatusOpen || c.SnoozedUntil != nil {
			return false
		}
		t := until
		c.SnoozedUntil = &t
		if dropFocus {
			c.ViewingAgents = slices.DeleteFunc(c.ViewingAgents, func(a string) bool { return a == by.ID })
		}
		c.Messages = append(c.Messages, e.systemMessage(c.ID,
			fmt.Sprintf("Conversation snoozed by %s until %s", displayName(by), until.UTC().Format(time.RFC1123))))
		return true
	})
	if !ok {
		return false
	}
	if dropFocus {
		e.focus.clearAgent(by.ID, id)
	}

	metrics.RecordTransition("snooze")
	e.commit(ctx, conv, model.EventConversationUpdated, lastMessage(conv))
	return true
}

// Unsnooze returns a snoozed conversation to the active queues. It is driven
// by the sweep; a conversation that is not snoozed is left alone.
func (e *Engine) Unsnooze(ctx context.Context, id string) bool {
	conv, ok := e.repo.UpdateToFront(id, func(c *model.Conversation) bool {
		if !c.IsSnoozed() {
			return false
		}
		c.SnoozedUntil = nil
		c.Messages = append(c.Messages, e.systemMessage(c.ID, "Snooze ended"))
		return true
	})
	if !ok {
		return false
	}

	metrics.RecordTransition("unsnooze")
	e.commit(ctx, conv, model.EventConversationUpdated, lastMessage(conv))
	return true
}

// SweepSnoozes wakes every snoozed conversation whose snooze has expired and
// returns how many were woken.
func (e *Engine) SweepSnoozes(ctx context.Context) int {
	now := e.now()
	woken := 0
	open := 0
	for _, c := range e.repo.Snapshot() {
		if c.Status == model.StatusOpen {
			open++
		}
		if !c.IsSnoozed() || c.SnoozedUntil.After(now) {
			continue
		}
		// Unsnooze re-checks against the current state.
		if e.Unsnooze(ctx, c.ID) {
			woken++
		}
	}
	metrics.ConversationsOpen.Set(float64(open))
	if woken > 0 {
		e.logger.Debug("snoozes expired", zap.Int("count", woken))
	}
	return woken
}

// Rate records a satisfaction rating. Ratings outside 1..5 are skipped.
func (e *Engine) Rate(ctx context.Context, id string, rating int, comment string) bool {
	if rating < 1 || rating > 5 {
		return false
	}
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		c.CSAT = &model.CSAT{Rating: rating, Comment: strings.TrimSpace(comment)}
		return true
	})
	if !ok {
		return false
	}
	e.commit(ctx, conv, model.EventConversationUpdated, nil)
	return true
}

// AddTag adds a tag. Tags are a sorted set; blank tags are ignored.
func (e *Engine) AddTag(ctx context.Context, id, tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		i, found := slices.BinarySearch(c.Tags, tag)
		if found {
			return false
		}
		c.Tags = slices.Insert(c.Tags, i, tag)
		return true
	})
	if !ok {
		return false
	}
	e.commit(ctx, conv, model.EventConversationUpdated, nil)
	return true
}

// RemoveTag removes a tag if present.
func (e *Engine) RemoveTag(ctx context.Context, id, tag string) bool {
	tag = strings.TrimSpace(tag)
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		i, found := slices.BinarySearch(c.Tags, tag)
		if !found {
			return false
		}
		c.Tags = slices.Delete(c.Tags, i, i+1)
		return true
	})
	if !ok {
		return false
	}
	e.commit(ctx, conv, model.EventConversationUpdated, nil)
	return true
}
