// Package model defines data structures for the live-chat engine.
package model

import (
	"slices"
	"time"
)

// Status is the coarse lifecycle state of a conversation.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Typing holds the transient typing/preview flags of a conversation.
type Typing struct {
	CustomerTyping  bool    `json:"customer_typing"`
	AgentTyping     bool    `json:"agent_typing"`
	CustomerPreview *string `json:"customer_preview,omitempty"`
}

// CSAT is a customer satisfaction rating.
type CSAT struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Conversation represents a customer support thread.
type Conversation struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`

	Status        Status     `json:"status"`
	SnoozedUntil  *time.Time `json:"snoozed_until,omitempty"`
	AssigneeID    string     `json:"assignee_id,omitempty"`
	RequiresHuman bool       `json:"requires_human"`

	Tags          []string `json:"tags"`
	ViewingAgents []string `json:"viewing_agents"`
	Typing        Typing   `json:"typing"`

	Messages    []Message `json:"messages"`
	UnreadCount int       `json:"unread_count"`

	CSAT              *CSAT    `json:"csat,omitempty"`
	FirstResponseTime *float64 `json:"first_response_time,omitempty"`
	Duration          *float64 `json:"duration,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	if c.SnoozedUntil != nil {
		t := *c.SnoozedUntil
		out.SnoozedUntil = &t
	}
	if c.Typing.CustomerPreview != nil {
		p := *c.Typing.CustomerPreview
		out.Typing.CustomerPreview = &p
	}
	if c.CSAT != nil {
		csat := *c.CSAT
		out.CSAT = &csat
	}
	if c.FirstResponseTime != nil {
		v := *c.FirstResponseTime
		out.FirstResponseTime = &v
	}
	if c.Duration != nil {
		v := *c.Duration
		out.Duration = &v
	}
	out.Tags = slices.Clone(c.Tags)
	out.ViewingAgents = slices.Clone(c.ViewingAgents)
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// IsSnoozed reports whether the conversation is open with a pending snooze.
func (c Conversation) IsSnoozed() bool {
	return c.Status == StatusOpen && c.SnoozedUntil != nil
}

// LastActivity returns the timestamp of the newest message, falling back to
// the creation time for an empty conversation.
func (c Conversation) LastActivity() time.Time {
	last := c.CreatedAt
	for _, m := range c.Messages {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return last
}

// FirstMessageTime returns the timestamp of the first message.
func (c Conversation) FirstMessageTime() (time.Time, bool) {
	if len(c.Messages) == 0 {
		return time.Time{}, false
	}
	return c.Messages[0].Timestamp, true
}

// HasViewer reports whether agentID is focused on the conversation.
func (c Conversation) HasViewer(agentID string) bool {
	return slices.Contains(c.ViewingAgents, agentID)
}

// CreateConversationRequest is the request to start a conversation.
type CreateConversationRequest struct {
	CustomerName string            `json:"customer_name"`
	Text         string            `json:"text"`
	Attachment   *Attachment       `json:"attachment,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	View          string         `json:"view,omitempty"`
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// AssignRequest sets or clears the assignee. An empty AgentID clears it.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// SnoozeRequest snoozes a conversation until a point in time.
type SnoozeRequest struct {
	Until time.Time `json:"until"`
}

// RateRequest records a satisfaction rating.
type RateRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// MergeRequest absorbs the secondary conversation into the addressed one.
type MergeRequest struct {
	SecondaryID string `json:"secondary_id"`
}

// TagRequest adds a tag.
type TagRequest struct {
	Tag string `json:"tag"`
}

// TypingRequest starts typing, optionally with a live preview.
type TypingRequest struct {
	Preview string `json:"preview,omitempty"`
}

// InboundRequest starts a conversation on behalf of a customer, as delivered
// by a webhook or a simulator.
type InboundRequest struct {
	Source       string            `json:"source,omitempty"`
	CustomerID   string            `json:"customer_id"`
	CustomerName string            `json:"customer_name"`
	Text         string            `json:"text"`
	Attachment   *Attachment       `json:"attachment,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ForCustomer returns a copy without internal notes, suitable for the
// customer the conversation belongs to.
func (c Conversation) ForCustomer() Conversation {
	out := c.Clone()
	out.Messages = out.Messages[:0]
	for _, m := range c.Messages {
		if m.IsPublic() {
			out.Messages = append(out.Messages, m.Clone())
		}
	}
	return out
}
