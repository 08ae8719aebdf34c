package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventConversationCreated EventType = "conversation_created"
	EventConversationUpdated EventType = "conversation_updated"
	EventConversationRemoved EventType = "conversation_removed"
	EventMessageAppended     EventType = "message_appended"
	EventTypingChanged       EventType = "typing_changed"
	EventAgentStatusChanged  EventType = "agent_status_changed"
)

// ChatEvent is emitted for every mutation of the engine's state.
type ChatEvent struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Type           EventType     `json:"type"`
	Conversation   *Conversation `json:"conversation,omitempty"`
	Message        *Message      `json:"message,omitempty"`
	Agent          *Agent        `json:"agent,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Sequence       uint64        `json:"sequence,omitempty"`
}
