package logger

import "go.uber.org/zap"

// ConversationID tags an entry with the conversation it concerns.
func ConversationID(id string) zap.Field {
	return zap.String("conversation_id", id)
}

// AgentID tags an entry with a staff member.
func AgentID(id string) zap.Field {
	return zap.String("agent_id", id)
}

// CustomerID tags an entry with a customer.
func CustomerID(id string) zap.Field {
	return zap.String("customer_id", id)
}

// EventType tags an entry with a chat event type.
func EventType(t string) zap.Field {
	return zap.String("event_type", t)
}
