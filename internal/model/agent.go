package model

// AgentRole is the staff role of an agent.
type AgentRole string

const (
	AgentRoleSupport AgentRole = "support"
	AgentRoleAdmin   AgentRole = "admin"
)

// PresenceStatus is an agent's availability.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// Valid reports whether s is a known presence status.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

// Agent is a staff member that can be assigned conversations.
type Agent struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Role   AgentRole      `json:"role"`
	Status PresenceStatus `json:"status"`
}

// CanTakeChats reports whether the agent's role handles customer chats.
func (a Agent) CanTakeChats() bool {
	return a.Role == AgentRoleSupport || a.Role == AgentRoleAdmin
}

// SetAgentStatusRequest changes an agent's presence.
type SetAgentStatusRequest struct {
	Status PresenceStatus `json:"status"`
}
