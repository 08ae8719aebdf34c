package model

// Analytics is a snapshot derived from the full conversation set.
type Analytics struct {
	TotalChats               int                `json:"total_chats"`
	AverageSatisfaction      *float64           `json:"average_satisfaction"`
	SatisfactionDistribution []RatingBucket     `json:"satisfaction_distribution"`
	AverageFirstResponseTime *float64           `json:"average_first_response_time"`
	AverageChatDuration      *float64           `json:"average_chat_duration"`
	AgentPerformance         []AgentPerformance `json:"agent_performance"`
}

// RatingBucket counts rated conversations for one star value.
type RatingBucket struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

// AgentPerformance summarises the closed conversations of one assignee.
type AgentPerformance struct {
	AgentID             string   `json:"agent_id"`
	Handled             int      `json:"handled"`
	AverageSatisfaction *float64 `json:"average_satisfaction"`
}

// AttentionResponse is the agent-facing attention counter.
type AttentionResponse struct {
	AttentionRequired int `json:"attention_required"`
}

// UnreadResponse is the customer-facing unread badge.
type UnreadResponse struct {
	Unread int `json:"unread"`
}
