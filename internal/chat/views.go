package chat

import (
	"sort"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

// View names a filtered conversation list.
type View string

const (
	ViewAll        View = "all"
	ViewMine       View = "mine"
	ViewUnassigned View = "unassigned"
	ViewClosed     View = "closed"
	ViewSnoozed    View = "snoozed"
)

// ParseView parses a view name. An empty name means ViewAll.
func ParseView(s string) (View, bool) {
	switch v := View(s); v {
	case "":
		return ViewAll, true
	case ViewAll, ViewMine, ViewUnassigned, ViewClosed, ViewSnoozed:
		return v, true
	}
	return "", false
}

// FilterConversations returns the conversations in view, newest activity
// first. Snoozed conversations only appear in ViewSnoozed.
func FilterConversations(convs []model.Conversation, view View, agentID string) []model.Conversation {
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if inView(c, view, agentID) {
			out = append(out, c)
		}
	}
	sortByActivity(out)
	return out
}

func inView(c model.Conversation, view View, agentID string) bool {
	active := c.Status == model.StatusOpen && c.SnoozedUntil == nil
	switch view {
	case ViewAll:
		return active
	case ViewMine:
		return active && agentID != "" && c.AssigneeID == agentID
	case ViewUnassigned:
		return active && c.AssigneeID == ""
	case ViewClosed:
		return c.Status == model.StatusClosed
	case ViewSnoozed:
		return c.IsSnoozed()
	}
	return false
}

func sortByActivity(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastActivity().After(convs[j].LastActivity())
	})
}

// List returns a filtered view for an agent.
func (e *Engine) List(view View, agentID string) []model.Conversation {
	return FilterConversations(e.repo.Snapshot(), view, agentID)
}

// ConversationsForCustomer returns every conversation of the customer,
// newest activity first.
func (e *Engine) ConversationsForCustomer(customerID string) []model.Conversation {
	var out []model.Conversation
	for _, c := range e.repo.Snapshot() {
		if c.CustomerID == customerID {
			out = append(out, c)
		}
	}
	sortByActivity(out)
	return out
}
