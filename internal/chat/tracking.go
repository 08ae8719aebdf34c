package chat

import (
	"context"
	"slices"
	"sync"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

// focusTracker remembers which conversation each agent is looking at and
// which conversations their customer currently has open.
type focusTracker struct {
	mu        sync.Mutex
	agents    map[string]string
	customers map[string]string
}

func newFocusTracker() *focusTracker {
	return &focusTracker{
		agents:    make(map[string]string),
		customers: make(map[string]string),
	}
}

func (f *focusTracker) agentFocus(agentID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[agentID]
}

func (f *focusTracker) setAgent(agentID, convID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[agentID] = convID
}

// clearAgent drops the agent's focus if it is still on convID.
func (f *focusTracker) clearAgent(agentID, convID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agents[agentID] == convID {
		delete(f.agents, agentID)
	}
}

func (f *focusTracker) customerFocused(convID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.customers[convID]
	return ok
}

func (f *focusTracker) setCustomer(convID, customerID string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.customers[convID] = customerID
	} else {
		delete(f.customers, convID)
	}
}

// forget removes every focus entry pointing at convID.
func (f *focusTracker) forget(convID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for agent, c := range f.agents {
		if c == convID {
			delete(f.agents, agent)
		}
	}
	delete(f.customers, convID)
}

// StartTyping raises the typing flag for role. A customer may also publish
// a live preview of the text being typed. Callers own the debounce and must
// call StopTyping after inactivity.
func (e *Engine) StartTyping(ctx context.Context, id string, role model.Role, preview string) bool {
	return e.setTyping(ctx, id, role, true, preview)
}

// StopTyping clears the typing flag for role.
func (e *Engine) StopTyping(ctx context.Context, id string, role model.Role) bool {
	return e.setTyping(ctx, id, role, false, "")
}

func (e *Engine) setTyping(ctx context.Context, id string, role model.Role, on bool, preview string) bool {
	if role != model.RoleCustomer && role != model.RoleAgent {
		return false
	}
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		if role == model.RoleAgent {
			c.Typing.AgentTyping = on
			return true
		}
		c.Typing.CustomerTyping = on
		c.Typing.CustomerPreview = nil
		if on && preview != "" {
			p := preview
			c.Typing.CustomerPreview = &p
		}
		return true
	})
	if !ok {
		return false
	}
	e.emit(ctx, model.EventTypingChanged, conv, nil)
	return true
}

// FocusAsAgent records that an agent is looking at the conversation: every
// public customer message is marked read, the unread count and the
// requires-human flag are cleared, and the agent joins the viewers. An agent
// focuses one conversation at a time; focusing another unfocuses the last.
func (e *Engine) FocusAsAgent(ctx context.Context, id, agentID string) bool {
	if agentID == "" {
		return false
	}
	if prev := e.focus.agentFocus(agentID); prev != "" && prev != id {
		e.UnfocusAsAgent(ctx, prev, agentID)
	}

	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		for i := range c.Messages {
			m := &c.Messages[i]
			if m.IsPublic() && m.Sender.Role == model.RoleCustomer {
				m.Read = true
			}
		}
		c.UnreadCount = 0
		c.RequiresHuman = false
		if !slices.Contains(c.ViewingAgents, agentID) {
			c.ViewingAgents = append(c.ViewingAgents, agentID)
		}
		return true
	})
	if !ok {
		return false
	}
	e.focus.setAgent(agentID, id)
	e.commit(ctx, conv, model.EventConversationUpdated, nil)
	return true
}

// UnfocusAsAgent removes the agent from the conversation's viewers.
func (e *Engine) UnfocusAsAgent(ctx context.Context, id, agentID string) bool {
	e.focus.clearAgent(agentID, id)
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		n := len(c.ViewingAgents)
		c.ViewingAgents = slices.DeleteFunc(c.ViewingAgents, func(a string) bool { return a == agentID })
		return len(c.ViewingAgents) != n
	})
	if !ok {
		return false
	}
	e.commit(ctx, conv, model.EventConversationUpdated, nil)
	return true
}

// FocusAsCustomer records that the owning customer is looking at the
// conversation and marks every public agent message read. Other customers
// are ignored.
func (e *Engine) FocusAsCustomer(ctx context.Context, id, customerID string) bool {
	current, ok := e.repo.Get(id)
	if !ok || current.CustomerID != customerID {
		return false
	}
	e.focus.setCustomer(id, customerID, true)

	conv, changed := e.repo.Update(id, func(c *model.Conversation) bool {
		if c.CustomerID != customerID {
			return false
		}
		marked := false
		for i := range c.Messages {
			m := &c.Messages[i]
			if m.IsPublic() && m.Sender.Role == model.RoleAgent && !m.Read {
				m.Read = true
				marked = true
			}
		}
		return marked
	})
	if changed {
		e.commit(ctx, conv, model.EventConversationUpdated, nil)
	}
	return true
}

// UnfocusAsCustomer records that the customer left the conversation.
func (e *Engine) UnfocusAsCustomer(id, customerID string) {
	if current, ok := e.repo.Get(id); ok && current.CustomerID != customerID {
		return
	}
	e.focus.setCustomer(id, customerID, false)
}

// CustomerUnreadBadge counts unread public agent messages across every
// conversation of the customer.
func (e *Engine) CustomerUnreadBadge(customerID string) int {
	return CustomerUnread(e.repo.Snapshot(), customerID)
}

// AttentionRequired counts open conversations waiting for a human.
func (e *Engine) AttentionRequired() int {
	return AttentionCount(e.repo.Snapshot())
}

// CustomerUnread counts unread public agent messages in the customer's
// conversations.
func CustomerUnread(convs []model.Conversation, customerID string) int {
	n := 0
	for _, c := range convs {
		if c.CustomerID != customerID {
			continue
		}
		for _, m := range c.Messages {
			if m.IsPublic() && m.Sender.Role == model.RoleAgent && !m.Read {
				n++
			}
		}
	}
	return n
}

// AttentionCount counts open conversations with requiresHuman set.
func AttentionCount(convs []model.Conversation) int {
	n := 0
	for _, c := range convs {
		if c.Status == model.StatusOpen && c.RequiresHuman {
			n++
		}
	}
	return n
}
