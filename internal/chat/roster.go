package chat

import (
	"sync"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

// Roster tracks agents in registration order together with their presence.
type Roster struct {
	mu     sync.RWMutex
	order  []string
	agents map[string]model.Agent
}

// NewRoster creates a roster from seed agents. Seed agents without an
// explicit status start online.
func NewRoster(seed ...model.Agent) *Roster {
	r := &Roster{agents: make(map[string]model.Agent)}
	for _, a := range seed {
		if !a.Status.Valid() {
			a.Status = model.PresenceOnline
		}
		r.put(a)
	}
	return r
}

// Register adds or updates an agent. New agents without a status start
// offline; an existing agent keeps its current presence.
func (r *Roster) Register(a model.Agent) model.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.agents[a.ID]; ok && !a.Status.Valid() {
		a.Status = prev.Status
	}
	if !a.Status.Valid() {
		a.Status = model.PresenceOffline
	}
	r.putLocked(a)
	return a
}

func (r *Roster) put(a model.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putLocked(a)
}

func (r *Roster) putLocked(a model.Agent) {
	if _, ok := r.agents[a.ID]; !ok {
		r.order = append(r.order, a.ID)
	}
	r.agents[a.ID] = a
}

// SetStatus changes an agent's presence. Unknown agents are ignored.
func (r *Roster) SetStatus(id string, status model.PresenceStatus) (model.Agent, bool) {
	if !status.Valid() {
		return model.Agent{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return model.Agent{}, false
	}
	a.Status = status
	r.agents[id] = a
	return a, true
}

// Get returns the agent with the given id.
func (r *Roster) Get(id string) (model.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// List returns all agents in registration order.
func (r *Roster) List() []model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// FirstAvailable returns the first online agent, in registration order,
// whose role takes customer chats.
func (r *Roster) FirstAvailable() (model.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		a := r.agents[id]
		if a.Status == model.PresenceOnline && a.CanTakeChats() {
			return a, true
		}
	}
	return model.Agent{}, false
}

// nameOf returns the agent's display name, or the id when unknown.
func (r *Roster) nameOf(id string) string {
	if a, ok := r.Get(id); ok && a.Name != "" {
		return a.Name
	}
	return id
}
