package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
	"github.com/capitalize-ai/livechat-engine/pkg/metrics"
)

// Router auto-assigns conversations that need a human to an available agent.
//
// Whenever the conversation set changes, the router looks for open,
// unassigned conversations that require a human. If there are any and an
// agent is online, it schedules an assignment after the settle delay. When
// the timer fires every scheduled conversation is re-read by id and only
// assigned if it still qualifies, so a manual assignment made during the
// delay always wins.
type Router struct {
	e *Engine

	mu      sync.Mutex
	pending Timer
	stopped bool
}

func newRouter(e *Engine) *Router {
	return &Router{e: e}
}

// Evaluate schedules an assignment pass if one is needed and none is pending.
func (r *Router) Evaluate() {
	candidates := assignmentCandidates(r.e.repo.Snapshot())
	if len(candidates) == 0 {
		return
	}
	if _, ok := r.e.roster.FirstAvailable(); !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.pending != nil {
		return
	}
	r.pending = r.e.cfg.Scheduler.AfterFunc(r.e.cfg.SettleDelay, func() {
		if !r.e.track() {
			return
		}
		defer r.e.wg.Done()
		r.fire(candidates)
	})
}

// Stop cancels any pending assignment and disables further scheduling.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

func (r *Router) fire(ids []string) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.pending = nil
	r.mu.Unlock()

	agent, ok := r.e.roster.FirstAvailable()
	if ok {
		for _, id := range ids {
			r.e.autoAssign(r.e.ctx, id, agent)
		}
	}
	// Conversations that qualified after this pass was scheduled get their
	// own settle delay.
	r.Evaluate()
}

func assignmentCandidates(convs []model.Conversation) []string {
	var ids []string
	for _, c := range convs {
		if needsAssignment(c) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func needsAssignment(c model.Conversation) bool {
	return c.Status == model.StatusOpen && c.RequiresHuman && c.AssigneeID == ""
}

func (e *Engine) autoAssign(ctx context.Context, id string, agent model.Agent) bool {
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		if !needsAssignment(*c) {
			return false
		}
		c.AssigneeID = agent.ID
		c.Messages = append(c.Messages, e.systemMessage(c.ID, "Automatically assigned to "+e.roster.nameOf(agent.ID)))
		return true
	})
	if !ok {
		return false
	}

	metrics.AssignmentsTotal.WithLabelValues("auto").Inc()
	e.logger.Info("conversation auto-assigned",
		logger.ConversationID(id),
		logger.AgentID(agent.ID),
	)
	e.commit(ctx, conv, model.EventConversationUpdated, lastMessage(conv))
	return true
}

// Assign sets the assignee, or clears it when agentID is empty. It is
// permitted in every state and replaces any previous assignee.
func (e *Engine) Assign(ctx context.Context, id, agentID string, by model.Sender) bool {
	conv, ok := e.repo.Update(id, func(c *model.Conversation) bool {
		c.AssigneeID = agentID
		text := "Assignment cleared by " + displayName(by)
		if agentID != "" {
			text = "Assigned to " + e.roster.nameOf(agentID) + " by " + displayName(by)
		}
		c.Messages = append(c.Messages, e.systemMessage(c.ID, text))
		return true
	})
	if !ok {
		return false
	}

	metrics.AssignmentsTotal.WithLabelValues("manual").Inc()
	e.commit(ctx, conv, model.EventConversationUpdated, lastMessage(conv))
	return true
}

// RegisterAgent adds an agent to the roster, typically from the user
// directory. New agents start offline.
func (e *Engine) RegisterAgent(a model.Agent) model.Agent {
	a = e.roster.Register(a)
	e.router.Evaluate()
	return a
}

// SetAgentStatus changes an agent's presence and re-evaluates assignment.
func (e *Engine) SetAgentStatus(ctx context.Context, agentID string, status model.PresenceStatus) (model.Agent, bool) {
	agent, ok := e.roster.SetStatus(agentID, status)
	if !ok {
		return model.Agent{}, false
	}

	if e.publisher != nil {
		event := &model.ChatEvent{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Type:      model.EventAgentStatusChanged,
			Agent:     &agent,
			CreatedAt: e.now(),
		}
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.Warn("failed to publish agent status", logger.AgentID(agentID), zap.Error(err))
		}
	}
	e.router.Evaluate()
	return agent, true
}
