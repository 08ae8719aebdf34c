package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

// Hub fans events out to in-process subscribers such as SSE connections.
// Slow subscribers miss events rather than block the engine.
type Hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]hubSub
}

type hubSub struct {
	conversationID string
	ch             chan *model.ChatEvent
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]hubSub)}
}

// Subscribe returns a channel of events for one conversation, or for every
// conversation when conversationID is empty, and a function that ends the
// subscription.
func (h *Hub) Subscribe(conversationID string, buffer int) (<-chan *model.ChatEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *model.ChatEvent, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = hubSub{conversationID: conversationID, ch: ch}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(_ context.Context, event *model.ChatEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if s.conversationID != "" && s.conversationID != event.ConversationID {
			continue
		}
		select {
		case s.ch <- event:
		default:
		}
	}
	return nil
}

// Publishers publishes to each publisher in turn.
type Publishers []Publisher

// Publish implements Publisher. Every publisher is tried; errors are joined.
func (ps Publishers) Publish(ctx context.Context, event *model.ChatEvent) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
