package chat

import (
	"sync"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

// Repository is the in-memory working copy of the conversation set.
//
// Every mutation is a transform over the whole collection: the current slice
// is copied, the transform builds the next one, and the result is swapped in
// under the lock. Readers therefore never see a half-updated conversation.
// Conversations stored in the slice are never mutated in place; a transform
// that changes one replaces it with a modified clone.
type Repository struct {
	mu    sync.RWMutex
	items []model.Conversation
}

// NewRepository creates a repository seeded with convs in the given order.
func NewRepository(convs ...model.Conversation) *Repository {
	r := &Repository{}
	r.Replace(convs)
	return r
}

// Replace swaps the whole collection.
func (r *Repository) Replace(convs []model.Conversation) {
	items := make([]model.Conversation, len(convs))
	for i, c := range convs {
		items[i] = c.Clone()
	}
	r.mu.Lock()
	r.items = items
	r.mu.Unlock()
}

// Snapshot returns a deep copy of the collection in repository order.
func (r *Repository) Snapshot() []model.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Conversation, len(r.items))
	for i, c := range r.items {
		out[i] = c.Clone()
	}
	return out
}

// Len returns the number of conversations.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Get returns a copy of the conversation with the given id.
func (r *Repository) Get(id string) (model.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := indexOf(r.items, id); i >= 0 {
		return r.items[i].Clone(), true
	}
	return model.Conversation{}, false
}

// Transform replaces the collection with fn's result. fn receives a fresh
// slice it may reorder, shrink or extend; elements must be replaced, not
// mutated through shared references.
func (r *Repository) Transform(fn func(items []model.Conversation) []model.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]model.Conversation, len(r.items))
	copy(next, r.items)
	r.items = fn(next)
}

// Insert puts conv at the front of the collection.
func (r *Repository) Insert(conv model.Conversation) {
	c := conv.Clone()
	r.Transform(func(items []model.Conversation) []model.Conversation {
		return append([]model.Conversation{c}, items...)
	})
}

// Update applies fn to a clone of the conversation with the given id. If fn
// returns false the collection is left untouched. Unknown ids are no-ops.
// The returned conversation is the committed state.
func (r *Repository) Update(id string, fn func(c *model.Conversation) bool) (model.Conversation, bool) {
	return r.update(id, false, fn)
}

// UpdateToFront behaves like Update and also moves the conversation to the
// front of the collection when the change is applied.
func (r *Repository) UpdateToFront(id string, fn func(c *model.Conversation) bool) (model.Conversation, bool) {
	return r.update(id, true, fn)
}

func (r *Repository) update(id string, toFront bool, fn func(c *model.Conversation) bool) (model.Conversation, bool) {
	var (
		out     model.Conversation
		applied bool
	)
	r.Transform(func(items []model.Conversation) []model.Conversation {
		i := indexOf(items, id)
		if i < 0 {
			return items
		}
		next := items[i].Clone()
		if !fn(&next) {
			return items
		}
		applied = true
		out = next.Clone()
		if !toFront || i == 0 {
			items[i] = next
			return items
		}
		moved := make([]model.Conversation, 0, len(items))
		moved = append(moved, next)
		moved = append(moved, items[:i]...)
		return append(moved, items[i+1:]...)
	})
	return out, applied
}

// Remove drops the conversation with the given id and returns it.
func (r *Repository) Remove(id string) (model.Conversation, bool) {
	var (
		out     model.Conversation
		removed bool
	)
	r.Transform(func(items []model.Conversation) []model.Conversation {
		i := indexOf(items, id)
		if i < 0 {
			return items
		}
		out, removed = items[i].Clone(), true
		return append(items[:i], items[i+1:]...)
	})
	return out, removed
}

func indexOf(items []model.Conversation, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
