package chat

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/metrics"
)

// Merge absorbs the secondary conversation into the primary. Both message
// logs are combined and stably sorted by timestamp, then a note documenting
// the merge is appended last. That note is the one place where the log is
// allowed to run out of timestamp order. The secondary conversation is
// removed; later operations on its id are no-ops, and an assistant reply
// still in flight for it is redirected to the primary.
func (e *Engine) Merge(ctx context.Context, primaryID, secondaryID string, by model.Sender) bool {
	if primaryID == secondaryID {
		return false
	}

	var (
		primary model.Conversation
		merged  bool
	)
	e.repo.Transform(func(items []model.Conversation) []model.Conversation {
		pi, si := indexOf(items, primaryID), indexOf(items, secondaryID)
		if pi < 0 || si < 0 {
			return items
		}
		p, s := items[pi].Clone(), items[si]

		combined := make([]model.Message, 0, len(p.Messages)+len(s.Messages)+1)
		combined = append(combined, p.Messages...)
		for _, m := range s.Messages {
			m = m.Clone()
			m.ConversationID = p.ID
			combined = append(combined, m)
		}
		sort.SliceStable(combined, func(i, j int) bool {
			return combined[i].Timestamp.Before(combined[j].Timestamp)
		})
		combined = append(combined, e.systemMessage(p.ID,
			fmt.Sprintf("Conversation %s merged into this one by %s", s.ID, displayName(by))))

		p.Messages = combined
		p.UnreadCount += s.UnreadCount
		p.RequiresHuman = p.RequiresHuman || s.RequiresHuman
		for _, tag := range s.Tags {
			if i, found := slices.BinarySearch(p.Tags, tag); !found {
				p.Tags = slices.Insert(p.Tags, i, tag)
			}
		}

		items[pi] = p
		primary, merged = p.Clone(), true
		return append(items[:si], items[si+1:]...)
	})
	if !merged {
		return false
	}

	e.recordMerge(secondaryID, primaryID)
	e.focus.forget(secondaryID)

	e.unpersist(ctx, secondaryID)
	e.emit(ctx, model.EventConversationRemoved, model.Conversation{ID: secondaryID}, nil)

	metrics.RecordTransition("merge")
	e.logger.Info("conversations merged",
		zap.String("primary_id", primaryID),
		zap.String("secondary_id", secondaryID),
	)
	e.commit(ctx, primary, model.EventConversationUpdated, lastMessage(primary))
	return true
}

func (e *Engine) recordMerge(from, into string) {
	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()

	e.mergedInto[from] = into
	for k, v := range e.mergedInto {
		if v == from {
			e.mergedInto[k] = into
		}
	}
}

// mergeTarget returns the conversation that currently hosts id.
func (e *Engine) mergeTarget(id string) string {
	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()

	for range len(e.mergedInto) + 1 {
		next, ok := e.mergedInto[id]
		if !ok {
			break
		}
		id = next
	}
	return id
}
