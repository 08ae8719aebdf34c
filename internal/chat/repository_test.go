package chat

import (
	"testing"
	"time"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

func TestRepositoryIsolation(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	r := NewRepository(seedConversation("a", now), seedConversation("b", now))

	snap := r.Snapshot()
	snap[0].Messages[0].Content.Text = "mutated"
	snap[0].Tags = append(snap[0].Tags, "x")

	got, _ := r.Get("a")
	if got.Messages[0].Content.Text != "message" || len(got.Tags) != 0 {
		t.Fatal("snapshot mutation leaked into the repository")
	}
}

func TestRepositoryUpdate(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	r := NewRepository(seedConversation("a", now), seedConversation("b", now), seedConversation("c", now))

	if _, ok := r.Update("missing", func(*model.Conversation) bool { return true }); ok {
		t.Fatal("unknown id should be a no-op")
	}
	if _, ok := r.Update("b", func(*model.Conversation) bool { return false }); ok {
		t.Fatal("declined update reported as applied")
	}

	held, _ := r.Get("c")
	got, ok := r.UpdateToFront("c", func(c *model.Conversation) bool {
		c.UnreadCount = 7
		return true
	})
	if !ok || got.UnreadCount != 7 {
		t.Fatalf("update not applied: %+v", got)
	}
	if held.UnreadCount != 0 {
		t.Fatal("previously read copy changed")
	}

	ids := make([]string, 0, 3)
	for _, c := range r.Snapshot() {
		ids = append(ids, c.ID)
	}
	if ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("order=%v", ids)
	}

	if _, ok := r.Remove("a"); !ok || r.Len() != 2 {
		t.Fatal("remove failed")
	}
	r.Insert(seedConversation("d", now))
	if first := r.Snapshot()[0].ID; first != "d" {
		t.Fatalf("insert should go to the front, got %s", first)
	}
}
