package chat

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

func TestMergeInterleavesByTimestamp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := *env.now
	at := func(s int) time.Time { return base.Add(time.Duration(s) * time.Second) }

	a := seedConversation("conv-a", at(2), at(4))
	a.Tags = []string{"delivery"}
	a.UnreadCount = 2
	b := seedConversation("conv-b", at(1), at(3), at(5))
	b.Tags = []string{"allergy", "delivery"}
	b.UnreadCount = 3
	env.engine.Load([]model.Conversation{a, b})
	env.advance(time.Minute)

	if !env.engine.Merge(ctx, "conv-a", "conv-b", agentBob) {
		t.Fatal("merge failed")
	}

	got := mustGet(t, env, "conv-a")
	if len(got.Messages) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(got.Messages))
	}
	for i := 1; i < 5; i++ {
		if got.Messages[i].Timestamp.Before(got.Messages[i-1].Timestamp) {
			t.Fatalf("messages out of order at %d", i)
		}
	}
	for i, m := range got.Messages[:5] {
		if want := at(i + 1); !m.Timestamp.Equal(want) {
			t.Errorf("message %d at %s, want %s", i, m.Timestamp, want)
		}
		if m.ConversationID != "conv-a" {
			t.Errorf("message %d still points at %s", i, m.ConversationID)
		}
	}
	note := got.Messages[5]
	if note.Sender.Role != model.RoleSystem || note.Content.Text != "Conversation conv-b merged into this one by Bob" {
		t.Fatalf("unexpected merge note %+v", note)
	}
	if got.UnreadCount != 5 {
		t.Fatalf("unread=%d want 5", got.UnreadCount)
	}
	if !slices.Equal(got.Tags, []string{"allergy", "delivery"}) {
		t.Fatalf("tags=%v", got.Tags)
	}

	if _, ok := env.engine.Get("conv-b"); ok {
		t.Fatal("secondary not removed")
	}
	if env.publisher.count(model.EventConversationRemoved) != 1 {
		t.Fatal("expected removal event")
	}
	if !slices.Contains(env.store.deleted, "conv-b") {
		t.Fatal("secondary not deleted from store")
	}
}

func TestOperationsOnMergedAwayConversationAreNoOps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.engine.Load([]model.Conversation{
		seedConversation("conv-a", env.now.Add(-time.Minute)),
		seedConversation("conv-b", env.now.Add(-time.Second)),
	})
	env.engine.Merge(ctx, "conv-a", "conv-b", agentBob)

	if _, ok := env.engine.Send(ctx, "conv-b", alice, model.TextContent("hi"), model.VisibilityPublic); ok {
		t.Fatal("send to merged-away conversation should be a no-op")
	}
	if env.engine.Close(ctx, "conv-b", agentBob) || env.engine.AddTag(ctx, "conv-b", "x") {
		t.Fatal("mutations of a merged-away conversation should be no-ops")
	}
	if env.engine.Merge(ctx, "conv-a", "conv-b", agentBob) {
		t.Fatal("merging twice should be a no-op")
	}
	if env.engine.Merge(ctx, "conv-a", "conv-a", agentBob) {
		t.Fatal("self-merge should be a no-op")
	}
	if n := len(env.engine.Snapshot()); n != 1 {
		t.Fatalf("expected 1 conversation, got %d", n)
	}
}

func TestMergeTargetFollowsChains(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.engine.Load([]model.Conversation{
		seedConversation("a", env.now.Add(-3*time.Minute)),
		seedConversation("b", env.now.Add(-2*time.Minute)),
		seedConversation("c", env.now.Add(-time.Minute)),
	})
	env.engine.Merge(ctx, "b", "c", agentBob)
	env.engine.Merge(ctx, "a", "b", agentBob)

	if got := env.engine.mergeTarget("c"); got != "a" {
		t.Fatalf("mergeTarget(c)=%q want a", got)
	}
	if got := env.engine.mergeTarget("a"); got != "a" {
		t.Fatalf("mergeTarget(a)=%q", got)
	}
}

func TestMergeCarriesRequiresHuman(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := seedConversation("conv-b", env.now.Add(-time.Second))
	b.RequiresHuman = true
	env.engine.Load([]model.Conversation{
		seedConversation("conv-a", env.now.Add(-time.Minute)),
		b,
	})

	if !env.engine.Merge(ctx, "conv-a", "conv-b", agentBob) {
		t.Fatal("merge failed")
	}
	if got := mustGet(t, env, "conv-a"); !got.RequiresHuman {
		t.Fatal("merged conversation should still require a human")
	}
	if n := env.engine.AttentionRequired(); n != 1 {
		t.Fatalf("attention=%d want 1", n)
	}
}

func TestLatePersistDoesNotRestoreMergedConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.engine.Load([]model.Conversation{
		seedConversation("conv-a", env.now.Add(-time.Minute)),
		seedConversation("conv-b", env.now.Add(-time.Second)),
	})
	env.engine.persist(ctx, "conv-b")
	env.engine.Merge(ctx, "conv-a", "conv-b", agentBob)

	// A write queued before the merge finishes after it.
	env.engine.persist(ctx, "conv-b")
	if _, ok := env.store.get("conv-b"); ok {
		t.Fatal("merged-away conversation written back to the store")
	}
	if _, ok := env.store.get("conv-a"); !ok {
		t.Fatal("primary not saved")
	}
}
