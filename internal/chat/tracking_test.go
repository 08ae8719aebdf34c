package chat

import (
	"context"
	"testing"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

func TestAgentFocusMarksCustomerMessagesRead(t *testing.T) {
	env := newTestEnv(t, withHours(9, 10))
	ctx := context.Background()
	conv := mustCreate(t, env, "hello")
	env.engine.Send(ctx, conv.ID, alice, model.TextContent("anyone?"), model.VisibilityPublic)

	if env.engine.AttentionRequired() != 1 {
		t.Fatalf("attention=%d want 1", env.engine.AttentionRequired())
	}
	if !env.engine.FocusAsAgent(ctx, conv.ID, agentBob.ID) {
		t.Fatal("focus failed")
	}

	got := mustGet(t, env, conv.ID)
	if got.UnreadCount != 0 || got.RequiresHuman {
		t.Fatalf("unread=%d requiresHuman=%v", got.UnreadCount, got.RequiresHuman)
	}
	for _, m := range got.Messages {
		if m.Sender.Role == model.RoleCustomer && !m.Read {
			t.Fatalf("customer message %s still unread", m.ID)
		}
	}
	if !got.HasViewer(agentBob.ID) {
		t.Fatal("agent not in viewers")
	}
	if env.engine.AttentionRequired() != 0 {
		t.Fatal("attention count should drop after focus")
	}

	// A message arriving while an agent watches is read immediately.
	env.engine.Send(ctx, conv.ID, alice, model.TextContent("thanks"), model.VisibilityPublic)
	got = mustGet(t, env, conv.ID)
	if got.UnreadCount != 0 || !got.Messages[len(got.Messages)-1].Read {
		t.Fatal("message to a watched conversation should be read")
	}
}

func TestAgentFocusMovesBetweenConversations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := mustCreate(t, env, "a")
	b := mustCreate(t, env, "b")

	env.engine.FocusAsAgent(ctx, a.ID, agentBob.ID)
	env.engine.FocusAsAgent(ctx, b.ID, agentBob.ID)

	if mustGet(t, env, a.ID).HasViewer(agentBob.ID) {
		t.Fatal("agent should have left the first conversation")
	}
	if !mustGet(t, env, b.ID).HasViewer(agentBob.ID) {
		t.Fatal("agent should view the second conversation")
	}

	env.engine.UnfocusAsAgent(ctx, b.ID, agentBob.ID)
	if mustGet(t, env, b.ID).HasViewer(agentBob.ID) {
		t.Fatal("unfocus did not remove viewer")
	}
	if env.engine.FocusAsAgent(ctx, "missing", agentBob.ID) {
		t.Fatal("focus on unknown id should be a no-op")
	}
}

func TestCustomerFocusAndBadge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := mustCreate(t, env, "hi")
	env.engine.Send(ctx, conv.ID, agentBob, model.TextContent("hello!"), model.VisibilityPublic)
	env.engine.Send(ctx, conv.ID, agentBob, model.TextContent("internal"), model.VisibilityInternal)

	if n := env.engine.CustomerUnreadBadge(alice.ID); n != 1 {
		t.Fatalf("badge=%d want 1", n)
	}
	if env.notifier.forRole(model.RoleCustomer) != 1 {
		t.Fatal("unfocused customer should be notified once")
	}

	if env.engine.FocusAsCustomer(ctx, conv.ID, "cust-mallory") {
		t.Fatal("another customer cannot focus this conversation")
	}
	if !env.engine.FocusAsCustomer(ctx, conv.ID, alice.ID) {
		t.Fatal("focus failed")
	}
	if n := env.engine.CustomerUnreadBadge(alice.ID); n != 0 {
		t.Fatalf("badge=%d want 0", n)
	}

	env.engine.Send(ctx, conv.ID, agentBob, model.TextContent("still there?"), model.VisibilityPublic)
	if n := env.engine.CustomerUnreadBadge(alice.ID); n != 0 {
		t.Fatal("message to a focused customer should be read")
	}

	env.engine.UnfocusAsCustomer(conv.ID, alice.ID)
	env.engine.Send(ctx, conv.ID, agentBob, model.TextContent("bye"), model.VisibilityPublic)
	if n := env.engine.CustomerUnreadBadge(alice.ID); n != 1 {
		t.Fatalf("badge=%d want 1", n)
	}
}

func TestTypingIndicators(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := mustCreate(t, env, "hi")

	env.engine.StartTyping(ctx, conv.ID, model.RoleCustomer, "I'd like to")
	got := mustGet(t, env, conv.ID)
	if !got.Typing.CustomerTyping || got.Typing.CustomerPreview == nil || *got.Typing.CustomerPreview != "I'd like to" {
		t.Fatalf("typing=%+v", got.Typing)
	}

	env.engine.Send(ctx, conv.ID, alice, model.TextContent("I'd like to order"), model.VisibilityPublic)
	got = mustGet(t, env, conv.ID)
	if got.Typing.CustomerTyping || got.Typing.CustomerPreview != nil {
		t.Fatal("sending must clear customer typing")
	}

	env.engine.StartTyping(ctx, conv.ID, model.RoleAgent, "")
	if !mustGet(t, env, conv.ID).Typing.AgentTyping {
		t.Fatal("agent typing not set")
	}
	env.engine.StopTyping(ctx, conv.ID, model.RoleAgent)
	if mustGet(t, env, conv.ID).Typing.AgentTyping {
		t.Fatal("agent typing not cleared")
	}
	if env.engine.StartTyping(ctx, conv.ID, model.RoleSystem, "") {
		t.Fatal("system role cannot type")
	}
	if env.publisher.count(model.EventTypingChanged) != 3 {
		t.Fatalf("typing events=%d want 3", env.publisher.count(model.EventTypingChanged))
	}
}
