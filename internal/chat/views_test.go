package chat

import (
	"testing"
	"time"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

func TestFilterConversations(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	snoozed := base.Add(time.Hour)

	mine := seedConversation("mine", base.Add(1*time.Minute))
	mine.AssigneeID = "bob"
	other := seedConversation("other", base.Add(2*time.Minute))
	other.AssigneeID = "cat"
	free := seedConversation("free", base.Add(3*time.Minute))
	closed := seedConversation("closed", base.Add(4*time.Minute))
	closed.Status = model.StatusClosed
	sleeping := seedConversation("sleeping", base.Add(5*time.Minute))
	sleeping.AssigneeID = "bob"
	sleeping.SnoozedUntil = &snoozed

	convs := []model.Conversation{mine, other, free, closed, sleeping}

	tests := []struct {
		view View
		want []string
	}{
		{ViewAll, []string{"free", "other", "mine"}},
		{ViewMine, []string{"mine"}},
		{ViewUnassigned, []string{"free"}},
		{ViewClosed, []string{"closed"}},
		{ViewSnoozed, []string{"sleeping"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.view), func(t *testing.T) {
			got := FilterConversations(convs, tt.view, "bob")
			if len(got) != len(tt.want) {
				t.Fatalf("got %d conversations, want %v", len(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestParseView(t *testing.T) {
	if v, ok := ParseView(""); !ok || v != ViewAll {
		t.Fatalf("empty view = %q, %v", v, ok)
	}
	if _, ok := ParseView("archived"); ok {
		t.Fatal("unknown view accepted")
	}
}

func TestConversationsForCustomer(t *testing.T) {
	env := newTestEnv(t)
	first := mustCreate(t, env, "one")
	env.advance(time.Minute)
	second := mustCreate(t, env, "two")
	env.engine.CreateInbound(t.Context(), "simulator", "cust-bob", "Bob", model.TextContent("x"), nil)

	got := env.engine.ConversationsForCustomer(alice.ID)
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("unexpected conversations %+v", got)
	}
}
