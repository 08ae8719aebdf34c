package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/capitalize-ai/livechat-engine/internal/model"
)

func TestAssistModes(t *testing.T) {
	f := &fakeLLM{reply: "Customer wants a refund. [HANDOFF]"}
	env := newTestEnv(t, withLLM(f), withHours(9, 10))
	ctx := context.Background()

	// Outside hours, so the create itself does not call the assistant.
	conv := mustCreate(t, env, "my pizza was cold")
	env.engine.Send(ctx, conv.ID, agentBob, model.TextContent("offer 20% voucher"), model.VisibilityInternal)

	got, err := env.engine.Assist(ctx, conv.ID, AssistSummarize, "")
	if err != nil {
		t.Fatalf("assist: %v", err)
	}
	if got != "Customer wants a refund." {
		t.Fatalf("result=%q", got)
	}
	if f.calls() != 1 {
		t.Fatalf("calls=%d", f.calls())
	}
	prompt := f.requests[0].Messages[0].Content
	if !strings.Contains(prompt, "Internal note (Bob): offer 20% voucher") {
		t.Fatalf("transcript missing internal note:\n%s", prompt)
	}

	if _, err := env.engine.Assist(ctx, conv.ID, AssistImprove, "  "); !errors.Is(err, ErrDraftRequired) {
		t.Fatalf("err=%v want ErrDraftRequired", err)
	}
	env.engine.Assist(ctx, conv.ID, AssistImprove, "sorry about that")
	if !strings.Contains(f.requests[1].Messages[0].Content, "Draft reply:\nsorry about that") {
		t.Fatal("draft not included")
	}

	if _, err := env.engine.Assist(ctx, conv.ID, AssistMode("poem"), ""); err == nil {
		t.Fatal("unknown mode accepted")
	}
	if got, err := env.engine.Assist(ctx, "missing", AssistSuggest, ""); err != nil || got != "" {
		t.Fatalf("unknown id: %q, %v", got, err)
	}
}

func TestAssistUnavailable(t *testing.T) {
	env := newTestEnv(t)
	conv := mustCreate(t, env, "hi")
	if _, err := env.engine.Assist(context.Background(), conv.ID, AssistSuggest, ""); !errors.Is(err, ErrAssistUnavailable) {
		t.Fatalf("err=%v", err)
	}

	f := &fakeLLM{err: errors.New("timeout")}
	env = newTestEnv(t, withLLM(f), withHours(9, 10))
	conv = mustCreate(t, env, "hi")
	if _, err := env.engine.Assist(context.Background(), conv.ID, AssistSuggest, ""); !errors.Is(err, ErrAssistUnavailable) {
		t.Fatalf("err=%v", err)
	}
}

func TestParseAssistMode(t *testing.T) {
	for _, s := range []string{"summarize", "suggest", "improve"} {
		if _, ok := ParseAssistMode(s); !ok {
			t.Errorf("%s rejected", s)
		}
	}
	if _, ok := ParseAssistMode("translate"); ok {
		t.Error("translate accepted")
	}
}
