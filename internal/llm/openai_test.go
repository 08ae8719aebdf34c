package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestOpenAICompleteMapsRoles(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model: "gpt-4o",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "sure thing"},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 3},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	client := NewOpenAIClientWithConfig(cfg)

	resp, err := client.Complete(context.Background(), &CompletionRequest{
		System: "instruction",
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleModel, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "sure thing" || resp.TokensIn != 12 || resp.TokensOut != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected system + 2 turns, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first message role=%s", got.Messages[0].Role)
	}
	if got.Messages[2].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("model turn role=%s", got.Messages[2].Role)
	}
	if got.Model != openai.GPT4 {
		t.Fatalf("default model=%q, want %q", got.Model, openai.GPT4)
	}
}
