package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/model"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: payload})
	return &jetstream.PubAck{Stream: StreamName, Sequence: uint64(len(f.msgs))}, nil
}

func TestSubjects(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{EventSubject("c1", model.EventMessageAppended), "chat.c1.event.message_appended"},
		{EventSubject("", model.EventAgentStatusChanged), "chat.agents.event.agent_status_changed"},
		{EventSubject("a.b", model.EventConversationUpdated), "chat.a_b.event.conversation_updated"},
		{NotifySubject(model.RoleCustomer, "cust-1"), "chat.notify.customer.cust-1"},
		{NotifySubject(model.RoleAgent, ""), "chat.notify.agent.all"},
		{ConversationFilter("c1"), "chat.c1.event.>"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestPublishEvent(t *testing.T) {
	fake := &fakePublisher{}
	s := &EventStream{pub: fake}

	event := &model.ChatEvent{ID: "e1", ConversationID: "c1", Type: model.EventConversationCreated}
	if err := s.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fake.msgs) != 1 || fake.msgs[0].subject != "chat.c1.event.conversation_created" {
		t.Fatalf("published=%+v", fake.msgs)
	}
	var decoded model.ChatEvent
	if err := json.Unmarshal(fake.msgs[0].data, &decoded); err != nil || decoded.ID != "e1" {
		t.Fatalf("decoded=%+v err=%v", decoded, err)
	}
}

func TestNotify(t *testing.T) {
	fake := &fakePublisher{}
	s := &EventStream{pub: fake}

	err := s.Notify(context.Background(), &chat.Notification{
		ConversationID: "c1",
		RecipientID:    "agent-bob",
		RecipientRole:  model.RoleAgent,
		Message:        model.Message{ID: "m1", Content: model.TextContent("hi")},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if fake.msgs[0].subject != "chat.notify.agent.agent-bob" {
		t.Fatalf("subject=%s", fake.msgs[0].subject)
	}
}

func TestPublishError(t *testing.T) {
	boom := errors.New("no responders")
	s := &EventStream{pub: &fakePublisher{err: boom}}
	if err := s.Publish(context.Background(), &model.ChatEvent{ID: "e", ConversationID: "c"}); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	data, _ := json.Marshal(model.ChatEvent{ID: "e1", ConversationID: "c1"})
	event, seq, ok := decodeEvent(data, func() (*jetstream.MsgMetadata, error) {
		return &jetstream.MsgMetadata{Sequence: jetstream.SequencePair{Stream: 17}}, nil
	})
	if !ok || seq != 17 || event.Sequence != 17 || event.ID != "e1" {
		t.Fatalf("event=%+v seq=%d ok=%v", event, seq, ok)
	}
	if _, _, ok := decodeEvent([]byte("{"), nil); ok {
		t.Fatal("invalid payload accepted")
	}
}
