package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/model"
)

const (
	// StreamName is the name of the chat event stream.
	StreamName = "CHAT_EVENTS"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// publisher is the subset of jetstream.JetStream used to publish.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventStream publishes engine events and notifications to JetStream and
// replays a conversation's event history.
type EventStream struct {
	client *Client
	pub    publisher
}

// NewEventStream creates an event stream on the client's JetStream context.
func NewEventStream(client *Client) *EventStream {
	return &EventStream{client: client, pub: client.JetStream()}
}

// EnsureStream creates the chat event stream if it does not exist.
func (s *EventStream) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		Description: "Live-chat conversation events and notifications",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for a conversation event. Events that
// belong to no conversation, such as presence changes, go under "agents".
func EventSubject(conversationID string, eventType model.EventType) string {
	if conversationID == "" {
		return fmt.Sprintf("%s.agents.event.%s", SubjectPrefix, eventType)
	}
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, token(conversationID), eventType)
}

// NotifySubject returns the subject notifications for a recipient go to.
func NotifySubject(role model.Role, recipientID string) string {
	if recipientID == "" {
		recipientID = "all"
	}
	return fmt.Sprintf("%s.notify.%s.%s", SubjectPrefix, role, token(recipientID))
}

// ConversationFilter returns the filter subject for every event of a conversation.
func ConversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.%s.event.>", SubjectPrefix, token(conversationID))
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// Publish implements chat.Publisher.
func (s *EventStream) Publish(ctx context.Context, event *model.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.pub.Publish(ctx, EventSubject(event.ConversationID, event.Type), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Notify implements chat.Notifier.
func (s *EventStream) Notify(ctx context.Context, n *chat.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := s.pub.Publish(ctx, NotifySubject(n.RecipientRole, n.RecipientID), data, jetstream.WithMsgID("notify-"+n.Message.ID)); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// History returns up to limit events of a conversation recorded after the
// given stream sequence, the last sequence read, and whether more may follow.
func (s *EventStream) History(ctx context.Context, conversationID string, afterSequence uint64, limit int) ([]model.ChatEvent, uint64, bool, error) {
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: ConversationFilter(conversationID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := s.client.JetStream().CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}
	defer func() {
		name := consumer.CachedInfo().Name
		if err := s.client.JetStream().DeleteConsumer(context.WithoutCancel(ctx), StreamName, name); err != nil {
			s.client.logger.Debug("ephemeral consumer cleanup failed")
		}
	}()

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch events: %w", err)
	}

	var (
		events       []model.ChatEvent
		lastSequence uint64
	)
	for msg := range batch.Messages() {
		event, seq, ok := decodeEvent(msg.Data(), msg.Metadata)
		if !ok {
			continue
		}
		if seq > 0 {
			lastSequence = seq
		}
		events = append(events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return events, lastSequence, len(events) == limit, nil
}

func decodeEvent(data []byte, metadata func() (*jetstream.MsgMetadata, error)) (model.ChatEvent, uint64, bool) {
	var event model.ChatEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, 0, false
	}
	if meta, err := metadata(); err == nil {
		event.Sequence = meta.Sequence.Stream
	}
	return event, event.Sequence, true
}
