package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/middleware"
	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
	"github.com/capitalize-ai/livechat-engine/pkg/metrics"
)

const (
	heartbeatInterval = 30 * time.Second
	replayBatchSize   = 50
	subscriberBuffer  = 64
)

// EventHistory replays the recorded events of a conversation.
type EventHistory interface {
	History(ctx context.Context, conversationID string, afterSequence uint64, limit int) ([]model.ChatEvent, uint64, bool, error)
}

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	engine  *chat.Engine
	hub     *chat.Hub
	history EventHistory
	logger  *logger.Logger
}

// NewStreamHandler creates a new stream handler. history may be nil when no
// event stream is configured.
func NewStreamHandler(engine *chat.Engine, hub *chat.Hub, history EventHistory, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		engine:  engine,
		hub:     hub,
		history: history,
		logger:  log,
	}
}

// ReplayCompleteEvent marks the end of a history replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}

// HistoryResponse is a page of recorded conversation events.
type HistoryResponse struct {
	Events       []model.ChatEvent `json:"events"`
	LastSequence uint64            `json:"last_sequence"`
	HasMore      bool              `json:"has_more"`
}

// Conversation handles GET /api/v1/conversations/:id/events
// Supports ?after_sequence=N to replay recorded events first.
func (h *StreamHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}

	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	// Subscribe before the snapshot so nothing between the two is lost.
	events, unsubscribe := h.hub.Subscribe(conv.ID, subscriberBuffer)
	defer unsubscribe()

	forCustomer := !middleware.IsAgent(r.Context())
	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conv.ID,
	})
	if current, ok := h.engine.Get(conv.ID); ok {
		sendSSEEvent(w, flusher, "snapshot", present(r, current))
	}

	if seq := r.URL.Query().Get("after_sequence"); seq != "" && h.history != nil {
		after, err := strconv.ParseUint(seq, 10, 64)
		if err == nil {
			h.replay(r.Context(), w, flusher, conv.ID, after, forCustomer)
		}
	}

	h.pump(r.Context(), w, flusher, events, forCustomer)
	h.logger.Debug("SSE client disconnected", logger.ConversationID(conv.ID))
}

// Agents handles GET /api/v1/events
// Streams every conversation's events to the agent dashboard.
func (h *StreamHandler) Agents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	events, unsubscribe := h.hub.Subscribe("", subscriberBuffer)
	defer unsubscribe()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"agent_id": middleware.GetUserID(r.Context()),
	})
	sendSSEEvent(w, flusher, "attention", &model.AttentionResponse{
		AttentionRequired: h.engine.AttentionRequired(),
	})

	h.pump(r.Context(), w, flusher, events, false)
}

// History handles GET /api/v1/conversations/:id/history
func (h *StreamHandler) History(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "event history unavailable")
		return
	}

	var after uint64
	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		v, err := strconv.ParseUint(seq, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_sequence")
			return
		}
		after = v
	}
	limit := replayBatchSize
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	events, last, more, err := h.history.History(r.Context(), conv.ID, after, limit)
	if err != nil {
		middleware.RequestLogger(r.Context(), h.logger).Error("failed to read event history",
			logger.ConversationID(conv.ID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to read event history")
		return
	}
	if events == nil {
		events = []model.ChatEvent{}
	}
	writeJSON(w, http.StatusOK, &HistoryResponse{Events: events, LastSequence: last, HasMore: more})
}

func (h *StreamHandler) replay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, conversationID string, after uint64, forCustomer bool) {
	var (
		lastSequence = after
		total        int
	)
	for {
		batch, last, more, err := h.history.History(ctx, conversationID, lastSequence, replayBatchSize)
		if err != nil {
			h.logger.Error("failed to replay events",
				logger.ConversationID(conversationID),
				zap.Error(err),
			)
			sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
				Code:    "replay_error",
				Message: "Failed to replay events",
			})
			return
		}
		for i := range batch {
			if ctx.Err() != nil {
				return
			}
			if event, ok := visibleEvent(&batch[i], forCustomer); ok {
				sendSSEEvent(w, flusher, string(event.Type), event)
				total++
			}
		}
		if last > lastSequence {
			lastSequence = last
		}
		if !more || len(batch) == 0 {
			break
		}
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: lastSequence,
		EventCount:   total,
	})
}

// pump forwards live events until the client goes away.
func (h *StreamHandler) pump(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, events <-chan *model.ChatEvent, forCustomer bool) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if out, visible := visibleEvent(event, forCustomer); visible {
				sendSSEEvent(w, flusher, string(out.Type), out)
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

// visibleEvent shapes an event for the subscriber. Customers never receive
// internal notes, either as the event's message or inside a conversation
// snapshot. The shared event is never modified.
func visibleEvent(event *model.ChatEvent, forCustomer bool) (*model.ChatEvent, bool) {
	if !forCustomer {
		return event, true
	}
	if event.Message != nil && !event.Message.IsPublic() && event.Conversation == nil {
		return nil, false
	}
	out := *event
	if out.Message != nil && !out.Message.IsPublic() {
		out.Message = nil
	}
	if out.Conversation != nil {
		redacted := out.Conversation.ForCustomer()
		out.Conversation = &redacted
	}
	return &out, true
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
