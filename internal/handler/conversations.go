// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/middleware"
	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	engine *chat.Engine
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(engine *chat.Engine, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		engine: engine,
		logger: log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateConversationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = middleware.GetName(ctx)
	}
	if err := middleware.ValidateName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, ok := model.NewContent(req.Text, req.Attachment)
	if !ok {
		writeError(w, http.StatusBadRequest, "text or attachment is required")
		return
	}

	conv, ok := h.engine.Create(ctx, middleware.GetUserID(ctx), name, content, req.Metadata)
	if !ok {
		writeError(w, http.StatusBadRequest, "conversation rejected")
		return
	}

	middleware.RequestLogger(ctx, h.logger).Debug("conversation started", logger.ConversationID(conv.ID))
	writeJSON(w, http.StatusCreated, conv.ForCustomer())
}

// Inbound handles POST /api/v1/inbound
func (h *ConversationHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	var req model.InboundRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, ok := model.NewContent(req.Text, req.Attachment)
	if !ok {
		writeError(w, http.StatusBadRequest, "text or attachment is required")
		return
	}

	conv, ok := h.engine.CreateInbound(r.Context(), req.Source, req.CustomerID, req.CustomerName, content, req.Metadata)
	if !ok {
		writeError(w, http.StatusBadRequest, "conversation rejected")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations?view=
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	view, ok := chat.ParseView(r.URL.Query().Get("view"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown view")
		return
	}

	convs := h.engine.List(view, middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		View:          string(view),
		Conversations: convs,
		Total:         len(convs),
	})
}

// Mine handles GET /api/v1/me/conversations
func (h *ConversationHandler) Mine(w http.ResponseWriter, r *http.Request) {
	convs := h.engine.ConversationsForCustomer(middleware.GetUserID(r.Context()))
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ForCustomer())
	}
	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: out,
		Total:         len(out),
	})
}

// Unread handles GET /api/v1/me/unread
func (h *ConversationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &model.UnreadResponse{
		Unread: h.engine.CustomerUnreadBadge(middleware.GetUserID(r.Context())),
	})
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, present(r, conv))
}

// Close handles POST /api/v1/conversations/:id/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	h.engine.Close(r.Context(), conv.ID, caller(r, h.engine.Roster()))
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// Reopen handles POST /api/v1/conversations/:id/reopen
func (h *ConversationHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	h.engine.Reopen(r.Context(), conv.ID, caller(r, h.engine.Roster()))
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// Assign handles POST /api/v1/conversations/:id/assign
func (h *ConversationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	var req model.AssignRequest
	if !decode(w, r, &req) {
		return
	}
	if req.AgentID != "" {
		if _, known := h.engine.Roster().Get(req.AgentID); !known {
			writeError(w, http.StatusBadRequest, "unknown agent")
			return
		}
	}
	h.engine.Assign(r.Context(), conv.ID, req.AgentID, caller(r, h.engine.Roster()))
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// Snooze handles POST /api/v1/conversations/:id/snooze
func (h *ConversationHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	var req model.SnoozeRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Until.After(h.engine.Now()) {
		writeError(w, http.StatusBadRequest, "until must be in the future")
		return
	}
	h.engine.Snooze(r.Context(), conv.ID, req.Until, caller(r, h.engine.Roster()))
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// Merge handles POST /api/v1/conversations/:id/merge
func (h *ConversationHandler) Merge(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	var req model.MergeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SecondaryID == conv.ID {
		writeError(w, http.StatusBadRequest, "cannot merge a conversation into itself")
		return
	}
	if _, exists := h.engine.Get(req.SecondaryID); !exists {
		writeError(w, http.StatusNotFound, "secondary conversation not found")
		return
	}
	h.engine.Merge(r.Context(), conv.ID, req.SecondaryID, caller(r, h.engine.Roster()))
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// Rate handles POST /api/v1/conversations/:id/rate
func (h *ConversationHandler) Rate(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	var req model.RateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	h.engine.Rate(r.Context(), conv.ID, req.Rating, req.Comment)
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// AddTag handles POST /api/v1/conversations/:id/tags
func (h *ConversationHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	var req model.TagRequest
	if !decode(w, r, &req) {
		return
	}
	if err := middleware.ValidateTag(req.Tag); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.engine.AddTag(r.Context(), conv.ID, req.Tag)
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// RemoveTag handles DELETE /api/v1/conversations/:id/tags/:tag
func (h *ConversationHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	h.engine.RemoveTag(r.Context(), conv.ID, chi.URLParam(r, "tag"))
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// Assist handles POST /api/v1/conversations/:id/assist
func (h *ConversationHandler) Assist(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	var req model.AssistRequest
	if !decode(w, r, &req) {
		return
	}
	mode, ok := chat.ParseAssistMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "mode must be summarize, suggest or improve")
		return
	}

	text, err := h.engine.Assist(r.Context(), conv.ID, mode, req.Draft)
	switch {
	case errors.Is(err, chat.ErrDraftRequired):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrAssistUnavailable):
		middleware.RequestLogger(r.Context(), h.logger).Warn("assistance unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "assistance unavailable")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "assistance failed")
		return
	}
	writeJSON(w, http.StatusOK, &model.AssistResponse{Mode: string(mode), Text: text})
}

// Analytics handles GET /api/v1/analytics
func (h *ConversationHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Analytics())
}

// Attention handles GET /api/v1/attention
func (h *ConversationHandler) Attention(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &model.AttentionResponse{AttentionRequired: h.engine.AttentionRequired()})
}
