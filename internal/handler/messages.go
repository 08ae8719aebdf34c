package handler

import (
	"net/http"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/middleware"
	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
)

// MessageHandler handles message, typing and focus endpoints.
type MessageHandler struct {
	engine *chat.Engine
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(engine *chat.Engine, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		engine: engine,
		logger: log,
	}
}

// Send handles POST /api/v1/conversations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if !decode(w, r, &req) {
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

	sender := caller(r, h.engine.Roster())
	vis := model.VisibilityPublic
	if req.Internal {
		if sender.Role != model.RoleAgent {
			writeError(w, http.StatusForbidden, "only agents can write internal notes")
			return
		}
		vis = model.VisibilityInternal
	}

	msg, ok := h.engine.Send(r.Context(), conv.ID, sender, content, vis)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// StartTyping handles POST /api/v1/conversations/:id/typing
func (h *MessageHandler) StartTyping(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	var req model.TypingRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	sender := caller(r, h.engine.Roster())
	preview := ""
	if sender.Role == model.RoleCustomer {
		preview = req.Preview
	}
	h.engine.StartTyping(r.Context(), conv.ID, sender.Role, preview)
	w.WriteHeader(http.StatusNoContent)
}

// StopTyping handles DELETE /api/v1/conversations/:id/typing
func (h *MessageHandler) StopTyping(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	h.engine.StopTyping(r.Context(), conv.ID, caller(r, h.engine.Roster()).Role)
	w.WriteHeader(http.StatusNoContent)
}

// Focus handles POST /api/v1/conversations/:id/focus
func (h *MessageHandler) Focus(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())
	if middleware.IsAgent(r.Context()) {
		h.engine.FocusAsAgent(r.Context(), conv.ID, userID)
	} else {
		h.engine.FocusAsCustomer(r.Context(), conv.ID, userID)
	}
	writeConversation(w, r, h.engine, conv.ID, http.StatusOK)
}

// Unfocus handles DELETE /api/v1/conversations/:id/focus
func (h *MessageHandler) Unfocus(w http.ResponseWriter, r *http.Request) {
	conv, ok := loadConversation(w, r, h.engine)
	if !ok {
		return
	}
	userID := middleware.GetUserID(r.Context())
	if middleware.IsAgent(r.Context()) {
		h.engine.UnfocusAsAgent(r.Context(), conv.ID, userID)
	} else {
		h.engine.UnfocusAsCustomer(conv.ID, userID)
	}
	w.WriteHeader(http.StatusNoContent)
}
