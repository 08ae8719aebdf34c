package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/middleware"
	"github.com/capitalize-ai/livechat-engine/internal/model"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// caller builds the message sender for the authenticated user.
func caller(r *http.Request, roster *chat.Roster) model.Sender {
	ctx := r.Context()
	s := model.Sender{
		ID:          middleware.GetUserID(ctx),
		DisplayName: middleware.GetName(ctx),
		Role:        model.RoleCustomer,
	}
	if middleware.IsAgent(ctx) {
		s.Role = model.RoleAgent
		if a, ok := roster.Get(s.ID); ok && a.Name != "" {
			s.DisplayName = a.Name
		}
	}
	return s
}

// loadConversation resolves the {id} URL parameter to a conversation the
// caller may see, writing the error response when it cannot.
func loadConversation(w http.ResponseWriter, r *http.Request, engine *chat.Engine) (model.Conversation, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.Conversation{}, false
	}
	conv, ok := engine.Get(id)
	if !ok || !canSee(r, conv) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return model.Conversation{}, false
	}
	return conv, true
}

func canSee(r *http.Request, conv model.Conversation) bool {
	if middleware.IsAgent(r.Context()) {
		return true
	}
	return conv.CustomerID == middleware.GetUserID(r.Context())
}

// present shapes a conversation for the caller: customers never see
// internal notes.
func present(r *http.Request, conv model.Conversation) model.Conversation {
	if middleware.IsAgent(r.Context()) {
		return conv
	}
	return conv.ForCustomer()
}

// writeConversation re-reads the conversation and writes its current state.
func writeConversation(w http.ResponseWriter, r *http.Request, engine *chat.Engine, id string, status int) {
	conv, ok := engine.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, status, present(r, conv))
}
