package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuslink/internal/middleware"
	"github.com/campuslink/internal/model"
	"github.com/campuslink/internal/service"
)

type MessageHandler struct {
	svc *service.Conversations
}

func NewMessageHandler(svc *service.Conversations) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// GetMessages handles GET /conversations/{id}/messages?cursor=&limit=
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())
	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 0)

	messages, nextCursor, err := h.svc.Messages(r.Context(), conversationID, userID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"messages":   messages,
		"nextCursor": nextCursor,
	})
}

type sendMessageRequest struct {
	Content     string            `json:"content"`
	MessageType model.MessageType `json:"messageType"`
	IsImportant bool              `json:"isImportant"`
}

// SendMessage handles POST /conversations/{id}/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	msg, err := h.svc.SendMessage(r.Context(), conversationID, userID, req.Content, req.MessageType, req.IsImportant)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": msg})
}

type markReadRequest struct {
	UptoSeq int64 `json:"uptoSeq"`
}

// MarkRead handles POST /conversations/{id}/read. An absent or zero uptoSeq
// acknowledges everything up to the latest message.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.MarkRead(r.Context(), conversationID, userID, req.UptoSeq); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
