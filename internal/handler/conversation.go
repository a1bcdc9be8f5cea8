package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campuslink/internal/middleware"
	"github.com/campuslink/internal/service"
)

type ConversationHandler struct {
	svc *service.Conversations
}

func NewConversationHandler(svc *service.Conversations) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// SearchUsers handles GET /search?searchTerm=
func (h *ConversationHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	term := r.URL.Query().Get("searchTerm")

	users, err := h.svc.SearchUsers(r.Context(), userID, term)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

// ListConversations handles GET /conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summaries, err := h.svc.List(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversations": summaries})
}

// UnreadSummary handles GET /conversations/unread
func (h *ConversationHandler) UnreadSummary(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summary, err := h.svc.UnreadSummary(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "unread": summary})
}

type createDirectRequest struct {
	ParticipantID string `json:"participantId"`
}

// CreateDirect handles POST /conversations/direct
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	var req createDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())

	conv, created, err := h.svc.FindOrCreateDirect(r.Context(), userID, req.ParticipantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"success": true, "conversationId": conv.ID})
}

type createGroupRequest struct {
	GroupName      string   `json:"groupName"`
	ParticipantIDs []string `json:"participantIds"`
	AvatarURL      string   `json:"avatarUrl"`
}

// CreateGroup handles POST /conversations/group
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	userID := middleware.GetUserID(r.Context())

	conv, err := h.svc.CreateGroup(r.Context(), userID, req.GroupName, req.AvatarURL, req.ParticipantIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "conversationId": conv.ID})
}

type renameGroupRequest struct {
	Name string `json:"name"`
}

// RenameGroup handles PUT /conversations/{id}/name
func (h *ConversationHandler) RenameGroup(w http.ResponseWriter, r *http.Request) {
	var req renameGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.RenameGroup(r.Context(), conversationID, userID, req.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type setAvatarRequest struct {
	AvatarURL string `json:"avatarUrl"`
}

// SetAvatar handles PUT /conversations/{id}/avatar
func (h *ConversationHandler) SetAvatar(w http.ResponseWriter, r *http.Request) {
	var req setAvatarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.SetGroupAvatar(r.Context(), conversationID, userID, req.AvatarURL); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type addMemberRequest struct {
	MemberID string `json:"memberId"`
}

// AddMember handles POST /conversations/{id}/members
func (h *ConversationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.AddMember(r.Context(), conversationID, userID, req.MemberID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DeleteConversation handles DELETE /conversations/{id}. The removal is
// scoped to the caller; other participants keep their view.
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.HideForParticipant(r.Context(), conversationID, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
