package handler

import (
	"encoding/json"
	"net/http"

	"github.com/campuslink/internal/middleware"
	"github.com/campuslink/internal/push"
)

// PushHandler forwards subscription management to the push service for the
// authenticated caller.
type PushHandler struct {
	client *push.Client
}

func NewPushHandler(client *push.Client) *PushHandler {
	return &PushHandler{client: client}
}

// SubscribeRequest carries the browser subscription from
// PushManager.getSubscription().
type SubscribeRequest struct {
	Subscription push.PushSubscription `json:"subscription"`
}

// Subscribe handles POST /push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Subscription.Endpoint == "" || req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}
	if err := h.client.Subscribe(r.Context(), userID, req.Subscription); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribeRequest identifies the subscription to drop by endpoint.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe handles DELETE /push/subscribe
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.client.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
