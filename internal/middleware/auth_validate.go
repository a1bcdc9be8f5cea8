package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// AuthServiceValidate resolves the caller identity before any handler runs.
// The session (X-Session-Id header or session_id query) is validated against
// the platform's auth service, which returns the user id. With an empty
// authServiceURL (dev, tests) the identity is taken from the userId
// parameter directly.
func AuthServiceValidate(authServiceURL string, client *http.Client) func(http.Handler) http.Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authServiceURL == "" {
				userID := r.URL.Query().Get("userId")
				if userID == "" {
					userID = r.Header.Get("X-User-Id")
				}
				if userID == "" {
					http.Error(w, `{"success":false,"message":"unauthorized"}`, http.StatusUnauthorized)
					return
				}
				ctx := context.WithValue(r.Context(), UserIDKey, userID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			sessionID := r.Header.Get("X-Session-Id")
			if sessionID == "" {
				sessionID = r.URL.Query().Get("session_id")
			}
			if sessionID == "" {
				http.Error(w, `{"success":false,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			reqBody, _ := json.Marshal(map[string]string{"session_id": sessionID})
			req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, authServiceURL+"/internal/validate", bytes.NewReader(reqBody))
			if err != nil {
				http.Error(w, `{"success":false,"message":"internal"}`, http.StatusInternalServerError)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				http.Error(w, `{"success":false,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				http.Error(w, `{"success":false,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			var result struct {
				UserID string `json:"user_id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.UserID == "" {
				http.Error(w, `{"success":false,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, result.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
