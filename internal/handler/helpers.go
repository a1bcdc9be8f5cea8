package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/campuslink/internal/apperr"
	"github.com/campuslink/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// writeDomainError maps the error taxonomy onto response codes. Storage
// failures hide their detail from the client; everything else surfaces its
// message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, apperr.Message(err))
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, apperr.Message(err))
	case errors.Is(err, apperr.ErrAuthorization):
		writeError(w, http.StatusForbidden, apperr.Message(err))
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, apperr.Message(err))
	default:
		logger.Errorf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please retry")
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
