package api

import (
	"encoding/json"
	"net/http"

	"github.com/haltman-io/mailfwd/internal/pkg/logger"
)

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError sends a caller-facing error code. Only for classified 4xx
// refusals; internal failures go through respondInternalError.
func respondError(w http.ResponseWriter, code int, fields map[string]interface{}) {
	body := map[string]interface{}{"ok": false}
	for k, v := range fields {
		body[k] = v
	}
	respondJSON(w, code, body)
}

// respondInternalError logs the real error server-side and returns a generic
// message. Database details, AWS errors and file paths never reach the
// caller.
func respondInternalError(w http.ResponseWriter, where string, err error) {
	if err != nil {
		logger.Error("internal error", "where", where, "err", err.Error())
	}
	respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"ok":    false,
		"error": "internal_error",
	})
}
