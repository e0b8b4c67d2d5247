// Package httpapi is the outer HTTP surface: thin chi handlers gluing the
// session layer, the user store, the provider registry and the link
// service together. No business logic lives here.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xjonsson/kin-api-server/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// writeError maps a typed error to its envelope; anything unclassified is
// a 500 with a generic body so internals never leak to clients.
func writeError(w http.ResponseWriter, log *slog.Logger, correlationID string, err error) {
	var me *model.Error
	if errors.As(err, &me) {
		if me.HTTPStatus >= 500 {
			log.Error("request failed", "correlation_id", correlationID, "error", err)
		} else {
			log.Warn("request failed", "correlation_id", correlationID, "error", err)
		}
		writeJSON(w, me.HTTPStatus, me.JSON())
		return
	}
	log.Error("request failed", "correlation_id", correlationID, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"code":  model.CodeInternal,
		"error": "unexpected error, please retry later",
	})
}
