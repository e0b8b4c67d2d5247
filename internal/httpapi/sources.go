package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xjonsson/kin-api-server/internal/model"
)

// formatSource strips every token-bearing property before a source goes to
// a client.
func formatSource(src *model.Source) map[string]any {
	out := map[string]any{
		"id":         src.ID,
		"status":     src.Status,
		"created_at": src.CreatedAt,
	}
	if src.DisplayName != "" {
		out["display_name"] = src.DisplayName
	}
	if src.Email != "" {
		out["email"] = src.Email
	}
	if src.Colors != nil {
		out["colors"] = src.Colors
	}
	return out
}

func (a *API) listSources(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	sources := make(map[string]any)
	for id, src := range rc.User().Sources() {
		sources[id] = formatSource(src)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (a *API) listSourceLayers(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	sourceID := chi.URLParam(r, "source_id")

	layers, err := a.svc.ListLayers(r.Context(), rc, sourceID)
	if err != nil {
		writeError(w, a.log, rc.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"layers": layers})
}

func (a *API) deleteSource(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	sourceID := chi.URLParam(r, "source_id")

	if err := a.svc.Deauth(r.Context(), rc, sourceID); err != nil {
		writeError(w, a.log, rc.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": sourceID})
}
