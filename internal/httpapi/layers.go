package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xjonsson/kin-api-server/internal/model"
)

type layerPatch struct {
	Selected *bool `json:"selected"`
}

// patchLayer toggles whether a layer participates in the aggregated
// calendar. The source owning the layer is the first component of the merged
// layer id.
func (a *API) patchLayer(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	layerID := chi.URLParam(r, "layer_id")

	parts := model.SplitMergedID(layerID)
	if len(parts) < 2 {
		writeError(w, a.log, rc.ID, model.NewLayerNotFoundError(layerID))
		return
	}
	if err := a.svc.ValidateSource(rc, parts[0]); err != nil {
		writeError(w, a.log, rc.ID, err)
		return
	}

	var patch layerPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, a.log, rc.ID, model.NewInvalidFormatError(err.Error(), "body", "json"))
		return
	}
	if patch.Selected == nil {
		writeError(w, a.log, rc.ID, model.NewInvalidFormatError("missing", "selected", "boolean"))
		return
	}

	rc.User().ToggleSelectedLayer(layerID, *patch.Selected)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       layerID,
		"selected": *patch.Selected,
	})
}
